package index

import (
	"fmt"
	"sort"

	"github.com/spresense-arduino/pkgindex/internal/version"
)

type keyedPlatform struct {
	key version.Tuple
	p   *Platform
}

// SortPlatforms sorts platforms in place, ascending by version tuple. The sort
// is stable, so platforms with equal versions keep their relative order.
func SortPlatforms(platforms []*Platform) error {
	keyed := make([]keyedPlatform, len(platforms))
	for i, p := range platforms {
		key, err := version.ParseTuple(p.Version)
		if err != nil {
			return fmt.Errorf("platform %s: %w", p.Architecture, err)
		}
		keyed[i] = keyedPlatform{key: key, p: p}
	}
	sort.SliceStable(keyed, func(i, j int) bool {
		return keyed[i].key.Less(keyed[j].key)
	})
	for i := range keyed {
		platforms[i] = keyed[i].p
	}
	return nil
}

type keyedTool struct {
	key version.Tuple
	t   *Tool
}

func keyTools(tools []*Tool) ([]keyedTool, error) {
	keyed := make([]keyedTool, len(tools))
	for i, t := range tools {
		key, err := version.ParseTuple(t.Version)
		if err != nil {
			return nil, fmt.Errorf("tool %s: %w", t.Name, err)
		}
		keyed[i] = keyedTool{key: key, t: t}
	}
	return keyed, nil
}

// SortToolsByVersion sorts tools in place, ascending by version tuple only.
func SortToolsByVersion(tools []*Tool) error {
	keyed, err := keyTools(tools)
	if err != nil {
		return err
	}
	sort.SliceStable(keyed, func(i, j int) bool {
		return keyed[i].key.Less(keyed[j].key)
	})
	for i := range keyed {
		tools[i] = keyed[i].t
	}
	return nil
}

// SortTools sorts tools in place by name, then by version tuple.
func SortTools(tools []*Tool) error {
	keyed, err := keyTools(tools)
	if err != nil {
		return err
	}
	sort.SliceStable(keyed, func(i, j int) bool {
		if keyed[i].t.Name != keyed[j].t.Name {
			return keyed[i].t.Name < keyed[j].t.Name
		}
		return keyed[i].key.Less(keyed[j].key)
	})
	for i := range keyed {
		tools[i] = keyed[i].t
	}
	return nil
}
