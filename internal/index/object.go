package index

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// object holds every member of a decoded JSON object, known or not, so that
// members this package does not model survive a load/save cycle unchanged.
type object map[string]json.RawMessage

// decodeObject unmarshals data into members and fills the typed fields that
// are present. Known members stay in the returned object so that encoding
// can tell "absent" apart from "present but empty".
func decodeObject(data []byte, fields map[string]any) (object, error) {
	var members object
	if err := json.Unmarshal(data, &members); err != nil {
		return nil, err
	}
	for name, dst := range fields {
		raw, ok := members[name]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, dst); err != nil {
			return nil, fmt.Errorf("member %q: %w", name, err)
		}
	}
	return members, nil
}

func (o object) has(name string) bool {
	_, ok := o[name]
	return ok
}

func (o object) clone() object {
	if o == nil {
		return nil
	}
	c := make(object, len(o))
	for k, v := range o {
		c[k] = append(json.RawMessage(nil), v...)
	}
	return c
}

// objectWriter overlays typed field values on the original members.
type objectWriter struct {
	base    object
	members object
	err     error
}

func newObjectWriter(base object) *objectWriter {
	members := make(object, len(base))
	for k, v := range base {
		members[k] = v
	}
	return &objectWriter{base: base, members: members}
}

// set encodes v under name. A zero value is written only when the member was
// present in the source document.
func (w *objectWriter) set(name string, v any, zero bool) {
	if w.err != nil {
		return
	}
	if zero && !w.base.has(name) {
		return
	}
	data, err := marshalNoEscape(v)
	if err != nil {
		w.err = fmt.Errorf("member %q: %w", name, err)
		return
	}
	w.members[name] = data
}

func (w *objectWriter) str(name, v string) {
	w.set(name, v, v == "")
}

func (w *objectWriter) bytes() ([]byte, error) {
	if w.err != nil {
		return nil, w.err
	}
	return marshalNoEscape(map[string]json.RawMessage(w.members))
}

// marshalNoEscape encodes v without HTML escaping so URLs keep their '&'.
func marshalNoEscape(v any) ([]byte, error) {
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
