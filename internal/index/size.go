package index

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Size is an archive size in bytes. Older indexes quote the number
// ("size": "7093913") or carry a placeholder string; both are kept as found
// until the size is stamped, after which it is written as a JSON number.
type Size struct {
	raw     json.RawMessage
	n       int64
	stamped bool
}

// NewSize returns a stamped size of n bytes.
func NewSize(n int64) Size {
	return Size{n: n, stamped: true}
}

// IsZero reports whether the size was neither decoded nor stamped.
func (s Size) IsZero() bool {
	return !s.stamped && s.raw == nil
}

// Bytes returns the numeric value and whether one could be determined.
func (s Size) Bytes() (int64, bool) {
	if s.stamped {
		return s.n, true
	}
	if s.raw == nil {
		return 0, false
	}
	text := string(s.raw)
	if unquoted, err := strconv.Unquote(text); err == nil {
		text = unquoted
	}
	n, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func (s Size) String() string {
	if n, ok := s.Bytes(); ok {
		return strconv.FormatInt(n, 10)
	}
	if s.raw == nil {
		return ""
	}
	if unquoted, err := strconv.Unquote(string(s.raw)); err == nil {
		return unquoted
	}
	return string(s.raw)
}

func (s Size) MarshalJSON() ([]byte, error) {
	if s.stamped {
		return []byte(strconv.FormatInt(s.n, 10)), nil
	}
	if s.raw == nil {
		return []byte("null"), nil
	}
	return s.raw, nil
}

func (s *Size) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	s.raw = append(json.RawMessage(nil), bytes.TrimSpace(data)...)
	s.n = 0
	s.stamped = false
	return nil
}
