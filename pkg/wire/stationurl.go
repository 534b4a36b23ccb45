package wire

import (
	"sort"
	"strconv"
	"strings"
)

// StationURL is a station address of the form "scheme:/k=v;k=v;...", used to
// advertise reachable endpoints (e.g. the secure server address handed out
// during authentication).
type StationURL struct {
	Scheme string
	Fields map[string]string
}

// NewStationURL creates an empty StationURL for the given scheme.
func NewStationURL(scheme string) StationURL {
	return StationURL{Scheme: scheme, Fields: map[string]string{}}
}

// Set assigns a field, overwriting any previous value.
func (s *StationURL) Set(key, value string) {
	if s.Fields == nil {
		s.Fields = map[string]string{}
	}
	s.Fields[key] = value
}

// Get returns a field's value and whether it was present.
func (s StationURL) Get(key string) (string, bool) {
	v, ok := s.Fields[key]
	return v, ok
}

// Address returns the "address" field, if present.
func (s StationURL) Address() string {
	v, _ := s.Get("address")
	return v
}

// Port returns the "port" field parsed as an integer, or 0 if absent or
// unparsable.
func (s StationURL) Port() int {
	v, ok := s.Get("port")
	if !ok {
		return 0
	}
	n, _ := strconv.Atoi(v)
	return n
}

// String formats the StationURL as "scheme:/k=v;k=v;...", with fields sorted
// by key so the output is deterministic.
func (s StationURL) String() string {
	keys := make([]string, 0, len(s.Fields))
	for k := range s.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(s.Scheme)
	b.WriteString(":/")
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(';')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(s.Fields[k])
	}
	return b.String()
}

// ParseStationURL parses a StationURL in "scheme:/k=v;k=v;..." form. Malformed
// input is tolerated field-by-field: a field with no '=' is skipped rather
// than rejecting the whole URL, matching observed client leniency.
func ParseStationURL(s string) StationURL {
	scheme, rest, _ := strings.Cut(s, ":/")
	out := NewStationURL(scheme)
	if rest == "" {
		return out
	}
	for _, kv := range strings.Split(rest, ";") {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		out.Set(k, v)
	}
	return out
}

// ReadStationURL reads a StationURL encoded as a wire String.
func (r *Reader) ReadStationURL() (StationURL, error) {
	s, err := r.String()
	if err != nil {
		return StationURL{}, err
	}
	return ParseStationURL(s), nil
}

// WriteStationURL appends a StationURL encoded as a wire String.
func (w *Writer) WriteStationURL(s StationURL) {
	w.String(s.String())
}
