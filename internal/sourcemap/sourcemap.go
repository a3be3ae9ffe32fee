// Package sourcemap reads, rewrites and emits version 3 source maps for
// compiled stylesheets.
package sourcemap

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

const (
	commentPrefix       = "/*# sourceMappingURL="
	legacyCommentPrefix = "/*@ sourceMappingURL="
	inlinePrefix        = "data:application/json;charset=utf8;base64,"
)

// Map is a version 3 source map
type Map struct {
	Version        int      `json:"version"`
	File           string   `json:"file,omitempty"`
	SourceRoot     string   `json:"sourceRoot,omitempty"`
	Sources        []string `json:"sources"`
	SourcesContent []string `json:"sourcesContent,omitempty"`
	Names          []string `json:"names"`
	Mappings       string   `json:"mappings"`
}

// Parse decodes a JSON source map
func Parse(data []byte) (*Map, error) {
	var m Map
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse source map: %w", err)
	}
	if m.Version != 3 {
		return nil, fmt.Errorf("unsupported source map version %d", m.Version)
	}
	if m.Names == nil {
		m.Names = []string{}
	}
	return &m, nil
}

// Identity returns a map that maps every generated line to the same line of
// a single source.
func Identity(file, source string, content []byte, lines int) *Map {
	segs := make([][]Segment, lines)
	for i := range segs {
		segs[i] = []Segment{{Source: 0, SourceLine: i, Name: -1}}
	}
	return &Map{
		Version:        3,
		File:           file,
		Sources:        []string{source},
		SourcesContent: []string{string(content)},
		Names:          []string{},
		Mappings:       Encode(segs),
	}
}

// Extract removes the trailing sourceMappingURL comment from css and, when
// it carries an inline data URI, returns the decoded map. A comment that
// points at an external file is stripped and yields a nil map. The comment
// is stripped even when its payload cannot be decoded.
func Extract(css []byte) ([]byte, *Map, error) {
	start := bytes.LastIndex(css, []byte(commentPrefix))
	if legacy := bytes.LastIndex(css, []byte(legacyCommentPrefix)); legacy > start {
		start = legacy
	}
	if start < 0 {
		return css, nil, nil
	}

	rest := css[start+len(commentPrefix):]
	end := bytes.Index(rest, []byte("*/"))
	if end < 0 {
		return css, nil, nil
	}

	ref := strings.TrimSpace(string(rest[:end]))
	head := bytes.TrimRight(css[:start], " \t\r\n")
	tail := bytes.TrimLeft(rest[end+2:], " \t\r\n")
	body := make([]byte, 0, len(head)+len(tail)+1)
	body = append(body, head...)
	if len(head) > 0 {
		body = append(body, '\n')
	}
	body = append(body, tail...)

	if !strings.HasPrefix(ref, "data:") {
		return body, nil, nil
	}

	comma := strings.IndexByte(ref, ',')
	if comma < 0 {
		return body, nil, fmt.Errorf("malformed source map data URI")
	}
	header, payload := ref[:comma], ref[comma+1:]

	var data []byte
	if strings.HasSuffix(header, ";base64") {
		decoded, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return body, nil, fmt.Errorf("failed to decode inline source map: %w", err)
		}
		data = decoded
	} else {
		unescaped, err := url.PathUnescape(payload)
		if err != nil {
			return body, nil, fmt.Errorf("failed to decode inline source map: %w", err)
		}
		data = []byte(unescaped)
	}

	m, err := Parse(data)
	if err != nil {
		return body, nil, err
	}
	return body, m, nil
}

// RemapLines rebuilds the mappings for a new generated text in which line i
// originates from old line origin[i]. Entries below zero produce unmapped
// lines.
func (m *Map) RemapLines(origin []int) error {
	lines, err := Decode(m.Mappings)
	if err != nil {
		return err
	}

	remapped := make([][]Segment, len(origin))
	for i, o := range origin {
		if o < 0 || o >= len(lines) {
			continue
		}
		remapped[i] = append([]Segment(nil), lines[o]...)
	}
	m.Mappings = Encode(remapped)
	return nil
}

// MapSources replaces every entry of Sources with fn(entry)
func (m *Map) MapSources(fn func(string) string) {
	for i, s := range m.Sources {
		m.Sources[i] = fn(s)
	}
}

// JSON encodes the map
func (m *Map) JSON() ([]byte, error) {
	return json.Marshal(m)
}

// Inline appends the map to css as a base64 data URI comment
func (m *Map) Inline(css []byte) ([]byte, error) {
	data, err := m.JSON()
	if err != nil {
		return nil, fmt.Errorf("failed to encode source map: %w", err)
	}

	out := make([]byte, 0, len(css)+len(data)*4/3+64)
	out = append(out, css...)
	if len(out) > 0 && out[len(out)-1] != '\n' {
		out = append(out, '\n')
	}
	out = append(out, commentPrefix...)
	out = append(out, inlinePrefix...)
	out = append(out, base64.StdEncoding.EncodeToString(data)...)
	out = append(out, " */\n"...)
	return out, nil
}
