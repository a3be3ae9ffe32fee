package sourcemap

import (
	"fmt"
	"strings"
)

const base64Chars = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

const (
	vlqShift        = 5
	vlqContinuation = 1 << vlqShift
	vlqMask         = vlqContinuation - 1
)

var base64Values = func() [128]int {
	var t [128]int
	for i := range t {
		t[i] = -1
	}
	for i := 0; i < len(base64Chars); i++ {
		t[base64Chars[i]] = i
	}
	return t
}()

// Segment is one decoded mapping. Positions are zero-based and absolute.
// Source is -1 for a segment that maps a generated column to nothing;
// Name is -1 when the segment carries no name.
type Segment struct {
	GenColumn    int
	Source       int
	SourceLine   int
	SourceColumn int
	Name         int
}

// Decode parses a "mappings" string into one slice of segments per
// generated line.
func Decode(mappings string) ([][]Segment, error) {
	lines := strings.Split(mappings, ";")
	out := make([][]Segment, len(lines))

	var src, srcLine, srcCol, name int
	for i, line := range lines {
		genCol := 0
		if line == "" {
			continue
		}
		for _, raw := range strings.Split(line, ",") {
			if raw == "" {
				continue
			}
			fields, err := decodeFields(raw)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", i, err)
			}

			seg := Segment{Source: -1, Name: -1}
			genCol += fields[0]
			seg.GenColumn = genCol

			switch len(fields) {
			case 1:
			case 4, 5:
				src += fields[1]
				srcLine += fields[2]
				srcCol += fields[3]
				seg.Source, seg.SourceLine, seg.SourceColumn = src, srcLine, srcCol
				if len(fields) == 5 {
					name += fields[4]
					seg.Name = name
				}
			default:
				return nil, fmt.Errorf("line %d: segment %q has %d fields", i, raw, len(fields))
			}
			out[i] = append(out[i], seg)
		}
	}
	return out, nil
}

// Encode is the inverse of Decode.
func Encode(lines [][]Segment) string {
	var b strings.Builder
	var src, srcLine, srcCol, name int

	for i, line := range lines {
		if i > 0 {
			b.WriteByte(';')
		}
		genCol := 0
		for j, seg := range line {
			if j > 0 {
				b.WriteByte(',')
			}
			writeVLQ(&b, seg.GenColumn-genCol)
			genCol = seg.GenColumn
			if seg.Source < 0 {
				continue
			}
			writeVLQ(&b, seg.Source-src)
			writeVLQ(&b, seg.SourceLine-srcLine)
			writeVLQ(&b, seg.SourceColumn-srcCol)
			src, srcLine, srcCol = seg.Source, seg.SourceLine, seg.SourceColumn
			if seg.Name >= 0 {
				writeVLQ(&b, seg.Name-name)
				name = seg.Name
			}
		}
	}
	return b.String()
}

func decodeFields(s string) ([]int, error) {
	var fields []int
	value, shift := 0, 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 128 || base64Values[c] < 0 {
			return nil, fmt.Errorf("invalid base64 character %q", c)
		}
		digit := base64Values[c]
		value += (digit & vlqMask) << shift
		if digit&vlqContinuation != 0 {
			shift += vlqShift
			continue
		}
		negative := value&1 == 1
		value >>= 1
		if negative {
			value = -value
		}
		fields = append(fields, value)
		value, shift = 0, 0
	}
	if shift != 0 {
		return nil, fmt.Errorf("truncated segment %q", s)
	}
	return fields, nil
}

func writeVLQ(b *strings.Builder, n int) {
	v := n << 1
	if n < 0 {
		v = (-n << 1) | 1
	}
	for {
		digit := v & vlqMask
		v >>= vlqShift
		if v > 0 {
			digit |= vlqContinuation
		}
		b.WriteByte(base64Chars[digit])
		if v == 0 {
			return
		}
	}
}
