// Package prefixer adds vendor-prefixed declarations to compiled CSS for a
// configured list of target browsers.
//
// It works on expanded stylesheet output, where every declaration sits on
// its own line, and reports for each output line the input line it came
// from so that source maps can be rebuilt.
package prefixer

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	declRe      = regexp.MustCompile(`^(\s*)([a-zA-Z-][a-zA-Z0-9-]*)(\s*:\s*)([^;]*?)(\s*;\s*)$`)
	keyframesRe = regexp.MustCompile(`^(\s*)@keyframes\b(.*)$`)
	gradientRe  = regexp.MustCompile(`(^|[^-\w])((?:repeating-)?(?:linear|radial)-gradient)\(`)
	identRe     = regexp.MustCompile(`-?[a-zA-Z][a-zA-Z0-9-]*`)
)

// Prefixer rewrites stylesheets for a fixed set of targets
type Prefixer struct {
	targets   []Target
	props     map[string][]string
	display   map[string][]string
	gradients []string
	sticky    []string
	keyframes []string
}

// New resolves the browser queries and precomputes which prefixes each
// property needs.
func New(queries []string) (*Prefixer, error) {
	targets, err := ParseTargets(queries)
	if err != nil {
		return nil, err
	}

	p := &Prefixer{
		targets: targets,
		props:   make(map[string][]string),
		display: make(map[string][]string),
	}

	for prop, sup := range properties {
		if prefixes := p.resolve(sup); len(prefixes) > 0 {
			p.props[prop] = prefixes
		}
	}

	for value, alternatives := range displayValues {
		for _, alt := range alternatives {
			if len(p.resolve(alt.sup)) > 0 {
				p.display[value] = append(p.display[value], alt.value)
			}
		}
	}

	p.gradients = p.resolve(gradients)
	p.sticky = p.resolve(sticky)
	p.keyframes = p.props["animation"]

	return p, nil
}

// Targets returns the resolved browser targets
func (p *Prefixer) Targets() []Target {
	return p.targets
}

// Prefixes returns the prefixes property needs, in emission order
func (p *Prefixer) Prefixes(property string) []string {
	return p.props[property]
}

// resolve returns the prefixes, in emission order, that at least one target
// needs according to sup.
func (p *Prefixer) resolve(sup []support) []string {
	needed := make(map[string]bool)
	for _, sp := range sup {
		for _, t := range p.targets {
			if sp.matches(t) {
				needed[sp.prefix] = true
			}
		}
	}

	var out []string
	for _, prefix := range prefixOrder {
		if needed[prefix] {
			out = append(out, prefix)
		}
	}
	return out
}

func (p *Prefixer) needs(property, prefix string) bool {
	for _, pr := range p.props[property] {
		if pr == prefix {
			return true
		}
	}
	return false
}

// Process returns the prefixed stylesheet and, for each of its lines, the
// index of the input line it was derived from.
func (p *Prefixer) Process(css []byte) ([]byte, []int) {
	lines := strings.Split(string(css), "\n")

	w := &writer{}
	blocks := []map[string]bool{{}}

	for i := 0; i < len(lines); i++ {
		line := lines[i]

		if m := keyframesRe.FindStringSubmatch(line); m != nil && len(p.keyframes) > 0 {
			if end := blockEnd(lines, i); end > i {
				for _, prefix := range p.keyframes {
					p.copyKeyframes(w, lines, i, end, prefix, m)
				}
			}
		}

		if d, ok := parseDecl(line); ok {
			p.expand(w, d, blocks[len(blocks)-1], "")
		}

		w.emit(line, i)
		blocks = track(blocks, line)
	}

	return []byte(strings.Join(w.lines, "\n")), w.origin
}

// copyKeyframes emits a prefixed copy of the @keyframes block spanning
// lines[start:end+1]. Declarations inside it only gain the block's prefix.
func (p *Prefixer) copyKeyframes(w *writer, lines []string, start, end int, prefix string, header []string) {
	w.emit(header[1]+"@"+prefix+"keyframes"+header[2], start)

	blocks := []map[string]bool{{}}
	for i := start + 1; i <= end; i++ {
		if d, ok := parseDecl(lines[i]); ok {
			p.expand(w, d, blocks[len(blocks)-1], prefix)
		}
		w.emit(lines[i], i)
		blocks = track(blocks, lines[i])
	}
}

type decl struct {
	indent string
	prop   string
	sep    string
	value  string
}

func parseDecl(line string) (decl, bool) {
	m := declRe.FindStringSubmatch(line)
	if m == nil {
		return decl{}, false
	}
	return decl{indent: m[1], prop: strings.ToLower(m[2]), sep: m[3], value: m[4]}, true
}

func (d decl) render(prop, value string) string {
	return d.indent + prop + d.sep + value + ";"
}

// expand emits the prefixed variants of d that precede it. When only is
// non-empty, variants for other prefixes are skipped.
func (p *Prefixer) expand(w *writer, d decl, seen map[string]bool, only string) {
	seen[d.prop] = true
	seen[d.prop+":"+d.value] = true

	want := func(prefix string) bool { return only == "" || only == prefix }

	emit := func(prop, value string) {
		if seen[prop] && prop != d.prop {
			return
		}
		if seen[prop+":"+value] {
			return
		}
		seen[prop+":"+value] = true
		w.queue(d.render(prop, value))
	}

	for _, prefix := range p.props[d.prop] {
		if !want(prefix) {
			continue
		}
		name, value := prefix+d.prop, d.value
		if prefix == ms {
			if msName, ok := msFlexNames[d.prop]; ok {
				name = msName
				if v, ok := msFlexValues[value]; ok {
					value = v
				}
			}
		}
		if strings.HasPrefix(d.prop, "transition") {
			value = p.prefixIdents(value, prefix)
		}
		emit(name, value)
	}

	if d.prop == "display" {
		for _, alt := range p.display[d.value] {
			if want(valuePrefix(alt)) {
				emit("display", alt)
			}
		}
	}

	if d.prop == "position" && d.value == "sticky" {
		for _, prefix := range p.sticky {
			if want(prefix) {
				emit("position", prefix+"sticky")
			}
		}
	}

	if gradientRe.MatchString(d.value) {
		for _, prefix := range p.gradients {
			if want(prefix) {
				emit(d.prop, legacyGradients(d.value, prefix))
			}
		}
	}
}

// prefixIdents prefixes property names inside a transition value that the
// targets need with the same prefix, e.g. "transform 1s" -> "-webkit-transform 1s".
func (p *Prefixer) prefixIdents(value, prefix string) string {
	return identRe.ReplaceAllStringFunc(value, func(ident string) string {
		if p.needs(ident, prefix) {
			return prefix + ident
		}
		return ident
	})
}

// legacyGradients prefixes every gradient function in value and rewrites
// linear gradient directions into the pre-standard form, where the
// direction names the starting side and angles run counter-clockwise
// from east.
func legacyGradients(value, prefix string) string {
	var b strings.Builder
	rest := value
	for {
		loc := gradientRe.FindStringSubmatchIndex(rest)
		if loc == nil {
			b.WriteString(rest)
			return b.String()
		}
		nameStart, nameEnd := loc[4], loc[5]
		name := rest[nameStart:nameEnd]

		b.WriteString(rest[:nameStart])
		b.WriteString(prefix)
		b.WriteString(name)
		b.WriteByte('(')

		args := rest[nameEnd+1:]
		if strings.HasSuffix(name, "linear-gradient") {
			first, tail := splitFirstArg(args)
			b.WriteString(legacyDirection(first))
			args = tail
		}
		rest = args
	}
}

// splitFirstArg splits s at the first top-level comma, keeping the comma
// with the tail.
func splitFirstArg(s string) (string, string) {
	depth := 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			if depth == 0 {
				return s[:i], s[i:]
			}
			depth--
		case ',':
			if depth == 0 {
				return s[:i], s[i:]
			}
		}
	}
	return s, ""
}

var opposite = map[string]string{
	"top":    "bottom",
	"bottom": "top",
	"left":   "right",
	"right":  "left",
}

func legacyDirection(arg string) string {
	trimmed := strings.TrimSpace(arg)

	if strings.HasPrefix(trimmed, "to ") {
		words := strings.Fields(trimmed)[1:]
		for i, w := range words {
			o, ok := opposite[w]
			if !ok {
				return arg
			}
			words[i] = o
		}
		return strings.Join(words, " ")
	}

	if strings.HasSuffix(trimmed, "deg") {
		deg, err := strconv.ParseFloat(strings.TrimSuffix(trimmed, "deg"), 64)
		if err != nil {
			return arg
		}
		legacy := mod360(90 - deg)
		return strconv.FormatFloat(legacy, 'f', -1, 64) + "deg"
	}

	return arg
}

// valuePrefix returns the vendor prefix of a keyword like "-webkit-box"
func valuePrefix(v string) string {
	if !strings.HasPrefix(v, "-") {
		return ""
	}
	if i := strings.Index(v[1:], "-"); i >= 0 {
		return v[:i+2]
	}
	return ""
}

func mod360(v float64) float64 {
	for v < 0 {
		v += 360
	}
	for v >= 360 {
		v -= 360
	}
	return v
}

// blockEnd returns the index of the line closing the block opened on
// lines[start], or -1.
func blockEnd(lines []string, start int) int {
	depth := 0
	for i := start; i < len(lines); i++ {
		depth += strings.Count(lines[i], "{") - strings.Count(lines[i], "}")
		if depth <= 0 && i > start {
			return i
		}
	}
	return -1
}

// track maintains the stack of per-block declaration sets
func track(blocks []map[string]bool, line string) []map[string]bool {
	for _, r := range line {
		switch r {
		case '{':
			blocks = append(blocks, map[string]bool{})
		case '}':
			if len(blocks) > 1 {
				blocks = blocks[:len(blocks)-1]
			}
		}
	}
	return blocks
}

// writer collects output lines. Prefixed declarations are queued and
// flushed right before the line they were derived from, sharing its origin.
type writer struct {
	lines   []string
	origin  []int
	pending []string
}

func (w *writer) queue(line string) {
	w.pending = append(w.pending, line)
}

func (w *writer) emit(line string, origin int) {
	for _, l := range w.pending {
		w.lines = append(w.lines, l)
		w.origin = append(w.origin, origin)
	}
	w.pending = w.pending[:0]
	w.lines = append(w.lines, line)
	w.origin = append(w.origin, origin)
}
