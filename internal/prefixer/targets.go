package prefixer

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/hashicorp/go-version"
)

// Target is a single browser version the output must support
type Target struct {
	Browser string
	Version *version.Version
}

// String returns the target in query form, e.g. "ie 9"
func (t Target) String() string {
	return t.Browser + " " + t.Version.Original()
}

// agents lists the released versions known for each browser, oldest first.
// Only the tail matters for "last N versions" queries; explicit version
// queries are not checked against it.
var agents = map[string][]string{
	"ie":      {"5.5", "6", "7", "8", "9", "10", "11"},
	"edge":    {"12", "13", "14", "15", "16", "17", "18", "79", "120", "140", "141"},
	"firefox": {"2", "3", "3.5", "3.6", "4", "15", "28", "52", "68", "91", "115", "128", "143", "144"},
	"chrome":  {"4", "10", "21", "26", "36", "43", "53", "80", "120", "140", "141"},
	"safari":  {"3.1", "4", "5", "5.1", "6", "6.1", "7", "8", "9", "10", "12.1", "14", "15.6", "17", "18.5", "26.0"},
	"opera":   {"9", "9.5", "10.5", "11.6", "12", "12.1", "15", "22", "36", "105", "121", "122"},
	"ios_saf": {"3.2", "4.3", "5", "6.1", "7", "8.4", "9.3", "12.5", "15.6", "17.6", "18.5", "26.0"},
	"android": {"2.1", "2.3", "3", "4", "4.1", "4.3", "4.4", "4.4.4", "141"},
	"and_chr": {"141"},
}

var aliases = map[string]string{
	"explorer":         "ie",
	"internetexplorer": "ie",
	"ff":               "firefox",
	"fx":               "firefox",
	"ios":              "ios_saf",
	"chromeandroid":    "and_chr",
}

var (
	lastVersionsRe = regexp.MustCompile(`^last\s+(\d+)\s+(?:(\w+)\s+)?versions?$`)
	browserRe      = regexp.MustCompile(`^(\w+)\s+([\d.]+)$`)
)

// ParseTargets resolves browser queries into a deduplicated target list.
// Supported forms are "last N versions", "last N <browser> versions" and
// "<browser> <version>".
func ParseTargets(queries []string) ([]Target, error) {
	var targets []Target
	seen := make(map[string]bool)

	add := func(browser, v string) error {
		parsed, err := version.NewVersion(v)
		if err != nil {
			return fmt.Errorf("invalid version %q for %s: %w", v, browser, err)
		}
		t := Target{Browser: browser, Version: parsed}
		if key := t.String(); !seen[key] {
			seen[key] = true
			targets = append(targets, t)
		}
		return nil
	}

	for _, raw := range queries {
		q := strings.Join(strings.Fields(strings.ToLower(raw)), " ")

		if m := lastVersionsRe.FindStringSubmatch(q); m != nil {
			n, err := strconv.Atoi(m[1])
			if err != nil || n < 1 {
				return nil, fmt.Errorf("invalid browser query %q", raw)
			}

			browsers := sortedAgents()
			if m[2] != "" {
				name, err := canonical(m[2])
				if err != nil {
					return nil, fmt.Errorf("browser query %q: %w", raw, err)
				}
				browsers = []string{name}
			}

			for _, b := range browsers {
				versions := agents[b]
				if n < len(versions) {
					versions = versions[len(versions)-n:]
				}
				for _, v := range versions {
					if err := add(b, v); err != nil {
						return nil, err
					}
				}
			}
			continue
		}

		if m := browserRe.FindStringSubmatch(q); m != nil {
			name, err := canonical(m[1])
			if err != nil {
				return nil, fmt.Errorf("browser query %q: %w", raw, err)
			}
			if err := add(name, m[2]); err != nil {
				return nil, err
			}
			continue
		}

		return nil, fmt.Errorf("unsupported browser query %q", raw)
	}

	return targets, nil
}

func canonical(name string) (string, error) {
	if alias, ok := aliases[name]; ok {
		name = alias
	}
	if _, ok := agents[name]; !ok {
		return "", fmt.Errorf("unknown browser %q", name)
	}
	return name, nil
}

func sortedAgents() []string {
	return []string{"and_chr", "android", "chrome", "edge", "firefox", "ie", "ios_saf", "opera", "safari"}
}
