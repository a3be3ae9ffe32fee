package prefixer

import "github.com/hashicorp/go-version"

const (
	webkit = "-webkit-"
	moz    = "-moz-"
	ms     = "-ms-"
	opera  = "-o-"
)

// prefixOrder is the order prefixed declarations are emitted in.
var prefixOrder = []string{webkit, moz, ms, opera}

// always marks support that still needs a prefix in current releases.
const always = "9999"

// support says that browser needs prefix for versions in [from, to].
type support struct {
	browser string
	prefix  string
	from    *version.Version
	to      *version.Version
}

func s(browser, prefix, from, to string) support {
	return support{
		browser: browser,
		prefix:  prefix,
		from:    version.Must(version.NewVersion(from)),
		to:      version.Must(version.NewVersion(to)),
	}
}

func (sp support) matches(t Target) bool {
	return t.Browser == sp.browser &&
		t.Version.GreaterThanOrEqual(sp.from) &&
		t.Version.LessThanOrEqual(sp.to)
}

func group(props []string, sup []support, into map[string][]support) {
	for _, p := range props {
		into[p] = append(into[p], sup...)
	}
}

var transforms2D = []support{
	s("ie", ms, "9", "9"),
	s("safari", webkit, "3.1", "8"),
	s("ios_saf", webkit, "3.2", "8.4"),
	s("android", webkit, "2.1", "4.4.4"),
	s("chrome", webkit, "4", "35"),
	s("opera", webkit, "15", "22"),
	s("opera", opera, "10.5", "11.6"),
	s("firefox", moz, "3.5", "15"),
}

var transforms3D = []support{
	s("safari", webkit, "4", "8"),
	s("ios_saf", webkit, "3.2", "8.4"),
	s("android", webkit, "3", "4.4.4"),
	s("chrome", webkit, "12", "35"),
	s("opera", webkit, "15", "22"),
	s("firefox", moz, "10", "15"),
}

var transitions = []support{
	s("safari", webkit, "3.1", "6"),
	s("ios_saf", webkit, "3.2", "6.1"),
	s("android", webkit, "2.1", "4.3"),
	s("chrome", webkit, "4", "25"),
	s("firefox", moz, "4", "15"),
	s("opera", opera, "10.5", "12"),
}

var animations = []support{
	s("safari", webkit, "4", "8"),
	s("ios_saf", webkit, "3.2", "8.4"),
	s("android", webkit, "2.1", "4.4.4"),
	s("chrome", webkit, "4", "42"),
	s("opera", webkit, "15", "29"),
	s("opera", opera, "12", "12"),
	s("firefox", moz, "5", "15"),
}

var columns = []support{
	s("safari", webkit, "3.1", "8"),
	s("ios_saf", webkit, "3.2", "8.4"),
	s("android", webkit, "2.1", "4.4.4"),
	s("chrome", webkit, "4", "49"),
	s("opera", webkit, "15", "36"),
	s("firefox", moz, "2", "51"),
}

var flexboxWebkit = []support{
	s("safari", webkit, "6.1", "8"),
	s("ios_saf", webkit, "7", "8.4"),
	s("android", webkit, "4.4", "4.4.4"),
	s("chrome", webkit, "21", "28"),
	s("opera", webkit, "15", "16"),
}

var flexboxMS = []support{
	s("ie", ms, "10", "10"),
}

// properties maps a property name to the browsers that need it prefixed.
var properties = func() map[string][]support {
	p := make(map[string][]support)

	group([]string{"transform", "transform-origin"}, transforms2D, p)
	group([]string{"transform-style", "perspective", "perspective-origin"}, transforms3D, p)
	group([]string{"backface-visibility"}, append([]support{
		s("safari", webkit, "4", "15.3"),
		s("ios_saf", webkit, "3.2", "15.3"),
	}, transforms3D[2:]...), p)

	group([]string{
		"transition", "transition-property", "transition-duration",
		"transition-timing-function", "transition-delay",
	}, transitions, p)

	group([]string{
		"animation", "animation-name", "animation-duration", "animation-timing-function",
		"animation-delay", "animation-iteration-count", "animation-direction",
		"animation-fill-mode", "animation-play-state",
	}, animations, p)

	group([]string{"box-shadow"}, []support{
		s("safari", webkit, "3.1", "5"),
		s("ios_saf", webkit, "3.2", "4.3"),
		s("android", webkit, "2.1", "3"),
		s("chrome", webkit, "4", "9"),
		s("firefox", moz, "3.5", "3.6"),
	}, p)

	group([]string{"box-sizing"}, []support{
		s("safari", webkit, "3.1", "5"),
		s("ios_saf", webkit, "3.2", "4.3"),
		s("android", webkit, "2.1", "3"),
		s("chrome", webkit, "4", "9"),
		s("firefox", moz, "2", "28"),
	}, p)

	group([]string{"user-select"}, []support{
		s("safari", webkit, "3.1", always),
		s("ios_saf", webkit, "3.2", always),
		s("android", webkit, "2.1", "4.4.4"),
		s("chrome", webkit, "6", "53"),
		s("opera", webkit, "15", "40"),
		s("firefox", moz, "2", "68"),
		s("ie", ms, "10", "11"),
		s("edge", ms, "12", "18"),
	}, p)

	group([]string{"appearance"}, []support{
		s("safari", webkit, "3.1", always),
		s("ios_saf", webkit, "3.2", always),
		s("android", webkit, "2.1", "4.4.4"),
		s("chrome", webkit, "4", "83"),
		s("opera", webkit, "15", "69"),
		s("firefox", moz, "2", "79"),
	}, p)

	group([]string{
		"columns", "column-count", "column-gap", "column-rule", "column-rule-color",
		"column-rule-style", "column-rule-width", "column-width", "column-fill",
	}, columns, p)

	group([]string{"hyphens"}, []support{
		s("safari", webkit, "5.1", always),
		s("ios_saf", webkit, "4.2", always),
		s("firefox", moz, "6", "42"),
		s("ie", ms, "10", "11"),
		s("edge", ms, "12", "18"),
	}, p)

	group([]string{"filter"}, []support{
		s("safari", webkit, "6", "9"),
		s("ios_saf", webkit, "6", "9.2"),
		s("android", webkit, "4.4", "4.4.4"),
		s("chrome", webkit, "18", "52"),
		s("opera", webkit, "15", "39"),
	}, p)

	group([]string{"mask", "mask-image", "mask-size", "mask-position", "mask-repeat"}, []support{
		s("safari", webkit, "3.1", "15.3"),
		s("ios_saf", webkit, "3.2", "15.3"),
		s("android", webkit, "2.1", "119"),
		s("chrome", webkit, "4", "119"),
		s("edge", webkit, "79", "119"),
		s("opera", webkit, "15", "105"),
	}, p)

	group([]string{"clip-path"}, []support{
		s("safari", webkit, "7", "13"),
		s("ios_saf", webkit, "7", "13"),
		s("android", webkit, "4.4", "4.4.4"),
		s("chrome", webkit, "24", "54"),
	}, p)

	group([]string{"font-feature-settings"}, []support{
		s("android", webkit, "4.4", "4.4.4"),
		s("chrome", webkit, "16", "47"),
		s("opera", webkit, "15", "34"),
		s("firefox", moz, "4", "33"),
	}, p)

	group([]string{"text-size-adjust"}, []support{
		s("ios_saf", webkit, "5", always),
	}, p)

	group([]string{"tab-size"}, []support{
		s("firefox", moz, "4", "90"),
		s("opera", opera, "10.6", "12.1"),
	}, p)

	group([]string{"object-fit", "object-position"}, []support{
		s("opera", opera, "10.6", "12.1"),
	}, p)

	group([]string{
		"flex", "flex-grow", "flex-shrink", "flex-basis", "flex-direction", "flex-wrap",
		"flex-flow", "order", "justify-content", "align-items", "align-self", "align-content",
	}, append(append([]support(nil), flexboxWebkit...), flexboxMS...), p)

	return p
}()

// msFlexNames maps flexbox properties to their IE 10 (2012 draft) names.
var msFlexNames = map[string]string{
	"flex":            "-ms-flex",
	"flex-grow":       "-ms-flex-positive",
	"flex-shrink":     "-ms-flex-negative",
	"flex-basis":      "-ms-flex-preferred-size",
	"flex-direction":  "-ms-flex-direction",
	"flex-wrap":       "-ms-flex-wrap",
	"flex-flow":       "-ms-flex-flow",
	"order":           "-ms-flex-order",
	"justify-content": "-ms-flex-pack",
	"align-items":     "-ms-flex-align",
	"align-self":      "-ms-flex-item-align",
	"align-content":   "-ms-flex-line-pack",
}

// msFlexValues maps alignment keywords to their IE 10 equivalents.
var msFlexValues = map[string]string{
	"flex-start":    "start",
	"flex-end":      "end",
	"space-between": "justify",
	"space-around":  "distribute",
}

// displayValues lists the legacy spellings of display: flex per prefix.
// The 2009 box syntax covers old WebKit, the 2012 syntax covers IE 10.
var displayValues = map[string][]struct {
	sup   []support
	value string
}{
	"flex": {
		{sup: []support{
			s("safari", webkit, "3.1", "6"),
			s("ios_saf", webkit, "3.2", "6.1"),
			s("android", webkit, "2.1", "4.3"),
			s("chrome", webkit, "4", "20"),
		}, value: "-webkit-box"},
		{sup: flexboxMS, value: "-ms-flexbox"},
		{sup: flexboxWebkit, value: "-webkit-flex"},
	},
	"inline-flex": {
		{sup: []support{
			s("safari", webkit, "3.1", "6"),
			s("ios_saf", webkit, "3.2", "6.1"),
			s("android", webkit, "2.1", "4.3"),
			s("chrome", webkit, "4", "20"),
		}, value: "-webkit-inline-box"},
		{sup: flexboxMS, value: "-ms-inline-flexbox"},
		{sup: flexboxWebkit, value: "-webkit-inline-flex"},
	},
}

var gradients = []support{
	s("safari", webkit, "5.1", "6"),
	s("ios_saf", webkit, "5", "6.1"),
	s("android", webkit, "4", "4.3"),
	s("chrome", webkit, "10", "25"),
	s("opera", opera, "11.1", "12"),
}

var sticky = []support{
	s("safari", webkit, "6.1", "12.1"),
	s("ios_saf", webkit, "6", "12.5"),
}
