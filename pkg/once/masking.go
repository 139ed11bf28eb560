package once

import (
	"fmt"
	"regexp"
)

// DefaultMaskedUserAgents are the link-preview crawlers that must never
// consume an entry.
var DefaultMaskedUserAgents = []string{
	`^Facebook.*`,
	`^facebookexternalhit.*`,
	`^Facebot.*`,
	`^Google.*`,
	`^Instagram.*`,
	`^LinkedIn.*`,
	`^Outlook.*`,
	`^Reddit.*`,
	`^Slack.*`,
	`^Skype.*`,
	`^SnapChat.*`,
	`^Telegram.*`,
	`^Twitter.*`,
	`^WhatsApp.*`,
}

// ClientMasker matches user agents against a list of patterns. Patterns
// are anchored at the start of the user agent.
type ClientMasker struct {
	patterns []*regexp.Regexp
}

// NewClientMasker compiles patterns.
func NewClientMasker(patterns []string) (*ClientMasker, error) {
	m := &ClientMasker{patterns: make([]*regexp.Regexp, 0, len(patterns))}
	for _, p := range patterns {
		if p == "" {
			continue
		}
		re, err := regexp.Compile(`^(?:` + p + `)`)
		if err != nil {
			return nil, fmt.Errorf("compile masked user agent %q: %w", p, err)
		}
		m.patterns = append(m.patterns, re)
	}
	return m, nil
}

// Match reports whether userAgent belongs to a masked client.
func (m *ClientMasker) Match(userAgent string) bool {
	if m == nil {
		return false
	}
	for _, re := range m.patterns {
		if re.MatchString(userAgent) {
			return true
		}
	}
	return false
}
