package scanner

import (
	"fmt"
	"regexp"
	"strings"
)

// Patterns contains the precompiled recognition rules used by the classifier.
// A Patterns value is read-only after construction and safe to share.
type Patterns struct {
	Season  *regexp.Regexp // Show2 -> season 2
	Number  *regexp.Regexp // trailing episode digits
	Postfix *regexp.Regexp // trailing release tag (HD, CS, ...); nil when no tags are configured
}

// DefaultPostfixes are the release tags recognized when none are configured.
var DefaultPostfixes = []string{"HD", "CS", "BSD"}

// NewPatterns compiles the rule set. Postfix tokens are matched literally
// and only at the very end of a base name.
func NewPatterns(postfixes []string) (*Patterns, error) {
	p := &Patterns{
		Season: regexp.MustCompile(`^[A-Za-z_0-9]+[A-Za-z_]+[1-9]$`),
		Number: regexp.MustCompile(`[0-9]+$`),
	}

	if len(postfixes) == 0 {
		return p, nil
	}

	quoted := make([]string, 0, len(postfixes))
	for _, token := range postfixes {
		if token == "" {
			return nil, fmt.Errorf("empty postfix token")
		}
		quoted = append(quoted, regexp.QuoteMeta(token))
	}

	re, err := regexp.Compile(`(?:` + strings.Join(quoted, "|") + `)$`)
	if err != nil {
		return nil, fmt.Errorf("compile postfix pattern: %w", err)
	}
	p.Postfix = re
	return p, nil
}

// SeasonOf applies the season suffix rule. Names without an appended
// season digit are season 1.
func (p *Patterns) SeasonOf(name string) int {
	if p.Season.MatchString(name) {
		return int(name[len(name)-1] - '0')
	}
	return 1
}

// StripPostfix removes one trailing release tag from base and reports the
// tag that was removed.
func (p *Patterns) StripPostfix(base string) (stripped, tag string, ok bool) {
	if p.Postfix == nil {
		return base, "", false
	}
	loc := p.Postfix.FindStringIndex(base)
	if loc == nil {
		return base, "", false
	}
	return base[:loc[0]], base[loc[0]:], true
}

// SplitNumber separates the trailing digit run from s.
func (p *Patterns) SplitNumber(s string) (head, digits string, ok bool) {
	loc := p.Number.FindStringIndex(s)
	if loc == nil {
		return s, "", false
	}
	return s[:loc[0]], s[loc[0]:], true
}

// BroadcastTable maps broadcaster labels to a priority adjustment.
type BroadcastTable map[string]int

// Priority returns the adjustment for label; unknown labels score 0.
func (t BroadcastTable) Priority(label string) int {
	return t[label]
}
