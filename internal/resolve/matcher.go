package resolve

import (
	"regexp"
)

// Match is the outcome of the winning pattern: every capture group's text
// and whether it took part in the match. Group 0 is the whole match.
type Match struct {
	groups  []string
	present []bool
}

func newMatch(text string, loc []int) Match {
	n := len(loc) / 2
	m := Match{
		groups:  make([]string, n),
		present: make([]bool, n),
	}
	for i := 0; i < n; i++ {
		start, end := loc[2*i], loc[2*i+1]
		if start < 0 {
			continue
		}
		m.groups[i] = text[start:end]
		m.present[i] = true
	}
	return m
}

// NumGroups returns the number of capture groups in the winning pattern.
func (m Match) NumGroups() int {
	if len(m.groups) == 0 {
		return 0
	}
	return len(m.groups) - 1
}

// Group returns capture group i. ok is false when the pattern has no such
// group; a group that exists but did not participate returns "", true.
func (m Match) Group(i int) (string, bool) {
	if i < 0 || i >= len(m.groups) {
		return "", false
	}
	return m.groups[i], true
}

// Candidate is group 1 when the pattern has capture groups, otherwise the
// whole match.
func (m Match) Candidate() string {
	if m.NumGroups() >= 1 {
		return m.groups[1]
	}
	if len(m.groups) == 0 {
		return ""
	}
	return m.groups[0]
}

// MatchFirst returns the match of the first pattern, in list order, that
// matches anywhere in text.
func MatchFirst(text string, patterns []*regexp.Regexp) (Match, bool) {
	for _, re := range patterns {
		loc := re.FindStringSubmatchIndex(text)
		if loc == nil {
			continue
		}
		return newMatch(text, loc), true
	}
	return Match{}, false
}

// anyMatch reports whether at least one pattern matches text.
func anyMatch(text string, patterns []*regexp.Regexp) bool {
	for _, re := range patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}
