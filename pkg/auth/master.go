package auth

import "strings"

// MasterList is the fixed administrative allow-list. Comparison is exact by
// default; foldCase opts into case-insensitive matching.
type MasterList struct {
	emails   map[string]struct{}
	foldCase bool
}

func NewMasterList(emails []string, foldCase bool) MasterList {
	m := MasterList{emails: make(map[string]struct{}, len(emails)), foldCase: foldCase}
	for _, e := range emails {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if foldCase {
			e = strings.ToLower(e)
		}
		m.emails[e] = struct{}{}
	}
	return m
}

func (m MasterList) Contains(email string) bool {
	if email == "" {
		return false
	}
	if m.foldCase {
		email = strings.ToLower(email)
	}
	_, ok := m.emails[email]
	return ok
}

func (m MasterList) Len() int { return len(m.emails) }
