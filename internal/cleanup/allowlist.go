package cleanup

import (
	"listing-tracker/internal/config"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

type allowMode int

const (
	modeUnconfigured allowMode = iota
	modeExcludeAll
	modeTerms
)

// AllowList is the set of location terms an address must contain to stay
// in scope. The zero value is Unconfigured.
type AllowList struct {
	mode  allowMode
	terms []string
}

// Unconfigured returns an allow-list under which cleanup does nothing
func Unconfigured() AllowList {
	return AllowList{mode: modeUnconfigured}
}

// ExcludeAll returns an allow-list that matches no address
func ExcludeAll() AllowList {
	return AllowList{mode: modeExcludeAll}
}

// NewAllowList builds an allow-list from terms. Blank terms are dropped;
// with no terms left the list is Unconfigured.
func NewAllowList(terms ...string) AllowList {
	var folded []string
	for _, t := range terms {
		if f := fold(strings.TrimSpace(t)); f != "" {
			folded = append(folded, f)
		}
	}
	if len(folded) == 0 {
		return Unconfigured()
	}
	return AllowList{mode: modeTerms, terms: folded}
}

// AllowListFromConfig builds the allow-list for the configured boundary
func AllowListFromConfig(b config.BoundaryConfig, searchURL string) AllowList {
	switch b.Mode {
	case config.BoundaryExcludeAll:
		return ExcludeAll()
	default:
		return NewAllowList(b.Terms(searchURL)...)
	}
}

// Configured reports whether the list restricts anything
func (a AllowList) Configured() bool {
	return a.mode != modeUnconfigured
}

// Permits reports whether address is in scope. Matching is a case-folded
// substring match. Every address is permitted while Unconfigured.
func (a AllowList) Permits(address string) bool {
	switch a.mode {
	case modeUnconfigured:
		return true
	case modeExcludeAll:
		return false
	}
	addr := fold(address)
	for _, term := range a.terms {
		if strings.Contains(addr, term) {
			return true
		}
	}
	return false
}

// Terms returns the normalised terms
func (a AllowList) Terms() []string {
	return append([]string(nil), a.terms...)
}

func (a AllowList) String() string {
	switch a.mode {
	case modeUnconfigured:
		return "unconfigured"
	case modeExcludeAll:
		return "exclude-all"
	}
	return strings.Join(a.terms, ", ")
}

func fold(s string) string {
	return cases.Fold().String(norm.NFC.String(s))
}
