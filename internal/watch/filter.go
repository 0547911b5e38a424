package watch

import "strings"

// DefaultBlocklist flags shop listings, listings advertising an invoice and brand-new items.
var DefaultBlocklist = []string{"winkel", "factuur", "nieuw"}

// Filter applies the spam/ad and budget predicates to extracted listings.
type Filter struct {
	terms []string
}

// NewFilter builds a Filter from description blocklist terms. Terms are lowercased,
// trimmed and de-duplicated; empty terms are ignored.
func NewFilter(blocklist []string) *Filter {
	f := &Filter{}
	for _, raw := range blocklist {
		term := strings.TrimSpace(strings.ToLower(raw))
		if term == "" {
			continue
		}
		f.addTerm(term)
	}
	return f
}

func (f *Filter) addTerm(term string) {
	for _, existing := range f.terms {
		if existing == term {
			return
		}
	}
	f.terms = append(f.terms, term)
}

// Terms returns a copy of the normalised blocklist.
func (f *Filter) Terms() []string {
	if f == nil {
		return nil
	}
	return append([]string(nil), f.terms...)
}

// IsSpam reports whether a listing is incomplete, a promoted placement, or matches the blocklist.
func (f *Filter) IsSpam(l Listing) bool {
	if strings.TrimSpace(l.Title) == "" || strings.TrimSpace(l.Link) == "" || l.Featured {
		return true
	}
	if f == nil {
		return false
	}
	desc := strings.ToLower(l.Description)
	for _, term := range f.terms {
		if strings.Contains(desc, term) {
			return true
		}
	}
	return false
}

// WithinBudget reports whether price fits the cap. A nil or non-positive budget is unlimited.
func WithinBudget(price int, budget *int) bool {
	if budget == nil || *budget <= 0 {
		return true
	}
	return price <= *budget
}

// Eligible combines both predicates.
func (f *Filter) Eligible(l Listing, budget *int) bool {
	return !f.IsSpam(l) && WithinBudget(l.Price, budget)
}
