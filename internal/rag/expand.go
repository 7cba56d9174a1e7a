package rag

import "strings"

type expansion struct {
	trigger string
	terms   string
}

// expansions is walked in declared order; the first trigger found wins.
var expansions = []expansion{
	{"save", "saving tips emergency fund money management"},
	{"budget", "budgeting financial planning spending"},
	{"debt", "debt management loan credit card"},
	{"invest", "investment returns stocks bonds"},
	{"retire", "retirement planning EPF KWSP"},
	{"emergency", "emergency fund savings buffer"},
	{"mistake", "common mistakes errors avoid financial"},
	{"scam", "scam fraud prevention red flags"},
	{"insurance", "insurance medical coverage protection"},
	{"tax", "income tax filing LHDN deduction"},
}

// Expand appends topic keywords to query to widen retrieval.
func Expand(query string) string {
	lower := strings.ToLower(query)
	for _, e := range expansions {
		if strings.Contains(lower, e.trigger) {
			return query + " " + e.terms
		}
	}
	return query
}
