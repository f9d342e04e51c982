// Package classify sniffs fetched responses into subscription kinds.
package classify

import (
	"github.com/JakeFAU/subharvest/internal/crawler"
)

// Rule is one step of the sniffing policy. Match returns a definite answer;
// a malformed header or body is a non-match, never an error.
type Rule interface {
	Name() string
	Match(resp crawler.FetchResponse) (crawler.Record, bool)
}

// Classifier applies rules in order; the first match wins.
type Classifier struct {
	rules []Rule
}

// New returns a Classifier with the given rules, or the default policy
// (airport, clash, v2) when none are supplied.
func New(rules ...Rule) *Classifier {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Classifier{rules: append([]Rule(nil), rules...)}
}

// DefaultRules returns the standard ordered policy.
func DefaultRules() []Rule {
	return []Rule{
		AirportRule{},
		ClashRule{},
		V2Rule{},
	}
}

// Classify returns the record for resp, or false when the status is not 2xx
// or no rule matches.
func (c *Classifier) Classify(resp crawler.FetchResponse) (crawler.Record, bool) {
	if !resp.OK() {
		return crawler.Record{}, false
	}
	for _, rule := range c.rules {
		if rec, ok := rule.Match(resp); ok {
			if rec.URL == "" {
				rec.URL = resp.URL
			}
			return rec, true
		}
	}
	return crawler.Record{}, false
}
