// Package state holds the categorized set of known subscription URLs and
// merges each run's classified records into it.
package state

import (
	"fmt"
	"slices"

	"github.com/dustin/go-humanize"
	"github.com/samber/lo"

	"github.com/JakeFAU/subharvest/internal/crawler"
)

// URLSet is an unordered set of URLs compared by exact string.
type URLSet map[string]struct{}

// CategorizedSet maps each persisted kind to its URL set.
type CategorizedSet map[crawler.Kind]URLSet

// New returns a set with every persisted kind present and empty.
func New() CategorizedSet {
	s := make(CategorizedSet, len(crawler.Kinds))
	for _, k := range crawler.Kinds {
		s[k] = URLSet{}
	}
	return s
}

// Add inserts url under kind and reports whether it was new.
func (s CategorizedSet) Add(kind crawler.Kind, url string) bool {
	set, ok := s[kind]
	if !ok {
		set = URLSet{}
		s[kind] = set
	}
	if _, dup := set[url]; dup {
		return false
	}
	set[url] = struct{}{}
	return true
}

// Has reports whether url is stored under kind.
func (s CategorizedSet) Has(kind crawler.Kind, url string) bool {
	_, ok := s[kind][url]
	return ok
}

// URLs returns the URLs under kind in sorted order.
func (s CategorizedSet) URLs(kind crawler.Kind) []string {
	urls := lo.Keys(s[kind])
	slices.Sort(urls)
	return urls
}

// Len returns the number of URLs under kind.
func (s CategorizedSet) Len(kind crawler.Kind) int {
	return len(s[kind])
}

// Clone returns a deep copy.
func (s CategorizedSet) Clone() CategorizedSet {
	out := make(CategorizedSet, len(s))
	for kind, set := range s {
		cp := make(URLSet, len(set))
		for url := range set {
			cp[url] = struct{}{}
		}
		out[kind] = cp
	}
	return out
}

// Merge folds records into a copy of existing and returns it together with
// the remaining-quota report lines. existing is not modified.
//
// Per kind the result is the union of existing and new URLs. A URL is never
// moved between kinds, so it may appear under more than one kind when its
// classification changed since an earlier run. Within records, the first
// record for a URL wins.
func Merge(existing CategorizedSet, records []crawler.Record) (CategorizedSet, []string) {
	merged := existing.Clone()
	var report []string
	unique := lo.UniqBy(records, func(r crawler.Record) string { return r.URL })
	for _, rec := range unique {
		if rec.URL == "" || rec.Kind == crawler.KindUnknown || rec.Kind == "" {
			continue
		}
		merged.Add(rec.Kind, rec.URL)
		if line, ok := ReportLine(rec); ok {
			report = append(report, line)
		}
	}
	return merged, report
}

// ReportLine renders the remaining quota of a usable airport record.
func ReportLine(rec crawler.Record) (string, bool) {
	if rec.Kind != crawler.KindAirport || rec.Traffic == nil || !rec.Traffic.Usable() {
		return "", false
	}
	remaining := humanize.IBytes(uint64(rec.Traffic.Remaining()))
	return fmt.Sprintf("remaining quota: %s — %s", remaining, rec.URL), true
}
