// Package extract pulls candidate subscription URLs out of free text and HTML.
package extract

import (
	"bytes"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// urlPattern matches http(s) URLs and refuses to end on trailing punctuation.
var urlPattern = regexp.MustCompile(`https?://[-A-Za-z0-9+&@#/%?=~_|!:,.;]+[-A-Za-z0-9+&@#/%=~_|]`)

// Filter narrows extracted URLs.
//   - ExcludeHosts drops URLs whose host equals one of the domains or is a
//     subdomain of it.
//   - Exclude drops any URL containing one of the substrings.
//   - Keywords and Suffixes, when either is set, keep only URLs whose
//     lowercase form contains a keyword or ends with a suffix.
type Filter struct {
	ExcludeHosts []string
	Exclude      []string
	Keywords     []string
	Suffixes     []string
}

// Extract returns the sorted, deduplicated URLs found in text that pass f.
func Extract(text string, f Filter) []string {
	matches := urlPattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		if !f.Allow(m) {
			continue
		}
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// Allow reports whether a single URL passes the filter.
func (f Filter) Allow(raw string) bool {
	if len(f.ExcludeHosts) > 0 && hostExcluded(raw, f.ExcludeHosts) {
		return false
	}
	for _, ex := range f.Exclude {
		if ex != "" && strings.Contains(raw, ex) {
			return false
		}
	}
	if len(f.Keywords) == 0 && len(f.Suffixes) == 0 {
		return true
	}
	lower := strings.ToLower(raw)
	for _, kw := range f.Keywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	for _, suf := range f.Suffixes {
		if suf != "" && strings.HasSuffix(lower, strings.ToLower(suf)) {
			return true
		}
	}
	return false
}

func hostExcluded(raw string, domains []string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if host == "" {
		return false
	}
	for _, d := range domains {
		d = strings.Trim(strings.ToLower(strings.TrimSpace(d)), ".")
		if d == "" {
			continue
		}
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// Matches reports whether raw is exactly one URL of the extractor grammar.
func Matches(raw string) bool {
	loc := urlPattern.FindStringIndex(raw)
	return loc != nil && loc[0] == 0 && loc[1] == len(raw)
}

// Links returns the absolute http(s) anchor targets in an HTML page, resolved
// against base. Malformed documents and hrefs are skipped.
func Links(base string, body []byte) []string {
	if len(body) == 0 {
		return nil
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}
	seen := make(map[string]struct{})
	var out []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := baseURL.ResolveReference(ref)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			return
		}
		abs.Fragment = ""
		link := abs.String()
		if _, ok := seen[link]; ok {
			return
		}
		seen[link] = struct{}{}
		out = append(out, link)
	})
	sort.Strings(out)
	return out
}
