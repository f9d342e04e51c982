package crawler

import "net/http"

// User agents for the two request profiles.
const (
	BrowserUserAgent     = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/103.0.0.0 Safari/537.36"
	ProxyClientUserAgent = "ClashforWindows/0.18.1"
)

// BrowserHeaders returns the browser-like profile used for page scraping.
// Some channel hosts serve a stripped page without these.
func BrowserHeaders(referer string) http.Header {
	h := http.Header{}
	h.Set("User-Agent", BrowserUserAgent)
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,image/apng,*/*;q=0.8")
	h.Set("Connection", "keep-alive")
	h.Set("Cache-Control", "max-age=0")
	if referer != "" {
		h.Set("Referer", referer)
	}
	return h
}

// ProxyClientHeaders returns the profile used to probe subscription endpoints.
// Subscription servers only emit traffic headers and proxy lists to known clients.
func ProxyClientHeaders() http.Header {
	h := http.Header{}
	h.Set("User-Agent", ProxyClientUserAgent)
	return h
}
