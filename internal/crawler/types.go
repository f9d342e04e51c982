// Package crawler defines core types shared across subsystems.
package crawler

import (
	"net/http"
	"time"
)

// Kind is the subscription category assigned to a candidate URL.
type Kind string

// Subscription kinds. KindFree is never produced by the classifier; it only
// carries free-form entries through the persisted state.
const (
	KindAirport Kind = "airport"
	KindClash   Kind = "clash"
	KindV2      Kind = "v2"
	KindFree    Kind = "free"
	KindUnknown Kind = "unknown"
)

// Kinds lists the persisted categories in report order.
var Kinds = []Kind{KindAirport, KindClash, KindV2, KindFree}

// Label returns the category header used by the persisted state and the text report.
func (k Kind) Label() string {
	switch k {
	case KindAirport:
		return "机场订阅"
	case KindClash:
		return "clash订阅"
	case KindV2:
		return "v2订阅"
	case KindFree:
		return "开心玩耍"
	default:
		return string(k)
	}
}

// KindFromLabel maps a persisted category header back to its Kind.
func KindFromLabel(label string) (Kind, bool) {
	for _, k := range Kinds {
		if k.Label() == label {
			return k, true
		}
	}
	return KindUnknown, false
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL     string
	Method  string
	Headers http.Header
	// Timeout bounds the attempt; zero means the fetcher default.
	Timeout time.Duration
}

// FetchResponse is the result returned by a Fetcher implementation. Any HTTP
// status, including non-2xx, is reported here.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// OK reports whether the response carries a 2xx status.
func (r FetchResponse) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Traffic is the quota metadata advertised by an airport subscription.
type Traffic struct {
	Upload   int64
	Download int64
	Total    int64
	Expire   time.Time
}

// Remaining returns total minus used bytes. It may be negative.
func (t Traffic) Remaining() int64 {
	return t.Total - t.Upload - t.Download
}

// Usable reports whether any quota is left.
func (t Traffic) Usable() bool {
	return t.Remaining() > 0
}

// Record is one classified candidate.
type Record struct {
	URL     string
	Kind    Kind
	Traffic *Traffic
}

// Sources is the pre-parsed discovery input.
type Sources struct {
	Channels []string `yaml:"tgchannel"`
	Sites    []string `yaml:"sites"`
}
