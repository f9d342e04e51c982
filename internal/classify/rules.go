package classify

import (
	"bytes"
	"encoding/base64"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/JakeFAU/subharvest/internal/crawler"
)

// TrafficHeader carries upload/download/total byte counters on airport subscriptions.
const TrafficHeader = "Subscription-Userinfo"

// ClashMarker is the top-level key of a Clash proxy list.
const ClashMarker = "proxies:"

const v2SnippetRunes = 64

// V2Schemes are the proxy link prefixes accepted in a decoded V2 subscription.
var V2Schemes = []string{"ss://", "ssr://", "vmess://", "trojan://", "vless://"}

// AirportRule matches responses advertising traffic counters.
type AirportRule struct{}

// Name implements Rule.
func (AirportRule) Name() string { return "airport" }

// Match implements Rule.
func (AirportRule) Match(resp crawler.FetchResponse) (crawler.Record, bool) {
	raw := resp.Headers.Get(TrafficHeader)
	if raw == "" {
		return crawler.Record{}, false
	}
	traffic, ok := ParseTraffic(raw)
	if !ok {
		return crawler.Record{}, false
	}
	return crawler.Record{URL: resp.URL, Kind: crawler.KindAirport, Traffic: &traffic}, true
}

// ParseTraffic parses "upload=1; download=2; total=3; expire=1700000000".
// upload, download, and total are required and must be non-negative integers
// within int64 range. Other keys are ignored, and a malformed expire is
// treated as absent.
func ParseTraffic(raw string) (crawler.Traffic, bool) {
	var (
		t    crawler.Traffic
		seen int
	)
	for _, part := range strings.Split(raw, ";") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		var bit int
		switch key {
		case "upload":
			bit = 1
		case "download":
			bit = 2
		case "total":
			bit = 4
		case "expire":
			if n, ok := parseCounter(value); ok && n > 0 {
				t.Expire = time.Unix(n, 0).UTC()
			}
			continue
		default:
			continue
		}
		n, ok := parseCounter(value)
		if !ok {
			return crawler.Traffic{}, false
		}
		switch bit {
		case 1:
			t.Upload = n
		case 2:
			t.Download = n
		case 4:
			t.Total = n
		}
		seen |= bit
	}
	if seen != 7 || t.Upload > math.MaxInt64-t.Download {
		return crawler.Traffic{}, false
	}
	return t, true
}

// parseCounter accepts non-negative integers, and floats ("1.5e9") by
// truncation, as long as the value fits in an int64.
func parseCounter(value string) (int64, bool) {
	value = strings.TrimSpace(value)
	if n, err := strconv.ParseInt(value, 10, 64); err == nil {
		return n, n >= 0
	}
	f, err := strconv.ParseFloat(value, 64)
	// 2^63 is exactly representable, so >= rejects everything past MaxInt64.
	if err != nil || math.IsNaN(f) || f < 0 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

// ClashRule matches bodies carrying a Clash proxy list.
type ClashRule struct{}

// Name implements Rule.
func (ClashRule) Name() string { return "clash" }

// Match implements Rule.
func (ClashRule) Match(resp crawler.FetchResponse) (crawler.Record, bool) {
	if !bytes.Contains(resp.Body, []byte(ClashMarker)) {
		return crawler.Record{}, false
	}
	return crawler.Record{URL: resp.URL, Kind: crawler.KindClash}, true
}

// V2Rule matches Base64 bodies that decode to proxy links.
type V2Rule struct{}

// Name implements Rule.
func (V2Rule) Name() string { return "v2" }

// Match implements Rule.
func (V2Rule) Match(resp crawler.FetchResponse) (crawler.Record, bool) {
	decoded, ok := DecodeSnippet(resp.Body)
	if !ok || !containsScheme(decoded) {
		return crawler.Record{}, false
	}
	return crawler.Record{URL: resp.URL, Kind: crawler.KindV2}, true
}

// DecodeSnippet Base64-decodes the first 64 characters of the trimmed body
// after padding them to a multiple of four.
func DecodeSnippet(body []byte) (string, bool) {
	text := strings.TrimSpace(string(body))
	if text == "" {
		return "", false
	}
	if utf8.RuneCountInString(text) > v2SnippetRunes {
		text = string([]rune(text)[:v2SnippetRunes])
	}
	if rem := len(text) % 4; rem != 0 {
		text += strings.Repeat("=", 4-rem)
	}
	decoded, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return "", false
	}
	return string(decoded), true
}

func containsScheme(text string) bool {
	for _, scheme := range V2Schemes {
		if strings.Contains(text, scheme) {
			return true
		}
	}
	return false
}
