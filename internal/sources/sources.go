// Package sources reads the discovery inputs: channel names and extra sites.
package sources

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/subharvest/internal/crawler"
)

// ChannelBase is the public web preview prefix for channels.
const ChannelBase = "https://t.me/s/"

// Load reads the sources file. A missing file yields empty sources.
func Load(path string) (crawler.Sources, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from operator config.
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return crawler.Sources{}, nil
		}
		return crawler.Sources{}, fmt.Errorf("read sources %s: %w", path, err)
	}
	var src crawler.Sources
	if err := yaml.Unmarshal(data, &src); err != nil {
		return crawler.Sources{}, fmt.Errorf("decode sources %s: %w", path, err)
	}
	return src, nil
}

// ChannelName reduces a channel reference (bare name, @name, or link) to its
// last path segment.
func ChannelName(ref string) string {
	ref = strings.TrimSpace(ref)
	ref = strings.TrimRight(ref, "/")
	if i := strings.LastIndex(ref, "/"); i >= 0 {
		ref = ref[i+1:]
	}
	return strings.TrimPrefix(ref, "@")
}

// ChannelURL renders the preview page URL for a channel reference.
func ChannelURL(ref string) string {
	return ChannelBase + ChannelName(ref)
}

// ChannelURLs renders every channel, dropping blanks and duplicates while
// keeping the input order.
func ChannelURLs(src crawler.Sources) []string {
	names := lo.Uniq(lo.Compact(lo.Map(src.Channels, func(ref string, _ int) string {
		return ChannelName(ref)
	})))
	return lo.Map(names, func(name string, _ int) string { return ChannelBase + name })
}

// SiteURLs returns the configured sites trimmed, without blanks or duplicates.
func SiteURLs(src crawler.Sources) []string {
	return lo.Uniq(lo.Compact(lo.Map(src.Sites, func(s string, _ int) string {
		return strings.TrimSpace(s)
	})))
}
