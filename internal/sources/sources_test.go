package sources

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/subharvest/internal/crawler"
)

func TestLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "tgchannel:\n  - https://t.me/freenodes\n  - proxy_share\nsites:\n  - https://example.com/nodes\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	src, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, crawler.Sources{
		Channels: []string{"https://t.me/freenodes", "proxy_share"},
		Sites:    []string{"https://example.com/nodes"},
	}, src)
}

func TestLoadMissingAndInvalid(t *testing.T) {
	t.Parallel()

	src, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.Empty(t, src.Channels)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tgchannel: [unclosed"), 0o600))
	_, err = Load(path)
	require.ErrorContains(t, err, "decode sources")
}

func TestChannelURLs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		ref  string
		want string
	}{
		{ref: "freenodes", want: "https://t.me/s/freenodes"},
		{ref: "https://t.me/freenodes", want: "https://t.me/s/freenodes"},
		{ref: "https://t.me/s/freenodes/", want: "https://t.me/s/freenodes"},
		{ref: "@freenodes", want: "https://t.me/s/freenodes"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, ChannelURL(tt.ref), tt.ref)
	}

	got := ChannelURLs(crawler.Sources{Channels: []string{"b", "https://t.me/a", "", " b ", "a"}})
	require.Equal(t, []string{"https://t.me/s/b", "https://t.me/s/a"}, got)
}

func TestSiteURLs(t *testing.T) {
	t.Parallel()

	got := SiteURLs(crawler.Sources{Sites: []string{" https://x.example.com ", "", "https://x.example.com"}})
	require.Equal(t, []string{"https://x.example.com"}, got)
}
