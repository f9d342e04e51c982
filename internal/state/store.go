package state

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/subharvest/internal/crawler"
)

// document is the on-disk layout, keyed by category label.
type document struct {
	Airport []string `yaml:"机场订阅"`
	Clash   []string `yaml:"clash订阅"`
	V2      []string `yaml:"v2订阅"`
	Free    []string `yaml:"开心玩耍"`
}

func (d *document) lists() map[crawler.Kind]*[]string {
	return map[crawler.Kind]*[]string{
		crawler.KindAirport: &d.Airport,
		crawler.KindClash:   &d.Clash,
		crawler.KindV2:      &d.V2,
		crawler.KindFree:    &d.Free,
	}
}

// Decode parses YAML state. Unknown categories are ignored and empty input
// yields an empty set.
func Decode(data []byte) (CategorizedSet, error) {
	set := New()
	if len(bytes.TrimSpace(data)) == 0 {
		return set, nil
	}
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	for kind, list := range doc.lists() {
		for _, url := range *list {
			if url != "" {
				set.Add(kind, url)
			}
		}
	}
	return set, nil
}

// Encode renders set as YAML with sorted URL lists.
func Encode(set CategorizedSet) ([]byte, error) {
	var doc document
	for kind, list := range doc.lists() {
		*list = set.URLs(kind)
		if *list == nil {
			*list = []string{}
		}
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	return buf.Bytes(), nil
}

// Load reads the state file at path. A missing file yields an empty set.
func Load(path string) (CategorizedSet, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from operator config.
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return New(), nil
		}
		return nil, fmt.Errorf("read state %s: %w", path, err)
	}
	return Decode(data)
}

// Save writes set to path, creating parent directories as needed. The file
// is replaced atomically.
func Save(path string, set CategorizedSet) error {
	data, err := Encode(set)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".state-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp state: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // best-effort cleanup after rename
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close state: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace state %s: %w", path, err)
	}
	return nil
}
