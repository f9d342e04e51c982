// Package report renders the categorized set as the flat text listing and
// parses it back.
package report

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/JakeFAU/subharvest/internal/crawler"
	"github.com/JakeFAU/subharvest/internal/state"
)

// ContentType is the MIME type of the rendered report.
const ContentType = "text/plain; charset=utf-8"

// Write renders set to w. Each category gets a "=== label ===" header, one
// URL per line, and a trailing blank line. The free-form category is only
// written when it has entries.
func Write(w io.Writer, set state.CategorizedSet) error {
	bw := bufio.NewWriter(w)
	for _, kind := range crawler.Kinds {
		if kind == crawler.KindFree && set.Len(kind) == 0 {
			continue
		}
		if _, err := fmt.Fprintf(bw, "=== %s ===\n", kind.Label()); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
		for _, url := range set.URLs(kind) {
			if _, err := bw.WriteString(url + "\n"); err != nil {
				return fmt.Errorf("write url: %w", err)
			}
		}
		if err := bw.WriteByte('\n'); err != nil {
			return fmt.Errorf("write separator: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush report: %w", err)
	}
	return nil
}

// Render returns the report as bytes.
func Render(set state.CategorizedSet) []byte {
	var buf bytes.Buffer
	// bytes.Buffer writes cannot fail.
	_ = Write(&buf, set)
	return buf.Bytes()
}

// Parse reads a report back into a categorized set. Lines before the first
// recognized header and sections with unknown labels are skipped.
func Parse(r io.Reader) (state.CategorizedSet, error) {
	set := state.New()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	current := crawler.KindUnknown
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if label, ok := header(line); ok {
			kind, known := crawler.KindFromLabel(label)
			if !known {
				kind = crawler.KindUnknown
			}
			current = kind
			continue
		}
		if current != crawler.KindUnknown {
			set.Add(current, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan report: %w", err)
	}
	return set, nil
}

func header(line string) (string, bool) {
	if !strings.HasPrefix(line, "=== ") || !strings.HasSuffix(line, " ===") || len(line) < 8 {
		return "", false
	}
	return strings.TrimSpace(line[4 : len(line)-4]), true
}
