// Package testutil provides shared test utilities and fixtures.
//
// This package centralises common test helpers to reduce code duplication
// across test files and improve test maintainability.
package testutil

import (
	"strings"
	"testing"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// TSV is a parsed tab-separated output file.
type TSV struct {
	Header []string
	Rows   [][]string
}

// ParseTSV splits tab-separated output. The first line starting with '#'
// is the header; later comment lines and blank lines are skipped.
func ParseTSV(t *testing.T, data string) TSV {
	t.Helper()
	var out TSV
	for _, line := range strings.Split(data, "\n") {
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			if out.Header == nil {
				out.Header = strings.Split(line, "\t")
			}
			continue
		}
		out.Rows = append(out.Rows, strings.Split(line, "\t"))
	}
	if out.Header == nil {
		t.Fatalf("no header line in %q", data)
	}
	for i, r := range out.Rows {
		if len(r) != len(out.Header) {
			t.Fatalf("row %d has %d fields, header has %d", i, len(r), len(out.Header))
		}
	}
	return out
}

// Column returns the values of the named header column.
func (s TSV) Column(t *testing.T, name string) []string {
	t.Helper()
	for i, h := range s.Header {
		if h == name {
			col := make([]string, len(s.Rows))
			for j, r := range s.Rows {
				col[j] = r[i]
			}
			return col
		}
	}
	t.Fatalf("no column %q in %v", name, s.Header)
	return nil
}
