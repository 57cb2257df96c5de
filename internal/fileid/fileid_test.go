package fileid

import (
	"path/filepath"
	"testing"
)

func TestFileDocID(t *testing.T) {
	id1 := FileDocID("/collateral/pricing.pdf")
	id2 := FileDocID("/collateral/pricing.pdf")
	if id1 != id2 {
		t.Errorf("same path should give same ID: %q vs %q", id1, id2)
	}
	if !IsFileDocID(id1) {
		t.Errorf("ID should be recognized: %q", id1)
	}
	if id1[:len(prefix)] != prefix {
		t.Errorf("ID should have prefix %q: got %q", prefix, id1)
	}
}

func TestFileDocID_differentPaths(t *testing.T) {
	if FileDocID("/foo/bar.txt") == FileDocID("/foo/baz.txt") {
		t.Error("different paths should give different IDs")
	}
}

func TestFileDocID_normalized(t *testing.T) {
	id1 := FileDocID("/foo/bar")
	id2 := FileDocID("/foo/bar/")
	id3 := FileDocID("/foo/./bar")
	if id1 != id2 {
		t.Errorf("paths differing only by trailing slash should match: %q vs %q", id1, id2)
	}
	if id1 != id3 {
		t.Errorf("paths with . should normalize: %q vs %q", id1, id3)
	}
}

func TestIsFileDocID(t *testing.T) {
	for _, id := range []string{"", "file-", "file-abc", "doc-123", "file:" + FileDocID("/x")[len(prefix):]} {
		if IsFileDocID(id) {
			t.Errorf("IsFileDocID(%q) = true", id)
		}
	}
}

func TestRelativeFolder(t *testing.T) {
	root := filepath.FromSlash("/srv/collateral")
	tests := []struct {
		path string
		want string
	}{
		{"/srv/collateral/deck.pptx", ""},
		{"/srv/collateral/sales/deck.pptx", "sales"},
		{"/srv/collateral/sales/pricing/sheet.xlsx", "sales/pricing"},
		{"/srv/other/deck.pptx", ""},
		{"/srv/collateral/./sales/../legal/msa.pdf", "legal"},
	}
	for _, tt := range tests {
		if got := RelativeFolder(root, filepath.FromSlash(tt.path)); got != tt.want {
			t.Errorf("RelativeFolder(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
