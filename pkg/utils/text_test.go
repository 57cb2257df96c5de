package utils

import (
	"reflect"
	"testing"
)

func TestTruncate(t *testing.T) {
	if Truncate("hello", 10) != "hello" {
		t.Error("short string unchanged")
	}
	if Truncate("hello world", 5) != "hello..." {
		t.Errorf("got %s", Truncate("hello world", 5))
	}
	if Truncate("x", 0) != "x" {
		t.Error("maxLen 0 returns as-is")
	}
}

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  Refund   Policy ", "refund policy"},
		{"Robert'); DROP TABLE docs;--", "robert drop table docs --"},
		{"50% off_*now*", "50 off now"},
		{"tab\tand\nnewline\x00null", "tab and newline null"},
		{"<script>alert(1)</script>", "script alert 1 /script"},
		{"", ""},
		{"   ", ""},
		{"PCI-DSS v4.0", "pci-dss v4.0"},
	}
	for _, tt := range tests {
		if got := NormalizeText(tt.in); got != tt.want {
			t.Errorf("NormalizeText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTokenize(t *testing.T) {
	got := Tokenize("refund policy, refund window. -- v4.0")
	want := []string{"refund", "policy", "window", "v4.0"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tokenize = %v, want %v", got, want)
	}
	if len(Tokenize("")) != 0 {
		t.Error("empty input should yield no tokens")
	}
}

func TestTrimEdgePunct(t *testing.T) {
	for in, want := range map[string]string{
		"clover.":                   "clover",
		"robert drop table docs --": "robert drop table docs",
		"pci-dss v4.0":              "pci-dss v4.0",
		"...":                       "",
	} {
		if got := TrimEdgePunct(in); got != want {
			t.Errorf("TrimEdgePunct(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestClamp01(t *testing.T) {
	for in, want := range map[float64]float64{-0.5: 0, 0: 0, 0.42: 0.42, 1: 1, 3: 1} {
		if got := Clamp01(in); got != want {
			t.Errorf("Clamp01(%v) = %v, want %v", in, got, want)
		}
	}
}
