package utils

import (
	"archive/zip"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"
)

func TestFormatSize(t *testing.T) {
	tests := map[int64]string{
		0:                      "0 B",
		1023:                   "1023 B",
		1024:                   "1.00 KB",
		5 * 1024 * 1024:        "5.00 MB",
		3 * 1024 * 1024 * 1024: "3.00 GB",
	}
	for in, want := range tests {
		if got := FormatSize(in); got != want {
			t.Errorf("FormatSize(%d) = %s, want %s", in, got, want)
		}
	}
}

func TestRate(t *testing.T) {
	if got := Rate(100, 0); got != 0 {
		t.Errorf("Expected 0 before time passes, got %f", got)
	}
	if got := Rate(2048, 2*time.Second); got != 1024 {
		t.Errorf("Expected 1024, got %f", got)
	}
	if got := FormatSpeed(Rate(2048, 2*time.Second)); got != "1.00 KB/s" {
		t.Errorf("Unexpected speed %s", got)
	}
}

func TestTruncateString(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactly", 7, "exactly"},
		{"truncated", 5, "trun…"},
		{"日本語のファイル", 4, "日本語…"},
		{"x", 0, ""},
	}
	for _, tt := range tests {
		if got := TruncateString(tt.in, tt.max); got != tt.want {
			t.Errorf("TruncateString(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}

func TestFormatTimeDuration(t *testing.T) {
	if got := FormatTimeDuration(3723 * time.Second); got != "1h 2m 3s" {
		t.Errorf("Unexpected %s", got)
	}
	if got := FormatTimeDuration(42 * time.Second); got != "42s" {
		t.Errorf("Unexpected %s", got)
	}
}

func TestGetUniqueFilename(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "a.txt")
	if got := GetUniqueFilename(name); got != name {
		t.Errorf("Expected %s, got %s", name, got)
	}
	os.WriteFile(name, nil, 0o644)
	os.WriteFile(filepath.Join(dir, "a (1).txt"), nil, 0o644)
	if got := GetUniqueFilename(name); got != filepath.Join(dir, "a (2).txt") {
		t.Errorf("Expected a (2).txt, got %s", got)
	}
}

func TestZipDirectorySkipsHidden(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "one.txt"), []byte("1"), 0o644)
	os.WriteFile(filepath.Join(dir, ".two.txt.123.part"), []byte("partial"), 0o644)
	os.Mkdir(filepath.Join(dir, "sub"), 0o755)
	os.WriteFile(filepath.Join(dir, "sub", "three.txt"), []byte("3"), 0o644)

	target := filepath.Join(t.TempDir(), "out.zip")
	if err := ZipDirectory(dir, target); err != nil {
		t.Fatalf("ZipDirectory failed: %v", err)
	}

	r, err := zip.OpenReader(target)
	if err != nil {
		t.Fatalf("OpenReader failed: %v", err)
	}
	defer r.Close()

	var names []string
	for _, f := range r.File {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	want := []string{"one.txt", "sub/", "sub/three.txt"}
	if len(names) != len(want) {
		t.Fatalf("Expected %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("Expected %v, got %v", want, names)
			break
		}
	}
}
