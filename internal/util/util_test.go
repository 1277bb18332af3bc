package util

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDataExt(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"elements.tsv", ".tsv"},
		{"elements.TSV.gz", ".tsv"},
		{"obs.csv", ".csv"},
		{"s3://bucket/dir/obs.csv.gz", ".csv"},
		{"noext", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DataExt(tt.name); got != tt.want {
				t.Errorf("DataExt(%q) = %q, want %q", tt.name, got, tt.want)
			}
		})
	}
}

func TestFileAndDirExists(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.tsv")
	if err := os.WriteFile(file, []byte("chrom\n"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	if !DirExists(dir) {
		t.Errorf("expected %s to be a directory", dir)
	}
	if DirExists(file) {
		t.Errorf("file reported as directory")
	}
	if !FileExists(file) {
		t.Errorf("expected %s to exist", file)
	}
	if DirExists(filepath.Join(dir, "missing")) {
		t.Errorf("missing directory reported as existing")
	}
	// Stat under a regular file fails with ENOTDIR rather than ErrNotExist.
	if DirExists(filepath.Join(file, "sub")) {
		t.Errorf("path below a file reported as directory")
	}
	if FileExists(filepath.Join(dir, "missing.tsv")) {
		t.Errorf("missing file reported as existing")
	}
	if !IsGzip("x.bed.gz") || IsGzip("x.bed") {
		t.Errorf("IsGzip gave the wrong answer")
	}
}
