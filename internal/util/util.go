package util

import (
	"os"
	"path/filepath"
	"strings"
)

func DirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

func FileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}

// DataExt returns the lower-cased extension of a data file with any ".gz" stripped,
// so "elements.tsv.gz" gives ".tsv".
func DataExt(name string) string {
	name = strings.ToLower(name)
	name = strings.TrimSuffix(name, ".gz")
	return filepath.Ext(name)
}

// IsGzip reports whether the file name carries a gzip suffix.
func IsGzip(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".gz")
}
