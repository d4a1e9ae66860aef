package assets

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// SourceFile is one input geometry or texture file. Its content hash is
// computed on first use and cached.
type SourceFile struct {
	Path string // Absolute or root-joined path.
	Rel  string // Slash-separated path relative to the scan root.
	Size int64

	hash string
}

// NewSourceFile stats path and returns a SourceFile for it.
func NewSourceFile(path string) (*SourceFile, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if fi.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	return &SourceFile{Path: path, Rel: fi.Name(), Size: fi.Size()}, nil
}

// Hash returns the hex SHA-256 of the file contents, reading the file at most
// once per SourceFile.
func (f *SourceFile) Hash() (string, error) {
	if f.hash != "" {
		return f.hash, nil
	}
	h, err := HashFile(f.Path)
	if err != nil {
		return "", err
	}
	f.hash = h
	return h, nil
}

// HashFile returns the hex SHA-256 of the file at path.
func HashFile(path string) (string, error) {
	fh, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer fh.Close()

	h := sha256.New()
	if _, err := io.Copy(h, fh); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// SameContent reports whether a and b hold byte-identical content. Sizes are
// compared first so differing files are usually rejected without hashing.
func SameContent(a, b *SourceFile) (bool, error) {
	if a.Size != b.Size {
		return false, nil
	}
	ha, err := a.Hash()
	if err != nil {
		return false, err
	}
	hb, err := b.Hash()
	if err != nil {
		return false, err
	}
	return ha == hb, nil
}

// Paths returns the Path of each file, in order.
func Paths(files []*SourceFile) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Path
	}
	return out
}
