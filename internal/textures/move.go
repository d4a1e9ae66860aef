package textures

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// moveFile renames src to dst, falling back to copy+remove when a rename is
// not possible (e.g. across filesystems).
func moveFile(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	var linkErr *os.LinkError
	if !errors.As(err, &linkErr) {
		return err
	}
	if cerr := copyFile(src, dst); cerr != nil {
		return fmt.Errorf("move %s: %v (copy fallback: %w)", src, err, cerr)
	}
	return os.Remove(src)
}

func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	fi, err := in.Stat()
	if err != nil {
		return err
	}
	// O_EXCL: never overwrite a file that appeared after the collision check.
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, fi.Mode().Perm())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(dst)
		}
	}()
	_, err = io.Copy(out, in)
	return err
}
