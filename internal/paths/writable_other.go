//go:build !unix

package paths

import (
	"errors"
	"os"
)

func writable(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if info.Mode().Perm()&0200 == 0 {
		return errors.New("directory is read-only")
	}
	return nil
}
