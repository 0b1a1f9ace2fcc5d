package toolcache

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// copyTree copies the directory tree below src into dst, keeping file modes
// and symlinks.
func copyTree(src string, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		info, err := d.Info()
		if err != nil {
			return err
		}

		switch {
		case d.IsDir():
			return os.MkdirAll(target, info.Mode().Perm()|0o700)
		case info.Mode()&os.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)
		case info.Mode().IsRegular():
			return installFile(path, target, info.Mode().Perm())
		}
		return nil
	})
}

// installFile copies src to dst with the given permissions. The content is
// written to a temporary sibling first and then moved into place.
func installFile(src string, dst string, perm os.FileMode) error {
	ifile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		_ = ifile.Close()
	}()

	dstDir := filepath.Dir(dst)
	dstName := filepath.Base(dst)

	dstNew := filepath.Join(dstDir, fmt.Sprintf(".%s.new", dstName))
	ofile, err := os.OpenFile(dstNew, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	defer func() {
		_ = ofile.Close()
	}()

	if _, err := io.Copy(ofile, ifile); err != nil {
		return err
	}

	// close here, windows won't let us move an open file
	if err := ofile.Close(); err != nil {
		return err
	}

	// OpenFile applies the umask
	if err := os.Chmod(dstNew, perm); err != nil {
		return err
	}

	return os.Rename(dstNew, dst)
}
