package source

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	perrors "github.com/matzehuels/morphkit/pkg/errors"
)

// LocalSource reads files from the local filesystem. It accepts plain
// paths and file:// references.
type LocalSource struct {
	// MaxBytes caps the file size. Zero selects DefaultMaxBytes.
	MaxBytes int64
}

func (LocalSource) Supports(ref string) bool {
	s := Scheme(ref)
	return s == "" || s == "file"
}

func (l LocalSource) Fetch(ctx context.Context, ref string) (*Blob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := strings.TrimPrefix(ref, "file://")
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, perrors.Wrap(perrors.ErrCodeFileNotFound, err, "file not found: %s", path)
	}
	if err != nil {
		return nil, perrors.Wrap(perrors.ErrCodeInvalidPath, err, "open %s", path)
	}
	defer f.Close()

	if st, err := f.Stat(); err == nil && st.IsDir() {
		return nil, perrors.New(perrors.ErrCodeInvalidPath, "%s is a directory", path)
	}
	data, err := readLimited(f, limitOr(l.MaxBytes), path)
	if err != nil {
		return nil, wrapf(perrors.ErrCodeInvalidPath, err, "read %s", path)
	}
	return &Blob{Name: filepath.Base(path), Ref: ref, Data: data}, nil
}

// Walk lists the files below dir whose extension passes keep, sorted by
// path. Hidden directories are skipped.
func Walk(dir string, keep func(name string) bool) ([]string, error) {
	var out []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if keep == nil || keep(d.Name()) {
			out = append(out, path)
		}
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, perrors.Wrap(perrors.ErrCodeFileNotFound, err, "directory not found: %s", dir)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

var _ Source = LocalSource{}
