// Package files stores uploads on the local disk.
package files

import (
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/codedays/core"
)

var ErrInvalidPath = errors.New("invalid file path")

// idLen is the length of the random prefix that keeps stored names unique.
const idLen = 8

type localStore struct {
	root       string
	maxNameLen int
}

var _ core.FileStore = (*localStore)(nil)

func NewLocalStore(conf core.UploadsConfig) core.FileStore {
	maxLen := conf.MaxFilenameLen
	if maxLen <= 0 {
		maxLen = 100
	}
	if maxLen < 2*idLen {
		maxLen = 2 * idLen
	}
	return &localStore{root: conf.Dir, maxNameLen: maxLen}
}

// Save writes r to <root>/<kind>/<id>_<name>, id being random, so uploads sharing a name never
// overwrite each other. The stored name is at most maxNameLen long.
func (s *localStore) Save(ctx context.Context, kind, filename string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name := SecureFilename(filename, s.maxNameLen-idLen-1)
	if name == "" || kind == "" || strings.ContainsAny(kind, `/\.`) {
		return "", errors.Wrapf(ErrInvalidPath, "%s/%s", kind, filename)
	}
	name = strings.ReplaceAll(uuid.NewString(), "-", "")[:idLen] + "_" + name

	dir := filepath.Join(s.root, kind)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(err, "creating upload dir")
	}

	f, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return "", errors.Wrap(err, "creating temp file")
	}
	tmp := f.Name()
	if _, err = io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", errors.Wrap(err, "writing upload")
	}
	if err = f.Close(); err != nil {
		os.Remove(tmp)
		return "", errors.Wrap(err, "closing upload")
	}
	if err = os.Rename(tmp, filepath.Join(dir, name)); err != nil {
		os.Remove(tmp)
		return "", errors.Wrap(err, "moving upload")
	}
	return path.Join(kind, name), nil
}

// Open reads a file saved by Save. Missing files yield an error wrapping os.ErrNotExist.
func (s *localStore) Open(relPath string) (io.ReadCloser, error) {
	full, err := s.localPath(relPath)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if err != nil {
		return nil, errors.Wrap(err, "opening upload")
	}
	return f, nil
}

// Remove deletes a file saved by Save. Removing a missing file is not an error.
func (s *localStore) Remove(relPath string) error {
	full, err := s.localPath(relPath)
	if err != nil {
		return err
	}
	if err = os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Wrap(err, "removing upload")
	}
	return nil
}

func (s *localStore) localPath(relPath string) (string, error) {
	clean := path.Clean("/" + relPath)[1:]
	if clean == "" || clean != relPath {
		return "", errors.Wrapf(os.ErrNotExist, "%s: %v", relPath, ErrInvalidPath)
	}
	return filepath.Join(s.root, filepath.FromSlash(clean)), nil
}

// SecureFilename keeps ASCII letters, digits, '.', '_' and '-', turns whitespace into '_' and strips
// dots and underscores at both ends. The result is cut to maxLen, keeping the extension whole when it fits.
func SecureFilename(filename string, maxLen int) string {
	// browsers may send the full client path
	if i := strings.LastIndexAny(filename, `/\`); i >= 0 {
		filename = filename[i+1:]
	}

	var b strings.Builder
	for _, r := range strings.Join(strings.Fields(filename), "_") {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		}
	}
	name := strings.Trim(b.String(), "._")

	if maxLen > 0 && len(name) > maxLen {
		ext := path.Ext(name)
		if len(ext) >= maxLen {
			ext = ""
		}
		name = name[:maxLen-len(ext)] + ext
	}
	return name
}
