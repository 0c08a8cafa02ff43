package storagesvc

import (
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/kazi/core"
)

type diskStorage struct {
	dir       string
	urlPrefix string
}

var _ core.FileStorage = (*diskStorage)(nil)

// NewDiskStorage keeps uploads in a local directory served under urlPrefix.
func NewDiskStorage(dir, urlPrefix string) (core.FileStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating uploads directory")
	}
	return &diskStorage{dir: dir, urlPrefix: strings.TrimSuffix(urlPrefix, "/")}, nil
}

func (s *diskStorage) Save(_ context.Context, filename string, r io.Reader) (core.StoredFile, error) {
	name := uuid.New().String() + strings.ToLower(path.Ext(filename))
	fp := filepath.Join(s.dir, name)

	f, err := os.OpenFile(fp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return core.StoredFile{}, errors.Wrap(err, "creating file")
	}
	size, err := io.Copy(f, r)
	if cErr := f.Close(); err == nil {
		err = cErr
	}
	if err != nil {
		_ = os.Remove(fp)
		return core.StoredFile{}, errors.Wrap(err, "writing file")
	}
	return core.StoredFile{URL: s.urlPrefix + "/" + name, Size: size}, nil
}

func (s *diskStorage) Delete(_ context.Context, url string) error {
	name := strings.TrimPrefix(url, s.urlPrefix+"/")
	if name == url || name == "" || strings.ContainsAny(name, `/\`) {
		return nil
	}
	err := os.Remove(filepath.Join(s.dir, name))
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "removing file")
	}
	return nil
}
