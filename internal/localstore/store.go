// Package localstore keeps staging and production trees on a local or
// mounted filesystem.
package localstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gosimple/slug"

	"github.com/dharsanguruparan/DataBridge/internal/checksum"
	"github.com/dharsanguruparan/DataBridge/internal/model"
)

// Store maps object keys onto two directory roots. Keys under the
// production prefix resolve below productionRoot; every other key resolves
// below stagingRoot.
type Store struct {
	stagingRoot      string
	productionRoot   string
	productionPrefix string
}

// New creates both roots if needed.
func New(stagingRoot, productionRoot, productionPrefix string) (*Store, error) {
	for _, dir := range []string{stagingRoot, productionRoot} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return &Store{
		stagingRoot:      stagingRoot,
		productionRoot:   productionRoot,
		productionPrefix: strings.Trim(productionPrefix, "/"),
	}, nil
}

// resolve turns a key into a path below one of the roots and reports
// whether that root is production. Keys with ".." segments are refused
// before cleaning so they cannot hop between roots.
func (s *Store) resolve(key string) (string, bool, error) {
	for _, seg := range strings.Split(filepath.ToSlash(key), "/") {
		if seg == ".." {
			return "", false, model.Validationf("object key %q contains a parent segment", key)
		}
	}
	clean := path.Clean("/" + key)
	if clean == "/" {
		return "", false, model.Validationf("empty object key")
	}
	rel := strings.TrimPrefix(clean, "/")
	if s.productionPrefix != "" && (rel == s.productionPrefix || strings.HasPrefix(rel, s.productionPrefix+"/")) {
		rel = strings.TrimPrefix(strings.TrimPrefix(rel, s.productionPrefix), "/")
		if rel == "" {
			return "", true, model.Validationf("object key %q names the production root", key)
		}
		return filepath.Join(s.productionRoot, filepath.FromSlash(rel)), true, nil
	}
	return filepath.Join(s.stagingRoot, filepath.FromSlash(rel)), false, nil
}

// StagingKey builds a staging key for an uploaded file:
// uploads/<owner>/<batch>/<slugged name><ext>. The batch is slugged too.
func StagingKey(ownerID int64, batch, filename string) string {
	b := slug.Make(batch)
	if b == "" {
		b = "batch"
	}
	base := path.Base(strings.ReplaceAll(filepath.ToSlash(filename), "\\", "/"))
	ext := strings.ToLower(path.Ext(base))
	name := slug.Make(strings.TrimSuffix(base, path.Ext(base)))
	if name == "" {
		name = "file"
	}
	return model.StagingPrefix(ownerID) + b + "/" + name + ext
}

// Put writes r to a staging key and returns its sha256 and size. Production
// keys are only reachable through Copy.
func (s *Store) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) (string, int64, error) {
	dst, production, err := s.resolve(key)
	if err != nil {
		return "", 0, err
	}
	if production {
		return "", 0, model.Validationf("staging writes cannot target production key %q", key)
	}
	return write(dst, key, r)
}

func write(dst, key string, r io.Reader) (string, int64, error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", 0, fmt.Errorf("create dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return "", 0, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	sum, n, err := checksum.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		return "", 0, err
	}
	if err := tmp.Close(); err != nil {
		return "", 0, fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", 0, fmt.Errorf("publish %s: %w", key, err)
	}
	return sum, n, nil
}

// Open reads key.
func (s *Store) Open(_ context.Context, key string) (io.ReadCloser, error) {
	p, _, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	return openPath(p, key)
}

func openPath(p, key string) (io.ReadCloser, error) {
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, model.NotFoundf("object %s not found", key)
		}
		return nil, fmt.Errorf("open %s: %w", key, err)
	}
	return f, nil
}

// Copy copies a staging key to a production key and returns the sha256 of
// the bytes re-read from the destination, so the digest describes what
// actually landed.
func (s *Store) Copy(_ context.Context, srcKey, dstKey string) (string, error) {
	srcPath, fromProduction, err := s.resolve(srcKey)
	if err != nil {
		return "", err
	}
	if fromProduction {
		return "", model.Validationf("copy source %q is not a staging key", srcKey)
	}
	dstPath, toProduction, err := s.resolve(dstKey)
	if err != nil {
		return "", err
	}
	if !toProduction {
		return "", model.Validationf("copy destination %q is not a production key", dstKey)
	}
	src, err := openPath(srcPath, srcKey)
	if err != nil {
		return "", err
	}
	defer src.Close()
	if _, _, err := write(dstPath, dstKey, src); err != nil {
		return "", err
	}
	landed, err := openPath(dstPath, dstKey)
	if err != nil {
		return "", err
	}
	defer landed.Close()
	sum, _, err := checksum.Reader(landed)
	return sum, err
}
