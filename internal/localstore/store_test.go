package localstore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/DataBridge/internal/checksum"
	"github.com/dharsanguruparan/DataBridge/internal/model"
)

func TestPutOpenCopy(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := New(filepath.Join(dir, "staging"), filepath.Join(dir, "prod"), "production")
	require.NoError(t, err)

	sum, n, err := s.Put(ctx, "uploads/1/x/plate.exr", strings.NewReader("pixels"), 6, "")
	require.NoError(t, err)
	assert.Equal(t, int64(6), n)
	assert.Equal(t, checksum.Bytes([]byte("pixels")), sum)

	rc, err := s.Open(ctx, "uploads/1/x/plate.exr")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "pixels", string(data))

	dst := "production/unlinked/fx/TRF-00001/plate.exr"
	got, err := s.Copy(ctx, "uploads/1/x/plate.exr", dst)
	require.NoError(t, err)
	assert.Equal(t, sum, got)
	_, err = os.Stat(filepath.Join(dir, "prod", "unlinked", "fx", "TRF-00001", "plate.exr"))
	require.NoError(t, err)

	_, err = s.Open(ctx, "uploads/none")
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestKeysCannotEscapeRoot(t *testing.T) {
	dir := t.TempDir()
	s, err := New(filepath.Join(dir, "staging"), filepath.Join(dir, "prod"), "production")
	require.NoError(t, err)

	for _, key := range []string{
		"../../etc/passwd",
		"uploads/1/../../production/proj/textures/evil.exr",
		"production/../uploads/2/b/x.exr",
	} {
		_, _, err := s.resolve(key)
		require.ErrorIs(t, err, model.ErrValidation, key)
	}

	_, _, err = s.resolve("/")
	require.ErrorIs(t, err, model.ErrValidation)
	_, _, err = s.resolve("production")
	require.ErrorIs(t, err, model.ErrValidation)

	p, production, err := s.resolve("/uploads/1/b/x.exr")
	require.NoError(t, err)
	assert.False(t, production)
	assert.Equal(t, filepath.Join(dir, "staging", "uploads", "1", "b", "x.exr"), p)
}

func TestPutNeverWritesProduction(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	prod := filepath.Join(dir, "prod")
	s, err := New(filepath.Join(dir, "staging"), prod, "production")
	require.NoError(t, err)

	_, _, err = s.Put(ctx, "production/proj/textures/evil.exr", strings.NewReader("unapproved payload"), -1, "")
	require.ErrorIs(t, err, model.ErrValidation)
	_, _, err = s.Put(ctx, "uploads/1/../../production/proj/textures/evil.exr", strings.NewReader("unapproved payload"), -1, "")
	require.ErrorIs(t, err, model.ErrValidation)

	_, err = os.Stat(filepath.Join(prod, "proj", "textures", "evil.exr"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestCopyOnlyStagingToProduction(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := New(filepath.Join(dir, "staging"), filepath.Join(dir, "prod"), "production")
	require.NoError(t, err)
	_, _, err = s.Put(ctx, "uploads/1/b/a.exr", strings.NewReader("a"), 1, "")
	require.NoError(t, err)

	_, err = s.Copy(ctx, "uploads/1/b/a.exr", "uploads/2/b/a.exr")
	require.ErrorIs(t, err, model.ErrValidation)

	_, err = s.Copy(ctx, "uploads/1/b/a.exr", "production/unlinked/fx/TRF-00001/a.exr")
	require.NoError(t, err)
	_, err = s.Copy(ctx, "production/unlinked/fx/TRF-00001/a.exr", "production/unlinked/fx/TRF-00002/a.exr")
	require.ErrorIs(t, err, model.ErrValidation)
}

func TestStagingKey(t *testing.T) {
	assert.Equal(t, "uploads/7/b1/hero-plate-v002.exr", StagingKey(7, "b1", "Hero Plate v002.EXR"))
	assert.Equal(t, "uploads/7/b1/file.pdf", StagingKey(7, "b1", "../.pdf"))
	assert.Equal(t, "uploads/7/b1/plate.exr", StagingKey(7, "b1", `C:\renders\plate.exr`))
	assert.Equal(t, "uploads/7/production-proj-textures/evil.exr", StagingKey(7, "../../production/proj/textures", "evil.exr"))
	assert.Equal(t, "uploads/7/batch/a.exr", StagingKey(7, "../..", "a.exr"))
}
