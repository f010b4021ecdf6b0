package scanner

import (
	"context"
	"errors"
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

type mapOpener map[string]string

func (m mapOpener) Open(_ context.Context, key string) (io.ReadCloser, error) {
	v, ok := m[key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return io.NopCloser(strings.NewReader(v)), nil
}

type fixed model.ScanResult

func (f fixed) Scan(context.Context, model.TransferFile) (model.ScanResult, error) {
	return model.ScanResult(f), nil
}

func file(name, content string) model.TransferFile {
	return model.TransferFile{
		Filename:   name,
		StagingKey: "staging/" + name,
		Size:       int64(len(content)),
		Checksum:   checksum.Bytes([]byte(content)),
	}
}

func TestChecksumScanner(t *testing.T) {
	ctx := context.Background()
	opener := mapOpener{"staging/a.exr": "hello", "staging/b.exr": "tampered"}
	s := NewChecksumScanner(opener)

	res, err := s.Scan(ctx, file("a.exr", "hello"))
	require.NoError(t, err)
	assert.Equal(t, model.VerdictClean, res.Verdict)

	res, err = s.Scan(ctx, file("b.exr", "original"))
	require.NoError(t, err)
	assert.Equal(t, model.VerdictCorrupt, res.Verdict)

	_, err = s.Scan(ctx, file("missing.exr", ""))
	require.Error(t, err)
}

func TestPDFScannerOnlyInspectsPDFs(t *testing.T) {
	ctx := context.Background()
	opener := mapOpener{"staging/notes.pdf": "not a pdf at all"}
	s := NewPDFScanner(opener, nil)

	res, err := s.Scan(ctx, file("plate.exr", "binary"))
	require.NoError(t, err)
	assert.Equal(t, model.VerdictClean, res.Verdict)

	res, err = s.Scan(ctx, file("notes.pdf", "not a pdf at all"))
	require.NoError(t, err)
	assert.Equal(t, model.VerdictCorrupt, res.Verdict)
}

func TestChainStopsAtFirstFinding(t *testing.T) {
	chain := Chain{
		fixed{Verdict: model.VerdictClean, Detail: "checksum ok"},
		fixed{Verdict: model.VerdictInfected, Detail: "Eicar"},
		fixed{Verdict: model.VerdictCorrupt},
	}
	res, err := chain.Scan(context.Background(), model.TransferFile{})
	require.NoError(t, err)
	assert.Equal(t, model.VerdictInfected, res.Verdict)
	assert.Equal(t, "Eicar", res.Detail)

	res, err = Chain{fixed{Verdict: model.VerdictClean, Detail: "ok"}}.Scan(context.Background(), model.TransferFile{})
	require.NoError(t, err)
	assert.Equal(t, model.VerdictClean, res.Verdict)
	assert.Equal(t, "ok", res.Detail)
}

func TestSignature(t *testing.T) {
	assert.Equal(t, "Win.Test.EICAR_HDB-1", signature("stdin: Win.Test.EICAR_HDB-1 FOUND\n"))
	assert.Equal(t, "odd output", signature(" odd output "))
}

// fakeClam writes a shell script standing in for clamscan.
func fakeClam(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clamscan")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\ncat >/dev/null\n"+body+"\n"), 0o755))
	return path
}

func TestClamScannerExitCodes(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no /bin/sh")
	}
	ctx := context.Background()
	opener := mapOpener{"staging/a.exr": "data"}
	f := file("a.exr", "data")

	res, err := NewClamScanner(opener, fakeClam(t, "exit 0")).Scan(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, model.VerdictClean, res.Verdict)

	res, err = NewClamScanner(opener, fakeClam(t, `echo "stdin: Eicar-Signature FOUND"; exit 1`)).Scan(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, model.VerdictInfected, res.Verdict)
	assert.Equal(t, "Eicar-Signature", res.Detail)

	_, err = NewClamScanner(opener, fakeClam(t, `echo "database missing" >&2; exit 2`)).Scan(ctx, f)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database missing")
}

func TestClamScannerBlankCommand(t *testing.T) {
	for _, command := range []string{"", "   ", "\t\n"} {
		s := NewClamScanner(mapOpener{}, command)
		assert.Equal(t, "clamscan", s.command)
		assert.Equal(t, []string{"--no-summary", "-"}, s.args)
	}
	s := NewClamScanner(mapOpener{}, " clamdscan  --fdpass ")
	assert.Equal(t, "clamdscan", s.command)
	assert.Equal(t, []string{"--fdpass", "--no-summary", "-"}, s.args)
}
