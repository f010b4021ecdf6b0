// Package scanner implements the security and integrity checks run on
// every staged file before it may reach production.
package scanner

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/dharsanguruparan/DataBridge/internal/checksum"
	"github.com/dharsanguruparan/DataBridge/internal/model"
	pdfutil "github.com/dharsanguruparan/DataBridge/internal/pdf"
)

// Opener reads staged objects.
type Opener interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// Scanner matches stage.Scanner.
type Scanner interface {
	Scan(ctx context.Context, file model.TransferFile) (model.ScanResult, error)
}

// Chain runs scanners in order and stops at the first verdict that is not
// clean. Errors stop the chain and are retried by the caller.
type Chain []Scanner

// Scan implements Scanner.
func (c Chain) Scan(ctx context.Context, file model.TransferFile) (model.ScanResult, error) {
	var details []string
	for _, s := range c {
		res, err := s.Scan(ctx, file)
		if err != nil {
			return model.ScanResult{}, err
		}
		if res.Verdict != model.VerdictClean {
			return res, nil
		}
		if res.Detail != "" {
			details = append(details, res.Detail)
		}
	}
	return model.ScanResult{Verdict: model.VerdictClean, Detail: strings.Join(details, "; ")}, nil
}

// ChecksumScanner re-hashes the staged object and compares it with the
// checksum declared at submission. A mismatch marks the file corrupt.
type ChecksumScanner struct {
	opener Opener
}

// NewChecksumScanner constructs a ChecksumScanner.
func NewChecksumScanner(opener Opener) *ChecksumScanner {
	return &ChecksumScanner{opener: opener}
}

// Scan implements Scanner.
func (s *ChecksumScanner) Scan(ctx context.Context, file model.TransferFile) (model.ScanResult, error) {
	rc, err := s.opener.Open(ctx, file.StagingKey)
	if err != nil {
		return model.ScanResult{}, fmt.Errorf("open %s: %w", file.StagingKey, err)
	}
	defer rc.Close()
	sum, n, err := checksum.Reader(rc)
	if err != nil {
		return model.ScanResult{}, err
	}
	if sum != file.Checksum {
		return model.ScanResult{
			Verdict: model.VerdictCorrupt,
			Detail:  fmt.Sprintf("staged checksum %s does not match declared %s", sum, file.Checksum),
		}, nil
	}
	if file.Size > 0 && n != file.Size {
		return model.ScanResult{
			Verdict: model.VerdictCorrupt,
			Detail:  fmt.Sprintf("staged size %d does not match declared %d", n, file.Size),
		}, nil
	}
	return model.ScanResult{Verdict: model.VerdictClean}, nil
}

// PDFScanner checks that PDF files parse. Other files pass untouched.
type PDFScanner struct {
	opener Opener
	logger *slog.Logger
}

// NewPDFScanner constructs a PDFScanner.
func NewPDFScanner(opener Opener, logger *slog.Logger) *PDFScanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &PDFScanner{opener: opener, logger: logger}
}

// Scan implements Scanner.
func (s *PDFScanner) Scan(ctx context.Context, file model.TransferFile) (model.ScanResult, error) {
	if !strings.EqualFold(path.Ext(file.Filename), ".pdf") {
		return model.ScanResult{Verdict: model.VerdictClean}, nil
	}
	rc, err := s.opener.Open(ctx, file.StagingKey)
	if err != nil {
		return model.ScanResult{}, fmt.Errorf("open %s: %w", file.StagingKey, err)
	}
	defer rc.Close()
	rep, err := pdfutil.CheckReader(rc)
	if err != nil {
		s.logger.Info("pdf failed integrity check", "file", file.Filename, "error", err)
		return model.ScanResult{Verdict: model.VerdictCorrupt, Detail: err.Error()}, nil
	}
	return model.ScanResult{Verdict: model.VerdictClean, Detail: fmt.Sprintf("%s: %d page(s)", file.Filename, rep.Pages)}, nil
}
