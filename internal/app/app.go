// Package app turns configuration into the components shared by the
// DataBridge binaries.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/dharsanguruparan/DataBridge/internal/approval"
	"github.com/dharsanguruparan/DataBridge/internal/config"
	"github.com/dharsanguruparan/DataBridge/internal/localstore"
	"github.com/dharsanguruparan/DataBridge/internal/model"
	"github.com/dharsanguruparan/DataBridge/internal/s3storage"
	"github.com/dharsanguruparan/DataBridge/internal/scanner"
	"github.com/dharsanguruparan/DataBridge/internal/stage"
)

// Files is what the pipeline needs from payload storage.
type Files interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, int64, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Copy(ctx context.Context, srcKey, dstKey string) (string, error)
}

// ApprovalPolicy converts the configured role and category lists.
func ApprovalPolicy(cfg config.Approval) (approval.Policy, error) {
	p := approval.Policy{
		ExtraReview:     map[model.Category]bool{},
		AutoApprove:     map[model.Category]bool{},
		MinRejectReason: cfg.MinRejectReason,
	}
	for _, v := range cfg.Baseline {
		role, err := model.ParseRole(v)
		if err != nil {
			return p, fmt.Errorf("approval.baseline: %w", err)
		}
		p.Baseline = append(p.Baseline, role)
	}
	for _, v := range cfg.ExtraReview {
		p.ExtraReview[model.Category(v)] = true
	}
	for _, v := range cfg.AutoApprove {
		p.AutoApprove[model.Category(v)] = true
	}
	if err := p.Validate(); err != nil {
		return p, fmt.Errorf("approval policy: %w", err)
	}
	return p, nil
}

// StagePolicy converts the configured retry and stall settings.
func StagePolicy(cfg config.Stage) stage.Policy {
	p := stage.DefaultPolicy()
	if cfg.MaxAttempts > 0 {
		p.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.BaseDelay > 0 {
		p.BaseDelay = cfg.BaseDelay
	}
	if cfg.MaxDelay > 0 {
		p.MaxDelay = cfg.MaxDelay
	}
	if cfg.StallAfter > 0 {
		p.StallAfter = cfg.StallAfter
	}
	if cfg.ProductionPrefix != "" {
		p.ProductionRoot = cfg.ProductionPrefix
	}
	return p
}

// OpenFiles returns the configured payload store. The second value is the
// MinIO store when storage is s3, for presigned downloads.
func OpenFiles(ctx context.Context, cfg *config.Config) (Files, *s3storage.Storage, error) {
	if cfg.Storage == "s3" {
		store, err := s3storage.New(cfg)
		if err != nil {
			return nil, nil, err
		}
		if err := store.EnsureBuckets(ctx); err != nil {
			return nil, nil, fmt.Errorf("ensure buckets: %w", err)
		}
		return store, store, nil
	}
	store, err := localstore.New(cfg.StagingRoot, cfg.ProductionRoot, cfg.Stage.ProductionPrefix)
	if err != nil {
		return nil, nil, err
	}
	return store, nil, nil
}

// Scanner assembles the scan chain: checksum first, then PDF structure,
// then the antivirus command. An empty command disables antivirus.
func Scanner(cfg *config.Config, files scanner.Opener, logger *slog.Logger) scanner.Chain {
	chain := scanner.Chain{scanner.NewChecksumScanner(files)}
	if cfg.ScanPDF {
		chain = append(chain, scanner.NewPDFScanner(files, logger))
	}
	if strings.TrimSpace(cfg.ScannerCommand) != "" {
		chain = append(chain, scanner.NewClamScanner(files, cfg.ScannerCommand))
	}
	return chain
}
