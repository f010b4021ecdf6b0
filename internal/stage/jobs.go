package stage

import (
	"context"
	"time"

	"github.com/dharsanguruparan/DataBridge/internal/model"
)

// Scanner inspects one staged file. An error means the scan could not run
// and is retried; a verdict is final.
type Scanner interface {
	Scan(ctx context.Context, file model.TransferFile) (model.ScanResult, error)
}

// Mover copies a staged file to its production key and returns the sha256
// of what landed at the destination.
type Mover interface {
	Copy(ctx context.Context, srcKey, dstKey string) (string, error)
}

// ScanJob asks for one file to be scanned. Attempt must match the file's
// attempt counter when the result comes back.
type ScanJob struct {
	TransferID int64 `json:"transfer_id"`
	FileID     int64 `json:"file_id"`
	Attempt    int   `json:"attempt"`
}

// CopyJob asks for one file to be copied to production.
type CopyJob struct {
	TransferID int64 `json:"transfer_id"`
	FileID     int64 `json:"file_id"`
	Attempt    int   `json:"attempt"`
}

// Scheduler runs jobs asynchronously, after delay.
type Scheduler interface {
	ScheduleScan(ctx context.Context, job ScanJob, delay time.Duration) error
	ScheduleCopy(ctx context.Context, job CopyJob, delay time.Duration) error
}

// ScanReport is the outcome of one scan attempt. Err is set when the
// scanner itself failed.
type ScanReport struct {
	TransferID int64         `json:"transfer_id"`
	FileID     int64         `json:"file_id"`
	Attempt    int           `json:"attempt"`
	Verdict    model.Verdict `json:"verdict,omitempty"`
	Detail     string        `json:"detail,omitempty"`
	Err        string        `json:"error,omitempty"`
}

// CopyReport is the outcome of one copy attempt.
type CopyReport struct {
	TransferID int64  `json:"transfer_id"`
	FileID     int64  `json:"file_id"`
	Attempt    int    `json:"attempt"`
	Checksum   string `json:"checksum,omitempty"`
	Err        string `json:"error,omitempty"`
}
