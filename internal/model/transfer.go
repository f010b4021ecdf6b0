package model

import (
	"fmt"
	"time"
)

// Verdict is the per-file outcome of the scan stage. The zero value means
// the file has not been scanned yet.
type Verdict string

const (
	VerdictPending  Verdict = ""
	VerdictClean    Verdict = "clean"
	VerdictInfected Verdict = "infected"
	VerdictCorrupt  Verdict = "corrupt"
	VerdictError    Verdict = "error"
)

// Failed reports whether the verdict blocks the transfer.
func (v Verdict) Failed() bool {
	return v == VerdictInfected || v == VerdictCorrupt || v == VerdictError
}

// Valid reports whether v is a settled verdict a scanner may report.
func (v Verdict) Valid() bool {
	return v == VerdictClean || v == VerdictInfected || v == VerdictCorrupt || v == VerdictError
}

// ScanResult is what a scanner reports for one file.
type ScanResult struct {
	Verdict Verdict `json:"verdict"`
	Detail  string  `json:"detail,omitempty"`
}

// ApprovalStatus is the state of one chain item.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
	ApprovalSkipped  ApprovalStatus = "skipped"
)

// ApprovalChainItem is one required sign-off.
type ApprovalChainItem struct {
	Role        Role           `json:"role"`
	Status      ApprovalStatus `json:"status"`
	DeciderID   *int64         `json:"deciderId,omitempty"`
	DeciderName string         `json:"deciderName,omitempty"`
	Comment     string         `json:"comment,omitempty"`
	DecidedAt   *time.Time     `json:"decidedAt,omitempty"`
}

// TransferFile describes one payload file. Only the scan and copy fields are
// written after submission, each exactly once.
type TransferFile struct {
	ID         int64  `json:"id"`
	Filename   string `json:"filename"`
	StagingKey string `json:"stagingKey"`
	Size       int64  `json:"size"`
	Checksum   string `json:"checksum"`

	ScanVerdict  Verdict    `json:"scanVerdict,omitempty"`
	ScanDetail   string     `json:"scanDetail,omitempty"`
	ScanAttempts int        `json:"scanAttempts"`
	ScannedAt    *time.Time `json:"scannedAt,omitempty"`

	DestinationKey      string     `json:"destinationKey,omitempty"`
	DestinationChecksum string     `json:"destinationChecksum,omitempty"`
	Verified            *bool      `json:"verified,omitempty"`
	CopyAttempts        int        `json:"copyAttempts"`
	CopyError           string     `json:"copyError,omitempty"`
	CopiedAt            *time.Time `json:"copiedAt,omitempty"`
}

// Copied reports whether the transfer stage has settled this file, either by
// recording a destination checksum or a terminal copy error.
func (f *TransferFile) Copied() bool {
	return f.DestinationChecksum != "" || f.CopyError != ""
}

// ExternalLink points at a production-tracking entity. Advisory only.
type ExternalLink struct {
	ProjectID   *int64 `json:"projectId,omitempty"`
	ProjectCode string `json:"projectCode,omitempty"`
	EntityType  string `json:"entityType,omitempty"`
	EntityID    *int64 `json:"entityId,omitempty"`
}

// Transfer is the aggregate owned by the pipeline.
type Transfer struct {
	ID            int64    `json:"id"`
	Reference     string   `json:"reference"`
	Title         string   `json:"title"`
	Notes         string   `json:"notes,omitempty"`
	Category      Category `json:"category"`
	Priority      Priority `json:"priority"`
	SubmitterID   int64    `json:"submitterId"`
	SubmitterName string   `json:"submitterName"`

	Files         []TransferFile      `json:"files"`
	Status        Status              `json:"status"`
	ApprovalChain []ApprovalChainItem `json:"approvalChain"`

	RejectionReason string   `json:"rejectionReason,omitempty"`
	FailureDetail   string   `json:"failureDetail,omitempty"`
	FailedFiles     []string `json:"failedFiles,omitempty"`
	ProductionPath  string   `json:"productionPath,omitempty"`

	ScanStartedAt       *time.Time `json:"scanStartedAt,omitempty"`
	ScanCompletedAt     *time.Time `json:"scanCompletedAt,omitempty"`
	TransferStartedAt   *time.Time `json:"transferStartedAt,omitempty"`
	TransferCompletedAt *time.Time `json:"transferCompletedAt,omitempty"`

	External *ExternalLink `json:"external,omitempty"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ReferenceFor formats the human-readable code for a numeric id.
func ReferenceFor(id int64) string {
	return fmt.Sprintf("TRF-%05d", id)
}

// StagingPrefix is the key prefix owned by one uploader. A submission may
// only attach staged files under its submitter's prefix.
func StagingPrefix(ownerID int64) string {
	return fmt.Sprintf("uploads/%d/", ownerID)
}

// File returns the file with the given id.
func (t *Transfer) File(id int64) (*TransferFile, bool) {
	for i := range t.Files {
		if t.Files[i].ID == id {
			return &t.Files[i], true
		}
	}
	return nil, false
}

// TotalSize sums the payload sizes.
func (t *Transfer) TotalSize() int64 {
	var total int64
	for _, f := range t.Files {
		total += f.Size
	}
	return total
}

// Clone returns a deep copy so stores never hand out shared state.
func (t *Transfer) Clone() *Transfer {
	if t == nil {
		return nil
	}
	out := *t
	out.Files = make([]TransferFile, len(t.Files))
	for i, f := range t.Files {
		f.ScannedAt = cloneTime(f.ScannedAt)
		f.CopiedAt = cloneTime(f.CopiedAt)
		if f.Verified != nil {
			v := *f.Verified
			f.Verified = &v
		}
		out.Files[i] = f
	}
	out.ApprovalChain = make([]ApprovalChainItem, len(t.ApprovalChain))
	for i, item := range t.ApprovalChain {
		if item.DeciderID != nil {
			id := *item.DeciderID
			item.DeciderID = &id
		}
		item.DecidedAt = cloneTime(item.DecidedAt)
		out.ApprovalChain[i] = item
	}
	if t.FailedFiles != nil {
		out.FailedFiles = append([]string(nil), t.FailedFiles...)
	}
	out.ScanStartedAt = cloneTime(t.ScanStartedAt)
	out.ScanCompletedAt = cloneTime(t.ScanCompletedAt)
	out.TransferStartedAt = cloneTime(t.TransferStartedAt)
	out.TransferCompletedAt = cloneTime(t.TransferCompletedAt)
	if t.External != nil {
		ext := *t.External
		out.External = &ext
	}
	return &out
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// HistoryEntry is an immutable audit record.
type HistoryEntry struct {
	ID          int64          `json:"id"`
	TransferID  int64          `json:"transferId"`
	ActorID     *int64         `json:"actorId"`
	Action      string         `json:"action"`
	Description string         `json:"description"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// NotificationType tags a notification for the client.
type NotificationType string

const (
	NotifyApprovalRequired NotificationType = "approval_required"
	NotifyApproved         NotificationType = "approved"
	NotifyRejected         NotificationType = "rejected"
	NotifyScanComplete     NotificationType = "scan_complete"
	NotifyScanFailed       NotificationType = "scan_failed"
	NotifyTransferStarted  NotificationType = "transfer_started"
	NotifyTransferComplete NotificationType = "transfer_complete"
	NotifyTransferFailed   NotificationType = "transfer_failed"
	NotifySystem           NotificationType = "system"
)

// Notification is derived and disposable.
type Notification struct {
	ID         string           `json:"id"`
	UserID     int64            `json:"userId"`
	TransferID int64            `json:"transferId"`
	Type       NotificationType `json:"type"`
	Title      string           `json:"title"`
	Body       string           `json:"body"`
	Link       string           `json:"link"`
	Read       bool             `json:"read"`
	CreatedAt  time.Time        `json:"createdAt"`
}

// Filter narrows List results.
type Filter struct {
	Statuses      []Status
	SubmitterID   *int64
	Category      Category
	Priority      Priority
	AwaitingRole  Role
	UpdatedBefore *time.Time
	Limit         int
	Offset        int
}
