package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/dharsanguruparan/DataBridge/internal/approval"
	"github.com/dharsanguruparan/DataBridge/internal/checksum"
	"github.com/dharsanguruparan/DataBridge/internal/model"
)

// Directory resolves actor ids to identities and roles. Credentials are
// managed elsewhere.
type Directory interface {
	Lookup(ctx context.Context, id int64) (model.Actor, error)
	ListByRole(ctx context.Context, role model.Role) ([]model.Actor, error)
}

// FileSpec describes one staged file attached at submission.
type FileSpec struct {
	Filename   string `json:"filename"`
	StagingKey string `json:"stagingKey"`
	Size       int64  `json:"size"`
	Checksum   string `json:"checksum"`
}

// SubmitRequest carries everything needed to create a transfer.
type SubmitRequest struct {
	Title    string              `json:"title"`
	Notes    string              `json:"notes"`
	Category model.Category      `json:"category"`
	Priority model.Priority      `json:"priority"`
	Files    []FileSpec          `json:"files"`
	External *model.ExternalLink `json:"external,omitempty"`
}

// Service implements the actor-facing operations.
type Service struct {
	engine *Engine
	chains *approval.Manager
	dir    Directory
	logger *slog.Logger
}

// NewService constructs a Service.
func NewService(engine *Engine, chains *approval.Manager, dir Directory, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{engine: engine, chains: chains, dir: dir, logger: logger}
}

// Engine exposes the commit engine so system components can subscribe.
func (s *Service) Engine() *Engine { return s.engine }

func (s *Service) actor(ctx context.Context, id int64) (*model.Actor, error) {
	a, err := s.dir.Lookup(ctx, id)
	if err != nil {
		if model.KindOf(err) == model.KindNotFound {
			return nil, model.Authorizationf("unknown actor %d", id)
		}
		return nil, fmt.Errorf("lookup actor %d: %w", id, err)
	}
	return &a, nil
}

// Submit creates a transfer and moves it to its first approval stage, or
// straight to approved when the policy yields an empty chain.
func (s *Service) Submit(ctx context.Context, actorID int64, req SubmitRequest) (*model.Transfer, error) {
	actor, err := s.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	files, err := validateSubmission(actor.ID, req)
	if err != nil {
		return nil, err
	}
	roles, err := s.chains.Policy().Build(req.Category, req.Priority)
	if err != nil {
		return nil, err
	}
	t := &model.Transfer{
		Title:         strings.TrimSpace(req.Title),
		Notes:         strings.TrimSpace(req.Notes),
		Category:      req.Category,
		Priority:      req.Priority,
		SubmitterID:   actor.ID,
		SubmitterName: actor.Name,
		Files:         files,
		Status:        model.StatusUploaded,
		ApprovalChain: approval.Materialize(roles),
		External:      req.External,
	}
	next := model.StatusApproved
	if len(roles) > 0 {
		next, _ = model.PendingStatus(roles[0])
	}
	return s.engine.Create(ctx, t, func(tx *Txn) error {
		tx.Note(actor, "uploaded", fmt.Sprintf("%d file(s) uploaded by %s", len(files), actor.Name), map[string]any{
			"files":      len(files),
			"total_size": tx.Transfer.TotalSize(),
		})
		chain := make([]string, len(roles))
		for i, r := range roles {
			chain[i] = string(r)
		}
		return tx.Transition(next, actor, "submitted", fmt.Sprintf("Submitted by %s", actor.Name), map[string]any{
			"chain": chain,
		})
	})
}

func validateSubmission(actorID int64, req SubmitRequest) ([]model.TransferFile, error) {
	if strings.TrimSpace(req.Title) == "" {
		return nil, model.Validationf("title is required")
	}
	if len(req.Files) == 0 {
		return nil, model.Validationf("at least one file is required")
	}
	prefix := model.StagingPrefix(actorID)
	seen := make(map[string]bool, len(req.Files))
	files := make([]model.TransferFile, 0, len(req.Files))
	for i, f := range req.Files {
		name := strings.TrimSpace(f.Filename)
		if name == "" {
			return nil, model.Validationf("file %d has no filename", i)
		}
		if name == "." || name == ".." || strings.ContainsAny(name, "/\\") {
			return nil, model.Validationf("file name %q must be a plain name without path segments", name)
		}
		if seen[name] {
			return nil, model.Validationf("file %q attached twice", name)
		}
		seen[name] = true
		if f.Size < 0 {
			return nil, model.Validationf("file %q has a negative size", name)
		}
		sum, ok := checksum.Normalize(f.Checksum)
		if !ok {
			return nil, model.Validationf("file %q needs a sha256 checksum", name)
		}
		key := strings.TrimSpace(f.StagingKey)
		if key == "" {
			return nil, model.Validationf("file %q has no staging key", name)
		}
		if !strings.HasPrefix(key, prefix) || path.Clean(key) != key {
			return nil, model.Validationf("file %q must reference a staged upload under %s", name, prefix)
		}
		files = append(files, model.TransferFile{
			Filename:   name,
			StagingKey: key,
			Size:       f.Size,
			Checksum:   sum,
		})
	}
	return files, nil
}

// Decide records an approval decision on the current stage.
func (s *Service) Decide(ctx context.Context, actorID, transferID int64, d approval.Decision) (*model.Transfer, error) {
	if err := s.chains.Validate(d); err != nil {
		return nil, err
	}
	actor, err := s.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	return s.engine.Mutate(ctx, transferID, func(tx *Txn) error {
		t := tx.Transfer
		if !t.Status.IsPending() {
			return model.NotCurrentStagef("%s is %s; no approval stage is awaiting a decision", t.Reference, t.Status)
		}
		idx, err := s.chains.Authorize(t.ApprovalChain, actor, d)
		if err != nil {
			return err
		}
		stage := t.ApprovalChain[idx].Role
		if want, _ := t.Status.PendingRole(); want != stage {
			return model.InvalidTransitionf("%s status %s disagrees with current stage %s", t.Reference, t.Status, stage)
		}
		next := s.chains.Apply(t.ApprovalChain, idx, actor, d)
		meta := map[string]any{"stage": string(stage), "comment": strings.TrimSpace(d.Text)}
		if actor.Role != stage {
			meta["override"] = true
		}
		switch d.Verdict {
		case approval.VerdictReject:
			t.RejectionReason = strings.TrimSpace(d.Text)
			return tx.Transition(model.StatusRejected, actor, "rejected",
				fmt.Sprintf("Rejected at %s by %s: %s", stage, actor.Name, t.RejectionReason), meta)
		case approval.VerdictSkip:
			return tx.Transition(advanceTo(next), actor, "skipped",
				fmt.Sprintf("Stage %s skipped by %s", stage, actor.Name), meta)
		default:
			return tx.Transition(advanceTo(next), actor, "approved",
				fmt.Sprintf("Stage %s approved by %s", stage, actor.Name), meta)
		}
	})
}

func advanceTo(next model.Role) model.Status {
	if next == "" {
		return model.StatusApproved
	}
	s, _ := model.PendingStatus(next)
	return s
}

// Cancel stops a transfer. Only the submitter or an administrator may cancel,
// and only while the transfer is not terminal.
func (s *Service) Cancel(ctx context.Context, actorID, transferID int64, reason string) (*model.Transfer, error) {
	actor, err := s.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	return s.engine.Mutate(ctx, transferID, func(tx *Txn) error {
		t := tx.Transfer
		if actor.ID != t.SubmitterID && !actor.IsAdmin() {
			return model.Authorizationf("only the submitter or an administrator may cancel %s", t.Reference)
		}
		if t.Status.IsTerminal() {
			return model.InvalidTransitionf("%s is already %s", t.Reference, t.Status)
		}
		reason = strings.TrimSpace(reason)
		desc := fmt.Sprintf("Cancelled by %s", actor.Name)
		if reason != "" {
			desc += ": " + reason
		}
		return tx.Transition(model.StatusCancelled, actor, "cancelled", desc, map[string]any{"reason": reason})
	})
}

// GetByID returns one transfer.
func (s *Service) GetByID(ctx context.Context, id int64) (*model.Transfer, error) {
	return s.engine.store.Load(ctx, id)
}

// List returns transfers matching f and the total match count.
func (s *Service) List(ctx context.Context, f model.Filter) ([]*model.Transfer, int, error) {
	for _, st := range f.Statuses {
		if !st.Valid() {
			return nil, 0, model.Validationf("unknown status %q", st)
		}
	}
	if f.AwaitingRole != "" {
		if _, ok := model.PendingStatus(f.AwaitingRole); !ok && f.AwaitingRole != model.RoleAdmin {
			return nil, 0, model.Validationf("role %q never holds an approval stage", f.AwaitingRole)
		}
	}
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return s.engine.store.List(ctx, f)
}

// History returns the audit trail of a transfer in chronological order.
func (s *Service) History(ctx context.Context, id int64) ([]model.HistoryEntry, error) {
	if _, err := s.engine.store.Load(ctx, id); err != nil {
		return nil, err
	}
	return s.engine.store.History(ctx, id)
}

// Stats counts transfers per status.
func (s *Service) Stats(ctx context.Context) (map[model.Status]int, error) {
	return s.engine.store.CountByStatus(ctx)
}
