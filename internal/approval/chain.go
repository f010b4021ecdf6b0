package approval

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dharsanguruparan/DataBridge/internal/model"
)

// Verdict is what an actor decides on the current stage.
type Verdict string

const (
	VerdictApprove Verdict = "approve"
	VerdictReject  Verdict = "reject"
	VerdictSkip    Verdict = "skip"
)

// Current returns the index of the single actionable item: the first pending
// item whose predecessors are all approved or skipped. It returns -1 when no
// item is actionable (chain complete, or blocked by a rejection).
func Current(chain []model.ApprovalChainItem) int {
	for i, item := range chain {
		switch item.Status {
		case model.ApprovalApproved, model.ApprovalSkipped:
			continue
		case model.ApprovalPending:
			return i
		default:
			return -1
		}
	}
	return -1
}

// Complete reports whether every item is approved or skipped.
func Complete(chain []model.ApprovalChainItem) bool {
	for _, item := range chain {
		if item.Status != model.ApprovalApproved && item.Status != model.ApprovalSkipped {
			return false
		}
	}
	return true
}

// Decision is a validated request to resolve the current stage.
type Decision struct {
	Verdict Verdict
	Text    string
	// Stage optionally names the role the actor believes is current.
	Stage model.Role
}

// Manager applies decisions to a chain under a policy.
type Manager struct {
	policy Policy
	now    func() time.Time
}

// NewManager constructs a Manager.
func NewManager(policy Policy) *Manager {
	return &Manager{policy: policy, now: func() time.Time { return time.Now().UTC() }}
}

// Policy exposes the active policy.
func (m *Manager) Policy() Policy { return m.policy }

// Validate checks the decision before any state is read.
func (m *Manager) Validate(d Decision) error {
	switch d.Verdict {
	case VerdictApprove, VerdictSkip:
	case VerdictReject:
		reason := strings.TrimSpace(d.Text)
		if n := utf8.RuneCountInString(reason); n < m.policy.MinRejectReason {
			return model.Validationf("rejection reason must be at least %d characters (got %d)", m.policy.MinRejectReason, n)
		}
	default:
		return model.Validationf("unknown verdict %q", d.Verdict)
	}
	if d.Stage != "" && !d.Stage.Valid() {
		return model.Validationf("unknown stage %q", d.Stage)
	}
	return nil
}

// Authorize resolves the current item and checks the actor may decide it.
func (m *Manager) Authorize(chain []model.ApprovalChainItem, actor *model.Actor, d Decision) (int, error) {
	idx := Current(chain)
	if idx < 0 {
		return -1, model.NotCurrentStagef("no approval stage is awaiting a decision")
	}
	current := chain[idx].Role
	if d.Stage != "" && d.Stage != current {
		return -1, model.NotCurrentStagef("stage %s is not current (current stage is %s)", d.Stage, current)
	}
	if actor == nil {
		return -1, model.Authorizationf("decisions require an actor")
	}
	if d.Verdict == VerdictSkip && !actor.IsAdmin() {
		return -1, model.Authorizationf("only administrators may skip a stage")
	}
	if actor.Role != current && !actor.IsAdmin() {
		return -1, model.Authorizationf("role %s cannot decide stage %s", actor.Role, current)
	}
	return idx, nil
}

// Apply records the decision on the item at idx. It returns the role of the
// next actionable item, or "" when none remains.
func (m *Manager) Apply(chain []model.ApprovalChainItem, idx int, actor *model.Actor, d Decision) model.Role {
	now := m.now()
	id := actor.ID
	item := &chain[idx]
	switch d.Verdict {
	case VerdictApprove:
		item.Status = model.ApprovalApproved
	case VerdictReject:
		item.Status = model.ApprovalRejected
	case VerdictSkip:
		item.Status = model.ApprovalSkipped
	}
	item.DeciderID = &id
	item.DeciderName = actor.Name
	item.Comment = strings.TrimSpace(d.Text)
	item.DecidedAt = &now
	if next := Current(chain); next >= 0 {
		return chain[next].Role
	}
	return ""
}
