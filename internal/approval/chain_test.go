package approval

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/DataBridge/internal/model"
)

func chainOf(statuses ...model.ApprovalStatus) []model.ApprovalChainItem {
	roles := []model.Role{model.RoleTeamLead, model.RoleSupervisor, model.RoleDataTeam, model.RoleLineProducer}
	out := make([]model.ApprovalChainItem, len(statuses))
	for i, s := range statuses {
		out[i] = model.ApprovalChainItem{Role: roles[i], Status: s}
	}
	return out
}

func TestCurrentIsFirstPendingAfterResolvedPrefix(t *testing.T) {
	tests := []struct {
		name  string
		chain []model.ApprovalChainItem
		want  int
	}{
		{"fresh", chainOf(model.ApprovalPending, model.ApprovalPending, model.ApprovalPending), 0},
		{"after approve", chainOf(model.ApprovalApproved, model.ApprovalPending, model.ApprovalPending), 1},
		{"after skip", chainOf(model.ApprovalSkipped, model.ApprovalApproved, model.ApprovalPending), 2},
		{"complete", chainOf(model.ApprovalApproved, model.ApprovalSkipped), -1},
		{"rejected blocks", chainOf(model.ApprovalApproved, model.ApprovalRejected, model.ApprovalPending), -1},
		{"empty", nil, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Current(tt.chain))
		})
	}
}

func TestExactlyOneCurrentThroughoutChain(t *testing.T) {
	for n := 1; n <= 4; n++ {
		statuses := make([]model.ApprovalStatus, n)
		for i := range statuses {
			statuses[i] = model.ApprovalPending
		}
		chain := chainOf(statuses...)
		for step := 0; step < n; step++ {
			actionable := 0
			for i := range chain {
				if i == Current(chain) {
					actionable++
				}
			}
			assert.Equal(t, 1, actionable)
			chain[Current(chain)].Status = model.ApprovalApproved
		}
		assert.Equal(t, -1, Current(chain))
		assert.True(t, Complete(chain))
	}
}

func TestValidateRejectionReasonLength(t *testing.T) {
	m := NewManager(DefaultPolicy())
	err := m.Validate(Decision{Verdict: VerdictReject, Text: "too short"})
	assert.True(t, errors.Is(err, model.ErrValidation))

	err = m.Validate(Decision{Verdict: VerdictReject, Text: "   padded   "})
	assert.True(t, errors.Is(err, model.ErrValidation))

	assert.NoError(t, m.Validate(Decision{Verdict: VerdictReject, Text: strings.Repeat("x", 10)}))
	assert.NoError(t, m.Validate(Decision{Verdict: VerdictApprove}))
	assert.True(t, errors.Is(m.Validate(Decision{Verdict: "maybe"}), model.ErrValidation))
}

func TestAuthorize(t *testing.T) {
	m := NewManager(DefaultPolicy())
	chain := chainOf(model.ApprovalApproved, model.ApprovalPending, model.ApprovalPending)

	supervisor := &model.Actor{ID: 2, Name: "Sam", Role: model.RoleSupervisor}
	lead := &model.Actor{ID: 1, Name: "Lee", Role: model.RoleTeamLead}
	admin := &model.Actor{ID: 9, Name: "Ada", Role: model.RoleAdmin}

	idx, err := m.Authorize(chain, supervisor, Decision{Verdict: VerdictApprove})
	require.NoError(t, err)
	assert.Equal(t, 1, idx)

	_, err = m.Authorize(chain, lead, Decision{Verdict: VerdictApprove})
	assert.True(t, errors.Is(err, model.ErrAuthorization))

	_, err = m.Authorize(chain, supervisor, Decision{Verdict: VerdictApprove, Stage: model.RoleTeamLead})
	assert.True(t, errors.Is(err, model.ErrNotCurrentStage))

	_, err = m.Authorize(chain, supervisor, Decision{Verdict: VerdictSkip})
	assert.True(t, errors.Is(err, model.ErrAuthorization))

	idx, err = m.Authorize(chain, admin, Decision{Verdict: VerdictSkip})
	require.NoError(t, err)
	assert.Equal(t, 1, idx)

	done := chainOf(model.ApprovalApproved, model.ApprovalApproved)
	_, err = m.Authorize(done, admin, Decision{Verdict: VerdictApprove})
	assert.True(t, errors.Is(err, model.ErrNotCurrentStage))
}

func TestApplyRecordsDecider(t *testing.T) {
	m := NewManager(DefaultPolicy())
	chain := chainOf(model.ApprovalPending, model.ApprovalPending, model.ApprovalPending)
	lead := &model.Actor{ID: 1, Name: "Lee", Role: model.RoleTeamLead}

	next := m.Apply(chain, 0, lead, Decision{Verdict: VerdictApprove, Text: " looks good "})
	assert.Equal(t, model.RoleSupervisor, next)
	assert.Equal(t, model.ApprovalApproved, chain[0].Status)
	require.NotNil(t, chain[0].DeciderID)
	assert.Equal(t, int64(1), *chain[0].DeciderID)
	assert.Equal(t, "Lee", chain[0].DeciderName)
	assert.Equal(t, "looks good", chain[0].Comment)
	assert.NotNil(t, chain[0].DecidedAt)

	sup := &model.Actor{ID: 2, Name: "Sam", Role: model.RoleSupervisor}
	next = m.Apply(chain, 1, sup, Decision{Verdict: VerdictReject, Text: "missing alpha channel, resubmit"})
	assert.Equal(t, model.Role(""), next)
	assert.Equal(t, []model.ApprovalStatus{model.ApprovalApproved, model.ApprovalRejected, model.ApprovalPending},
		[]model.ApprovalStatus{chain[0].Status, chain[1].Status, chain[2].Status})
}
