package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/DataBridge/internal/identity"
	"github.com/dharsanguruparan/DataBridge/internal/model"
	"github.com/dharsanguruparan/DataBridge/internal/notify"
)

func fixture() (*Emitter, *notify.MemoryInbox) {
	dir := identity.NewMemoryDirectory(
		model.Actor{ID: 1, Name: "Ana", Role: model.RoleArtist},
		model.Actor{ID: 2, Name: "Tom", Role: model.RoleTeamLead},
		model.Actor{ID: 3, Name: "Sue", Role: model.RoleSupervisor},
		model.Actor{ID: 4, Name: "Ada", Role: model.RoleAdmin},
		model.Actor{ID: 5, Name: "Ian", Role: model.RoleITTeam},
	)
	inbox := notify.NewMemoryInbox()
	return NewEmitter(inbox, dir, nil), inbox
}

func transfer() *model.Transfer {
	tl, sup := int64(2), int64(3)
	return &model.Transfer{
		ID:          9,
		Reference:   "TRF-00009",
		Title:       "plates",
		SubmitterID: 1,
		ApprovalChain: []model.ApprovalChainItem{
			{Role: model.RoleTeamLead, Status: model.ApprovalApproved, DeciderID: &tl},
			{Role: model.RoleSupervisor, Status: model.ApprovalRejected, DeciderID: &sup},
		},
	}
}

func inboxOf(t *testing.T, inbox *notify.MemoryInbox, user int64) []model.Notification {
	t.Helper()
	list, err := inbox.List(context.Background(), user, false, 0)
	require.NoError(t, err)
	return list
}

func TestRecordSystemAndActor(t *testing.T) {
	e, _ := fixture()
	sys := e.Record(1, nil, "scan_passed", "clean", nil)
	assert.Nil(t, sys.ActorID)
	assert.False(t, sys.CreatedAt.IsZero())

	actor := &model.Actor{ID: 2, Role: model.RoleTeamLead}
	entry := e.Record(1, actor, "approved", "ok", map[string]any{"stage": "team_lead"})
	require.NotNil(t, entry.ActorID)
	assert.Equal(t, int64(2), *entry.ActorID)
	assert.Equal(t, "team_lead", entry.Metadata["stage"])
}

func TestSubmittedNotifiesFirstStage(t *testing.T) {
	e, inbox := fixture()
	ctx := context.Background()
	tr := transfer()
	entry := e.Record(tr.ID, &model.Actor{ID: 1}, "submitted", "", map[string]any{"to": string(model.StatusPendingTeamLead)})
	e.Publish(ctx, tr, []model.HistoryEntry{entry})

	got := inboxOf(t, inbox, 2)
	require.Len(t, got, 1)
	assert.Equal(t, model.NotifyApprovalRequired, got[0].Type)
	assert.Equal(t, "/transfers/9", got[0].Link)
	assert.Empty(t, inboxOf(t, inbox, 3))
}

func TestChainCompleteNotifiesSubmitter(t *testing.T) {
	e, inbox := fixture()
	tr := transfer()
	entry := e.Record(tr.ID, &model.Actor{ID: 4, Role: model.RoleAdmin}, "skipped", "", map[string]any{"to": string(model.StatusApproved)})
	e.Publish(context.Background(), tr, []model.HistoryEntry{entry})

	got := inboxOf(t, inbox, 1)
	require.Len(t, got, 1)
	assert.Equal(t, model.NotifyApproved, got[0].Type)
}

func TestRejectedNotifiesSubmitterAndPriorApprovers(t *testing.T) {
	e, inbox := fixture()
	tr := transfer()
	tr.RejectionReason = "wrong colour space"
	entry := e.Record(tr.ID, &model.Actor{ID: 3, Role: model.RoleSupervisor}, "rejected", "", nil)
	e.Publish(context.Background(), tr, []model.HistoryEntry{entry})

	assert.Len(t, inboxOf(t, inbox, 1), 1)
	assert.Len(t, inboxOf(t, inbox, 2), 1)
	assert.Empty(t, inboxOf(t, inbox, 3), "the rejecting actor is not notified")
}

func TestSystemFailuresReachAdmins(t *testing.T) {
	e, inbox := fixture()
	tr := transfer()
	tr.FailureDetail = "a.exr: Eicar-Signature FOUND"
	e.Publish(context.Background(), tr, []model.HistoryEntry{e.Record(tr.ID, nil, "scan_failed", "", nil)})

	assert.Equal(t, model.NotifyScanFailed, inboxOf(t, inbox, 1)[0].Type)
	assert.Equal(t, model.NotifyScanFailed, inboxOf(t, inbox, 4)[0].Type)

	e.Publish(context.Background(), tr, []model.HistoryEntry{e.Record(tr.ID, nil, "transfer_started", "", nil)})
	assert.Equal(t, model.NotifyTransferStarted, inboxOf(t, inbox, 5)[0].Type)
}

func TestCancelledBySubmitterIsSilent(t *testing.T) {
	e, inbox := fixture()
	tr := transfer()
	e.Publish(context.Background(), tr, []model.HistoryEntry{e.Record(tr.ID, &model.Actor{ID: 1}, "cancelled", "", nil)})
	assert.Empty(t, inboxOf(t, inbox, 1))

	e.Publish(context.Background(), tr, []model.HistoryEntry{e.Record(tr.ID, &model.Actor{ID: 4, Role: model.RoleAdmin}, "cancelled", "Cancelled by Ada", nil)})
	got := inboxOf(t, inbox, 1)
	require.Len(t, got, 1)
	assert.Equal(t, model.NotifySystem, got[0].Type)
}

func TestUnknownActionIsSilent(t *testing.T) {
	e, inbox := fixture()
	tr := transfer()
	e.Publish(context.Background(), tr, []model.HistoryEntry{e.Record(tr.ID, nil, "scan_retry", "", nil)})
	assert.Empty(t, inboxOf(t, inbox, 1))
	assert.Empty(t, inboxOf(t, inbox, 4))
}
