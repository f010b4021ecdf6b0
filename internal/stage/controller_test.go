package stage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/DataBridge/internal/approval"
	"github.com/dharsanguruparan/DataBridge/internal/audit"
	"github.com/dharsanguruparan/DataBridge/internal/identity"
	"github.com/dharsanguruparan/DataBridge/internal/model"
	"github.com/dharsanguruparan/DataBridge/internal/notify"
	"github.com/dharsanguruparan/DataBridge/internal/pipeline"
	"github.com/dharsanguruparan/DataBridge/internal/storage"
)

const (
	sumA = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	sumB = "486ea46224d1bb4fb680f34f7c9ad96a8f24ec88be73ea8e5a6c65260e9cb8a7"
)

type recorder struct {
	mu     sync.Mutex
	scans  []ScanJob
	copies []CopyJob
	delays []time.Duration
	fail   bool
}

func (r *recorder) ScheduleScan(_ context.Context, job ScanJob, delay time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("redis unavailable")
	}
	r.scans = append(r.scans, job)
	r.delays = append(r.delays, delay)
	return nil
}

func (r *recorder) ScheduleCopy(_ context.Context, job CopyJob, delay time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("redis unavailable")
	}
	r.copies = append(r.copies, job)
	r.delays = append(r.delays, delay)
	return nil
}

func (r *recorder) take() ([]ScanJob, []CopyJob) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, c := r.scans, r.copies
	r.scans, r.copies = nil, nil
	return s, c
}

type scanFunc func(f model.TransferFile) (model.ScanResult, error)

func (fn scanFunc) Scan(_ context.Context, f model.TransferFile) (model.ScanResult, error) {
	return fn(f)
}

type copyFunc func(src, dst string) (string, error)

func (fn copyFunc) Copy(_ context.Context, src, dst string) (string, error) { return fn(src, dst) }

func clean(model.TransferFile) (model.ScanResult, error) {
	return model.ScanResult{Verdict: model.VerdictClean}, nil
}

var checksums = map[string]string{"uploads/1/b1/a.exr": sumA, "uploads/1/b1/b.exr": sumB}

func faithful(src, _ string) (string, error) { return checksums[src], nil }

type harness struct {
	svc   *pipeline.Service
	ctrl  *Controller
	store *storage.MemoryStore
	sched *recorder
	inbox *notify.MemoryInbox
}

func newHarness(t *testing.T, scanner Scanner, mover Mover, subscribe bool) *harness {
	t.Helper()
	dir := identity.NewMemoryDirectory(
		model.Actor{ID: 1, Name: "Ana", Role: model.RoleArtist},
		model.Actor{ID: 2, Name: "Tom", Role: model.RoleTeamLead},
		model.Actor{ID: 3, Name: "Sue", Role: model.RoleSupervisor},
		model.Actor{ID: 4, Name: "Lin", Role: model.RoleLineProducer},
		model.Actor{ID: 5, Name: "Ada", Role: model.RoleAdmin},
	)
	store := storage.NewMemoryStore()
	inbox := notify.NewMemoryInbox()
	engine := pipeline.NewEngine(store, audit.NewEmitter(inbox, dir, nil), nil)
	svc := pipeline.NewService(engine, approval.NewManager(approval.DefaultPolicy()), dir, nil)
	policy := DefaultPolicy()
	policy.BaseDelay = time.Second
	ctrl := NewController(engine, scanner, mover, policy, nil)
	sched := &recorder{}
	ctrl.SetScheduler(sched)
	if subscribe {
		engine.Subscribe(ctrl.OnTransition)
	}
	return &harness{svc: svc, ctrl: ctrl, store: store, sched: sched, inbox: inbox}
}

// approved submits a two-file textures transfer and walks it through the chain.
func (h *harness) approved(t *testing.T) *model.Transfer {
	t.Helper()
	ctx := context.Background()
	tr, err := h.svc.Submit(ctx, 1, pipeline.SubmitRequest{
		Title:    "Hero textures",
		Category: model.CategoryTextures,
		Priority: model.PriorityHigh,
		Files: []pipeline.FileSpec{
			{Filename: "a.exr", StagingKey: "uploads/1/b1/a.exr", Size: 5, Checksum: sumA},
			{Filename: "b.exr", StagingKey: "uploads/1/b1/b.exr", Size: 5, Checksum: sumB},
		},
		External: &model.ExternalLink{ProjectCode: "Big Show 2"},
	})
	require.NoError(t, err)
	for _, actor := range []int64{2, 3, 4} {
		tr, err = h.svc.Decide(ctx, actor, tr.ID, approval.Decision{Verdict: approval.VerdictApprove})
		require.NoError(t, err)
	}
	return tr
}

// drain runs queued jobs until none remain.
func (h *harness) drain(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < 20; i++ {
		scans, copies := h.sched.take()
		if len(scans) == 0 && len(copies) == 0 {
			return
		}
		for _, job := range scans {
			require.NoError(t, h.ctrl.RunScanJob(ctx, job))
		}
		for _, job := range copies {
			require.NoError(t, h.ctrl.RunCopyJob(ctx, job))
		}
	}
	t.Fatal("jobs kept coming")
}

func (h *harness) load(t *testing.T, id int64) *model.Transfer {
	t.Helper()
	tr, err := h.store.Load(context.Background(), id)
	require.NoError(t, err)
	return tr
}

func actions(t *testing.T, h *harness, id int64) []string {
	t.Helper()
	history, err := h.store.History(context.Background(), id)
	require.NoError(t, err)
	out := make([]string, len(history))
	for i, e := range history {
		out[i] = e.Action
	}
	return out
}

func TestScenarioCleanTransferDelivered(t *testing.T) {
	h := newHarness(t, scanFunc(clean), copyFunc(faithful), true)
	tr := h.approved(t)
	assert.Equal(t, model.StatusScanning, h.load(t, tr.ID).Status)

	h.drain(t)
	got := h.load(t, tr.ID)
	require.Equal(t, model.StatusTransferred, got.Status)
	assert.Equal(t, "production/big-show-2/textures/TRF-00001", got.ProductionPath)
	for _, f := range got.Files {
		assert.Equal(t, f.Checksum, f.DestinationChecksum)
		require.NotNil(t, f.Verified)
		assert.True(t, *f.Verified)
		assert.Equal(t, "production/big-show-2/textures/TRF-00001/"+f.Filename, f.DestinationKey)
	}
	assert.NotNil(t, got.ScanCompletedAt)
	assert.NotNil(t, got.TransferCompletedAt)

	history, err := h.store.History(context.Background(), tr.ID)
	require.NoError(t, err)
	var path []model.Status
	for i, e := range history {
		if i > 0 {
			assert.False(t, e.CreatedAt.Before(history[i-1].CreatedAt), "history is chronological")
		}
		if to, ok := e.Metadata["to"].(string); ok {
			path = append(path, model.Status(to))
		}
	}
	assert.Equal(t, []model.Status{
		model.StatusPendingTeamLead,
		model.StatusPendingSupervisor,
		model.StatusPendingLineProducer,
		model.StatusApproved,
		model.StatusScanning,
		model.StatusScanPassed,
		model.StatusReadyForTransfer,
		model.StatusTransferring,
		model.StatusVerifying,
		model.StatusTransferred,
	}, path)

	done, err := h.inbox.List(context.Background(), 1, false, 0)
	require.NoError(t, err)
	assert.Equal(t, model.NotifyTransferComplete, done[0].Type)
}

func TestScenarioInfectedFileFailsScan(t *testing.T) {
	scanner := scanFunc(func(f model.TransferFile) (model.ScanResult, error) {
		if f.Filename == "b.exr" {
			return model.ScanResult{Verdict: model.VerdictInfected, Detail: "Eicar-Test-Signature FOUND"}, nil
		}
		return clean(f)
	})
	h := newHarness(t, scanner, copyFunc(faithful), true)
	tr := h.approved(t)
	h.drain(t)

	got := h.load(t, tr.ID)
	assert.Equal(t, model.StatusScanFailed, got.Status)
	assert.Equal(t, []string{"b.exr"}, got.FailedFiles)
	assert.Contains(t, got.FailureDetail, "Eicar-Test-Signature")
	assert.Empty(t, got.ProductionPath)
	assert.NotContains(t, actions(t, h, tr.ID), "transfer_started")
	for _, f := range got.Files {
		assert.Zero(t, f.CopyAttempts, "no copy job is ever scheduled")
	}
}

func TestScenarioCancelDuringScanDiscardsResult(t *testing.T) {
	h := newHarness(t, scanFunc(clean), copyFunc(faithful), true)
	ctx := context.Background()
	tr := h.approved(t)

	cancelled, err := h.svc.Cancel(ctx, 1, tr.ID, "wrong version")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, cancelled.Status)

	h.drain(t)
	require.NoError(t, h.ctrl.ReportScan(ctx, ScanReport{TransferID: tr.ID, FileID: cancelled.Files[0].ID, Attempt: 1, Verdict: model.VerdictClean}))

	got := h.load(t, tr.ID)
	assert.Equal(t, model.StatusCancelled, got.Status)
	assert.Equal(t, cancelled.Version, got.Version)
	for _, f := range got.Files {
		assert.Equal(t, model.VerdictPending, f.ScanVerdict)
	}
}

func TestDuplicateAndStaleReportsAreIgnored(t *testing.T) {
	h := newHarness(t, scanFunc(clean), copyFunc(faithful), true)
	ctx := context.Background()
	tr := h.approved(t)
	scans, _ := h.sched.take()
	require.Len(t, scans, 2)

	first := ScanReport{TransferID: tr.ID, FileID: scans[0].FileID, Attempt: 1, Verdict: model.VerdictClean}
	require.NoError(t, h.ctrl.ReportScan(ctx, first))
	version := h.load(t, tr.ID).Version

	first.Verdict = model.VerdictInfected
	require.NoError(t, h.ctrl.ReportScan(ctx, first))
	require.NoError(t, h.ctrl.ReportScan(ctx, ScanReport{TransferID: tr.ID, FileID: scans[1].FileID, Attempt: 7, Verdict: model.VerdictInfected}))

	got := h.load(t, tr.ID)
	assert.Equal(t, version, got.Version)
	assert.Equal(t, model.VerdictClean, got.Files[0].ScanVerdict)
	assert.Equal(t, model.StatusScanning, got.Status)

	err := h.ctrl.ReportScan(ctx, ScanReport{TransferID: tr.ID, FileID: scans[1].FileID, Attempt: 1, Verdict: "maybe"})
	require.ErrorIs(t, err, model.ErrValidation)
}

func TestScanInfrastructureErrorsAreRetried(t *testing.T) {
	calls := map[string]int{}
	var mu sync.Mutex
	scanner := scanFunc(func(f model.TransferFile) (model.ScanResult, error) {
		mu.Lock()
		defer mu.Unlock()
		calls[f.Filename]++
		if f.Filename == "a.exr" && calls[f.Filename] < 3 {
			return model.ScanResult{}, errors.New("clamd socket refused")
		}
		return clean(f)
	})
	h := newHarness(t, scanner, copyFunc(faithful), true)
	tr := h.approved(t)
	h.drain(t)

	got := h.load(t, tr.ID)
	assert.Equal(t, model.StatusTransferred, got.Status)
	assert.Equal(t, 3, got.Files[0].ScanAttempts)
	assert.Equal(t, 1, got.Files[1].ScanAttempts)

	retries := 0
	for _, a := range actions(t, h, tr.ID) {
		if a == "scan_retry" {
			retries++
		}
	}
	assert.Equal(t, 2, retries)
	assert.Contains(t, h.sched.delays, time.Second)
	assert.Contains(t, h.sched.delays, 2*time.Second)
}

func TestScanRetriesExhaustedFailTheFile(t *testing.T) {
	scanner := scanFunc(func(f model.TransferFile) (model.ScanResult, error) {
		if f.Filename == "a.exr" {
			return model.ScanResult{}, errors.New("clamscan exited 2")
		}
		return clean(f)
	})
	h := newHarness(t, scanner, copyFunc(faithful), true)
	tr := h.approved(t)
	h.drain(t)

	got := h.load(t, tr.ID)
	assert.Equal(t, model.StatusScanFailed, got.Status)
	assert.Equal(t, model.VerdictError, got.Files[0].ScanVerdict)
	assert.Equal(t, []string{"a.exr"}, got.FailedFiles)
}

func TestSchedulerOutageCountsAsInfrastructureError(t *testing.T) {
	h := newHarness(t, scanFunc(clean), copyFunc(faithful), true)
	h.sched.fail = true
	tr := h.approved(t)

	got := h.load(t, tr.ID)
	assert.Equal(t, model.StatusScanFailed, got.Status)
	for _, f := range got.Files {
		assert.Equal(t, model.VerdictError, f.ScanVerdict)
		assert.Equal(t, 3, f.ScanAttempts)
	}
}

func TestChecksumMismatchListsEveryFile(t *testing.T) {
	mover := copyFunc(func(string, string) (string, error) {
		return "0000000000000000000000000000000000000000000000000000000000000000", nil
	})
	h := newHarness(t, scanFunc(clean), mover, true)
	tr := h.approved(t)
	h.drain(t)

	got := h.load(t, tr.ID)
	assert.Equal(t, model.StatusTransferFailed, got.Status)
	assert.Equal(t, []string{"a.exr", "b.exr"}, got.FailedFiles)
	for _, f := range got.Files {
		require.NotNil(t, f.Verified)
		assert.False(t, *f.Verified)
	}

	admin, err := h.inbox.List(context.Background(), 5, false, 0)
	require.NoError(t, err)
	require.NotEmpty(t, admin)
	assert.Equal(t, model.NotifyTransferFailed, admin[0].Type)
}

func TestCopyRetriesExhausted(t *testing.T) {
	mover := copyFunc(func(src, dst string) (string, error) {
		if src == "uploads/1/b1/b.exr" {
			return "", errors.New("bucket unreachable")
		}
		return faithful(src, dst)
	})
	h := newHarness(t, scanFunc(clean), mover, true)
	tr := h.approved(t)
	h.drain(t)

	got := h.load(t, tr.ID)
	assert.Equal(t, model.StatusTransferFailed, got.Status)
	assert.Equal(t, []string{"b.exr"}, got.FailedFiles)
	assert.Equal(t, 3, got.Files[1].CopyAttempts)
	assert.Contains(t, got.Files[1].CopyError, "bucket unreachable")
	assert.Contains(t, actions(t, h, tr.ID), "copy_retry")
}

func TestSweepFlagsAndResumes(t *testing.T) {
	h := newHarness(t, scanFunc(clean), copyFunc(faithful), false)
	tr := h.approved(t)
	require.Equal(t, model.StatusApproved, h.load(t, tr.ID).Status)

	h.ctrl.policy.StallAfter = time.Nanosecond
	time.Sleep(time.Millisecond)
	n, err := h.ctrl.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, model.StatusScanning, h.load(t, tr.ID).Status)
	assert.Contains(t, actions(t, h, tr.ID), "stage_stalled")

	admin, err := h.inbox.List(context.Background(), 5, false, 0)
	require.NoError(t, err)
	require.NotEmpty(t, admin)
	assert.Equal(t, model.NotifySystem, admin[0].Type)
}

func TestSweepFlagsEachStallOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, scanFunc(clean), copyFunc(faithful), false)
	tr := h.approved(t)
	h.ctrl.policy.StallAfter = time.Nanosecond
	time.Sleep(time.Millisecond)

	// resumed from approved: scanning is a new position, so it may stall again
	n, err := h.ctrl.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	time.Sleep(time.Millisecond)
	n, err = h.ctrl.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	// still scanning with nothing recorded since the last flag
	for i := 0; i < 3; i++ {
		n, err = h.ctrl.Sweep(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	}

	stalls := 0
	for _, a := range actions(t, h, tr.ID) {
		if a == "stage_stalled" {
			stalls++
		}
	}
	assert.Equal(t, 2, stalls)
	admin, err := h.inbox.List(ctx, 5, false, 0)
	require.NoError(t, err)
	assert.Len(t, admin, 2)
}

func TestPolicyBackoff(t *testing.T) {
	p := Policy{BaseDelay: 2 * time.Second, MaxDelay: time.Minute}
	assert.Equal(t, 2*time.Second, p.Backoff(1))
	assert.Equal(t, 4*time.Second, p.Backoff(2))
	assert.Equal(t, time.Minute, p.Backoff(10))
	assert.Zero(t, Policy{}.Backoff(3))
}

func TestProductionPath(t *testing.T) {
	tr := &model.Transfer{Reference: "TRF-00042", Category: model.CategoryFX}
	assert.Equal(t, "prod/unlinked/fx/TRF-00042", ProductionPath("prod", tr))

	id := int64(12)
	tr.External = &model.ExternalLink{ProjectID: &id}
	assert.Equal(t, "prod/project-12/fx/TRF-00042", ProductionPath("prod", tr))

	tr.External.ProjectCode = "Night Shift!"
	assert.Equal(t, "prod/night-shift/fx/TRF-00042", ProductionPath("prod", tr))
}
