package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/DataBridge/internal/queue"
	"github.com/dharsanguruparan/DataBridge/internal/stage"
)

type fakeRunner struct {
	scans  []stage.ScanJob
	copies []stage.CopyJob
	err    error
}

func (f *fakeRunner) RunScanJob(_ context.Context, job stage.ScanJob) error {
	f.scans = append(f.scans, job)
	return f.err
}

func (f *fakeRunner) RunCopyJob(_ context.Context, job stage.CopyJob) error {
	f.copies = append(f.copies, job)
	return f.err
}

type fakeSweeper struct{ calls int }

func (f *fakeSweeper) Sweep(context.Context) (int, error) {
	f.calls++
	return 2, nil
}

func TestHandlerDispatchesByType(t *testing.T) {
	runner := &fakeRunner{}
	sweeper := &fakeSweeper{}
	mux := NewProcessor(runner, sweeper, nil).Handler()
	ctx := context.Background()

	scan, err := queue.NewScanTask(stage.ScanJob{TransferID: 1, FileID: 2, Attempt: 1})
	require.NoError(t, err)
	require.NoError(t, mux.ProcessTask(ctx, scan))

	cp, err := queue.NewCopyTask(stage.CopyJob{TransferID: 1, FileID: 2, Attempt: 2})
	require.NoError(t, err)
	require.NoError(t, mux.ProcessTask(ctx, cp))

	require.NoError(t, mux.ProcessTask(ctx, asynq.NewTask(queue.SweepTask, nil)))

	assert.Equal(t, []stage.ScanJob{{TransferID: 1, FileID: 2, Attempt: 1}}, runner.scans)
	assert.Equal(t, 2, runner.copies[0].Attempt)
	assert.Equal(t, 1, sweeper.calls)
}

func TestBadPayloadSkipsRetry(t *testing.T) {
	mux := NewProcessor(&fakeRunner{}, nil, nil).Handler()
	err := mux.ProcessTask(context.Background(), asynq.NewTask(queue.ScanFileTask, []byte("{")))
	require.Error(t, err)
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestRunnerErrorsPropagate(t *testing.T) {
	runner := &fakeRunner{err: errors.New("database gone")}
	mux := NewProcessor(runner, nil, nil).Handler()
	task, err := queue.NewCopyTask(stage.CopyJob{TransferID: 3})
	require.NoError(t, err)
	require.Error(t, mux.ProcessTask(context.Background(), task))
}
