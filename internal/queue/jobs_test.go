package queue

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/DataBridge/internal/stage"
)

func TestTaskIDsDistinguishAttempts(t *testing.T) {
	first := stage.ScanJob{TransferID: 4, FileID: 9, Attempt: 1}
	second := first
	second.Attempt = 2
	assert.Equal(t, "scan-4-9-1", ScanTaskID(first))
	assert.NotEqual(t, ScanTaskID(first), ScanTaskID(second))
	assert.Equal(t, "copy-4-9-1", CopyTaskID(stage.CopyJob{TransferID: 4, FileID: 9, Attempt: 1}))
}

func TestScanTaskPayload(t *testing.T) {
	job := stage.ScanJob{TransferID: 4, FileID: 9, Attempt: 3}
	task, err := NewScanTask(job)
	require.NoError(t, err)
	assert.Equal(t, ScanFileTask, task.Type())

	var decoded stage.ScanJob
	require.NoError(t, json.Unmarshal(task.Payload(), &decoded))
	assert.Equal(t, job, decoded)
}
