package pipeline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dharsanguruparan/DataBridge/internal/model"
)

func TestTerminalStatusesHaveNoExits(t *testing.T) {
	for _, s := range model.AllStatuses {
		if s.IsTerminal() {
			assert.Empty(t, Next(s), "terminal status %s", s)
		}
	}
}

func TestCancelReachableFromEveryNonTerminalStatus(t *testing.T) {
	for _, s := range model.AllStatuses {
		if s.IsTerminal() {
			continue
		}
		assert.True(t, CanTransition(s, model.StatusCancelled), "status %s", s)
	}
}

func TestRejectOnlyFromPending(t *testing.T) {
	for _, s := range model.AllStatuses {
		assert.Equal(t, s.IsPending(), CanTransition(s, model.StatusRejected), "status %s", s)
	}
}

func TestNormalProgressionIsLegal(t *testing.T) {
	path := []model.Status{
		model.StatusUploaded,
		model.StatusPendingTeamLead,
		model.StatusPendingSupervisor,
		model.StatusPendingDataTeam,
		model.StatusPendingLineProducer,
		model.StatusApproved,
		model.StatusScanning,
		model.StatusScanPassed,
		model.StatusReadyForTransfer,
		model.StatusTransferring,
		model.StatusVerifying,
		model.StatusTransferred,
	}
	for i := 0; i+1 < len(path); i++ {
		assert.True(t, CanTransition(path[i], path[i+1]), "%s -> %s", path[i], path[i+1])
	}
}

func TestCheckTransition(t *testing.T) {
	err := checkTransition(model.StatusScanFailed, model.StatusScanning)
	assert.True(t, errors.Is(err, model.ErrInvalidTransition))

	err = checkTransition(model.StatusApproved, model.StatusTransferred)
	assert.True(t, errors.Is(err, model.ErrInvalidTransition))

	assert.NoError(t, checkTransition(model.StatusScanning, model.StatusScanFailed))
}
