// Package pipeline owns the transfer state machine: the transition table, the
// atomic commit of a transition with its audit entries, and the actor-facing
// operations (submit, decide, cancel, get, list).
package pipeline

import (
	"github.com/dharsanguruparan/DataBridge/internal/model"
)

var pendingStatuses = []model.Status{
	model.StatusPendingTeamLead,
	model.StatusPendingSupervisor,
	model.StatusPendingDataTeam,
	model.StatusPendingLineProducer,
}

// transitions is the complete table of legal moves. Anything not listed is
// rejected with ErrInvalidTransition.
var transitions = func() map[model.Status][]model.Status {
	t := map[model.Status][]model.Status{
		model.StatusUploaded:         append(append([]model.Status{}, pendingStatuses...), model.StatusApproved, model.StatusCancelled),
		model.StatusApproved:         {model.StatusScanning, model.StatusCancelled},
		model.StatusScanning:         {model.StatusScanPassed, model.StatusScanFailed, model.StatusCancelled},
		model.StatusScanPassed:       {model.StatusReadyForTransfer, model.StatusCancelled},
		model.StatusReadyForTransfer: {model.StatusTransferring, model.StatusCancelled},
		model.StatusTransferring:     {model.StatusVerifying, model.StatusTransferFailed, model.StatusCancelled},
		model.StatusVerifying:        {model.StatusTransferred, model.StatusTransferFailed, model.StatusCancelled},
	}
	for _, from := range pendingStatuses {
		var next []model.Status
		for _, to := range pendingStatuses {
			if to != from {
				next = append(next, to)
			}
		}
		t[from] = append(next, model.StatusApproved, model.StatusRejected, model.StatusCancelled)
	}
	return t
}()

// CanTransition reports whether the table allows from -> to.
func CanTransition(from, to model.Status) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Next lists the statuses reachable from s in one step.
func Next(s model.Status) []model.Status {
	out := make([]model.Status, len(transitions[s]))
	copy(out, transitions[s])
	return out
}

func checkTransition(from, to model.Status) error {
	if from.IsTerminal() {
		return model.InvalidTransitionf("transfer is %s; no further transitions are allowed", from)
	}
	if !CanTransition(from, to) {
		return model.InvalidTransitionf("cannot move from %s to %s", from, to)
	}
	return nil
}
