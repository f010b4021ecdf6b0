// Package model contains the transfer aggregate and the closed enumerations
// shared by the pipeline, its stores and its adapters.
package model

// Status is the pipeline position of a transfer. The set is closed: every
// value a transfer can hold is declared below.
type Status string

const (
	StatusUploaded            Status = "uploaded"
	StatusPendingTeamLead     Status = "pending_team_lead"
	StatusPendingSupervisor   Status = "pending_supervisor"
	StatusPendingDataTeam     Status = "pending_data_team"
	StatusPendingLineProducer Status = "pending_line_producer"
	StatusApproved            Status = "approved"
	StatusScanning            Status = "scanning"
	StatusScanPassed          Status = "scan_passed"
	StatusScanFailed          Status = "scan_failed"
	StatusReadyForTransfer    Status = "ready_for_transfer"
	StatusTransferring        Status = "transferring"
	StatusVerifying           Status = "verifying"
	StatusTransferred         Status = "transferred"
	StatusTransferFailed      Status = "transfer_failed"
	StatusRejected            Status = "rejected"
	StatusCancelled           Status = "cancelled"
)

// AllStatuses lists every status in normal progression order followed by the
// side branches.
var AllStatuses = []Status{
	StatusUploaded,
	StatusPendingTeamLead,
	StatusPendingSupervisor,
	StatusPendingDataTeam,
	StatusPendingLineProducer,
	StatusApproved,
	StatusScanning,
	StatusScanPassed,
	StatusReadyForTransfer,
	StatusTransferring,
	StatusVerifying,
	StatusTransferred,
	StatusScanFailed,
	StatusTransferFailed,
	StatusRejected,
	StatusCancelled,
}

var pendingByRole = map[Role]Status{
	RoleTeamLead:     StatusPendingTeamLead,
	RoleSupervisor:   StatusPendingSupervisor,
	RoleDataTeam:     StatusPendingDataTeam,
	RoleLineProducer: StatusPendingLineProducer,
}

var roleByPending = func() map[Status]Role {
	out := make(map[Status]Role, len(pendingByRole))
	for role, status := range pendingByRole {
		out[status] = role
	}
	return out
}()

var terminalStatuses = map[Status]struct{}{
	StatusTransferred:    {},
	StatusScanFailed:     {},
	StatusTransferFailed: {},
	StatusRejected:       {},
	StatusCancelled:      {},
}

// automatedStatuses are driven by the stage controller rather than actors.
var automatedStatuses = map[Status]struct{}{
	StatusApproved:         {},
	StatusScanning:         {},
	StatusScanPassed:       {},
	StatusReadyForTransfer: {},
	StatusTransferring:     {},
	StatusVerifying:        {},
}

// PendingStatus returns the pending_<role> status for an approval role.
func PendingStatus(role Role) (Status, bool) {
	s, ok := pendingByRole[role]
	return s, ok
}

// PendingRole returns the role awaited by a pending_<role> status.
func (s Status) PendingRole() (Role, bool) {
	r, ok := roleByPending[s]
	return r, ok
}

// IsPending reports whether the status waits on an approval decision.
func (s Status) IsPending() bool {
	_, ok := roleByPending[s]
	return ok
}

// IsTerminal reports whether no further transition is legal.
func (s Status) IsTerminal() bool {
	_, ok := terminalStatuses[s]
	return ok
}

// IsAutomated reports whether the status belongs to the scan/transfer stages.
func (s Status) IsAutomated() bool {
	_, ok := automatedStatuses[s]
	return ok
}

// Valid reports whether s is one of the declared statuses.
func (s Status) Valid() bool {
	for _, known := range AllStatuses {
		if known == s {
			return true
		}
	}
	return false
}

// ParseStatus converts user input into a Status.
func ParseStatus(v string) (Status, error) {
	s := Status(v)
	if !s.Valid() {
		return "", Validationf("unknown status %q", v)
	}
	return s, nil
}
