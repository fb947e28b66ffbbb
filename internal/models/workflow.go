package models

// WorkflowStatus is the lifecycle state shared by KPI definitions and actuals.
type WorkflowStatus string

const (
	StatusDraft           WorkflowStatus = "DRAFT"
	StatusWaitingLineMgr  WorkflowStatus = "WAITING_LINE_MGR"
	StatusWaitingManager  WorkflowStatus = "WAITING_MANAGER"
	StatusApproved        WorkflowStatus = "APPROVED"
	StatusRejected        WorkflowStatus = "REJECTED"
	StatusChangeRequested WorkflowStatus = "CHANGE_REQUESTED"
	StatusLockedGoals     WorkflowStatus = "LOCKED_GOALS"
)

// WorkflowEvent drives transitions between workflow statuses.
type WorkflowEvent string

const (
	EventSubmit        WorkflowEvent = "SUBMIT"
	EventAdvance       WorkflowEvent = "ADVANCE"  // level approved, next level pending
	EventFinalize      WorkflowEvent = "FINALIZE" // last level approved or collapsed
	EventReject        WorkflowEvent = "REJECT"
	EventRequestChange WorkflowEvent = "REQUEST_CHANGE"
	EventLock          WorkflowEvent = "LOCK"
)

// transitions is the explicit state x event table replacing scattered status
// string comparisons. Absent entries are illegal transitions.
var transitions = map[WorkflowStatus]map[WorkflowEvent]WorkflowStatus{
	StatusDraft: {
		EventSubmit: StatusWaitingLineMgr,
	},
	StatusWaitingLineMgr: {
		EventAdvance:  StatusWaitingManager,
		EventFinalize: StatusApproved,
		EventReject:   StatusRejected,
	},
	StatusWaitingManager: {
		EventFinalize: StatusApproved,
		EventReject:   StatusRejected,
	},
	StatusApproved: {
		EventRequestChange: StatusChangeRequested,
		EventLock:          StatusLockedGoals,
	},
	StatusRejected: {
		EventSubmit: StatusWaitingLineMgr,
	},
	StatusChangeRequested: {
		EventSubmit: StatusWaitingLineMgr,
	},
}

// NextStatus resolves the target status for an event, reporting legality.
func NextStatus(current WorkflowStatus, event WorkflowEvent) (WorkflowStatus, bool) {
	events, ok := transitions[current]
	if !ok {
		return current, false
	}
	next, ok := events[event]
	return next, ok
}

// Editable reports whether the owner may still modify the entity.
func (s WorkflowStatus) Editable() bool {
	switch s {
	case StatusDraft, StatusRejected, StatusChangeRequested:
		return true
	default:
		return false
	}
}

// Pending reports whether the entity is waiting on an approval decision.
func (s WorkflowStatus) Pending() bool {
	return s == StatusWaitingLineMgr || s == StatusWaitingManager
}
