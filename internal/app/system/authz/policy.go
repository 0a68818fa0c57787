// internal/app/system/authz/policy.go
package authz

import (
	"time"

	"github.com/dalemusser/teamhub/internal/domain/models"
)

// Action names something a principal may attempt.
type Action string

const (
	ActionCreateTask       Action = "task.create"
	ActionEditTask         Action = "task.edit"
	ActionDeleteTask       Action = "task.delete"
	ActionChangeTaskStatus Action = "task.status"
	ActionAddNote          Action = "task.note"
	ActionViewTask         Action = "task.view"
	ActionListAllTasks     Action = "task.list_all"

	ActionCreateMeeting  Action = "meeting.create"
	ActionEditMeeting    Action = "meeting.edit"
	ActionDeleteMeeting  Action = "meeting.delete"
	ActionMarkAttendance Action = "meeting.attend"
	ActionViewAttendance Action = "meeting.roster"

	ActionInviteMember          Action = "user.invite"
	ActionReadNotification      Action = "notification.read"
	ActionRedeliverNotification Action = "notification.redeliver"
)

// Target carries the attributes of the entity an action applies to.
// Only the fields relevant to the action need to be set.
type Target struct {
	AssignedTo    string    // task assignee uid
	CreatedBy     string    // meeting creator uid
	Recipient     string    // notification recipient uid
	MeetingStatus string    // meeting status
	MeetingDate   time.Time // meeting instant
	AlreadyMarked bool      // principal already in attendees
	Role          string    // role being provisioned (invite)
	Now           time.Time // evaluation instant; zero means time.Now()
}

// Decision is the outcome of a policy check.
type Decision struct {
	Allowed bool
	Reason  string
}

// Deny reasons.
const (
	ReasonNotSignedIn    = "not signed in"
	ReasonRole           = "role not permitted"
	ReasonNotAssignee    = "task is not assigned to you"
	ReasonNotCreator     = "only the meeting creator or a superadmin may edit it"
	ReasonAlreadyMarked  = "attendance already marked"
	ReasonNotScheduled   = "meeting is not scheduled"
	ReasonMeetingPast    = "meeting has already started"
	ReasonNotRecipient   = "notification belongs to another user"
	ReasonRoleEscalation = "only a superadmin may provision a superadmin"
	ReasonUnknownAction  = "unknown action"
)

var allow = Decision{Allowed: true}

func deny(reason string) Decision { return Decision{Reason: reason} }

// CanPerform is the single source of truth for authorization. It is pure:
// no I/O, no clock reads beyond Target.Now defaulting.
//
// Handlers call it to reject early; repositories call it again before every
// mutation, and the store queries encode the same constraints in their
// filters.
func CanPerform(p models.Principal, a Action, t Target) Decision {
	if !p.Authenticated() {
		return deny(ReasonNotSignedIn)
	}
	manager := models.IsManager(p.Role)

	switch a {
	case ActionCreateTask, ActionEditTask, ActionDeleteTask,
		ActionCreateMeeting, ActionDeleteMeeting, ActionListAllTasks:
		if manager {
			return allow
		}
		return deny(ReasonRole)

	case ActionChangeTaskStatus, ActionAddNote, ActionViewTask:
		if manager || t.AssignedTo == p.UID {
			return allow
		}
		return deny(ReasonNotAssignee)

	case ActionEditMeeting:
		switch p.Role {
		case models.RoleSuperAdmin:
			return allow
		case models.RoleAdmin:
			if t.CreatedBy == p.UID {
				return allow
			}
			return deny(ReasonNotCreator)
		}
		return deny(ReasonRole)

	case ActionMarkAttendance:
		now := t.Now
		if now.IsZero() {
			now = time.Now()
		}
		switch {
		case t.AlreadyMarked:
			return deny(ReasonAlreadyMarked)
		case t.MeetingStatus != models.MeetingStatusScheduled:
			return deny(ReasonNotScheduled)
		case !t.MeetingDate.After(now):
			return deny(ReasonMeetingPast)
		}
		return allow

	case ActionViewAttendance, ActionRedeliverNotification:
		if p.Role == models.RoleSuperAdmin {
			return allow
		}
		return deny(ReasonRole)

	case ActionInviteMember:
		if !manager {
			return deny(ReasonRole)
		}
		if t.Role == models.RoleSuperAdmin && p.Role != models.RoleSuperAdmin {
			return deny(ReasonRoleEscalation)
		}
		return allow

	case ActionReadNotification:
		if t.Recipient == p.UID {
			return allow
		}
		return deny(ReasonNotRecipient)
	}
	return deny(ReasonUnknownAction)
}

// Allowed is CanPerform reduced to a bool.
func Allowed(p models.Principal, a Action, t Target) bool {
	return CanPerform(p, a, t).Allowed
}

// TaskTarget describes a task for policy checks.
func TaskTarget(t models.Task) Target {
	return Target{AssignedTo: t.AssignedTo}
}

// MeetingTarget describes a meeting for policy checks by uid at now.
func MeetingTarget(m models.Meeting, uid string, now time.Time) Target {
	return Target{
		CreatedBy:     m.CreatedBy,
		MeetingStatus: m.Status,
		MeetingDate:   m.Date,
		AlreadyMarked: m.HasAttendee(uid),
		Now:           now,
	}
}
