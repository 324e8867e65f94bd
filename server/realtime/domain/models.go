package domain

import (
	"encoding/json"
	"time"
)

type UserRole string

const (
	UserRoleAdmin UserRole = "admin"
	UserRoleUser  UserRole = "user"
)

type User struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	Name     string   `json:"name"`
	Role     UserRole `json:"role"`
}

type GroupMember struct {
	GroupID string `json:"group_id"`
	UserID  string `json:"user_id"`
	Role    string `json:"role"`
	User    User   `json:"user"`
}

type PresenceEntry struct {
	UserID         string    `json:"user_id"`
	Username       string    `json:"username"`
	ConnectionID   string    `json:"connection_id"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

type OnlineUser struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

type ChatMessage struct {
	ID           string          `json:"id"`
	SenderID     string          `json:"sender_id"`
	SenderName   string          `json:"sender_name,omitempty"`
	GroupID      string          `json:"group_id"`
	Content      string          `json:"content"`
	Attachments  []string        `json:"attachments,omitempty"`
	TempID       string          `json:"temp_id,omitempty"`
	ActionResult *ActionOutcome  `json:"action_result,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// ActionOutcome rides along on the original message so the optimistic UI
// can show what the command did.
type ActionOutcome struct {
	Kind    ActionKind `json:"kind"`
	Success bool       `json:"success"`
	Message string     `json:"message"`
}

type TaskPriority string

const (
	PriorityLow      TaskPriority = "low"
	PriorityMedium   TaskPriority = "medium"
	PriorityHigh     TaskPriority = "high"
	PriorityCritical TaskPriority = "critical"
)

// PriorityRank orders priorities for "highest first" picks.
func PriorityRank(p TaskPriority) int {
	switch p {
	case PriorityCritical:
		return 3
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 1
	default:
		return 0
	}
}

type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusDone       TaskStatus = "done"
)

// AssignedToAll is the sentinel assignee produced by "para todos".
const AssignedToAll = "all"

type Task struct {
	ID          string       `json:"id"`
	ObjectiveID string       `json:"objective_id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	AssignedTo  string       `json:"assigned_to,omitempty"`
	Priority    TaskPriority `json:"priority"`
	Status      TaskStatus   `json:"status"`
	CreatedBy   string       `json:"created_by"`
	Deadline    *time.Time   `json:"deadline,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

type Objective struct {
	ID          string     `json:"id"`
	GroupID     string     `json:"group_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	CreatedBy   string     `json:"created_by"`
	Deadline    *time.Time `json:"deadline,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

type GroupEvent struct {
	ID          string       `json:"id"`
	GroupID     string       `json:"group_id"`
	ObjectiveID *string      `json:"objective_id,omitempty"`
	CreatedBy   string       `json:"created_by"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Date        time.Time    `json:"date"`
	EventTime   string       `json:"event_time,omitempty"`
	EventType   string       `json:"event_type"`
	Priority    TaskPriority `json:"priority"`
	CreatedAt   time.Time    `json:"created_at"`
}

type Idea struct {
	ID          string       `json:"id"`
	GroupID     string       `json:"group_id"`
	CreatedBy   string       `json:"created_by"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Category    string       `json:"category"`
	Priority    TaskPriority `json:"priority"`
	CreatedAt   time.Time    `json:"created_at"`
}

type CallType string

const (
	CallTypeAudio CallType = "audio"
	CallTypeVideo CallType = "video"
)

func (t CallType) Valid() bool {
	return t == CallTypeAudio || t == CallTypeVideo
}

type CallStatus string

const (
	CallStatusInitiated CallStatus = "initiated"
	CallStatusRinging   CallStatus = "ringing"
	CallStatusAccepted  CallStatus = "accepted"
	CallStatusActive    CallStatus = "active"
	CallStatusRejected  CallStatus = "rejected"
	CallStatusCancelled CallStatus = "cancelled"
	CallStatusEnded     CallStatus = "ended"
)

// Terminal reports whether a call can no longer transition.
func (s CallStatus) Terminal() bool {
	return s == CallStatusEnded || s == CallStatusRejected || s == CallStatusCancelled
}

// Call is exactly one of direct (ReceiverID set) or group (GroupID set).
type Call struct {
	ID         string     `json:"id"`
	CallerID   string     `json:"caller_id"`
	ReceiverID *string    `json:"receiver_id,omitempty"`
	GroupID    *string    `json:"group_id,omitempty"`
	CallType   CallType   `json:"call_type"`
	Status     CallStatus `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
}

func (c Call) IsGroup() bool {
	return c.GroupID != nil
}

// IsParty reports whether the user is the caller or the designated receiver.
func (c Call) IsParty(userID string) bool {
	if c.CallerID == userID {
		return true
	}
	return c.ReceiverID != nil && *c.ReceiverID == userID
}

type CallParticipant struct {
	CallID   string     `json:"call_id"`
	UserID   string     `json:"user_id"`
	JoinedAt time.Time  `json:"joined_at"`
	LeftAt   *time.Time `json:"left_at,omitempty"`
}

// Signal is an opaque WebRTC negotiation payload; the server never
// inspects Payload.
type Signal struct {
	CallID     string          `json:"call_id"`
	FromUserID string          `json:"from_user_id"`
	SignalType string          `json:"signal_type"`
	Payload    json.RawMessage `json:"payload"`
}
