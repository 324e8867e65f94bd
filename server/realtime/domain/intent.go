package domain

import "time"

type ActionKind string

const (
	ActionCreateTask      ActionKind = "createTask"
	ActionCreateObjective ActionKind = "createObjective"
	ActionCreateEvent     ActionKind = "createEvent"
	ActionCreateIdea      ActionKind = "createIdea"
	ActionQueryTasks      ActionKind = "queryTasks"
	ActionQueryGroupInfo  ActionKind = "queryGroupInfo"
	ActionListFreeTasks   ActionKind = "listFreeTasks"
	ActionTakeTask        ActionKind = "takeTask"
	ActionNone            ActionKind = "none"
)

// ActionIntent lives for a single message-handling cycle.
type ActionIntent struct {
	Kind    ActionKind `json:"kind"`
	RawText string     `json:"raw_text"`
}

// ActionParams is the kind-specific parameter bundle extracted from free
// text. Fields irrelevant to a given kind stay zero.
type ActionParams struct {
	Title       string
	Description string
	Priority    TaskPriority
	Deadline    *time.Time
	AssignedTo  string
	EventDate   *time.Time
	EventTime   string
	EventType   string
	Category    string
	TaskQuery   string
}

type ActionResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}
