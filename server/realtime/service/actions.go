package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	commonlog "team_server/server/common/log"
	"team_server/server/realtime/domain"
)

const generalObjectiveTitle = "General Tasks"

type actionStore interface {
	CreateTask(ctx context.Context, task domain.Task) (domain.Task, error)
	FindOrCreateGeneralObjective(ctx context.Context, groupID, createdBy string) (domain.Objective, error)
	CreateObjective(ctx context.Context, objective domain.Objective) (domain.Objective, error)
	CreateEvent(ctx context.Context, event domain.GroupEvent) (domain.GroupEvent, error)
	CreateIdea(ctx context.Context, idea domain.Idea) (domain.Idea, error)
	GetObjectivesByGroup(ctx context.Context, groupID string) ([]domain.Objective, error)
	GetTasksByObjective(ctx context.Context, objectiveID string) ([]domain.Task, error)
	GetGroupMembers(ctx context.Context, groupID string) ([]domain.GroupMember, error)
	UpdateTaskAssignee(ctx context.Context, taskID, userID string, status domain.TaskStatus) (domain.Task, error)
}

type DomainEvents interface {
	Publish(ctx context.Context, key string, payload any) error
}

// ActionExecutor orchestrates extractor + store to perform the side
// effect behind a detected chat command and produce a human-readable
// confirmation. Store failures never escape: they are logged and turned
// into a failed ActionResult so the message pipeline keeps going.
type ActionExecutor struct {
	store     actionStore
	extractor *ActionExtractor
	events    DomainEvents
}

func NewActionExecutor(store actionStore, extractor *ActionExtractor, events DomainEvents) *ActionExecutor {
	return &ActionExecutor{store: store, extractor: extractor, events: events}
}

func (e *ActionExecutor) Execute(ctx context.Context, kind domain.ActionKind, rawText, actorID, groupID string) domain.ActionResult {
	switch kind {
	case domain.ActionCreateTask:
		return e.createTask(ctx, rawText, actorID, groupID)
	case domain.ActionCreateObjective:
		return e.createObjective(ctx, rawText, actorID, groupID)
	case domain.ActionCreateEvent:
		return e.createEvent(ctx, rawText, actorID, groupID)
	case domain.ActionCreateIdea:
		return e.createIdea(ctx, rawText, actorID, groupID)
	case domain.ActionQueryTasks:
		return e.queryTasks(ctx, groupID)
	case domain.ActionQueryGroupInfo:
		return e.queryGroupInfo(ctx, groupID)
	case domain.ActionListFreeTasks:
		return e.listFreeTasks(ctx, groupID)
	case domain.ActionTakeTask:
		return e.takeTask(ctx, rawText, actorID, groupID)
	default:
		return domain.ActionResult{Success: false, Message: "acción no soportada"}
	}
}

func (e *ActionExecutor) createTask(ctx context.Context, rawText, actorID, groupID string) domain.ActionResult {
	params := e.extractor.Extract(domain.ActionCreateTask, rawText)

	objective, err := e.store.FindOrCreateGeneralObjective(ctx, groupID, actorID)
	if err != nil {
		return e.storeFailure("createTask", groupID, err)
	}

	task, err := e.store.CreateTask(ctx, domain.Task{
		ObjectiveID: objective.ID,
		Title:       params.Title,
		Description: params.Description,
		AssignedTo:  params.AssignedTo,
		Priority:    params.Priority,
		Status:      domain.TaskStatusPending,
		CreatedBy:   actorID,
		Deadline:    params.Deadline,
	})
	if err != nil {
		return e.storeFailure("createTask", groupID, err)
	}
	e.publish(ctx, "task.created", task)

	msg := fmt.Sprintf("✅ Tarea creada: %q (prioridad %s)", task.Title, priorityLabel(task.Priority))
	if task.Deadline != nil {
		msg += fmt.Sprintf(", fecha límite %s", task.Deadline.Format("02/01/2006"))
	}
	switch {
	case task.AssignedTo == domain.AssignedToAll:
		msg += ", asignada a todos"
	case task.AssignedTo != "":
		msg += fmt.Sprintf(", asignada a @%s", task.AssignedTo)
	}
	return domain.ActionResult{Success: true, Message: msg, Data: task}
}

func (e *ActionExecutor) createObjective(ctx context.Context, rawText, actorID, groupID string) domain.ActionResult {
	params := e.extractor.Extract(domain.ActionCreateObjective, rawText)

	objective, err := e.store.CreateObjective(ctx, domain.Objective{
		GroupID:     groupID,
		Title:       params.Title,
		Description: params.Description,
		CreatedBy:   actorID,
		Deadline:    params.Deadline,
	})
	if err != nil {
		return e.storeFailure("createObjective", groupID, err)
	}
	e.publish(ctx, "objective.created", objective)

	msg := fmt.Sprintf("🎯 Objetivo creado: %q", objective.Title)
	if objective.Deadline != nil {
		msg += fmt.Sprintf(", fecha límite %s", objective.Deadline.Format("02/01/2006"))
	}
	return domain.ActionResult{Success: true, Message: msg, Data: objective}
}

func (e *ActionExecutor) createEvent(ctx context.Context, rawText, actorID, groupID string) domain.ActionResult {
	params := e.extractor.Extract(domain.ActionCreateEvent, rawText)

	// An event without a date is rejected, never defaulted.
	if params.EventDate == nil {
		return domain.ActionResult{
			Success: false,
			Message: "No pude identificar la fecha del evento. Indica cuándo será, por ejemplo: \"mañana\" o \"el 25 de diciembre\".",
		}
	}

	event, err := e.store.CreateEvent(ctx, domain.GroupEvent{
		GroupID:     groupID,
		CreatedBy:   actorID,
		Title:       params.Title,
		Description: params.Description,
		Date:        *params.EventDate,
		EventTime:   params.EventTime,
		EventType:   params.EventType,
		Priority:    params.Priority,
	})
	if err != nil {
		return e.storeFailure("createEvent", groupID, err)
	}
	e.publish(ctx, "event.created", event)

	msg := fmt.Sprintf("📅 Evento creado: %q para el %s", event.Title, event.Date.Format("02/01/2006"))
	if event.EventTime != "" {
		msg += fmt.Sprintf(" a las %s", event.EventTime)
	}
	return domain.ActionResult{Success: true, Message: msg, Data: event}
}

func (e *ActionExecutor) createIdea(ctx context.Context, rawText, actorID, groupID string) domain.ActionResult {
	params := e.extractor.Extract(domain.ActionCreateIdea, rawText)

	idea, err := e.store.CreateIdea(ctx, domain.Idea{
		GroupID:     groupID,
		CreatedBy:   actorID,
		Title:       params.Title,
		Description: params.Description,
		Category:    params.Category,
		Priority:    params.Priority,
	})
	if err != nil {
		return e.storeFailure("createIdea", groupID, err)
	}
	e.publish(ctx, "idea.created", idea)

	msg := fmt.Sprintf("💡 Idea registrada: %q (categoría %s)", idea.Title, idea.Category)
	return domain.ActionResult{Success: true, Message: msg, Data: idea}
}

func (e *ActionExecutor) queryTasks(ctx context.Context, groupID string) domain.ActionResult {
	tasks, err := e.groupTasks(ctx, groupID)
	if err != nil {
		return e.storeFailure("queryTasks", groupID, err)
	}
	if len(tasks) == 0 {
		return domain.ActionResult{Success: true, Message: "El grupo no tiene tareas todavía."}
	}

	var pending, inProgress, done int
	for _, task := range tasks {
		switch task.Status {
		case domain.TaskStatusDone:
			done++
		case domain.TaskStatusInProgress:
			inProgress++
		default:
			pending++
		}
	}
	msg := fmt.Sprintf(
		"📋 Resumen de tareas: %d en total — %d pendientes, %d en progreso, %d completadas.",
		len(tasks), pending, inProgress, done,
	)
	return domain.ActionResult{Success: true, Message: msg, Data: tasks}
}

func (e *ActionExecutor) queryGroupInfo(ctx context.Context, groupID string) domain.ActionResult {
	members, err := e.store.GetGroupMembers(ctx, groupID)
	if err != nil {
		return e.storeFailure("queryGroupInfo", groupID, err)
	}
	objectives, err := e.store.GetObjectivesByGroup(ctx, groupID)
	if err != nil {
		return e.storeFailure("queryGroupInfo", groupID, err)
	}
	tasks, err := e.groupTasks(ctx, groupID)
	if err != nil {
		return e.storeFailure("queryGroupInfo", groupID, err)
	}

	names := make([]string, 0, len(members))
	for _, member := range members {
		if member.User.Name != "" {
			names = append(names, member.User.Name)
		} else {
			names = append(names, member.User.Username)
		}
	}
	msg := fmt.Sprintf(
		"ℹ️ El grupo tiene %d miembros (%s), %d objetivos y %d tareas.",
		len(members), strings.Join(names, ", "), len(objectives), len(tasks),
	)
	return domain.ActionResult{Success: true, Message: msg}
}

func (e *ActionExecutor) listFreeTasks(ctx context.Context, groupID string) domain.ActionResult {
	free, err := e.freeTasks(ctx, groupID)
	if err != nil {
		return e.storeFailure("listFreeTasks", groupID, err)
	}
	if len(free) == 0 {
		return domain.ActionResult{Success: true, Message: "No hay tareas libres en este momento."}
	}

	lines := make([]string, 0, len(free)+1)
	lines = append(lines, fmt.Sprintf("🆓 Tareas libres (%d):", len(free)))
	for _, task := range free {
		lines = append(lines, fmt.Sprintf("• %s (prioridad %s)", task.Title, priorityLabel(task.Priority)))
	}
	return domain.ActionResult{Success: true, Message: strings.Join(lines, "\n"), Data: free}
}

func (e *ActionExecutor) takeTask(ctx context.Context, rawText, actorID, groupID string) domain.ActionResult {
	params := e.extractor.Extract(domain.ActionTakeTask, rawText)

	free, err := e.freeTasks(ctx, groupID)
	if err != nil {
		return e.storeFailure("takeTask", groupID, err)
	}

	var picked *domain.Task
	if params.TaskQuery != "" {
		needle := strings.ToLower(params.TaskQuery)
		for i := range free {
			if strings.Contains(strings.ToLower(free[i].Title), needle) {
				picked = &free[i]
				break
			}
		}
	} else if len(free) > 0 {
		picked = &free[0]
	}
	if picked == nil {
		return domain.ActionResult{Success: false, Message: "No encontré ninguna tarea libre que coincida."}
	}

	task, err := e.store.UpdateTaskAssignee(ctx, picked.ID, actorID, domain.TaskStatusInProgress)
	if err != nil {
		return e.storeFailure("takeTask", groupID, err)
	}
	e.publish(ctx, "task.assigned", task)

	msg := fmt.Sprintf("💪 Te has asignado la tarea %q (prioridad %s).", task.Title, priorityLabel(task.Priority))
	return domain.ActionResult{Success: true, Message: msg, Data: task}
}

// groupTasks flattens every objective's tasks for the group.
func (e *ActionExecutor) groupTasks(ctx context.Context, groupID string) ([]domain.Task, error) {
	objectives, err := e.store.GetObjectivesByGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	var tasks []domain.Task
	for _, objective := range objectives {
		items, err := e.store.GetTasksByObjective(ctx, objective.ID)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, items...)
	}
	return tasks, nil
}

// freeTasks returns unassigned pending tasks, highest priority first.
func (e *ActionExecutor) freeTasks(ctx context.Context, groupID string) ([]domain.Task, error) {
	tasks, err := e.groupTasks(ctx, groupID)
	if err != nil {
		return nil, err
	}
	free := make([]domain.Task, 0, len(tasks))
	for _, task := range tasks {
		if task.AssignedTo == "" && task.Status == domain.TaskStatusPending {
			free = append(free, task)
		}
	}
	sort.SliceStable(free, func(i, j int) bool {
		return domain.PriorityRank(free[i].Priority) > domain.PriorityRank(free[j].Priority)
	})
	return free, nil
}

func (e *ActionExecutor) publish(ctx context.Context, key string, payload any) {
	if e.events == nil {
		return
	}
	if err := e.events.Publish(ctx, key, payload); err != nil {
		commonlog.Warnf("event=action_executor action=publish status=failed key=%s error=%v", key, err)
	}
}

func (e *ActionExecutor) storeFailure(action, groupID string, err error) domain.ActionResult {
	commonlog.Errorf("event=action_executor action=%s status=failed group_id=%s error=%v", action, groupID, err)
	return domain.ActionResult{
		Success: false,
		Message: fmt.Sprintf("No se pudo completar la acción: %v", err),
	}
}

func priorityLabel(p domain.TaskPriority) string {
	switch p {
	case domain.PriorityCritical:
		return "crítica"
	case domain.PriorityHigh:
		return "alta"
	case domain.PriorityLow:
		return "baja"
	default:
		return "media"
	}
}
