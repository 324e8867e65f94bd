package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"team_server/server/realtime/domain"
)

type fakeActionStore struct {
	objectives []domain.Objective
	tasks      []domain.Task
	events     []domain.GroupEvent
	ideas      []domain.Idea
	members    []domain.GroupMember
	failWith   error
	nextID     int
}

func (s *fakeActionStore) id(prefix string) string {
	s.nextID++
	return fmt.Sprintf("%s-%d", prefix, s.nextID)
}

func (s *fakeActionStore) CreateTask(_ context.Context, task domain.Task) (domain.Task, error) {
	if s.failWith != nil {
		return domain.Task{}, s.failWith
	}
	task.ID = s.id("task")
	task.CreatedAt = time.Now()
	s.tasks = append(s.tasks, task)
	return task, nil
}

func (s *fakeActionStore) FindOrCreateGeneralObjective(_ context.Context, groupID, createdBy string) (domain.Objective, error) {
	if s.failWith != nil {
		return domain.Objective{}, s.failWith
	}
	for _, objective := range s.objectives {
		if objective.GroupID == groupID && objective.Title == "General Tasks" {
			return objective, nil
		}
	}
	objective := domain.Objective{ID: s.id("objective"), GroupID: groupID, Title: "General Tasks", CreatedBy: createdBy}
	s.objectives = append(s.objectives, objective)
	return objective, nil
}

func (s *fakeActionStore) CreateObjective(_ context.Context, objective domain.Objective) (domain.Objective, error) {
	if s.failWith != nil {
		return domain.Objective{}, s.failWith
	}
	objective.ID = s.id("objective")
	s.objectives = append(s.objectives, objective)
	return objective, nil
}

func (s *fakeActionStore) CreateEvent(_ context.Context, event domain.GroupEvent) (domain.GroupEvent, error) {
	if s.failWith != nil {
		return domain.GroupEvent{}, s.failWith
	}
	event.ID = s.id("event")
	s.events = append(s.events, event)
	return event, nil
}

func (s *fakeActionStore) CreateIdea(_ context.Context, idea domain.Idea) (domain.Idea, error) {
	if s.failWith != nil {
		return domain.Idea{}, s.failWith
	}
	idea.ID = s.id("idea")
	s.ideas = append(s.ideas, idea)
	return idea, nil
}

func (s *fakeActionStore) GetObjectivesByGroup(_ context.Context, groupID string) ([]domain.Objective, error) {
	if s.failWith != nil {
		return nil, s.failWith
	}
	var out []domain.Objective
	for _, objective := range s.objectives {
		if objective.GroupID == groupID {
			out = append(out, objective)
		}
	}
	return out, nil
}

func (s *fakeActionStore) GetTasksByObjective(_ context.Context, objectiveID string) ([]domain.Task, error) {
	if s.failWith != nil {
		return nil, s.failWith
	}
	var out []domain.Task
	for _, task := range s.tasks {
		if task.ObjectiveID == objectiveID {
			out = append(out, task)
		}
	}
	return out, nil
}

func (s *fakeActionStore) GetGroupMembers(_ context.Context, groupID string) ([]domain.GroupMember, error) {
	if s.failWith != nil {
		return nil, s.failWith
	}
	var out []domain.GroupMember
	for _, member := range s.members {
		if member.GroupID == groupID {
			out = append(out, member)
		}
	}
	return out, nil
}

func (s *fakeActionStore) UpdateTaskAssignee(_ context.Context, taskID, userID string, status domain.TaskStatus) (domain.Task, error) {
	if s.failWith != nil {
		return domain.Task{}, s.failWith
	}
	for i := range s.tasks {
		if s.tasks[i].ID == taskID {
			s.tasks[i].AssignedTo = userID
			s.tasks[i].Status = status
			return s.tasks[i], nil
		}
	}
	return domain.Task{}, fmt.Errorf("task %s not found", taskID)
}

type fakeEvents struct {
	keys []string
}

func (f *fakeEvents) Publish(_ context.Context, key string, _ any) error {
	f.keys = append(f.keys, key)
	return nil
}

func newTestExecutor(store *fakeActionStore, events *fakeEvents) *ActionExecutor {
	return NewActionExecutor(store, NewActionExtractor(fixedParser()), events)
}

func TestExecuteCreateTask(t *testing.T) {
	store := &fakeActionStore{}
	events := &fakeEvents{}
	executor := newTestExecutor(store, events)

	result := executor.Execute(context.Background(), domain.ActionCreateTask,
		"crea una tarea urgente: revisar el informe para mañana asígnala a @maria", "user-1", "group-1")

	require.True(t, result.Success)
	assert.Contains(t, result.Message, "✅ Tarea creada")
	assert.Contains(t, result.Message, "crítica")
	assert.Contains(t, result.Message, "@maria")

	require.Len(t, store.tasks, 1)
	task := store.tasks[0]
	assert.Equal(t, "revisar el informe", task.Title)
	assert.Equal(t, domain.PriorityCritical, task.Priority)
	assert.Equal(t, "maria", task.AssignedTo)
	assert.Equal(t, domain.TaskStatusPending, task.Status)
	assert.Equal(t, "user-1", task.CreatedBy)
	require.NotNil(t, task.Deadline)
	assert.Equal(t, date(2026, time.January, 6), *task.Deadline)

	require.Len(t, store.objectives, 1)
	assert.Equal(t, "General Tasks", store.objectives[0].Title)
	assert.Equal(t, store.objectives[0].ID, task.ObjectiveID)

	assert.Contains(t, events.keys, "task.created")
}

func TestExecuteCreateTaskReusesGeneralObjective(t *testing.T) {
	store := &fakeActionStore{}
	executor := newTestExecutor(store, &fakeEvents{})

	for _, text := range []string{"tarea: primera", "tarea: segunda"} {
		result := executor.Execute(context.Background(), domain.ActionCreateTask, text, "user-1", "group-1")
		require.True(t, result.Success)
	}

	assert.Len(t, store.objectives, 1)
	assert.Len(t, store.tasks, 2)
}

func TestExecuteCreateEvent(t *testing.T) {
	t.Run("without a date fails and stores nothing", func(t *testing.T) {
		store := &fakeActionStore{}
		executor := newTestExecutor(store, &fakeEvents{})

		result := executor.Execute(context.Background(), domain.ActionCreateEvent,
			"agenda una reunión de seguimiento", "user-1", "group-1")

		assert.False(t, result.Success)
		assert.Contains(t, result.Message, "No pude identificar la fecha")
		assert.Empty(t, store.events)
	})

	t.Run("with date and time", func(t *testing.T) {
		store := &fakeActionStore{}
		events := &fakeEvents{}
		executor := newTestExecutor(store, events)

		result := executor.Execute(context.Background(), domain.ActionCreateEvent,
			"agenda una reunión de seguimiento para el viernes a las 10", "user-1", "group-1")

		require.True(t, result.Success)
		assert.Contains(t, result.Message, "📅 Evento creado")
		require.Len(t, store.events, 1)
		assert.Equal(t, date(2026, time.January, 9), store.events[0].Date)
		assert.Equal(t, "10:00", store.events[0].EventTime)
		assert.Equal(t, "meeting", store.events[0].EventType)
		assert.Contains(t, events.keys, "event.created")
	})
}

func TestExecuteCreateIdea(t *testing.T) {
	store := &fakeActionStore{}
	executor := newTestExecutor(store, &fakeEvents{})

	result := executor.Execute(context.Background(), domain.ActionCreateIdea,
		"tengo una idea: rediseñar la página de ventas", "user-1", "group-1")

	require.True(t, result.Success)
	require.Len(t, store.ideas, 1)
	assert.Equal(t, "rediseñar la página de ventas", store.ideas[0].Title)
	assert.Equal(t, "design", store.ideas[0].Category)
}

func TestExecuteQueryTasks(t *testing.T) {
	store := &fakeActionStore{
		objectives: []domain.Objective{{ID: "obj-1", GroupID: "group-1", Title: "General Tasks"}},
		tasks: []domain.Task{
			{ID: "t1", ObjectiveID: "obj-1", Status: domain.TaskStatusPending},
			{ID: "t2", ObjectiveID: "obj-1", Status: domain.TaskStatusInProgress},
			{ID: "t3", ObjectiveID: "obj-1", Status: domain.TaskStatusDone},
			{ID: "t4", ObjectiveID: "obj-1", Status: domain.TaskStatusPending},
		},
	}
	executor := newTestExecutor(store, &fakeEvents{})

	result := executor.Execute(context.Background(), domain.ActionQueryTasks, "¿cómo van las tareas?", "user-1", "group-1")

	require.True(t, result.Success)
	assert.Contains(t, result.Message, "4 en total")
	assert.Contains(t, result.Message, "2 pendientes")
	assert.Contains(t, result.Message, "1 en progreso")
	assert.Contains(t, result.Message, "1 completadas")
}

func TestExecuteListFreeTasksOrdersByPriority(t *testing.T) {
	store := &fakeActionStore{
		objectives: []domain.Objective{{ID: "obj-1", GroupID: "group-1", Title: "General Tasks"}},
		tasks: []domain.Task{
			{ID: "t1", ObjectiveID: "obj-1", Title: "baja", Status: domain.TaskStatusPending, Priority: domain.PriorityLow},
			{ID: "t2", ObjectiveID: "obj-1", Title: "urgente", Status: domain.TaskStatusPending, Priority: domain.PriorityCritical},
			{ID: "t3", ObjectiveID: "obj-1", Title: "asignada", Status: domain.TaskStatusPending, Priority: domain.PriorityHigh, AssignedTo: "alguien"},
			{ID: "t4", ObjectiveID: "obj-1", Title: "hecha", Status: domain.TaskStatusDone, Priority: domain.PriorityHigh},
		},
	}
	executor := newTestExecutor(store, &fakeEvents{})

	result := executor.Execute(context.Background(), domain.ActionListFreeTasks, "tareas libres", "user-1", "group-1")

	require.True(t, result.Success)
	free, ok := result.Data.([]domain.Task)
	require.True(t, ok)
	require.Len(t, free, 2)
	assert.Equal(t, "t2", free[0].ID)
	assert.Equal(t, "t1", free[1].ID)
}

func TestExecuteTakeTask(t *testing.T) {
	t.Run("picks the matching fragment", func(t *testing.T) {
		store := &fakeActionStore{
			objectives: []domain.Objective{{ID: "obj-1", GroupID: "group-1", Title: "General Tasks"}},
			tasks: []domain.Task{
				{ID: "t1", ObjectiveID: "obj-1", Title: "preparar la demo", Status: domain.TaskStatusPending, Priority: domain.PriorityCritical},
				{ID: "t2", ObjectiveID: "obj-1", Title: "revisar el informe", Status: domain.TaskStatusPending, Priority: domain.PriorityLow},
			},
		}
		events := &fakeEvents{}
		executor := newTestExecutor(store, events)

		result := executor.Execute(context.Background(), domain.ActionTakeTask,
			"tomo la tarea de revisar el informe", "user-7", "group-1")

		require.True(t, result.Success)
		assert.Contains(t, result.Message, "revisar el informe")
		assert.Equal(t, "user-7", store.tasks[1].AssignedTo)
		assert.Equal(t, domain.TaskStatusInProgress, store.tasks[1].Status)
		assert.Contains(t, events.keys, "task.assigned")
	})

	t.Run("without fragment takes the highest priority free task", func(t *testing.T) {
		store := &fakeActionStore{
			objectives: []domain.Objective{{ID: "obj-1", GroupID: "group-1", Title: "General Tasks"}},
			tasks: []domain.Task{
				{ID: "t1", ObjectiveID: "obj-1", Title: "algo menor", Status: domain.TaskStatusPending, Priority: domain.PriorityLow},
				{ID: "t2", ObjectiveID: "obj-1", Title: "incidente", Status: domain.TaskStatusPending, Priority: domain.PriorityCritical},
			},
		}
		executor := newTestExecutor(store, &fakeEvents{})

		result := executor.Execute(context.Background(), domain.ActionTakeTask, "me asigno una", "user-7", "group-1")

		require.True(t, result.Success)
		assert.Equal(t, "user-7", store.tasks[1].AssignedTo)
	})

	t.Run("nothing free", func(t *testing.T) {
		store := &fakeActionStore{}
		executor := newTestExecutor(store, &fakeEvents{})

		result := executor.Execute(context.Background(), domain.ActionTakeTask, "me encargo de la tarea", "user-7", "group-1")

		assert.False(t, result.Success)
		assert.Contains(t, result.Message, "No encontré")
	})
}

func TestExecuteQueryGroupInfo(t *testing.T) {
	store := &fakeActionStore{
		members: []domain.GroupMember{
			{GroupID: "group-1", UserID: "u1", User: domain.User{ID: "u1", Name: "Ana"}},
			{GroupID: "group-1", UserID: "u2", User: domain.User{ID: "u2", Username: "bruno"}},
		},
		objectives: []domain.Objective{{ID: "obj-1", GroupID: "group-1", Title: "General Tasks"}},
		tasks:      []domain.Task{{ID: "t1", ObjectiveID: "obj-1", Status: domain.TaskStatusPending}},
	}
	executor := newTestExecutor(store, &fakeEvents{})

	result := executor.Execute(context.Background(), domain.ActionQueryGroupInfo, "info del grupo", "user-1", "group-1")

	require.True(t, result.Success)
	assert.Contains(t, result.Message, "2 miembros")
	assert.Contains(t, result.Message, "Ana")
	assert.Contains(t, result.Message, "bruno")
	assert.Contains(t, result.Message, "1 objetivos")
	assert.Contains(t, result.Message, "1 tareas")
}

func TestExecuteStoreFailure(t *testing.T) {
	store := &fakeActionStore{failWith: fmt.Errorf("db down")}
	executor := newTestExecutor(store, &fakeEvents{})

	result := executor.Execute(context.Background(), domain.ActionCreateTask, "tarea: cualquier cosa", "user-1", "group-1")

	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "No se pudo completar la acción")
}
