package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"team_server/server/realtime/domain"
)

// DomainRepository backs the realtime services with postgres. It is the
// single concrete store behind the narrow interfaces each service
// declares for itself.
type DomainRepository struct {
	pool *pgxpool.Pool
}

func NewDomainRepository(pool *pgxpool.Pool) *DomainRepository {
	return &DomainRepository{pool: pool}
}

func (r *DomainRepository) GetUserByID(ctx context.Context, userID string) (domain.User, error) {
	var user domain.User
	err := r.pool.QueryRow(ctx, `
		SELECT user_id, username, name, role
		FROM users
		WHERE user_id = $1
	`, userID).Scan(&user.ID, &user.Username, &user.Name, &user.Role)
	if err != nil {
		return domain.User{}, err
	}
	return user, nil
}

func (r *DomainRepository) GetGroupMembers(ctx context.Context, groupID string) ([]domain.GroupMember, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT gm.group_id, gm.user_id, gm.role, u.username, u.name, u.role
		FROM group_members gm
		JOIN users u ON u.user_id = gm.user_id
		WHERE gm.group_id = $1
		ORDER BY u.name
	`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members := make([]domain.GroupMember, 0)
	for rows.Next() {
		var member domain.GroupMember
		if err := rows.Scan(&member.GroupID, &member.UserID, &member.Role, &member.User.Username, &member.User.Name, &member.User.Role); err != nil {
			return nil, err
		}
		member.User.ID = member.UserID
		members = append(members, member)
	}
	return members, rows.Err()
}

func (r *DomainRepository) CreateMessage(ctx context.Context, message domain.ChatMessage) (domain.ChatMessage, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO messages(sender_id, group_id, content, attachments)
		VALUES($1, $2, $3, $4)
		RETURNING message_id, created_at
	`, message.SenderID, message.GroupID, message.Content, message.Attachments).
		Scan(&message.ID, &message.CreatedAt)
	if err != nil {
		return domain.ChatMessage{}, err
	}
	return message, nil
}

func (r *DomainRepository) CreateTask(ctx context.Context, task domain.Task) (domain.Task, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO tasks(objective_id, title, description, assigned_to, priority, status, created_by, deadline)
		VALUES($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8)
		RETURNING task_id, created_at
	`, task.ObjectiveID, task.Title, task.Description, task.AssignedTo, task.Priority, task.Status, task.CreatedBy, task.Deadline).
		Scan(&task.ID, &task.CreatedAt)
	if err != nil {
		return domain.Task{}, err
	}
	return task, nil
}

// FindOrCreateGeneralObjective is safe against concurrent callers: the
// insert is an upsert keyed on (group_id, title), so two racing
// messages converge on the same row instead of creating duplicates.
func (r *DomainRepository) FindOrCreateGeneralObjective(ctx context.Context, groupID, createdBy string) (domain.Objective, error) {
	const title = "General Tasks"
	_, err := r.pool.Exec(ctx, `
		INSERT INTO objectives(group_id, title, description, created_by)
		VALUES($1, $2, 'Objetivo general para tareas sueltas', $3)
		ON CONFLICT (group_id, title) DO NOTHING
	`, groupID, title, createdBy)
	if err != nil {
		return domain.Objective{}, err
	}

	var objective domain.Objective
	err = r.pool.QueryRow(ctx, `
		SELECT objective_id, group_id, title, description, created_by, deadline, created_at
		FROM objectives
		WHERE group_id = $1 AND title = $2
	`, groupID, title).
		Scan(&objective.ID, &objective.GroupID, &objective.Title, &objective.Description, &objective.CreatedBy, &objective.Deadline, &objective.CreatedAt)
	if err != nil {
		return domain.Objective{}, err
	}
	return objective, nil
}

func (r *DomainRepository) CreateObjective(ctx context.Context, objective domain.Objective) (domain.Objective, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO objectives(group_id, title, description, created_by, deadline)
		VALUES($1, $2, $3, $4, $5)
		RETURNING objective_id, created_at
	`, objective.GroupID, objective.Title, objective.Description, objective.CreatedBy, objective.Deadline).
		Scan(&objective.ID, &objective.CreatedAt)
	if err != nil {
		return domain.Objective{}, err
	}
	return objective, nil
}

func (r *DomainRepository) CreateEvent(ctx context.Context, event domain.GroupEvent) (domain.GroupEvent, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO group_events(group_id, objective_id, created_by, title, description, event_date, event_time, event_type, priority)
		VALUES($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9)
		RETURNING event_id, created_at
	`, event.GroupID, event.ObjectiveID, event.CreatedBy, event.Title, event.Description, event.Date, event.EventTime, event.EventType, event.Priority).
		Scan(&event.ID, &event.CreatedAt)
	if err != nil {
		return domain.GroupEvent{}, err
	}
	return event, nil
}

func (r *DomainRepository) CreateIdea(ctx context.Context, idea domain.Idea) (domain.Idea, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO ideas(group_id, created_by, title, description, category, priority)
		VALUES($1, $2, $3, $4, $5, $6)
		RETURNING idea_id, created_at
	`, idea.GroupID, idea.CreatedBy, idea.Title, idea.Description, idea.Category, idea.Priority).
		Scan(&idea.ID, &idea.CreatedAt)
	if err != nil {
		return domain.Idea{}, err
	}
	return idea, nil
}

func (r *DomainRepository) GetObjectivesByGroup(ctx context.Context, groupID string) ([]domain.Objective, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT objective_id, group_id, title, description, created_by, deadline, created_at
		FROM objectives
		WHERE group_id = $1
		ORDER BY created_at
	`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	objectives := make([]domain.Objective, 0)
	for rows.Next() {
		var objective domain.Objective
		if err := rows.Scan(&objective.ID, &objective.GroupID, &objective.Title, &objective.Description, &objective.CreatedBy, &objective.Deadline, &objective.CreatedAt); err != nil {
			return nil, err
		}
		objectives = append(objectives, objective)
	}
	return objectives, rows.Err()
}

func (r *DomainRepository) GetTasksByObjective(ctx context.Context, objectiveID string) ([]domain.Task, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT task_id, objective_id, title, description, COALESCE(assigned_to, ''), priority, status, created_by, deadline, created_at
		FROM tasks
		WHERE objective_id = $1
		ORDER BY created_at
	`, objectiveID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := make([]domain.Task, 0)
	for rows.Next() {
		var task domain.Task
		if err := rows.Scan(&task.ID, &task.ObjectiveID, &task.Title, &task.Description, &task.AssignedTo, &task.Priority, &task.Status, &task.CreatedBy, &task.Deadline, &task.CreatedAt); err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func (r *DomainRepository) UpdateTaskAssignee(ctx context.Context, taskID, userID string, status domain.TaskStatus) (domain.Task, error) {
	var task domain.Task
	err := r.pool.QueryRow(ctx, `
		UPDATE tasks
		SET assigned_to = $2, status = $3, updated_at = NOW()
		WHERE task_id = $1
		RETURNING task_id, objective_id, title, description, COALESCE(assigned_to, ''), priority, status, created_by, deadline, created_at
	`, taskID, userID, status).
		Scan(&task.ID, &task.ObjectiveID, &task.Title, &task.Description, &task.AssignedTo, &task.Priority, &task.Status, &task.CreatedBy, &task.Deadline, &task.CreatedAt)
	if err != nil {
		return domain.Task{}, err
	}
	return task, nil
}

func (r *DomainRepository) CreateCall(ctx context.Context, call domain.Call) (domain.Call, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO calls(caller_id, receiver_id, group_id, call_type, status)
		VALUES($1, $2, $3, $4, $5)
		RETURNING call_id, created_at
	`, call.CallerID, call.ReceiverID, call.GroupID, call.CallType, call.Status).
		Scan(&call.ID, &call.CreatedAt)
	if err != nil {
		return domain.Call{}, err
	}
	return call, nil
}

func (r *DomainRepository) GetCallByID(ctx context.Context, callID string) (domain.Call, error) {
	var call domain.Call
	err := r.pool.QueryRow(ctx, `
		SELECT call_id, caller_id, receiver_id, group_id, call_type, status, created_at, ended_at
		FROM calls
		WHERE call_id = $1
	`, callID).
		Scan(&call.ID, &call.CallerID, &call.ReceiverID, &call.GroupID, &call.CallType, &call.Status, &call.CreatedAt, &call.EndedAt)
	if err != nil {
		return domain.Call{}, err
	}
	return call, nil
}

func (r *DomainRepository) UpdateCallStatus(ctx context.Context, callID string, status domain.CallStatus, endedAt *time.Time) (domain.Call, error) {
	var call domain.Call
	err := r.pool.QueryRow(ctx, `
		UPDATE calls
		SET status = $2, ended_at = COALESCE($3, ended_at), updated_at = NOW()
		WHERE call_id = $1
		RETURNING call_id, caller_id, receiver_id, group_id, call_type, status, created_at, ended_at
	`, callID, status, endedAt).
		Scan(&call.ID, &call.CallerID, &call.ReceiverID, &call.GroupID, &call.CallType, &call.Status, &call.CreatedAt, &call.EndedAt)
	if err != nil {
		return domain.Call{}, err
	}
	return call, nil
}

func (r *DomainRepository) GetActiveGroupCall(ctx context.Context, groupID string) (*domain.Call, error) {
	var call domain.Call
	err := r.pool.QueryRow(ctx, `
		SELECT call_id, caller_id, receiver_id, group_id, call_type, status, created_at, ended_at
		FROM calls
		WHERE group_id = $1 AND status NOT IN ('ended', 'rejected', 'cancelled')
		ORDER BY created_at DESC
		LIMIT 1
	`, groupID).
		Scan(&call.ID, &call.CallerID, &call.ReceiverID, &call.GroupID, &call.CallType, &call.Status, &call.CreatedAt, &call.EndedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &call, nil
}

func (r *DomainRepository) GetActiveCallForUser(ctx context.Context, userID string) (*domain.Call, error) {
	var call domain.Call
	err := r.pool.QueryRow(ctx, `
		SELECT c.call_id, c.caller_id, c.receiver_id, c.group_id, c.call_type, c.status, c.created_at, c.ended_at
		FROM calls c
		LEFT JOIN call_participants cp
		  ON cp.call_id = c.call_id AND cp.user_id = $1 AND cp.left_at IS NULL
		WHERE c.status NOT IN ('ended', 'rejected', 'cancelled')
		  AND (c.caller_id = $1 OR c.receiver_id = $1 OR cp.user_id IS NOT NULL)
		ORDER BY c.created_at DESC
		LIMIT 1
	`, userID).
		Scan(&call.ID, &call.CallerID, &call.ReceiverID, &call.GroupID, &call.CallType, &call.Status, &call.CreatedAt, &call.EndedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &call, nil
}

func (r *DomainRepository) ListActiveCalls(ctx context.Context) ([]domain.Call, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT call_id, caller_id, receiver_id, group_id, call_type, status, created_at, ended_at
		FROM calls
		WHERE status NOT IN ('ended', 'rejected', 'cancelled')
		ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	calls := make([]domain.Call, 0)
	for rows.Next() {
		var call domain.Call
		if err := rows.Scan(&call.ID, &call.CallerID, &call.ReceiverID, &call.GroupID, &call.CallType, &call.Status, &call.CreatedAt, &call.EndedAt); err != nil {
			return nil, err
		}
		calls = append(calls, call)
	}
	return calls, rows.Err()
}

// AddParticipant revives a previously-left row instead of inserting a
// duplicate, so rejoin after leave keeps one row per (call, user).
func (r *DomainRepository) AddParticipant(ctx context.Context, callID, userID string) (domain.CallParticipant, error) {
	participant := domain.CallParticipant{CallID: callID, UserID: userID}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO call_participants(call_id, user_id)
		VALUES($1, $2)
		ON CONFLICT (call_id, user_id)
		DO UPDATE SET joined_at = NOW(), left_at = NULL
		RETURNING joined_at
	`, callID, userID).Scan(&participant.JoinedAt)
	if err != nil {
		return domain.CallParticipant{}, err
	}
	return participant, nil
}

func (r *DomainRepository) RemoveParticipant(ctx context.Context, callID, userID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE call_participants
		SET left_at = NOW()
		WHERE call_id = $1 AND user_id = $2 AND left_at IS NULL
	`, callID, userID)
	return err
}

func (r *DomainRepository) GetParticipants(ctx context.Context, callID string) ([]domain.CallParticipant, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT call_id, user_id, joined_at, left_at
		FROM call_participants
		WHERE call_id = $1
		ORDER BY joined_at
	`, callID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	participants := make([]domain.CallParticipant, 0)
	for rows.Next() {
		var participant domain.CallParticipant
		if err := rows.Scan(&participant.CallID, &participant.UserID, &participant.JoinedAt, &participant.LeftAt); err != nil {
			return nil, err
		}
		participants = append(participants, participant)
	}
	return participants, rows.Err()
}
