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

type emittedEvent struct {
	target  string
	event   string
	payload any
}

type fakeBroadcaster struct {
	toUser  []emittedEvent
	toGroup []emittedEvent
	global  []emittedEvent
}

func (f *fakeBroadcaster) EmitToUser(userID, event string, payload any) {
	f.toUser = append(f.toUser, emittedEvent{target: userID, event: event, payload: payload})
}

func (f *fakeBroadcaster) EmitToGroup(groupID, event string, payload any) {
	f.toGroup = append(f.toGroup, emittedEvent{target: groupID, event: event, payload: payload})
}

func (f *fakeBroadcaster) EmitGlobal(event string, payload any) {
	f.global = append(f.global, emittedEvent{event: event, payload: payload})
}

type fakeMessageStore struct {
	*fakeActionStore
	messages    []domain.ChatMessage
	users       map[string]domain.User
	failMessage error
}

func newFakeMessageStore() *fakeMessageStore {
	return &fakeMessageStore{
		fakeActionStore: &fakeActionStore{},
		users: map[string]domain.User{
			"user-1": {ID: "user-1", Username: "ana", Name: "Ana"},
			"system": {ID: "system", Username: "system", Name: "Asistente"},
		},
	}
}

func (s *fakeMessageStore) CreateMessage(_ context.Context, message domain.ChatMessage) (domain.ChatMessage, error) {
	if s.failMessage != nil {
		return domain.ChatMessage{}, s.failMessage
	}
	message.ID = s.id("msg")
	message.CreatedAt = time.Now()
	s.messages = append(s.messages, message)
	return message, nil
}

func (s *fakeMessageStore) GetUserByID(_ context.Context, userID string) (domain.User, error) {
	user, ok := s.users[userID]
	if !ok {
		return domain.User{}, fmt.Errorf("user %s not found", userID)
	}
	return user, nil
}

type fakeDedupe struct {
	keys map[string]bool
}

func newFakeDedupe() *fakeDedupe {
	return &fakeDedupe{keys: map[string]bool{}}
}

func (f *fakeDedupe) Claim(_ context.Context, key string, _ time.Duration) (bool, error) {
	if f.keys[key] {
		return false, nil
	}
	f.keys[key] = true
	return true, nil
}

func (f *fakeDedupe) Release(_ context.Context, key string) error {
	delete(f.keys, key)
	return nil
}

func newTestGateway(store *fakeMessageStore, broadcaster *fakeBroadcaster) *MessageGateway {
	executor := NewActionExecutor(store.fakeActionStore, NewActionExtractor(fixedParser()), nil)
	return NewMessageGateway(store, NewIntentDetector(), executor, broadcaster, nil, "system")
}

func TestHandleIncomingPlainMessage(t *testing.T) {
	store := newFakeMessageStore()
	broadcaster := &fakeBroadcaster{}
	gateway := newTestGateway(store, broadcaster)

	message, err := gateway.HandleIncoming(context.Background(), IncomingMessage{
		SenderID: "user-1",
		GroupID:  "group-1",
		Content:  "buenos días equipo",
		TempID:   "tmp-1",
	})

	require.NoError(t, err)
	assert.Equal(t, "msg-1", message.ID)
	assert.Equal(t, "tmp-1", message.TempID)
	assert.Equal(t, "Ana", message.SenderName)
	assert.Nil(t, message.ActionResult)

	require.Len(t, store.messages, 1)
	require.Len(t, broadcaster.toGroup, 1)
	assert.Equal(t, "group-1", broadcaster.toGroup[0].target)
	assert.Equal(t, EventReceiveMessage, broadcaster.toGroup[0].event)
}

func TestHandleIncomingEmptyMessage(t *testing.T) {
	gateway := newTestGateway(newFakeMessageStore(), &fakeBroadcaster{})

	_, err := gateway.HandleIncoming(context.Background(), IncomingMessage{
		SenderID: "user-1",
		GroupID:  "group-1",
		Content:  "   ",
	})

	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestHandleIncomingAttachmentsOnly(t *testing.T) {
	store := newFakeMessageStore()
	gateway := newTestGateway(store, &fakeBroadcaster{})

	_, err := gateway.HandleIncoming(context.Background(), IncomingMessage{
		SenderID:    "user-1",
		GroupID:     "group-1",
		Attachments: []string{"https://files.example/report.pdf"},
	})

	require.NoError(t, err)
	assert.Len(t, store.messages, 1)
}

func TestHandleIncomingCommandPersistsConfirmation(t *testing.T) {
	store := newFakeMessageStore()
	broadcaster := &fakeBroadcaster{}
	gateway := newTestGateway(store, broadcaster)

	message, err := gateway.HandleIncoming(context.Background(), IncomingMessage{
		SenderID: "user-1",
		GroupID:  "group-1",
		Content:  "crea una tarea urgente: revisar el reporte",
		TempID:   "tmp-9",
	})

	require.NoError(t, err)
	require.NotNil(t, message.ActionResult)
	assert.Equal(t, domain.ActionCreateTask, message.ActionResult.Kind)
	assert.True(t, message.ActionResult.Success)
	assert.Equal(t, "tmp-9", message.TempID)

	// Original plus the system confirmation.
	require.Len(t, store.messages, 2)
	assert.Equal(t, "user-1", store.messages[0].SenderID)
	assert.Equal(t, "system", store.messages[1].SenderID)
	assert.Contains(t, store.messages[1].Content, "✅ Tarea creada")

	require.Len(t, store.tasks, 1)
	assert.Equal(t, "revisar el reporte", store.tasks[0].Title)
	assert.Equal(t, domain.PriorityCritical, store.tasks[0].Priority)

	require.Len(t, broadcaster.toGroup, 2)
	assert.Equal(t, EventReceiveMessage, broadcaster.toGroup[0].event)
	assert.Equal(t, EventReceiveMessage, broadcaster.toGroup[1].event)
}

func TestHandleIncomingFailedActionStillDeliversMessage(t *testing.T) {
	store := newFakeMessageStore()
	broadcaster := &fakeBroadcaster{}
	gateway := newTestGateway(store, broadcaster)

	// Event command without any resolvable date: the action fails but
	// the chat message itself must survive.
	message, err := gateway.HandleIncoming(context.Background(), IncomingMessage{
		SenderID: "user-1",
		GroupID:  "group-1",
		Content:  "agenda una reunión de seguimiento",
	})

	require.NoError(t, err)
	require.NotNil(t, message.ActionResult)
	assert.False(t, message.ActionResult.Success)

	require.Len(t, store.messages, 1)
	assert.Empty(t, store.events)
	require.Len(t, broadcaster.toGroup, 1)
}

func TestHandleIncomingPersistFailureReportsToSender(t *testing.T) {
	store := newFakeMessageStore()
	store.failMessage = fmt.Errorf("db down")
	broadcaster := &fakeBroadcaster{}
	gateway := newTestGateway(store, broadcaster)

	_, err := gateway.HandleIncoming(context.Background(), IncomingMessage{
		SenderID: "user-1",
		GroupID:  "group-1",
		Content:  "hola",
		TempID:   "tmp-3",
	})

	require.Error(t, err)
	require.Len(t, broadcaster.toUser, 1)
	assert.Equal(t, "user-1", broadcaster.toUser[0].target)
	assert.Equal(t, EventMessageError, broadcaster.toUser[0].event)

	payload, ok := broadcaster.toUser[0].payload.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "tmp-3", payload["temp_id"])
}

func TestHandleIncomingDuplicateTempIDRejectedAndReported(t *testing.T) {
	store := newFakeMessageStore()
	broadcaster := &fakeBroadcaster{}
	gateway := newTestGateway(store, broadcaster)
	gateway.dedupe = newFakeDedupe()

	in := IncomingMessage{
		SenderID: "user-1",
		GroupID:  "group-1",
		Content:  "hola",
		TempID:   "tmp-7",
	}

	_, err := gateway.HandleIncoming(context.Background(), in)
	require.NoError(t, err)

	_, err = gateway.HandleIncoming(context.Background(), in)
	assert.ErrorIs(t, err, ErrDuplicateMessage)
	assert.Len(t, store.messages, 1)

	// The sender is told, not silently dropped.
	require.Len(t, broadcaster.toUser, 1)
	assert.Equal(t, EventMessageError, broadcaster.toUser[0].event)
	payload, ok := broadcaster.toUser[0].payload.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "tmp-7", payload["temp_id"])
}

func TestHandleIncomingRetrySucceedsAfterPersistFailure(t *testing.T) {
	store := newFakeMessageStore()
	store.failMessage = fmt.Errorf("db down")
	broadcaster := &fakeBroadcaster{}
	gateway := newTestGateway(store, broadcaster)
	gateway.dedupe = newFakeDedupe()

	in := IncomingMessage{
		SenderID: "user-1",
		GroupID:  "group-1",
		Content:  "hola",
		TempID:   "tmp-8",
	}

	_, err := gateway.HandleIncoming(context.Background(), in)
	require.Error(t, err)
	require.Len(t, broadcaster.toUser, 1)
	assert.Equal(t, EventMessageError, broadcaster.toUser[0].event)

	// The failed persist released the temp_id claim, so retrying with
	// the same temp_id after the store recovers must land the message.
	store.failMessage = nil
	message, err := gateway.HandleIncoming(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "tmp-8", message.TempID)
	require.Len(t, store.messages, 1)
	require.Len(t, broadcaster.toGroup, 1)
}

func TestHandleIncomingGlobalFallback(t *testing.T) {
	store := newFakeMessageStore()
	broadcaster := &fakeBroadcaster{}
	gateway := newTestGateway(store, broadcaster)

	_, err := gateway.HandleIncoming(context.Background(), IncomingMessage{
		SenderID: "user-1",
		Content:  "mensaje sin grupo",
	})

	require.NoError(t, err)
	assert.Empty(t, broadcaster.toGroup)
	require.Len(t, broadcaster.global, 1)
	assert.Equal(t, EventReceiveMessage, broadcaster.global[0].event)
}
