package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	commonlog "team_server/server/common/log"
	"team_server/server/realtime/domain"
)

var (
	ErrEmptyMessage     = errors.New("message needs content or attachments")
	ErrDuplicateMessage = errors.New("duplicate temp_id")
)

type messageStore interface {
	CreateMessage(ctx context.Context, message domain.ChatMessage) (domain.ChatMessage, error)
	GetUserByID(ctx context.Context, userID string) (domain.User, error)
}

// dedupeStore claims a temp_id for the dedupe window. A claim must be
// released when the message it guards fails to persist, otherwise the
// client's retry would be rejected against a message that never landed.
type dedupeStore interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

type redisDedupe struct {
	client *redis.Client
}

func (d redisDedupe) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return d.client.SetNX(ctx, key, "1", ttl).Result()
}

func (d redisDedupe) Release(ctx context.Context, key string) error {
	return d.client.Del(ctx, key).Err()
}

type IncomingMessage struct {
	SenderID    string   `json:"sender_id"`
	GroupID     string   `json:"group_id"`
	Content     string   `json:"content"`
	Attachments []string `json:"attachments,omitempty"`
	TempID      string   `json:"temp_id,omitempty"`
}

// MessageGateway intercepts inbound chat, interprets it as a domain
// command when one is detected, and otherwise persists and broadcasts it
// as a plain message.
type MessageGateway struct {
	store        messageStore
	detector     *IntentDetector
	executor     *ActionExecutor
	broadcaster  Broadcaster
	events       DomainEvents
	dedupe       dedupeStore
	systemUserID string
}

func NewMessageGateway(store messageStore, detector *IntentDetector, executor *ActionExecutor, broadcaster Broadcaster, events DomainEvents, systemUserID string) *MessageGateway {
	return &MessageGateway{
		store:        store,
		detector:     detector,
		executor:     executor,
		broadcaster:  broadcaster,
		events:       events,
		systemUserID: systemUserID,
	}
}

// UseRedis enables temp_id based duplicate suppression.
func (g *MessageGateway) UseRedis(client *redis.Client) {
	g.dedupe = redisDedupe{client: client}
}

const tempIDDedupeTTL = 24 * time.Hour

func tempIDDedupeKey(senderID, groupID, tempID string) string {
	return fmt.Sprintf("gateway:message:dedupe:%s:%s:%s", senderID, groupID, tempID)
}

// HandleIncoming runs the full pipeline for one inbound chat message and
// returns the canonical persisted message. Persistence failures are
// reported to the sender as a message_error event carrying the temp_id,
// and the temp_id claim is released so the client may retry with the
// same temp_id. Duplicate temp_ids are rejected with a message_error.
func (g *MessageGateway) HandleIncoming(ctx context.Context, in IncomingMessage) (domain.ChatMessage, error) {
	if strings.TrimSpace(in.Content) == "" && len(in.Attachments) == 0 {
		return domain.ChatMessage{}, ErrEmptyMessage
	}

	if g.dedupe != nil && in.TempID != "" {
		ok, err := g.dedupe.Claim(ctx, tempIDDedupeKey(in.SenderID, in.GroupID, in.TempID), tempIDDedupeTTL)
		if err != nil {
			commonlog.Warnf("event=message_gateway action=dedupe status=failed sender_id=%s error=%v", in.SenderID, err)
		} else if !ok {
			commonlog.Warnf("event=message_gateway action=dedupe status=duplicate sender_id=%s temp_id=%s", in.SenderID, in.TempID)
			g.broadcaster.EmitToUser(in.SenderID, EventMessageError, map[string]any{
				"temp_id": in.TempID,
				"error":   "mensaje duplicado descartado",
			})
			return domain.ChatMessage{}, ErrDuplicateMessage
		}
	}

	intent := g.detector.Detect(in.Content)

	var outcome *domain.ActionOutcome
	if intent.Kind != domain.ActionNone {
		result := g.executor.Execute(ctx, intent.Kind, in.Content, in.SenderID, in.GroupID)
		outcome = &domain.ActionOutcome{Kind: intent.Kind, Success: result.Success, Message: result.Message}

		if result.Success {
			return g.persistWithConfirmation(ctx, in, outcome, result.Message)
		}
		// Executor produced no usable result: fall through to plain
		// persistence, keeping the outcome on the returned message so
		// the sender learns why.
	}

	message, err := g.persist(ctx, in)
	if err != nil {
		g.releaseDedupe(ctx, in)
		g.reportError(in, err)
		return domain.ChatMessage{}, err
	}
	message.ActionResult = outcome
	g.broadcast(message)
	return message, nil
}

func (g *MessageGateway) persistWithConfirmation(ctx context.Context, in IncomingMessage, outcome *domain.ActionOutcome, confirmation string) (domain.ChatMessage, error) {
	original, err := g.persist(ctx, in)
	if err != nil {
		g.releaseDedupe(ctx, in)
		g.reportError(in, err)
		return domain.ChatMessage{}, err
	}
	original.ActionResult = outcome
	g.broadcast(original)

	system, err := g.persist(ctx, IncomingMessage{
		SenderID: g.systemUserID,
		GroupID:  in.GroupID,
		Content:  confirmation,
	})
	if err != nil {
		// The action itself succeeded; losing the confirmation row is
		// logged but does not fail the pipeline.
		commonlog.Errorf("event=message_gateway action=persist_confirmation status=failed group_id=%s error=%v", in.GroupID, err)
		return original, nil
	}
	g.broadcast(system)
	return original, nil
}

func (g *MessageGateway) persist(ctx context.Context, in IncomingMessage) (domain.ChatMessage, error) {
	startedAt := time.Now()
	message, err := g.store.CreateMessage(ctx, domain.ChatMessage{
		SenderID:    in.SenderID,
		GroupID:     in.GroupID,
		Content:     in.Content,
		Attachments: in.Attachments,
	})
	if err != nil {
		commonlog.Errorf("event=message_gateway action=persist status=failed group_id=%s sender_id=%s latency_ms=%d error=%v",
			in.GroupID, in.SenderID, time.Since(startedAt).Milliseconds(), err)
		return domain.ChatMessage{}, err
	}
	message.TempID = in.TempID

	if sender, err := g.store.GetUserByID(ctx, in.SenderID); err == nil {
		if sender.Name != "" {
			message.SenderName = sender.Name
		} else {
			message.SenderName = sender.Username
		}
	}

	if g.events != nil {
		if err := g.events.Publish(ctx, "message.created", message); err != nil {
			commonlog.Warnf("event=message_gateway action=publish status=failed message_id=%s error=%v", message.ID, err)
		}
	}
	return message, nil
}

// broadcast targets the message's group channel, falling back to a
// global emit when no group is resolvable.
func (g *MessageGateway) broadcast(message domain.ChatMessage) {
	if message.GroupID != "" {
		g.broadcaster.EmitToGroup(message.GroupID, EventReceiveMessage, message)
		return
	}
	g.broadcaster.EmitGlobal(EventReceiveMessage, message)
}

func (g *MessageGateway) releaseDedupe(ctx context.Context, in IncomingMessage) {
	if g.dedupe == nil || in.TempID == "" {
		return
	}
	if err := g.dedupe.Release(ctx, tempIDDedupeKey(in.SenderID, in.GroupID, in.TempID)); err != nil {
		commonlog.Warnf("event=message_gateway action=dedupe_release status=failed sender_id=%s temp_id=%s error=%v", in.SenderID, in.TempID, err)
	}
}

func (g *MessageGateway) reportError(in IncomingMessage, err error) {
	commonlog.Errorf("event=message_gateway action=report_error sender_id=%s temp_id=%s error=%v", in.SenderID, in.TempID, err)
	g.broadcaster.EmitToUser(in.SenderID, EventMessageError, map[string]any{
		"temp_id": in.TempID,
		"error":   "no se pudo guardar el mensaje",
	})
}
