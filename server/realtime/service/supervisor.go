package service

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	commonlog "team_server/server/common/log"
)

// ConnectionSupervisor owns the lifecycle of one websocket connection:
// registration, the inbound read loop, and cleanup on disconnect.
// Dropping a connection never touches call state; a user on a flaky
// network can reconnect and keep talking.
type ConnectionSupervisor struct {
	presence    *PresenceRegistry
	hub         *Hub
	gateway     *MessageGateway
	broadcaster Broadcaster
}

func NewConnectionSupervisor(presence *PresenceRegistry, hub *Hub, gateway *MessageGateway, broadcaster Broadcaster) *ConnectionSupervisor {
	return &ConnectionSupervisor{presence: presence, hub: hub, gateway: gateway, broadcaster: broadcaster}
}

type inboundEnvelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type sendMessagePayload struct {
	GroupID     string   `json:"group_id"`
	Content     string   `json:"content"`
	Attachments []string `json:"attachments"`
	TempID      string   `json:"temp_id"`
}

type joinGroupPayload struct {
	GroupID string `json:"group_id"`
}

// Serve blocks until the connection drops or ctx is cancelled.
func (s *ConnectionSupervisor) Serve(ctx context.Context, conn *websocket.Conn, userID, username string) {
	connectionID := uuid.NewString()
	client := NewClient(userID, username, connectionID, conn)

	s.presence.Register(userID, username, connectionID)
	s.hub.Register(client)
	s.broadcaster.EmitGlobal(EventOnlineUsers, s.presence.ListOnline())
	commonlog.Infof("event=connection_supervisor action=connect status=ok user_id=%s connection_id=%s", userID, connectionID)

	defer func() {
		s.hub.Unregister(client)
		s.presence.UnregisterConnection(userID, connectionID)
		s.broadcaster.EmitGlobal(EventOnlineUsers, s.presence.ListOnline())
		commonlog.Infof("event=connection_supervisor action=disconnect status=ok user_id=%s connection_id=%s", userID, connectionID)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				commonlog.Warnf("event=connection_supervisor action=read status=failed user_id=%s error=%v", userID, err)
			}
			return
		}

		var envelope inboundEnvelope
		if err := json.Unmarshal(raw, &envelope); err != nil {
			commonlog.Warnf("event=connection_supervisor action=decode status=failed user_id=%s error=%v", userID, err)
			continue
		}

		s.presence.Touch(userID)
		s.dispatch(ctx, client, envelope)
	}
}

func (s *ConnectionSupervisor) dispatch(ctx context.Context, client *Client, envelope inboundEnvelope) {
	switch envelope.Type {
	case eventSendMessage:
		var payload sendMessagePayload
		if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
			commonlog.Warnf("event=connection_supervisor action=decode_message status=failed user_id=%s error=%v", client.UserID, err)
			return
		}
		_, err := s.gateway.HandleIncoming(ctx, IncomingMessage{
			SenderID:    client.UserID,
			GroupID:     payload.GroupID,
			Content:     payload.Content,
			Attachments: payload.Attachments,
			TempID:      payload.TempID,
		})
		if err != nil {
			commonlog.Warnf("event=connection_supervisor action=handle_message status=failed user_id=%s error=%v", client.UserID, err)
		}
	case eventJoinGroup:
		var payload joinGroupPayload
		if err := json.Unmarshal(envelope.Payload, &payload); err != nil || payload.GroupID == "" {
			commonlog.Warnf("event=connection_supervisor action=join_group status=failed user_id=%s error=%v", client.UserID, err)
			return
		}
		s.hub.JoinGroup(client, payload.GroupID)
	case eventPingServer:
		client.WriteJSON(wsEvent{Type: EventPongClient, Payload: map[string]string{"status": "alive"}})
	case eventGetOnlineUsers:
		client.WriteJSON(wsEvent{Type: EventOnlineUsers, Payload: s.presence.ListOnline()})
	default:
		commonlog.Debugf("event=connection_supervisor action=dispatch status=ignored user_id=%s type=%s", client.UserID, envelope.Type)
	}
}
