package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"

	commonlog "team_server/server/common/log"
	"team_server/server/realtime/domain"
)

var (
	ErrCallNotFound     = errors.New("call not found")
	ErrCallConflict     = errors.New("call conflict")
	ErrNotPermitted     = errors.New("not permitted")
	ErrInvalidCallInput = errors.New("invalid call request")
)

type callStore interface {
	CreateCall(ctx context.Context, call domain.Call) (domain.Call, error)
	UpdateCallStatus(ctx context.Context, callID string, status domain.CallStatus, endedAt *time.Time) (domain.Call, error)
	GetCallByID(ctx context.Context, callID string) (domain.Call, error)
	GetActiveGroupCall(ctx context.Context, groupID string) (*domain.Call, error)
	GetActiveCallForUser(ctx context.Context, userID string) (*domain.Call, error)
	AddParticipant(ctx context.Context, callID, userID string) (domain.CallParticipant, error)
	RemoveParticipant(ctx context.Context, callID, userID string) error
	GetParticipants(ctx context.Context, callID string) ([]domain.CallParticipant, error)
	ListActiveCalls(ctx context.Context) ([]domain.Call, error)
	GetGroupMembers(ctx context.Context, groupID string) ([]domain.GroupMember, error)
	GetUserByID(ctx context.Context, userID string) (domain.User, error)
}

// CallManager owns the call session state machines and relays WebRTC
// signaling between the parties. Signaling payloads pass through as
// opaque blobs; the manager never inspects them.
type CallManager struct {
	store       callStore
	presence    *PresenceRegistry
	broadcaster Broadcaster
	events      DomainEvents
}

func NewCallManager(store callStore, presence *PresenceRegistry, broadcaster Broadcaster, events DomainEvents) *CallManager {
	return &CallManager{store: store, presence: presence, broadcaster: broadcaster, events: events}
}

// InitiateDirect starts a 1:1 call. On a busy-party conflict the
// returned call is the existing one, so the caller can reconcile.
func (m *CallManager) InitiateDirect(ctx context.Context, callerID, receiverID string, callType domain.CallType) (domain.Call, error) {
	if callerID == receiverID {
		return domain.Call{}, fmt.Errorf("%w: cannot call yourself", ErrInvalidCallInput)
	}
	if !callType.Valid() {
		return domain.Call{}, fmt.Errorf("%w: call type must be audio or video", ErrInvalidCallInput)
	}

	if existing, err := m.store.GetActiveCallForUser(ctx, callerID); err != nil {
		return domain.Call{}, err
	} else if existing != nil {
		return *existing, fmt.Errorf("%w: caller already has call %s", ErrCallConflict, existing.ID)
	}
	if existing, err := m.store.GetActiveCallForUser(ctx, receiverID); err != nil {
		return domain.Call{}, err
	} else if existing != nil {
		return *existing, fmt.Errorf("%w: receiver already has call %s", ErrCallConflict, existing.ID)
	}

	call, err := m.store.CreateCall(ctx, domain.Call{
		CallerID:   callerID,
		ReceiverID: &receiverID,
		CallType:   callType,
		Status:     domain.CallStatusInitiated,
	})
	if err != nil {
		return domain.Call{}, err
	}

	// Ringing once the receiver's connection is reachable.
	if _, online := m.presence.LookupConnection(receiverID); online {
		if updated, err := m.store.UpdateCallStatus(ctx, call.ID, domain.CallStatusRinging, nil); err == nil {
			call = updated
		}
		m.broadcaster.EmitToUser(receiverID, EventIncomingCall, call)
	}
	m.broadcaster.EmitToUser(callerID, EventCallInitiated, call)
	m.publish(ctx, "call.started", call)

	commonlog.Infof("event=call_manager action=initiate_direct status=ok call_id=%s caller_id=%s receiver_id=%s", call.ID, callerID, receiverID)
	return call, nil
}

// InitiateGroup starts a group call. If the group already has a live
// call, that call is returned together with a conflict error.
func (m *CallManager) InitiateGroup(ctx context.Context, callerID, groupID string, callType domain.CallType, invitees []string) (domain.Call, error) {
	if groupID == "" {
		return domain.Call{}, fmt.Errorf("%w: group id is required", ErrInvalidCallInput)
	}
	if !callType.Valid() {
		return domain.Call{}, fmt.Errorf("%w: call type must be audio or video", ErrInvalidCallInput)
	}

	if existing, err := m.store.GetActiveGroupCall(ctx, groupID); err != nil {
		return domain.Call{}, err
	} else if existing != nil {
		return *existing, fmt.Errorf("%w: group already has call %s", ErrCallConflict, existing.ID)
	}

	call, err := m.store.CreateCall(ctx, domain.Call{
		CallerID: callerID,
		GroupID:  &groupID,
		CallType: callType,
		Status:   domain.CallStatusInitiated,
	})
	if err != nil {
		return domain.Call{}, err
	}

	if _, err := m.store.AddParticipant(ctx, call.ID, callerID); err != nil {
		return domain.Call{}, err
	}
	for _, invitee := range invitees {
		if invitee == callerID {
			continue
		}
		if _, err := m.store.AddParticipant(ctx, call.ID, invitee); err != nil {
			commonlog.Warnf("event=call_manager action=join_invitee status=failed call_id=%s user_id=%s error=%v", call.ID, invitee, err)
		}
	}

	if updated, err := m.store.UpdateCallStatus(ctx, call.ID, domain.CallStatusRinging, nil); err == nil {
		call = updated
	}

	// Invite every group member except the caller; only currently
	// connected members can be reached.
	members, err := m.store.GetGroupMembers(ctx, groupID)
	if err != nil {
		commonlog.Warnf("event=call_manager action=invite_members status=failed call_id=%s error=%v", call.ID, err)
	}
	for _, member := range members {
		if member.UserID == callerID {
			continue
		}
		if _, online := m.presence.LookupConnection(member.UserID); online {
			m.broadcaster.EmitToUser(member.UserID, EventIncomingGroupCall, call)
		}
	}
	m.broadcaster.EmitToUser(callerID, EventCallInitiated, call)
	m.publish(ctx, "call.started", call)

	commonlog.Infof("event=call_manager action=initiate_group status=ok call_id=%s caller_id=%s group_id=%s", call.ID, callerID, groupID)
	return call, nil
}

// JoinGroup adds a user to a live group call. The second live
// participant flips the call from ringing to active.
func (m *CallManager) JoinGroup(ctx context.Context, callID, userID string) (domain.Call, error) {
	call, err := m.getCall(ctx, callID)
	if err != nil {
		return domain.Call{}, err
	}
	if !call.IsGroup() {
		return domain.Call{}, fmt.Errorf("%w: not a group call", ErrInvalidCallInput)
	}
	if call.Status.Terminal() {
		return call, fmt.Errorf("%w: call is not joinable in status %s", ErrCallConflict, call.Status)
	}

	live, err := m.liveParticipants(ctx, callID)
	if err != nil {
		return domain.Call{}, err
	}
	for _, participant := range live {
		if participant.UserID == userID {
			return call, fmt.Errorf("%w: user is already a participant", ErrCallConflict)
		}
	}

	if _, err := m.store.AddParticipant(ctx, callID, userID); err != nil {
		return domain.Call{}, err
	}

	if len(live)+1 >= 2 && call.Status != domain.CallStatusActive {
		if updated, err := m.store.UpdateCallStatus(ctx, callID, domain.CallStatusActive, nil); err == nil {
			call = updated
		}
	}

	roster, err := m.liveParticipants(ctx, callID)
	if err != nil {
		roster = append(live, domain.CallParticipant{CallID: callID, UserID: userID})
	}
	m.broadcaster.EmitToGroup(*call.GroupID, EventUserJoinedGroupCall, map[string]any{
		"call":         call,
		"user_id":      userID,
		"participants": roster,
	})
	return call, nil
}

// LeaveGroup stamps the participant out; the last leaver ends the call.
func (m *CallManager) LeaveGroup(ctx context.Context, callID, userID string) (domain.Call, error) {
	call, err := m.getCall(ctx, callID)
	if err != nil {
		return domain.Call{}, err
	}
	if !call.IsGroup() {
		return domain.Call{}, fmt.Errorf("%w: not a group call", ErrInvalidCallInput)
	}

	live, err := m.liveParticipants(ctx, callID)
	if err != nil {
		return domain.Call{}, err
	}
	isParticipant := lo.ContainsBy(live, func(p domain.CallParticipant) bool { return p.UserID == userID })
	if !isParticipant {
		return domain.Call{}, fmt.Errorf("%w: user is not a participant", ErrInvalidCallInput)
	}

	if err := m.store.RemoveParticipant(ctx, callID, userID); err != nil {
		return domain.Call{}, err
	}

	callEnded := len(live)-1 == 0
	if callEnded {
		if updated, err := m.store.UpdateCallStatus(ctx, callID, domain.CallStatusEnded, lo.ToPtr(time.Now().UTC())); err == nil {
			call = updated
		}
		m.publish(ctx, "call.ended", call)
	}

	roster := lo.Filter(live, func(p domain.CallParticipant, _ int) bool { return p.UserID != userID })
	m.broadcaster.EmitToGroup(*call.GroupID, EventUserLeftGroupCall, map[string]any{
		"call":         call,
		"user_id":      userID,
		"call_ended":   callEnded,
		"participants": roster,
	})
	return call, nil
}

// RespondDirect lets the designated receiver accept or reject.
func (m *CallManager) RespondDirect(ctx context.Context, callID, userID, action string) (domain.Call, error) {
	if action != "accept" && action != "reject" {
		return domain.Call{}, fmt.Errorf("%w: action must be accept or reject", ErrInvalidCallInput)
	}
	call, err := m.getCall(ctx, callID)
	if err != nil {
		return domain.Call{}, err
	}
	if call.IsGroup() || call.ReceiverID == nil {
		return domain.Call{}, fmt.Errorf("%w: not a direct call", ErrInvalidCallInput)
	}
	// Permission before state: a non-party must not learn the call's
	// status from the conflict response.
	if *call.ReceiverID != userID {
		return domain.Call{}, ErrNotPermitted
	}
	if call.Status != domain.CallStatusInitiated && call.Status != domain.CallStatusRinging {
		return call, fmt.Errorf("%w: call already responded in status %s", ErrCallConflict, call.Status)
	}

	status := domain.CallStatusAccepted
	event := EventCallAccepted
	var endedAt *time.Time
	if action == "reject" {
		status = domain.CallStatusRejected
		event = EventCallRejected
		endedAt = lo.ToPtr(time.Now().UTC())
	}

	call, err = m.store.UpdateCallStatus(ctx, callID, status, endedAt)
	if err != nil {
		return domain.Call{}, err
	}

	m.broadcaster.EmitToUser(call.CallerID, event, call)
	m.broadcaster.EmitToUser(userID, event, call)
	commonlog.Infof("event=call_manager action=respond_direct status=ok call_id=%s user_id=%s response=%s", callID, userID, action)
	return call, nil
}

// End terminates a call. Direct calls may be ended by either party; a
// caller hanging up before any response cancels instead. Group calls
// require an admin or a live participant.
func (m *CallManager) End(ctx context.Context, callID, userID string) (domain.Call, error) {
	call, err := m.getCall(ctx, callID)
	if err != nil {
		return domain.Call{}, err
	}
	if call.Status.Terminal() {
		return call, fmt.Errorf("%w: call already ended", ErrCallConflict)
	}

	if call.IsGroup() {
		if err := m.authorizeGroupEnd(ctx, call, userID); err != nil {
			return domain.Call{}, err
		}
	} else if !call.IsParty(userID) {
		return domain.Call{}, ErrNotPermitted
	}

	status := domain.CallStatusEnded
	if !call.IsGroup() && call.CallerID == userID &&
		(call.Status == domain.CallStatusInitiated || call.Status == domain.CallStatusRinging) {
		status = domain.CallStatusCancelled
	}

	call, err = m.store.UpdateCallStatus(ctx, callID, status, lo.ToPtr(time.Now().UTC()))
	if err != nil {
		return domain.Call{}, err
	}

	if call.IsGroup() {
		live, err := m.liveParticipants(ctx, callID)
		if err == nil {
			for _, participant := range live {
				if err := m.store.RemoveParticipant(ctx, callID, participant.UserID); err != nil {
					commonlog.Warnf("event=call_manager action=mark_left status=failed call_id=%s user_id=%s error=%v", callID, participant.UserID, err)
				}
			}
		}
		m.broadcaster.EmitToGroup(*call.GroupID, EventCallEnded, call)
	} else {
		m.broadcaster.EmitToUser(call.CallerID, EventCallEnded, call)
		if call.ReceiverID != nil {
			m.broadcaster.EmitToUser(*call.ReceiverID, EventCallEnded, call)
		}
	}
	m.publish(ctx, "call.ended", call)

	commonlog.Infof("event=call_manager action=end status=ok call_id=%s user_id=%s final_status=%s", callID, userID, call.Status)
	return call, nil
}

// RelaySignal forwards an opaque WebRTC payload to the other party
// (direct) or to every other live participant (group). The payload is
// never stored or inspected.
func (m *CallManager) RelaySignal(ctx context.Context, callID, fromUserID, signalType string, payload json.RawMessage) error {
	call, err := m.getCall(ctx, callID)
	if err != nil {
		return err
	}

	signal := domain.Signal{
		CallID:     callID,
		FromUserID: fromUserID,
		SignalType: signalType,
		Payload:    payload,
	}

	if !call.IsGroup() {
		if !call.IsParty(fromUserID) {
			return ErrNotPermitted
		}
		target := call.CallerID
		if fromUserID == call.CallerID {
			target = *call.ReceiverID
		}
		m.broadcaster.EmitToUser(target, EventWebRTCSignal, signal)
		return nil
	}

	live, err := m.liveParticipants(ctx, callID)
	if err != nil {
		return err
	}
	isParticipant := lo.ContainsBy(live, func(p domain.CallParticipant) bool { return p.UserID == fromUserID })
	if !isParticipant {
		return ErrNotPermitted
	}
	for _, participant := range live {
		if participant.UserID == fromUserID {
			continue
		}
		m.broadcaster.EmitToUser(participant.UserID, EventWebRTCSignal, signal)
	}
	return nil
}

type CleanupReport struct {
	CallsEnded          int `json:"calls_ended"`
	ParticipantsRemoved int `json:"participants_removed"`
}

// ForceCleanupAll ends every non-terminal call. Admin only.
func (m *CallManager) ForceCleanupAll(ctx context.Context, requestedBy string) (CleanupReport, error) {
	requester, err := m.store.GetUserByID(ctx, requestedBy)
	if err != nil {
		return CleanupReport{}, err
	}
	if requester.Role != domain.UserRoleAdmin {
		return CleanupReport{}, ErrNotPermitted
	}

	calls, err := m.store.ListActiveCalls(ctx)
	if err != nil {
		return CleanupReport{}, err
	}

	var report CleanupReport
	for _, call := range calls {
		live, err := m.liveParticipants(ctx, call.ID)
		if err == nil {
			for _, participant := range live {
				if err := m.store.RemoveParticipant(ctx, call.ID, participant.UserID); err == nil {
					report.ParticipantsRemoved++
				}
			}
		}
		ended, err := m.store.UpdateCallStatus(ctx, call.ID, domain.CallStatusEnded, lo.ToPtr(time.Now().UTC()))
		if err != nil {
			commonlog.Errorf("event=call_manager action=force_cleanup status=failed call_id=%s error=%v", call.ID, err)
			continue
		}
		report.CallsEnded++
		if ended.IsGroup() {
			m.broadcaster.EmitToGroup(*ended.GroupID, EventCallEnded, ended)
		}
	}
	commonlog.Infof("event=call_manager action=force_cleanup status=ok requested_by=%s calls=%d participants=%d", requestedBy, report.CallsEnded, report.ParticipantsRemoved)
	return report, nil
}

// GetCall looks up a call by id.
func (m *CallManager) GetCall(ctx context.Context, callID string) (domain.Call, error) {
	return m.getCall(ctx, callID)
}

func (m *CallManager) getCall(ctx context.Context, callID string) (domain.Call, error) {
	call, err := m.store.GetCallByID(ctx, callID)
	if err != nil {
		return domain.Call{}, fmt.Errorf("%w: %s", ErrCallNotFound, callID)
	}
	return call, nil
}

func (m *CallManager) liveParticipants(ctx context.Context, callID string) ([]domain.CallParticipant, error) {
	participants, err := m.store.GetParticipants(ctx, callID)
	if err != nil {
		return nil, err
	}
	return lo.Filter(participants, func(p domain.CallParticipant, _ int) bool { return p.LeftAt == nil }), nil
}

func (m *CallManager) authorizeGroupEnd(ctx context.Context, call domain.Call, userID string) error {
	user, err := m.store.GetUserByID(ctx, userID)
	if err == nil && user.Role == domain.UserRoleAdmin {
		return nil
	}
	live, err := m.liveParticipants(ctx, call.ID)
	if err != nil {
		return err
	}
	if lo.ContainsBy(live, func(p domain.CallParticipant) bool { return p.UserID == userID }) {
		return nil
	}
	return ErrNotPermitted
}

func (m *CallManager) publish(ctx context.Context, key string, payload any) {
	if m.events == nil {
		return
	}
	if err := m.events.Publish(ctx, key, payload); err != nil {
		commonlog.Warnf("event=call_manager action=publish status=failed key=%s error=%v", key, err)
	}
}
