package service

// Outbound websocket event names.
const (
	EventReceiveMessage      = "receive_message"
	EventMessageError        = "message_error"
	EventOnlineUsers         = "online_users_list"
	EventIncomingCall        = "incoming_call"
	EventCallInitiated       = "call_initiated"
	EventCallAccepted        = "call_accepted"
	EventCallRejected        = "call_rejected"
	EventCallEnded           = "call_ended"
	EventIncomingGroupCall   = "incoming_group_call"
	EventUserJoinedGroupCall = "user_joined_group_call"
	EventUserLeftGroupCall   = "user_left_group_call"
	EventWebRTCSignal        = "webrtc_signal"
	EventPongClient          = "pong_client"
)

// Inbound websocket event names.
const (
	eventSendMessage    = "send_message"
	eventJoinGroup      = "join_group"
	eventPingServer     = "ping_server"
	eventGetOnlineUsers = "get_online_users"
)
