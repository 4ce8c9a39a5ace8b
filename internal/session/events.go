package session

// Wire event names. These match the signaling backend verbatim; the per-kind
// table below selects which of them a coordinator listens to and emits.
const (
	EventJoinSession   = "join_session"
	EventSyncTimer     = "sync_timer"
	EventTimerStart    = "timer_start"
	EventTimerTick     = "timer_tick"
	EventTimerEnded    = "timer_ended"
	EventChatEnded     = "chat_ended"
	EventCallEnded     = "call_ended"
	EventUserEndedCall = "user_ended_call"
	EventCredentials   = "call_credentials"
	EventMediaReady    = "user_joined_agora"
	EventEndChat       = "end_chat"
	EventEndCall       = "end_call"
)

// JoinSessionPayload announces this client's presence in a session room.
type JoinSessionPayload struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
	Role      Role   `json:"role"`
}

// SyncTimerPayload requests the authoritative timer state.
type SyncTimerPayload struct {
	SessionID string `json:"sessionId"`
}

// SyncTimerReply is the ack for sync_timer.
type SyncTimerReply struct {
	Success bool          `json:"success"`
	Data    SyncTimerData `json:"data"`
}

// SyncTimerData carries the server's view of the session clock.
type SyncTimerData struct {
	Status           string `json:"status"`
	RemainingSeconds int    `json:"remainingSeconds"`
	ElapsedSeconds   int    `json:"elapsedSeconds"`
}

// TimerStartPayload signals the authoritative start of the countdown. Call
// flows may piggyback the media credentials on this event instead of sending
// a separate call_credentials.
type TimerStartPayload struct {
	SessionID          string `json:"sessionId"`
	MaxDurationSeconds int    `json:"maxDurationSeconds"`

	AgoraAppID       string `json:"agoraAppId,omitempty"`
	AgoraToken       string `json:"agoraToken,omitempty"`
	AgoraChannelName string `json:"agoraChannelName,omitempty"`
	AgoraUID         uint32 `json:"agoraUid,omitempty"`
}

func (p TimerStartPayload) hasCredentials() bool {
	return p.AgoraToken != "" && p.AgoraChannelName != ""
}

// TimerTickPayload is the periodic server tick used for reconciliation.
type TimerTickPayload struct {
	SessionID        string `json:"sessionId"`
	RemainingSeconds int    `json:"remainingSeconds"`
	ElapsedSeconds   int    `json:"elapsedSeconds"`
}

// CredentialsPayload carries the media-engine join credentials. The strings
// are opaque and passed through to the engine unmodified.
type CredentialsPayload struct {
	SessionID        string `json:"sessionId"`
	AgoraAppID       string `json:"agoraAppId"`
	AgoraToken       string `json:"agoraToken"`
	AgoraChannelName string `json:"agoraChannelName"`
	AgoraUID         uint32 `json:"agoraUid"`
}

// MediaReadyPayload announces that the local media engine has joined.
type MediaReadyPayload struct {
	SessionID string `json:"sessionId"`
	Role      Role   `json:"role"`
}

// EndedPayload is the body of any terminal event.
type EndedPayload struct {
	SessionID string `json:"sessionId"`
	Reason    string `json:"reason,omitempty"`
}

// EndRequestPayload asks the server to terminate the session.
type EndRequestPayload struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
	Reason    string `json:"reason"`
}

// eventTable maps one session kind to its wire events and gating behavior.
// Collapsing the per-screen variants into this table is what lets a single
// coordinator serve chat, calls and livestream sidebars.
type eventTable struct {
	credentials string // empty when the kind never receives a credentials event
	ended       []string
	endRequest  string

	// requireMediaJoin gates the ACTIVE transition behind local media join in
	// addition to timer_start.
	requireMediaJoin bool
}

func eventsForKind(k Kind) eventTable {
	switch k {
	case KindChat:
		return eventTable{
			ended:      []string{EventChatEnded, EventTimerEnded},
			endRequest: EventEndChat,
		}
	case KindVoiceCall, KindVideoCall:
		return eventTable{
			credentials:      EventCredentials,
			ended:            []string{EventCallEnded, EventTimerEnded},
			endRequest:       EventEndCall,
			requireMediaJoin: true,
		}
	case KindLivestreamCall:
		// Livestream sidebar calls start the countdown unconditionally; the
		// host is already live on media before the call is accepted.
		return eventTable{
			credentials: EventCredentials,
			ended:       []string{EventCallEnded, EventUserEndedCall, EventTimerEnded},
			endRequest:  EventEndCall,
		}
	default:
		return eventTable{
			ended:      []string{EventTimerEnded},
			endRequest: EventEndChat,
		}
	}
}
