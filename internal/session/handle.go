package session

import "fmt"

// Role identifies which side of a consultation this client plays.
type Role string

const (
	RoleProvider Role = "PROVIDER"
	RoleConsumer Role = "CONSUMER"
)

// Kind is the consultation flavor. It selects the wire event names and the
// media gating behavior for a session.
type Kind string

const (
	KindChat           Kind = "CHAT"
	KindVoiceCall      Kind = "VOICE_CALL"
	KindVideoCall      Kind = "VIDEO_CALL"
	KindLivestreamCall Kind = "LIVESTREAM_CALL"
)

// HasMedia reports whether this kind carries a media-engine leg at all.
func (k Kind) HasMedia() bool {
	return k != KindChat
}

// Video reports whether the media leg publishes a camera track.
func (k Kind) Video() bool {
	return k == KindVideoCall || k == KindLivestreamCall
}

func (k Kind) valid() bool {
	switch k {
	case KindChat, KindVoiceCall, KindVideoCall, KindLivestreamCall:
		return true
	}
	return false
}

// Handle identifies one consultation instance. SessionID is server-assigned
// and immutable for the handle's lifetime; OrderID may be empty for pre-order
// flows.
type Handle struct {
	SessionID string
	OrderID   string
	UserID    string
	Role      Role
	Kind      Kind
}

// Validate checks the handle before a coordinator will accept it.
func (h Handle) Validate() error {
	if h.SessionID == "" {
		return fmt.Errorf("session handle: empty session id")
	}
	if !h.Kind.valid() {
		return fmt.Errorf("session handle: unknown kind %q", h.Kind)
	}
	return nil
}
