package view

import (
	"strings"
	"time"

	"cio-chat/backend/internal/docstore"
	"cio-chat/backend/internal/identity"
)

// Frame types sent to the client
const (
	FrameScreen  = "screen"
	FrameSession = "session"
)

// Frame is one message pushed to the client
type Frame struct {
	Type    string `json:"type"`
	Content any    `json:"content"`
}

// Screen copy
const (
	LoadingMessage = "Initializing CIO Chat Portal..."
	RoomTitle      = "CIO Shared Room"
	RoomSubtitle   = "Verified Executives Only"
	EmptyRoom      = "No messages yet. Be the first to speak."
	SelfLabel      = "YOU"
)

// LoadingScreen is shown until the session has resolved
type LoadingScreen struct {
	Screen  string `json:"screen"`
	Message string `json:"message"`
}

// BackendNotice tells a disconnected client what is missing
type BackendNotice struct {
	Connected   bool     `json:"connected"`
	MissingKeys []string `json:"missingKeys,omitempty"`
	Reason      string   `json:"reason,omitempty"`
}

// LoginScreen is the credential form
type LoginScreen struct {
	Screen  string         `json:"screen"`
	Mode    string         `json:"mode"`
	Error   string         `json:"error,omitempty"`
	Loading bool           `json:"loading"`
	Backend *BackendNotice `json:"backend,omitempty"`
}

// MessageView is one rendered chat line
type MessageView struct {
	ID        string     `json:"id"`
	Label     string     `json:"label"`
	Text      string     `json:"text"`
	IsMe      bool       `json:"isMe"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// ScrollState pins the message list to its newest entry
type ScrollState struct {
	Anchor string `json:"anchor,omitempty"`
}

// RoomScreen is the chat room
type RoomScreen struct {
	Screen   string            `json:"screen"`
	Title    string            `json:"title"`
	Subtitle string            `json:"subtitle"`
	User     *identity.Session `json:"user"`
	Messages []MessageView     `json:"messages"`
	Empty    string            `json:"empty,omitempty"`
	Draft    string            `json:"draft"`
	Sending  bool              `json:"sending"`
	CanSend  bool              `json:"canSend"`
	Scroll   ScrollState       `json:"scroll"`
	Alert    string            `json:"alert,omitempty"`
}

// SessionInfo lets the client keep its token across reconnects. An empty token means
// the client should forget the stored one.
type SessionInfo struct {
	Token string `json:"token"`
	UID   string `json:"uid,omitempty"`
}

// Label is the author line shown above a message
func Label(msg docstore.Message, isMe bool) string {
	if isMe {
		return SelfLabel
	}
	return strings.ToUpper(msg.Username)
}

func renderMessages(msgs []docstore.Message, me *identity.Session) []MessageView {
	out := make([]MessageView, 0, len(msgs))
	for _, m := range msgs {
		isMe := me != nil && m.UID == me.UID
		out = append(out, MessageView{
			ID:        m.ID,
			Label:     Label(m, isMe),
			Text:      m.Text,
			IsMe:      isMe,
			Timestamp: m.Timestamp,
		})
	}
	return out
}
