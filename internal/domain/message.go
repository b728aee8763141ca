package domain

import "time"

// InboundMessage is a chat message received from the transport. It is
// produced once per received event and consumed once by the dispatcher.
type InboundMessage struct {
	ID        string
	Chat      string // chat the message belongs to (user or group id)
	Sender    string // author id, phone-number form when known; equals Chat for direct messages
	SenderLID string // author's hidden-user (@lid) id when the chat addresses them that way
	PushName  string
	Body      string
	IsGroup   bool
	Mentions  []string
	FromMe    bool
	Timestamp time.Time
	Audio     *Media // voice note, when the message carries one
}

// Mentioned reports whether any of ids (with or without server suffix) is
// in the mention list. An account can be mentioned by phone number or by LID.
func (m InboundMessage) Mentioned(ids ...string) bool {
	for _, id := range ids {
		user := userPart(id)
		if user == "" {
			continue
		}
		for _, mention := range m.Mentions {
			if userPart(mention) == user {
				return true
			}
		}
	}
	return false
}

func userPart(id string) string {
	for i := 0; i < len(id); i++ {
		if id[i] == '@' || id[i] == ':' {
			return id[:i]
		}
	}
	return id
}

// Media is a binary attachment.
type Media struct {
	Data     []byte
	MIMEType string
	FileName string
	Caption  string
}

// Reply is what a handler hands back to the transport: text, media, or both.
type Reply struct {
	Text  string
	Media *Media
}

// TextReply is shorthand for a text-only reply.
func TextReply(text string) Reply {
	return Reply{Text: text}
}

// Empty reports whether the reply carries nothing to send.
func (r Reply) Empty() bool {
	return r.Text == "" && r.Media == nil
}

// Group is a joined group chat.
type Group struct {
	ID           string `json:"id"`
	Name         string `json:"nome"`
	Participants int    `json:"participantes"`
}
