package whatsapp

import (
	"fmt"
	"strings"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"wagate/internal/domain"
)

// lifecycleEvent maps whatsmeow connection events onto domain events.
// ok is false for events the gateway does not track.
func lifecycleEvent(evt any, botNumber func() string) (ev domain.Event, ok bool) {
	switch v := evt.(type) {
	case *events.Connected:
		return domain.Event{Type: domain.EventReady, BotNumber: botNumber()}, true
	case *events.Disconnected:
		return disconnected("connection lost"), true
	case *events.StreamReplaced:
		return disconnected("stream replaced by another session"), true
	case *events.KeepAliveTimeout:
		return disconnected(fmt.Sprintf("keepalive timeout after %d errors", v.ErrorCount)), true
	case *events.ConnectFailure:
		return disconnected(fmt.Sprintf("connect failure: %v", v.Reason)), true
	case *events.TemporaryBan:
		return disconnected(fmt.Sprintf("temporary ban: %v", v)), true
	case *events.LoggedOut:
		return domain.Event{Type: domain.EventLoggedOut, Reason: fmt.Sprintf("logged out: %v", v.Reason)}, true
	}
	return domain.Event{}, false
}

func disconnected(reason string) domain.Event {
	return domain.Event{Type: domain.EventDisconnected, Reason: reason}
}

// toInbound converts a received message. Audio is filled in separately
// because it needs a download.
//
// Groups in LID addressing mode hide the author's number behind an @lid
// id; the phone-number JID then arrives in SenderAlt and becomes Sender,
// so approvals and rate limits key on the number either way.
func toInbound(evt *events.Message) domain.InboundMessage {
	msg := domain.InboundMessage{
		ID:        evt.Info.ID,
		Chat:      FromJID(evt.Info.Chat),
		Sender:    FromJID(evt.Info.Sender),
		PushName:  evt.Info.PushName,
		Body:      strings.TrimSpace(messageText(evt.Message)),
		IsGroup:   evt.Info.IsGroup,
		Mentions:  mentions(evt.Message),
		FromMe:    evt.Info.IsFromMe,
		Timestamp: evt.Info.Timestamp,
	}
	if evt.Info.Sender.Server == types.HiddenUserServer {
		msg.SenderLID = msg.Sender
		if !evt.Info.SenderAlt.IsEmpty() {
			msg.Sender = FromJID(evt.Info.SenderAlt)
		}
	}
	return msg
}

func messageText(m *waE2E.Message) string {
	switch {
	case m.GetConversation() != "":
		return m.GetConversation()
	case m.GetExtendedTextMessage().GetText() != "":
		return m.GetExtendedTextMessage().GetText()
	case m.GetImageMessage().GetCaption() != "":
		return m.GetImageMessage().GetCaption()
	case m.GetVideoMessage().GetCaption() != "":
		return m.GetVideoMessage().GetCaption()
	}
	return ""
}

func mentions(m *waE2E.Message) []string {
	var info *waE2E.ContextInfo
	switch {
	case m.GetExtendedTextMessage() != nil:
		info = m.GetExtendedTextMessage().GetContextInfo()
	case m.GetImageMessage() != nil:
		info = m.GetImageMessage().GetContextInfo()
	case m.GetVideoMessage() != nil:
		info = m.GetVideoMessage().GetContextInfo()
	}
	jids := info.GetMentionedJID()
	if len(jids) == 0 {
		return nil
	}
	out := make([]string, len(jids))
	copy(out, jids)
	return out
}
