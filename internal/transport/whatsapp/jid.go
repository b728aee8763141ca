package whatsapp

import (
	"errors"
	"fmt"
	"strings"

	"go.mau.fi/whatsmeow/types"

	"wagate/internal/phone"
)

// legacyUserServer is the user suffix produced by phone.Normalize.
const legacyUserServer = "c.us"

var errEmptyChatID = errors.New("empty chat id")

// ToJID parses a chat id. Bare numbers are normalized first, "@c.us" ids
// map to the default user server and group ids pass through.
func ToJID(id string) (types.JID, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return types.EmptyJID, errEmptyChatID
	}
	if !strings.Contains(id, "@") {
		id = phone.Normalize(id)
	}
	user, server, _ := strings.Cut(id, "@")
	if server == legacyUserServer {
		if user == "" {
			return types.EmptyJID, errEmptyChatID
		}
		return types.NewJID(user, types.DefaultUserServer), nil
	}
	jid, err := types.ParseJID(id)
	if err != nil {
		return types.EmptyJID, fmt.Errorf("parse chat id %q: %w", id, err)
	}
	return jid, nil
}

// FromJID renders a JID without its device part.
func FromJID(jid types.JID) string {
	if jid.IsEmpty() {
		return ""
	}
	return jid.ToNonAD().String()
}
