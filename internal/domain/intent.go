package domain

import "strings"

// Intent is the classified purpose of an inbound message.
type Intent string

const (
	IntentSticker Intent = "sticker"
	IntentImage   Intent = "image"
	IntentAudio   Intent = "audio"
	IntentJoke    Intent = "joke"
	IntentChat    Intent = "chat"
	IntentHelp    Intent = "help"
)

// Intents lists the closed set in display order.
var Intents = []Intent{IntentSticker, IntentImage, IntentAudio, IntentJoke, IntentChat, IntentHelp}

// ParseIntent maps s onto the closed set. Anything else is help.
func ParseIntent(s string) Intent {
	switch Intent(strings.ToLower(strings.TrimSpace(s))) {
	case IntentSticker:
		return IntentSticker
	case IntentImage:
		return IntentImage
	case IntentAudio:
		return IntentAudio
	case IntentJoke:
		return IntentJoke
	case IntentChat:
		return IntentChat
	default:
		return IntentHelp
	}
}

// Classified is the classifier output. Payload is empty for help.
type Classified struct {
	Intent  Intent
	Payload string
}
