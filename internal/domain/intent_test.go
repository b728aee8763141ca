package domain

import "testing"

func TestParseIntent_ClosedSet(t *testing.T) {
	for _, in := range Intents {
		if got := ParseIntent(string(in)); got != in {
			t.Fatalf("ParseIntent(%q) = %q", in, got)
		}
	}
}

func TestParseIntent_NormalizesCase(t *testing.T) {
	if got := ParseIntent("  STICKER "); got != IntentSticker {
		t.Fatalf("expected sticker, got %q", got)
	}
}

func TestParseIntent_UnknownIsHelp(t *testing.T) {
	for _, s := range []string{"", "video", "figurinha", "null"} {
		if got := ParseIntent(s); got != IntentHelp {
			t.Fatalf("ParseIntent(%q) = %q, want help", s, got)
		}
	}
}

func TestInboundMessage_Mentioned(t *testing.T) {
	msg := InboundMessage{Mentions: []string{"5511999999999@s.whatsapp.net"}}
	if !msg.Mentioned("5511999999999:12@s.whatsapp.net") {
		t.Fatal("expected device jid to match mention")
	}
	if msg.Mentioned("5511888888888@s.whatsapp.net") {
		t.Fatal("unexpected match")
	}
	if msg.Mentioned("") {
		t.Fatal("empty id must not match")
	}
}

func TestInboundMessage_MentionedByLID(t *testing.T) {
	msg := InboundMessage{Mentions: []string{"98765432109876@lid"}}
	if !msg.Mentioned("5511999999999", "98765432109876") {
		t.Fatal("expected LID mention to match the second id")
	}
	if msg.Mentioned("5511999999999") {
		t.Fatal("number alone must not match a LID mention")
	}
	if msg.Mentioned() {
		t.Fatal("no ids must not match")
	}
}

func TestReply_Empty(t *testing.T) {
	if !(Reply{}).Empty() {
		t.Fatal("zero reply should be empty")
	}
	if TextReply("oi").Empty() {
		t.Fatal("text reply should not be empty")
	}
}
