package whatsapp

import (
	"testing"

	"go.mau.fi/whatsmeow/types"
)

func TestToJID(t *testing.T) {
	tests := []struct {
		in   string
		want types.JID
	}{
		{"5511999999999@c.us", types.NewJID("5511999999999", types.DefaultUserServer)},
		{"11999999999", types.NewJID("5511999999999", types.DefaultUserServer)},
		{"(11) 99999-9999", types.NewJID("5511999999999", types.DefaultUserServer)},
		{"5511999999999@s.whatsapp.net", types.NewJID("5511999999999", types.DefaultUserServer)},
		{"120363025246125486@g.us", types.NewJID("120363025246125486", types.GroupServer)},
	}
	for _, tt := range tests {
		got, err := ToJID(tt.in)
		if err != nil {
			t.Fatalf("ToJID(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("ToJID(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestToJID_Empty(t *testing.T) {
	for _, in := range []string{"", "   ", "@c.us"} {
		if _, err := ToJID(in); err == nil {
			t.Fatalf("expected error for %q", in)
		}
	}
}

func TestFromJID_DropsDevice(t *testing.T) {
	jid := types.JID{User: "5511999999999", Device: 12, Server: types.DefaultUserServer}
	if got := FromJID(jid); got != "5511999999999@s.whatsapp.net" {
		t.Fatalf("got %q", got)
	}
	if got := FromJID(types.EmptyJID); got != "" {
		t.Fatalf("empty jid should render empty, got %q", got)
	}
}
