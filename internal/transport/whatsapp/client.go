// Package whatsapp adapts a whatsmeow client to domain.Transport and
// publishes its lifecycle and message events as domain events.
package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"
	_ "modernc.org/sqlite"

	"wagate/internal/domain"
	"wagate/internal/phone"
)

const (
	downloadTimeout = 30 * time.Second
	maxVoiceBytes   = 16 << 20
)

type Config struct {
	DBPath string
	Bus    domain.EventPublisher
	Logger *slog.Logger
}

// Client implements domain.Transport over a single whatsmeow session.
type Client struct {
	wa     *whatsmeow.Client
	bus    domain.EventPublisher
	logger *slog.Logger

	connectMu sync.Mutex
}

var _ domain.Transport = (*Client)(nil)

// New opens the session store at cfg.DBPath and prepares a client for the
// first stored device (or a fresh one to pair).
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.DBPath == "" {
		return nil, errors.New("whatsapp: session db path is required")
	}
	if cfg.Bus == nil {
		return nil, errors.New("whatsapp: event bus is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o700); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}

	dsn := "file:" + cfg.DBPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	container, err := sqlstore.New(ctx, "sqlite", dsn, newLogger(cfg.Logger, "store"))
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("load device: %w", err)
	}

	wa := whatsmeow.NewClient(device, newLogger(cfg.Logger, "client"))
	// Reconnects are owned by the supervisor.
	wa.EnableAutoReconnect = false

	c := &Client{
		wa:     wa,
		bus:    cfg.Bus,
		logger: cfg.Logger,
	}
	wa.AddEventHandler(c.handleEvent)
	return c, nil
}

// HasSession reports whether a paired device is stored.
func (c *Client) HasSession() bool {
	return c.wa.Store.ID != nil
}

// BotNumber returns the paired account's number, or "".
func (c *Client) BotNumber() string {
	if id := c.wa.Store.ID; id != nil {
		return id.User
	}
	return ""
}

// BotIDs returns the account's user ids: the number and, once the server
// has assigned one, the hidden-user LID. Group mentions use either.
func (c *Client) BotIDs() []string {
	var ids []string
	if id := c.wa.Store.ID; id != nil && id.User != "" {
		ids = append(ids, id.User)
	}
	if lid := c.wa.Store.LID; !lid.IsEmpty() {
		ids = append(ids, lid.User)
	}
	return ids
}

// Connect opens the websocket. Without a stored session it starts the QR
// flow and publishes each code as an EventQR.
func (c *Client) Connect(ctx context.Context) error {
	c.connectMu.Lock()
	defer c.connectMu.Unlock()

	if c.wa.IsConnected() {
		return nil
	}

	if c.HasSession() {
		if err := c.wa.Connect(); err != nil {
			return fmt.Errorf("whatsapp connect: %w", err)
		}
		return nil
	}

	qrChan, err := c.wa.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("whatsapp qr channel: %w", err)
	}
	if err := c.wa.Connect(); err != nil {
		return fmt.Errorf("whatsapp connect: %w", err)
	}
	go c.forwardQR(qrChan)
	return nil
}

func (c *Client) forwardQR(qrChan <-chan whatsmeow.QRChannelItem) {
	for item := range qrChan {
		switch item.Event {
		case whatsmeow.QRChannelEventCode:
			c.logger.Info("qr code received", "expires_in", item.Timeout)
			c.bus.Publish(domain.Event{Type: domain.EventQR, QRCode: item.Code})
		case whatsmeow.QRChannelSuccess.Event:
			c.logger.Info("qr pairing succeeded")
		case whatsmeow.QRChannelTimeout.Event:
			c.logger.Warn("qr pairing timed out")
			c.bus.Publish(disconnected("qr timeout"))
		case whatsmeow.QRChannelEventError:
			c.logger.Error("qr pairing failed", "err", item.Error)
			c.bus.Publish(disconnected(fmt.Sprintf("qr error: %v", item.Error)))
		default:
			c.logger.Warn("qr pairing ended", "event", item.Event)
			c.bus.Publish(disconnected("qr " + item.Event))
		}
	}
}

func (c *Client) Disconnect() {
	c.wa.Disconnect()
}

func (c *Client) handleEvent(evt any) {
	if msg, ok := evt.(*events.Message); ok {
		c.publishMessage(msg)
		return
	}
	ev, ok := lifecycleEvent(evt, c.BotNumber)
	if !ok {
		return
	}
	if ev.Type == domain.EventReady {
		c.logger.Info("whatsapp connected", "bot", ev.BotNumber)
	} else {
		c.logger.Warn("whatsapp connection lost", "type", ev.Type, "reason", ev.Reason)
	}
	c.bus.Publish(ev)
}

func (c *Client) publishMessage(evt *events.Message) {
	msg := toInbound(evt)
	if audio := evt.Message.GetAudioMessage(); audio != nil && !msg.FromMe && audio.GetFileLength() <= maxVoiceBytes {
		ctx, cancel := context.WithTimeout(context.Background(), downloadTimeout)
		data, err := c.wa.Download(ctx, audio)
		cancel()
		if err != nil {
			c.logger.Warn("voice note download failed", "id", msg.ID, "err", err)
		} else {
			msg.Audio = &domain.Media{
				Data:     data,
				MIMEType: audio.GetMimetype(),
				FileName: "audio.ogg",
			}
		}
	}
	c.bus.Publish(domain.Event{Type: domain.EventMessage, Message: &msg})
}

func (c *Client) ready() error {
	if !c.wa.IsConnected() || !c.wa.IsLoggedIn() {
		return domain.ErrNotReady
	}
	return nil
}

func (c *Client) SendText(ctx context.Context, to, text string) (string, error) {
	if err := c.ready(); err != nil {
		return "", err
	}
	jid, err := ToJID(to)
	if err != nil {
		return "", err
	}
	resp, err := c.wa.SendMessage(ctx, jid, &waE2E.Message{Conversation: proto.String(text)})
	if err != nil {
		return "", fmt.Errorf("send text: %w", err)
	}
	return resp.ID, nil
}

func (c *Client) SendMedia(ctx context.Context, to string, media domain.Media) (string, error) {
	if err := c.ready(); err != nil {
		return "", err
	}
	jid, err := ToJID(to)
	if err != nil {
		return "", err
	}
	uploaded, err := c.wa.Upload(ctx, media.Data, mediaType(media.MIMEType))
	if err != nil {
		return "", fmt.Errorf("upload media: %w", err)
	}
	resp, err := c.wa.SendMessage(ctx, jid, mediaMessage(uploaded, media))
	if err != nil {
		return "", fmt.Errorf("send media: %w", err)
	}
	return resp.ID, nil
}

func (c *Client) React(ctx context.Context, msg domain.InboundMessage, emoji string) error {
	if err := c.ready(); err != nil {
		return err
	}
	chat, err := ToJID(msg.Chat)
	if err != nil {
		return err
	}
	// The reaction key must name the author the way the chat addressed them.
	senderID := msg.Sender
	if msg.SenderLID != "" {
		senderID = msg.SenderLID
	}
	sender, err := ToJID(senderID)
	if err != nil {
		return err
	}
	if _, err := c.wa.SendMessage(ctx, chat, c.wa.BuildReaction(chat, sender, msg.ID, emoji)); err != nil {
		return fmt.Errorf("react: %w", err)
	}
	return nil
}

// Lookup normalizes number and asks the server whether it has an account.
func (c *Client) Lookup(ctx context.Context, number string) (string, bool, error) {
	if err := c.ready(); err != nil {
		return "", false, err
	}
	user := phone.User(phone.Normalize(number))
	if user == "" {
		return "", false, nil
	}
	resp, err := c.wa.IsOnWhatsApp(ctx, []string{"+" + user})
	if err != nil {
		return "", false, fmt.Errorf("lookup: %w", err)
	}
	for _, r := range resp {
		if r.IsIn {
			return FromJID(r.JID), true, nil
		}
	}
	return "", false, nil
}

func (c *Client) Groups(ctx context.Context) ([]domain.Group, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	joined, err := c.wa.GetJoinedGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	return toGroups(joined), nil
}

func toGroups(joined []*types.GroupInfo) []domain.Group {
	groups := make([]domain.Group, 0, len(joined))
	for _, g := range joined {
		if g == nil {
			continue
		}
		groups = append(groups, domain.Group{
			ID:           FromJID(g.JID),
			Name:         g.Name,
			Participants: len(g.Participants),
		})
	}
	return groups
}

func mediaType(mime string) whatsmeow.MediaType {
	switch {
	case strings.HasPrefix(mime, "image/"):
		return whatsmeow.MediaImage
	case strings.HasPrefix(mime, "audio/"):
		return whatsmeow.MediaAudio
	default:
		return whatsmeow.MediaDocument
	}
}

func mediaMessage(up whatsmeow.UploadResponse, media domain.Media) *waE2E.Message {
	switch mediaType(media.MIMEType) {
	case whatsmeow.MediaImage:
		return &waE2E.Message{ImageMessage: &waE2E.ImageMessage{
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(up.FileLength),
			Mimetype:      proto.String(media.MIMEType),
			Caption:       proto.String(media.Caption),
		}}
	case whatsmeow.MediaAudio:
		return &waE2E.Message{AudioMessage: &waE2E.AudioMessage{
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(up.FileLength),
			Mimetype:      proto.String(media.MIMEType),
		}}
	default:
		name := media.FileName
		if name == "" {
			name = "arquivo"
		}
		return &waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(up.FileLength),
			Mimetype:      proto.String(media.MIMEType),
			FileName:      proto.String(name),
			Caption:       proto.String(media.Caption),
		}}
	}
}
