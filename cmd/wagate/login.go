package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"wagate/internal/domain"
	"wagate/internal/status"
	"wagate/internal/transport/whatsapp"
)

// eventSink hands transport events to a channel without blocking the
// whatsmeow event goroutine.
type eventSink chan domain.Event

func (s eventSink) Publish(ev domain.Event) {
	select {
	case s <- ev:
	default:
	}
}

func loginCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Pair this gateway with a WhatsApp account by scanning a QR code",
		Long: `Prints WhatsApp Web QR codes in the terminal until one is scanned from
the phone (WhatsApp > Linked devices). The session is stored in the
session database and reused by 'wagate gateway'.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			sink := make(eventSink, 16)
			client, err := whatsapp.New(ctx, whatsapp.Config{
				DBPath: cfg.WhatsApp.DBPath,
				Bus:    sink,
				Logger: logger,
			})
			if err != nil {
				return err
			}
			if client.HasSession() {
				fmt.Printf("Already paired as %s (session: %s)\n", client.BotNumber(), cfg.WhatsApp.DBPath)
				return nil
			}

			if err := client.Connect(ctx); err != nil {
				return err
			}
			defer client.Disconnect()

			return waitForPairing(ctx, sink)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 3*time.Minute, "give up when no code is scanned within this time (0 waits forever)")
	return cmd
}

func waitForPairing(ctx context.Context, events <-chan domain.Event) error {
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return errors.New("login timed out before the QR code was scanned")
			}
			return ctx.Err()
		case ev := <-events:
			switch ev.Type {
			case domain.EventQR:
				status.PrintQR(os.Stdout, ev.QRCode)
				fmt.Println("Scan the code above with WhatsApp > Linked devices.")
			case domain.EventReady:
				fmt.Printf("Paired as %s. Run 'wagate gateway' to start.\n", ev.BotNumber)
				return nil
			case domain.EventDisconnected:
				return fmt.Errorf("login failed: %s", ev.Reason)
			case domain.EventLoggedOut:
				return fmt.Errorf("login rejected: %s", ev.Reason)
			}
		}
	}
}
