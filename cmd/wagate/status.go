package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"wagate/internal/domain"
	"wagate/internal/provider"
	"wagate/internal/transport/whatsapp"
)

type discardEvents struct{}

func (discardEvents) Publish(domain.Event) {}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configuration, providers and session state",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, found, err := loadConfig()
			if err != nil {
				return err
			}

			fmt.Printf("wagate v%s\n", version)
			if found {
				fmt.Printf("Config:    %s\n", resolveConfigPath())
			} else {
				fmt.Printf("Config:    defaults + environment (%s not found)\n", resolveConfigPath())
			}
			fmt.Printf("HTTP API:  %s:%d\n", cfg.Server.Host, cfg.Server.Port)

			var enabled []string
			for name, p := range cfg.Providers {
				if p.Enabled {
					enabled = append(enabled, name)
				}
			}
			fmt.Printf("Providers: %v (default: %s)\n", enabled, cfg.AI.Provider)

			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()

			if p := provider.NewFactory(cfg, logger).HealthyProvider(ctx); p != nil {
				fmt.Printf("Healthy:   %s\n", p.Name())
			} else {
				fmt.Printf("Healthy:   none\n")
			}

			client, err := whatsapp.New(ctx, whatsapp.Config{
				DBPath: cfg.WhatsApp.DBPath,
				Bus:    discardEvents{},
				Logger: logger,
			})
			switch {
			case err != nil:
				fmt.Printf("Session:   error (%v)\n", err)
			case client.HasSession():
				fmt.Printf("Session:   paired as %s\n", client.BotNumber())
			default:
				fmt.Printf("Session:   not paired (run 'wagate login')\n")
			}

			if cfg.Webhook.URL != "" {
				fmt.Printf("Webhook:   %s\n", cfg.Webhook.URL)
			} else {
				fmt.Printf("Webhook:   disabled\n")
			}
			return nil
		},
	}
}
