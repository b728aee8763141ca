package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"wagate/internal/config"
	"wagate/internal/provider"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your wagate installation",
		Long: `Verifies that the configuration, the session database, the providers
and the HTTP port are usable. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("wagate doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			passed, failed, warned := 0, 0, 0
			pass := func(check, detail string) { printPass(check, detail); passed++ }
			fail := func(check, detail string) { printFail(check, detail); failed++ }
			warn := func(check, detail string) { printWarn(check, detail); warned++ }

			if _, err := os.Stat(cfgPath); err != nil {
				warn("Config file", fmt.Sprintf("not found at %s, using defaults + environment", cfgPath))
			} else {
				pass("Config file", cfgPath)
			}

			if err := config.LoadDotEnv(); err != nil {
				warn(".env", err.Error())
			}
			cfg, _, err := config.LoadOrDefaults(cfgPath)
			if err != nil {
				fail("Config validation", err.Error())
				fmt.Printf("\n%d passed, %d failed\n", passed, failed)
				return fmt.Errorf("config is invalid")
			}
			pass("Config validation", "valid")

			if cfg.Server.APIKey == "" {
				fail("API key", "server.apiKey / API_KEY is empty, every protected route will answer 401")
			} else {
				pass("API key", "set")
			}
			for _, w := range config.Warnings(cfg) {
				warn("Config", w)
			}

			if err := checkDatabase(cfg.WhatsApp.DBPath); err != nil {
				fail("Session database", err.Error())
			} else {
				pass("Session database", cfg.WhatsApp.DBPath)
			}

			providerCount := 0
			for name, p := range cfg.Providers {
				if !p.Enabled {
					continue
				}
				providerCount++
				if p.APIKey == "" && p.APIBase == "" {
					warn("Provider: "+name, "enabled but no API key/base configured")
				} else {
					pass("Provider: "+name, "configured")
				}
			}
			if providerCount == 0 {
				warn("Providers", "no providers enabled, chat messages will only get the help text")
			} else {
				ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				p := provider.NewFactory(cfg, logger).HealthyProvider(ctx)
				cancel()
				if p == nil {
					fail("Provider health", "no enabled provider answered")
				} else {
					pass("Provider health", p.Name())
				}
			}

			if err := checkPort(cfg.Server.Host, cfg.Server.Port); err != nil {
				warn("HTTP port", fmt.Sprintf("port %d may be in use: %v", cfg.Server.Port, err))
			} else {
				pass("HTTP port", fmt.Sprintf(":%d available", cfg.Server.Port))
			}

			if cfg.Webhook.URL != "" {
				if u, err := url.Parse(cfg.Webhook.URL); err != nil || u.Host == "" {
					fail("Approval webhook", "invalid url "+cfg.Webhook.URL)
				} else {
					pass("Approval webhook", u.Host)
				}
			}

			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				fmt.Printf("\nPlease fix the failed checks before running the gateway.\n")
				return fmt.Errorf("%d check(s) failed", failed)
			}
			if warned > 0 {
				fmt.Printf("\nThe gateway should work but consider fixing the warnings.\n")
			} else {
				fmt.Printf("\nAll checks passed! Run 'wagate gateway' to start.\n")
			}
			return nil
		},
	}
}

// checkDatabase opens the session database and tries a write.
func checkDatabase(dbPath string) error {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return fmt.Errorf("cannot create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return fmt.Errorf("cannot open: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("cannot ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS _doctor_test (id INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	db.ExecContext(ctx, "DROP TABLE IF EXISTS _doctor_test")
	return nil
}

func checkPort(host string, port int) error {
	ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}

func printPass(check, detail string) {
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
}

func printWarn(check, detail string) {
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
}
