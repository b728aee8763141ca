package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"wagate/internal/bus"
	"wagate/internal/config"
	"wagate/internal/dispatch"
	"wagate/internal/domain"
	"wagate/internal/handler"
	"wagate/internal/httpapi"
	"wagate/internal/intent"
	"wagate/internal/metrics"
	"wagate/internal/provider"
	"wagate/internal/reconnect"
	"wagate/internal/status"
	"wagate/internal/sticker"
	"wagate/internal/transport/whatsapp"
	"wagate/internal/webhook"
)

const eventBufferSize = 100

func gatewayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Start the WhatsApp session, the bot and the HTTP API",
		Long:  "Connects to WhatsApp (showing a QR code on /qrcode when not paired), answers chat messages and serves the HTTP API. Press Ctrl+C to stop.",
		RunE:  runGateway,
	}
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	for _, w := range config.Warnings(cfg) {
		logger.Warn(w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}
	rec := status.New()
	events := bus.New(eventBufferSize, logger)

	transport, err := whatsapp.New(ctx, whatsapp.Config{
		DBPath: cfg.WhatsApp.DBPath,
		Bus:    events,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	factory := provider.NewFactory(cfg, logger)
	prov := completionProvider(ctx, factory)

	dispatcher := dispatch.NewDispatcher(dispatch.DispatcherConfig{
		Transport:       transport,
		Classifier:      classifierFor(prov),
		Handlers:        buildHandlers(cfg, factory, prov),
		Notifier:        notifierFor(cfg),
		Transcribe:      transcriberFor(factory),
		Limiter:         dispatch.NewRateLimiter(cfg.Dispatch.RateBurst, float64(cfg.Dispatch.RatePerMinute)),
		Metrics:         m,
		BotIDs:          transport.BotIDs,
		ReactOnReceive:  cfg.Dispatch.ReactOnReceive,
		RespondInGroups: cfg.Dispatch.RespondInGroups,
		Timeout:         time.Duration(cfg.Dispatch.HandlerTimeoutSeconds) * time.Second,
		Logger:          logger,
	})

	supervisor := reconnect.New(reconnect.Config{
		Connect:     transport.Connect,
		Base:        time.Duration(cfg.WhatsApp.ReconnectBaseSeconds) * time.Second,
		Max:         time.Duration(cfg.WhatsApp.ReconnectMaxSeconds) * time.Second,
		MaxAttempts: cfg.WhatsApp.ReconnectMaxAttempts,
		OnAttempt: func(attempt int, delay time.Duration) {
			rec.SetReconnecting(attempt)
			m.ReconnectAttempt()
		},
		OnGiveUp: func(err error) {
			rec.SetFailed(err.Error())
		},
		Logger: logger,
	})

	var qrOut io.Writer
	if cfg.WhatsApp.PrintQR {
		qrOut = os.Stdout
	}
	loop := dispatch.NewLoop(dispatch.LoopConfig{
		Events:      events,
		Status:      rec,
		Handler:     dispatcher,
		Reconnect:   supervisor,
		Metrics:     m,
		QRTerminal:  qrOut,
		Concurrency: cfg.Dispatch.Concurrency,
		Logger:      logger,
	})

	server := httpapi.New(httpapi.Config{
		Addr:        net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		APIKey:      cfg.Server.APIKey,
		BotName:     cfg.General.BotName,
		Transport:   transport,
		Status:      rec,
		Provider:    prov,
		MaxTokens:   cfg.AI.MaxTokens,
		Metrics:     m,
		MetricsPath: cfg.Metrics.Path,
		BulkDelay:   time.Duration(cfg.Server.BulkDelayMillis) * time.Millisecond,
		BulkMax:     cfg.Server.BulkMaxNumbers,
		QRRefresh:   time.Duration(cfg.Server.QRRefreshSeconds) * time.Second,
		Location:    location(cfg.General.Timezone),
		Logger:      logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		loop.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return supervisor.Run(gctx)
	})
	g.Go(func() error {
		return server.Run(gctx)
	})
	g.Go(func() error {
		if err := transport.Connect(gctx); err != nil {
			logger.Error("initial connect failed", "err", err)
			rec.SetDisconnected(err.Error())
			supervisor.Trigger()
		}
		<-gctx.Done()
		logger.Info("shutting down gateway...")
		transport.Disconnect()
		events.Close()
		return nil
	})

	logger.Info("gateway started", "version", version, "port", cfg.Server.Port, "session", transport.HasSession())
	if err := g.Wait(); err != nil {
		return fmt.Errorf("gateway: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}

// completionProvider returns the configured provider, or nil when none is
// usable. Without one every inbound message gets the help text.
func completionProvider(ctx context.Context, factory *provider.Factory) domain.Provider {
	prov, err := factory.DefaultProvider()
	if err != nil {
		logger.Warn("no completion provider", "err", err)
		return nil
	}
	hctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := prov.Healthy(hctx); err != nil {
		logger.Warn("provider unhealthy at startup", "provider", prov.Name(), "err", err)
	} else {
		logger.Info("provider healthy", "provider", prov.Name())
	}
	return prov
}

func classifierFor(prov domain.Provider) dispatch.Classifier {
	if prov == nil {
		return nil
	}
	return intent.NewClassifier(intent.ClassifierConfig{
		Provider: prov,
		Logger:   logger,
	})
}

func buildHandlers(cfg *config.Config, factory *provider.Factory, prov domain.Provider) *handler.Registry {
	deps := handler.Deps{
		Provider:  prov,
		BotName:   cfg.General.BotName,
		MaxTokens: cfg.AI.MaxTokens,
		Logger:    logger,
	}
	if r, err := sticker.New(cfg.Media.Sticker, logger); err != nil {
		logger.Warn("sticker backend unavailable", "backend", cfg.Media.Sticker.Backend, "err", err)
	} else {
		deps.Sticker = r
	}
	if g, err := factory.ImageGenerator(); err != nil {
		logger.Warn("image backend unavailable", "backend", cfg.Media.Image.Backend, "err", err)
	} else {
		deps.Image = g
	}
	if s, err := factory.SpeechSynthesizer(); err != nil {
		logger.Warn("tts backend unavailable", "backend", cfg.Media.TTS.Backend, "err", err)
	} else {
		deps.Speech = s
	}
	reg := handler.NewDefaultRegistry(deps)
	logger.Info("handlers ready", "intents", reg.Intents())
	return reg
}

func notifierFor(cfg *config.Config) dispatch.Notifier {
	if cfg.Webhook.URL == "" {
		return nil
	}
	return webhook.NewNotifier(webhook.NotifierConfig{
		URL:     cfg.Webhook.URL,
		Token:   cfg.Webhook.Token,
		Secret:  cfg.Webhook.Secret,
		Timeout: time.Duration(cfg.Webhook.TimeoutSeconds) * time.Second,
		Logger:  logger,
	})
}

func transcriberFor(factory *provider.Factory) dispatch.Transcriber {
	w, err := factory.Transcriber()
	if err != nil {
		logger.Warn("voice transcription unavailable", "err", err)
		return nil
	}
	if w == nil {
		return nil
	}
	return w
}

func location(name string) *time.Location {
	if name == "" {
		return nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		logger.Warn("unknown timezone, using America/Sao_Paulo", "timezone", name, "err", err)
		return nil
	}
	return loc
}
