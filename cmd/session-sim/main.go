// session-sim stands in for a UI screen: it wires a session timer coordinator
// to a real signaling transport, logs every snapshot, and ends the session on
// interrupt.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/vaidiktalk/sessioncore/internal/config"
	"github.com/vaidiktalk/sessioncore/internal/media"
	"github.com/vaidiktalk/sessioncore/internal/session"
	"github.com/vaidiktalk/sessioncore/internal/signaling"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	var (
		configPath = flag.String("config", "", "path to YAML config")
		sessionID  = flag.String("session", "", "session id to join")
		orderID    = flag.String("order", "", "billing order id")
		userID     = flag.String("user", "sim-user", "local user id")
		kind       = flag.String("kind", string(session.KindChat), "session kind")
		muted      = flag.Bool("mute", false, "join with local audio muted")
	)
	flag.Parse()

	if *sessionID == "" {
		log.Fatal().Msg("-session is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	port, closePort, err := dialTransport(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("transport", cfg.Transport).Msg("failed to connect signaling")
	}
	defer closePort()

	handle := session.Handle{
		SessionID: *sessionID,
		OrderID:   *orderID,
		UserID:    *userID,
		Role:      session.RoleProvider,
		Kind:      session.Kind(*kind),
	}

	registry := session.NewRegistry()
	coord, created, err := registry.Obtain(handle, func() (*session.Coordinator, error) {
		return session.New(handle, port, media.NewNullEngine(), session.Config{
			DriftTolerance: cfg.Timer.DriftTolerance(),
			SyncTimeout:    cfg.Timer.SyncTimeout(),
			DeriveInterval: cfg.Timer.DeriveInterval(),
		})
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build coordinator")
	}
	if !created {
		log.Info().Str("session_id", handle.SessionID).Msg("coordinator already live")
	}

	unsubscribe := coord.OnSnapshot(func(snap session.Snapshot) {
		log.Info().
			Str("session_id", snap.SessionID).
			Str("status", string(snap.Status)).
			Int("remaining_sec", snap.RemainingSeconds).
			Int("elapsed_sec", snap.ElapsedSeconds).
			Bool("media_joined", snap.MediaJoined).
			Str("end_reason", snap.EndReason).
			Msg("session snapshot")
	})
	defer unsubscribe()

	if err := coord.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start coordinator")
	}

	if *muted {
		if err := coord.Mute(media.TrackAudio, true); err != nil {
			log.Warn().Err(err).Msg("failed to mute local audio")
		}
	}

	// UI-cadence polling of the derived countdown, the way a screen repaints.
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				snap := coord.Snapshot()
				if snap.Status == session.StatusActive {
					log.Debug().
						Int("remaining_sec", snap.RemainingSeconds).
						Msg("countdown")
				}
			}
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("shutting down, ending session")
	endCtx, endCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer endCancel()
	if err := coord.RequestEnd(endCtx, "astrologer_ended"); err != nil {
		log.Warn().Err(err).Msg("end request failed")
	}
	coord.Dispose()
	registry.Release(handle.SessionID)
}

func dialTransport(ctx context.Context, cfg config.Config) (signaling.Port, func(), error) {
	switch cfg.Transport {
	case config.TransportNATS:
		natsCfg := signaling.DefaultNATSConfig()
		natsCfg.URL = cfg.SignalingURL
		natsCfg.SubjectPrefix = cfg.NATSSubjectPrefix
		port, err := signaling.ConnectNATS(natsCfg)
		if err != nil {
			return nil, nil, err
		}
		return port, func() { port.Close() }, nil
	default:
		port, err := signaling.DialWebsocket(ctx, signaling.DefaultWebsocketConfig(cfg.SignalingURL))
		if err != nil {
			return nil, nil, err
		}
		return port, func() { port.Close() }, nil
	}
}
