// Package app contains the top-level orchestration for the host, client and
// relay roles.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/1ureka/pongnet/internal/config"
	"github.com/1ureka/pongnet/internal/relay"
	"github.com/1ureka/pongnet/internal/rtc"
	"github.com/1ureka/pongnet/internal/signaling"
)

// ChannelTimeout bounds the wait for both data channels after connecting.
const ChannelTimeout = 30 * time.Second

// Console is where a connected session reads outgoing lines and prints
// incoming messages.
type Console struct {
	In  io.Reader
	Out io.Writer
}

// Run executes the role selected in cfg.
func Run(ctx context.Context, cfg *config.Config, con Console) error {
	switch cfg.Role {
	case config.RoleHost:
		return RunHost(ctx, cfg, con)
	case config.RoleClient:
		return RunClient(ctx, cfg, con)
	case config.RoleRelay:
		return RunRelay(ctx, cfg)
	default:
		return fmt.Errorf("unknown role %q", cfg.Role)
	}
}

// RunRelay serves the in-memory relay until ctx is cancelled.
func RunRelay(ctx context.Context, cfg *config.Config) error {
	srv := relay.NewServer(relay.Options{Debug: cfg.Debug})
	err := srv.ListenAndServe(ctx, cfg.Listen)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func newTransport(cfg *config.Config) *signaling.HTTPTransport {
	return signaling.NewHTTPTransport(cfg.RelayURL, signaling.Options{
		PollInterval:   cfg.PollInterval,
		RequestTimeout: cfg.RequestTimeout,
	})
}

func newPeer(cfg *config.Config) (*rtc.Peer, error) {
	peer, err := rtc.NewPeer(rtc.Config{ICEServers: cfg.ICEServers})
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}
	return peer, nil
}
