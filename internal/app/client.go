package app

import (
	"context"
	"fmt"

	"github.com/1ureka/pongnet/internal/config"
	"github.com/1ureka/pongnet/internal/session"
	"github.com/1ureka/pongnet/internal/util"
)

// RunClient joins the host named in cfg and runs the console exchange.
func RunClient(ctx context.Context, cfg *config.Config, con Console) error {
	if cfg.Name == "" {
		return fmt.Errorf("missing host name to join")
	}

	peer, err := newPeer(cfg)
	if err != nil {
		return err
	}

	s, err := session.NewClient(cfg.Name, session.Options{
		Transport:  newTransport(cfg),
		Connection: peer,
	})
	if err != nil {
		peer.Close()
		return err
	}
	defer s.Close()

	attachConsole(s, con.Out)
	if err := s.Start(ctx); err != nil {
		return err
	}
	util.LogInfo("joining %q", cfg.Name)

	return converse(ctx, s, con.In, cfg.StatsInterval)
}
