package app

import (
	"context"

	"github.com/1ureka/pongnet/internal/config"
	"github.com/1ureka/pongnet/internal/session"
	"github.com/1ureka/pongnet/internal/util"
)

// RunHost orchestrates the full host lifecycle:
//  1. Register an offer under the chosen (or a random) name
//  2. Wait for a client to answer and the connection to come up
//  3. Exchange console lines over the ordered channel until shutdown
func RunHost(ctx context.Context, cfg *config.Config, con Console) error {
	name := util.NameOrRandom(cfg.Name)

	peer, err := newPeer(cfg)
	if err != nil {
		return err
	}

	tr := newTransport(cfg)
	s, err := session.NewHost(name, session.Options{
		Transport:  tr,
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
	util.LogInfo("hosting as %q on %s, share this name with the client", name, tr)

	return converse(ctx, s, con.In, cfg.StatsInterval)
}
