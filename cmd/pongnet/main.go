// Pongnet CLI entry point.
//
// Two peers find each other through a signaling relay, negotiate a WebRTC
// connection and exchange text over its data channels. The relay is only
// used until the connection is up.
//
// It can be launched interactively (no --role) or non-interactively via CLI
// flags, environment variables (PONGNET_*) or ./pongnet.yaml.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/pflag"

	"github.com/1ureka/pongnet/internal/app"
	"github.com/1ureka/pongnet/internal/config"
	"github.com/1ureka/pongnet/internal/util"
)

var version = "dev"

func main() {
	// Root context, cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fs := pflag.NewFlagSet("pongnet", pflag.ContinueOnError)
	config.RegisterFlags(fs)
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		util.LogError("%v", err)
		os.Exit(2)
	}

	cfg, err := config.Load(fs)
	if err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}
	if cfg.Debug {
		util.EnableDebug()
	}

	pterm.Info.Println(fmt.Sprintf("Pongnet v%s", version))
	pterm.Println()

	if cfg.Role == "" {
		askRole(cfg)
	}
	if err := cfg.Validate(); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}
	if cfg.Role != config.RoleRelay {
		if cfg.RelayURL, err = normalizeRelayURL(cfg.RelayURL); err != nil {
			util.LogError("%v", err)
			os.Exit(1)
		}
	}

	if err := app.Run(ctx, cfg, app.Console{In: os.Stdin, Out: os.Stdout}); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}
	util.LogInfo("session closed")
}

// askRole fills in the role and its parameters through interactive prompts
// when no --role was given.
func askRole(cfg *config.Config) {
	role, _ := pterm.DefaultInteractiveSelect.
		WithOptions([]string{
			"Host   - Register a name and wait for a peer",
			"Client - Join a host by name",
			"Relay  - Run a local signaling relay",
		}).
		WithDefaultText("Select your role").
		Show()
	pterm.Println()

	switch {
	case strings.HasPrefix(role, "Host"):
		cfg.Role = config.RoleHost
		cfg.RelayURL = askURL(cfg.RelayURL)
		cfg.Name = strings.TrimSpace(ask("Name to register (empty for random)", cfg.Name))
	case strings.HasPrefix(role, "Client"):
		cfg.Role = config.RoleClient
		cfg.RelayURL = askURL(cfg.RelayURL)
		for cfg.Name == "" {
			cfg.Name = strings.TrimSpace(ask("Host name to join", ""))
			if cfg.Name == "" {
				util.LogWarning("host name must not be empty")
			}
		}
	default:
		cfg.Role = config.RoleRelay
		cfg.Listen = ask("Listen address", cfg.Listen)
	}
}

// ask prompts once; an empty answer keeps def.
func ask(prompt, def string) string {
	text := pterm.DefaultInteractiveTextInput.WithDefaultText(prompt)
	if def != "" {
		text = text.WithDefaultValue(def)
	}
	raw, _ := text.Show()
	pterm.Println()

	if strings.TrimSpace(raw) == "" {
		return def
	}
	return raw
}

// askURL prompts for the relay URL until a valid one is entered.
func askURL(def string) string {
	for {
		u, err := normalizeRelayURL(ask("Relay URL (e.g. https://relay.example.com)", def))
		if err == nil {
			return u
		}
		util.LogWarning("%v", err)
	}
}

// normalizeRelayURL validates a relay base URL, defaulting the scheme to https.
func normalizeRelayURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", fmt.Errorf("invalid relay URL: %s", raw)
	}
	return strings.TrimRight(u.Scheme+"://"+u.Host+u.Path, "/"), nil
}
