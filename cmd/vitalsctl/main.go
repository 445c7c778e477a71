package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/danmuck/vitalsgw/internal/auth"
	"github.com/danmuck/vitalsgw/internal/config"
	"github.com/danmuck/vitalsgw/internal/gateway"
	"github.com/danmuck/vitalsgw/internal/identity"
	"github.com/danmuck/vitalsgw/internal/observability"
	"github.com/danmuck/vitalsgw/internal/server"
	"github.com/danmuck/vitalsgw/internal/source"
)

const defaultConfigPath = "cmd/vitalsctl/config.toml"

type options struct {
	configPath    string
	configSet     bool
	identityPath  string
	port          string
	setName       string
	resetIdentity bool
	listPorts     bool
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "vitalsctl: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	var opts options
	fs := flag.NewFlagSet("vitalsctl", flag.ContinueOnError)
	fs.StringVar(&opts.configPath, "config", defaultConfigPath, "gateway config path")
	fs.StringVar(&opts.identityPath, "identity", "", "identity file (overrides [identity].path)")
	fs.StringVar(&opts.port, "port", "", "serial port (overrides [serial].port)")
	fs.StringVar(&opts.setName, "set-name", "", "store a new device name and exit")
	fs.BoolVar(&opts.resetIdentity, "reset-identity", false, "remove the stored device name and exit")
	fs.BoolVar(&opts.listPorts, "list-ports", false, "list serial ports and exit")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "config" {
			opts.configSet = true
		}
	})
	return opts, nil
}

// loadConfig falls back to defaults only when the default config path is
// missing; an explicit -config must exist.
func loadConfig(opts options) (gateway.Config, error) {
	cfg := gateway.DefaultConfig()
	if _, err := os.Stat(opts.configPath); err == nil || opts.configSet {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return gateway.Config{}, err
		}
		cfg = loaded
	}
	if opts.identityPath != "" {
		cfg.IdentityPath = opts.identityPath
	}
	if opts.port != "" {
		cfg.Serial.Port = strings.TrimSpace(opts.port)
	}
	return cfg, nil
}

func run(args []string, stdout io.Writer) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}
	logger := observability.InitLogger("vitalsctl")

	if opts.listPorts {
		ports, err := source.ListPorts()
		if err != nil {
			return err
		}
		for _, p := range ports {
			fmt.Fprintln(stdout, p)
		}
		return nil
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	switch {
	case opts.resetIdentity:
		if err := identity.Reset(cfg.IdentityPath); err != nil {
			return err
		}
		logger.Info().Str("path", cfg.IdentityPath).Str("device_name", identity.DefaultName).Msg("identity reset")
		return nil
	case opts.setName != "":
		if err := identity.Save(cfg.IdentityPath, identity.Identity{DeviceName: opts.setName}); err != nil {
			return err
		}
		logger.Info().Str("path", cfg.IdentityPath).Str("device_name", strings.TrimSpace(opts.setName)).Msg("identity saved")
		return nil
	}

	svc, err := gateway.NewService(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if strings.TrimSpace(cfg.StatusAddr) != "" {
		status := server.New("vitalsctl", cfg.StatusAddr, cfg.CorsOrigins, svc, auth.FromToken(cfg.StatusToken))
		go func() {
			if err := status.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Str("addr", cfg.StatusAddr).Msg("status server stopped")
			}
		}()
		logger.Info().Str("addr", cfg.StatusAddr).Msg("status server started")
	}

	logger.Info().Str("port", cfg.Serial.Port).Int("baud", cfg.Serial.BaudRate).Msg("vitalsctl started")
	return svc.Serve(ctx)
}
