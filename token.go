package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/kasuganosora/battlerecorder/config"
	mw "github.com/kasuganosora/battlerecorder/middleware"
	"github.com/spf13/pflag"
)

// tokenConfig is the parsed `battlerecorder token` command line.
type tokenConfig struct {
	ConfigPath string
	TTL        time.Duration
	Source     string
}

func parseTokenConfig(args []string) (tokenConfig, error) {
	var cfg tokenConfig
	fs := pflag.NewFlagSet("token", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVarP(&cfg.ConfigPath, "config", "c", "config/config.yaml", "config file holding security.ingest_secret")
	fs.DurationVar(&cfg.TTL, "ttl", 0, "token lifetime; 0 never expires")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	if fs.NArg() != 1 {
		return cfg, errors.New("usage: battlerecorder token [--config path] [--ttl 24h] <source>")
	}
	cfg.Source = fs.Arg(0)
	return cfg, nil
}

// runToken prints an HS256 ingest token for the configured secret. The
// token carries iss=battlerecorder and sub=<source>.
func runToken(w io.Writer, args []string) error {
	tc, err := parseTokenConfig(args)
	if err != nil {
		return err
	}
	cfg, err := config.Load(tc.ConfigPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if cfg.Security.IngestSecret == "" {
		return errors.New("security.ingest_secret is not set; ingest accepts any client")
	}
	token, err := mw.GenerateToken(tc.Source, cfg.Security.IngestSecret, tc.TTL)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, token)
	return err
}
