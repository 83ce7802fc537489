package main

import (
	"errors"
	"flag"
	"os"
)

// version is injected at build time with -ldflags "-X main.version=...".
// Defaults to dev.
var version = "dev"

// cliConfig holds user-supplied flag values prior to translation into
// config.Config, so main.go can validate and map (grounded on the teacher's
// cmd/rtmp-server/flags.go cliConfig shape).
type cliConfig struct {
	configFile  string
	inURL       string
	outURL      string
	logLevel    string
	controlAddr string
	consentDir  string
	showVersion bool
}

func parseFlags(args []string) (*cliConfig, error) {
	fs := flag.NewFlagSet("privacy-filter", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	cfg := &cliConfig{}
	fs.StringVar(&cfg.configFile, "config", "", "Path to a YAML configuration override file")
	fs.StringVar(&cfg.inURL, "in", "", "Input stream URL (overrides config/env)")
	fs.StringVar(&cfg.outURL, "out", "", "Output stream URL (overrides config/env)")
	fs.StringVar(&cfg.logLevel, "log-level", "", "Log level: debug|info|warn|error")
	fs.StringVar(&cfg.controlAddr, "control-addr", "", "Control API listen address (overrides config)")
	fs.StringVar(&cfg.consentDir, "consent-dir", "", "Consent capture directory (overrides config/env)")
	fs.BoolVar(&cfg.showVersion, "version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if cfg.logLevel != "" {
		switch cfg.logLevel {
		case "debug", "info", "warn", "error":
		default:
			return nil, errors.New("invalid -log-level: must be debug, info, warn, or error")
		}
	}

	return cfg, nil
}
