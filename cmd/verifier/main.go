package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/email-verifier/console/internal/config"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "verifier",
		Usage:   "upload CSV lists to the email verification service",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "configuration file (.xml, .yaml or .yml); created with defaults when missing",
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "KEY=VALUE file loaded into the environment before the configuration",
				Value: ".env",
			},
			&cli.StringFlag{
				Name:    "base-url",
				Usage:   "verification service base URL",
				EnvVars: []string{config.EnvBaseURL},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "debug, info, warn, error or off",
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			verifyCommand(),
			columnsCommand(),
		},
	}
}

// loadConfig resolves the configuration file and applies global flag
// overrides on top of the file and environment.
func loadConfig(c *cli.Context) (*config.AppConfig, string, error) {
	if err := config.LoadEnvFile(c.String("env-file")); err != nil {
		return nil, "", err
	}

	configPath := c.String("config")
	if configPath == "" {
		exePath, err := os.Executable()
		if err != nil {
			return nil, "", fmt.Errorf("failed to get executable path: %w", err)
		}
		configPath = filepath.Join(filepath.Dir(exePath), config.DefaultFileName)
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load configuration: %w", err)
	}

	if v := c.String("base-url"); v != "" {
		cfg.Service.BaseURL = v
	}
	if v := c.String("log-level"); v != "" {
		cfg.Advanced.LogLevel = v
	}
	return cfg, configPath, nil
}
