// Package main issues admin bearer tokens signed with ADMIN_JWT_SECRET.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/onnwee/bughunt/internal/auth"
	"github.com/onnwee/bughunt/internal/config"
)

// ErrNoSecret is returned when admin authentication is not configured.
var ErrNoSecret = errors.New("ADMIN_JWT_SECRET is not set")

func main() {
	help := flag.Bool("help", false, "display help message")
	configPath := flag.String("config", "", "path to an optional YAML config file")
	subject := flag.String("subject", "admin", "subject recorded in the token")
	ttl := flag.Duration("ttl", auth.DefaultTokenExpiry, "token lifetime")
	flag.Parse()

	if *help {
		fmt.Println("Bug Hunt Admin Token")
		fmt.Println()
		fmt.Println("Usage: admin-token [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configPath)
	if cfg == nil || len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}

	if err := issue(os.Stdout, cfg, *subject, *ttl); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func issue(w io.Writer, cfg *config.Config, subject string, ttl time.Duration) error {
	if !cfg.AdminAuthEnabled() {
		return ErrNoSecret
	}
	token, err := auth.NewJWTService(cfg.AdminJWTSecret).GenerateAdminToken(subject, ttl)
	if err != nil {
		return fmt.Errorf("generate token: %w", err)
	}
	_, err = fmt.Fprintln(w, token)
	return err
}
