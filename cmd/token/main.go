// Package main issues a bearer token for the JSON API. The token's subject
// is the user id the API reads and writes timetables for.
//
//	go run ./cmd/token -user U1234 -ttl 720h
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/garyellow/timetable-linebot-go/internal/api"
	"github.com/garyellow/timetable-linebot-go/internal/config"
)

var (
	userFlag = flag.String("user", "", "User id to issue the token for (required)")
	ttlFlag  = flag.Duration("ttl", 24*time.Hour, "Token lifetime")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadForMode(config.ToolMode)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	token, err := issue(cfg, *userFlag, *ttlFlag)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Failed to issue token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}

func issue(cfg *config.Config, userID string, ttl time.Duration) (string, error) {
	if cfg.JWTSecret == "" {
		return "", errors.New(config.EnvJWTSecret + " is not set")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", errors.New("-user is required")
	}
	if ttl <= 0 {
		return "", fmt.Errorf("-ttl must be positive, got %v", ttl)
	}
	return api.NewAuthenticator(cfg.JWTSecret, cfg.JWTIssuer).Issue(userID, ttl)
}
