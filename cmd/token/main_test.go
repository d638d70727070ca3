package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyellow/timetable-linebot-go/internal/api"
	"github.com/garyellow/timetable-linebot-go/internal/config"
)

const secret = "0123456789abcdef0123456789abcdef"

func TestIssue(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{JWTSecret: secret, JWTIssuer: "timetable"}

	token, err := issue(cfg, " U1 ", time.Hour)
	require.NoError(t, err)

	userID, err := api.NewAuthenticator(secret, "timetable").Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "U1", userID)
}

func TestIssue_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  *config.Config
		user string
		ttl  time.Duration
	}{
		{"no secret", &config.Config{}, "U1", time.Hour},
		{"no user", &config.Config{JWTSecret: secret}, "  ", time.Hour},
		{"bad ttl", &config.Config{JWTSecret: secret}, "U1", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := issue(tt.cfg, tt.user, tt.ttl)
			assert.Error(t, err)
		})
	}
}
