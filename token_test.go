package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	mw "github.com/kasuganosora/battlerecorder/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, secret string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("security:\n  ingest_secret: \""+secret+"\"\n"), 0o644))
	return path
}

func TestRunToken(t *testing.T) {
	path := writeConfig(t, "s3cret")
	var out bytes.Buffer
	require.NoError(t, runToken(&out, []string{"--config", path, "--ttl", "1h", "overlay-1"}))

	claims, err := mw.ParseToken(strings.TrimSpace(out.String()), "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "overlay-1", claims.Source)
	assert.Equal(t, mw.TokenIssuer, claims.Issuer)
	require.NotNil(t, claims.ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, time.Minute)
}

func TestRunToken_NoExpiry(t *testing.T) {
	path := writeConfig(t, "s3cret")
	var out bytes.Buffer
	require.NoError(t, runToken(&out, []string{"-c", path, "overlay-1"}))

	claims, err := mw.ParseToken(strings.TrimSpace(out.String()), "s3cret")
	require.NoError(t, err)
	assert.Nil(t, claims.ExpiresAt)
}

func TestRunToken_Errors(t *testing.T) {
	var out bytes.Buffer
	assert.Error(t, runToken(&out, []string{"--config", writeConfig(t, "s3cret")}), "missing source")
	assert.Error(t, runToken(&out, []string{"--config", writeConfig(t, ""), "overlay-1"}), "empty secret")
	assert.Error(t, runToken(&out, []string{"--config", filepath.Join(t.TempDir(), "nope.yaml"), "overlay-1"}))
	assert.Error(t, runToken(&out, []string{"--bogus", "overlay-1"}))
	assert.Empty(t, out.String())
}
