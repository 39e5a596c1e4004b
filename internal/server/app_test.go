package server

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/videohub/internal/server/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryConfig(t *testing.T) *config.Config {
	t.Helper()
	c := &config.Config{}
	c.LoadDefaults()
	c.StoreKind = config.StoreMemory
	c.HTTPAddr = "127.0.0.1:0"
	c.LogLevel = "error"
	c.UploadDir = t.TempDir()
	return c
}

func TestNewApp_MemoryStore(t *testing.T) {
	app, err := NewApp(context.Background(), memoryConfig(t))
	require.NoError(t, err)
	assert.Nil(t, app.db)
	assert.NotNil(t, app.server)
}

func TestNewApp_BadHasher(t *testing.T) {
	c := memoryConfig(t)
	c.PasswordHasher = "md5"

	_, err := NewApp(context.Background(), c)
	assert.Error(t, err)
}

func TestNewApp_EqualSecrets(t *testing.T) {
	c := memoryConfig(t)
	c.RefreshTokenSecret = c.AccessTokenSecret

	_, err := NewApp(context.Background(), c)
	assert.Error(t, err)
}

func TestApp_RunStopsOnCancel(t *testing.T) {
	app, err := NewApp(context.Background(), memoryConfig(t))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	assert.NoError(t, app.Run(ctx))
}
