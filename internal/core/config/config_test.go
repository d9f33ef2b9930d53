package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestReadDefaults(t *testing.T) {
	c, err := Read(writeYAML(t, "app:\n  name: test\n"))
	require.NoError(t, err)

	assert.Equal(t, "test", c.App.Name)
	assert.Equal(t, 8080, c.App.HTTP.Port)
	assert.Equal(t, "sqlite", c.DB.Driver)
	assert.Equal(t, "db", c.Session.Store)
	assert.Equal(t, 31*24*time.Hour, c.Session.TTL())
	assert.Equal(t, "forum_session", c.Session.CookieName)
	assert.Equal(t, 10, c.Limits.LoginBurst)
}

func TestReadFileValues(t *testing.T) {
	c, err := Read(writeYAML(t, `
db:
  driver: postgres
  dsn: postgres://forum@localhost/forum
redis:
  enabled: true
  addr: redis:6379
session:
  store: redis
  ttlMin: 60
  secret: s3cret
password:
  time: 2
  memoryKiB: 19456
`))
	require.NoError(t, err)

	assert.Equal(t, "postgres", c.DB.Driver)
	assert.True(t, c.Redis.Enabled)
	assert.Equal(t, "redis:6379", c.Redis.Addr)
	assert.Equal(t, "redis", c.Session.Store)
	assert.Equal(t, time.Hour, c.Session.TTL())
	assert.Equal(t, "s3cret", c.Session.Secret)
	assert.Equal(t, uint32(2), c.Password.Time)
	assert.Equal(t, uint32(19456), c.Password.MemoryKiB)
}

func TestReadEnvOverride(t *testing.T) {
	t.Setenv("APP_SESSION_SECRET", "from-env")
	t.Setenv("APP_APP_HTTP_PORT", "9999")
	c, err := Read(writeYAML(t, "session:\n  secret: from-file\n"))
	require.NoError(t, err)

	assert.Equal(t, "from-env", c.Session.Secret)
	assert.Equal(t, 9999, c.App.HTTP.Port)
}

func TestReadEnvOnlyKeys(t *testing.T) {
	t.Setenv("APP_SESSION_SECRET", "from-env")
	t.Setenv("APP_DB_USERNAME", "forum")
	t.Setenv("APP_DB_PASSWORD", "dbpw")
	t.Setenv("APP_REDIS_PASSWORD", "rpw")
	t.Setenv("APP_LOG_ROTATE_ENABLE", "true")
	t.Setenv("APP_PASSWORD_TIME", "4")

	c, err := Read(writeYAML(t, "app:\n  name: test\n"))
	require.NoError(t, err)
	assert.Equal(t, "from-env", c.Session.Secret)
	assert.Equal(t, "forum", c.DB.Username)
	assert.Equal(t, "dbpw", c.DB.Password)
	assert.Equal(t, "rpw", c.Redis.Password)
	assert.True(t, c.Log.Rotate.Enable)
	assert.Equal(t, uint32(4), c.Password.Time)
}

func TestReadEnvWithoutFile(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("APP_SESSION_SECRET", "from-env")

	c, err := Read("")
	require.NoError(t, err)
	assert.Equal(t, "from-env", c.Session.Secret)
	assert.Equal(t, "forum", c.App.Name)
}

func TestReadMissingExplicitFile(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
