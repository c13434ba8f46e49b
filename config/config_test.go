package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func Test_LoadConfig(t *testing.T) {
	t.Run("should start from defaults when the file is missing", func(t *testing.T) {
		req := require.New(t)
		t.Setenv("CUCHIMAIL_LOCAL_JWT_SECRET", "s3cret")

		cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
		req.NoError(err)
		req.Equal(3000, cfg.Server.Port)
		req.Equal(DriverLocal, cfg.Backend.Driver)
		req.Equal("vi", cfg.Preferences.DefaultLanguage)
		req.Equal("s3cret", cfg.Local.JWTSecret)
	})

	t.Run("should read the file then let the environment win", func(t *testing.T) {
		req := require.New(t)
		path := filepath.Join(t.TempDir(), "config.toml")
		req.NoError(os.WriteFile(path, []byte(`
[server]
port = 8080

[backend]
driver = "Supabase"
timeout = "3s"

[supabase]
url = "https://abc.supabase.co"
anon_key = "anon"

[organization]
domain = "@Cuchi.vn"
`), 0600))
		t.Setenv("CUCHIMAIL_SERVER_PORT", "9090")

		cfg, err := LoadConfig(path)
		req.NoError(err)
		req.Equal(9090, cfg.Server.Port)
		req.Equal(DriverSupabase, cfg.Backend.Driver)
		req.Equal(3*time.Second, cfg.Backend.Timeout)
		req.Equal("cuchi.vn", cfg.Organization.Domain)
	})

	t.Run("should fail on a broken file", func(t *testing.T) {
		req := require.New(t)
		path := filepath.Join(t.TempDir(), "config.toml")
		req.NoError(os.WriteFile(path, []byte("[server\nport ="), 0600))

		_, err := LoadConfig(path)
		req.Error(err)
	})
}

func Test_Validate(t *testing.T) {
	t.Run("should require a secret for the local driver", func(t *testing.T) {
		req := require.New(t)
		cfg := Default()
		err := cfg.Validate()
		req.ErrorContains(err, "local.jwt_secret")
	})

	t.Run("should report every problem at once", func(t *testing.T) {
		req := require.New(t)
		cfg := Default()
		cfg.Local.JWTSecret = "x"
		cfg.Server.Port = 0
		cfg.Preferences.DefaultTheme = "neon"

		err := cfg.Validate()
		req.ErrorContains(err, "server.port")
		req.ErrorContains(err, "default_theme")
	})

	t.Run("should accept the defaults plus a secret", func(t *testing.T) {
		req := require.New(t)
		cfg := Default()
		cfg.Local.JWTSecret = "x"
		req.NoError(cfg.Validate())
	})
}
