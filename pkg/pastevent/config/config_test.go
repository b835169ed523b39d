package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/heritage-site/pkg/pastevent/auth"
	"github.com/tendant/heritage-site/pkg/pastevent/repo/memory"
	fsstorage "github.com/tendant/heritage-site/pkg/pastevent/storage/fs"
	memorystorage "github.com/tendant/heritage-site/pkg/pastevent/storage/memory"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret-value")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "memory", cfg.DatabaseURL)
	assert.Equal(t, "memory://", cfg.StorageURL)
	assert.Equal(t, "memory", cfg.Auth.Users)
	assert.Equal(t, 2*time.Second, cfg.Auth.LookupTimeout)
	assert.Equal(t, 7*24*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, uint(3), cfg.ReadRetries)
	assert.False(t, cfg.UsesPostgres())
	assert.Equal(t, "0.0.0.0:8080", cfg.Addr())
}

func TestLoad_RequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	_, err := Load("")
	assert.Error(t, err)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: "9090"
storage_url: file:///tmp/heritage-uploads
auth:
  jwt_secret: from-yaml-secret
  lookup_timeout: 500ms
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "file:///tmp/heritage-uploads", cfg.StorageURL)
	assert.Equal(t, "from-yaml-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, 500*time.Millisecond, cfg.Auth.LookupTimeout)
}

func validConfig() ServerConfig {
	return ServerConfig{
		Port:           "8080",
		LogFormat:      "text",
		DatabaseURL:    "memory",
		StorageURL:     "memory://",
		WriteRateLimit: 2,
		WriteRateBurst: 20,
		Auth:           AuthConfig{JWTSecret: "0123456789abcdef", Users: "memory", LookupTimeout: time.Second},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ServerConfig)
		wantErr bool
	}{
		{"valid", func(c *ServerConfig) {}, false},
		{"postgres url", func(c *ServerConfig) { c.DatabaseURL = "postgres://u:p@localhost/db" }, false},
		{"mysql url", func(c *ServerConfig) { c.DatabaseURL = "mysql://localhost/db" }, true},
		{"empty port", func(c *ServerConfig) { c.Port = "" }, true},
		{"bad storage", func(c *ServerConfig) { c.StorageURL = "ftp://host/dir" }, true},
		{"empty bucket", func(c *ServerConfig) { c.StorageURL = "s3://" }, true},
		{"bad log format", func(c *ServerConfig) { c.LogFormat = "xml" }, true},
		{"postgres users without postgres", func(c *ServerConfig) { c.Auth.Users = "postgres" }, true},
		{"unknown users", func(c *ServerConfig) { c.Auth.Users = "ldap" }, true},
		{"bad admin id", func(c *ServerConfig) { c.Auth.AdminUserID = "nope" }, true},
		{"short secret in production", func(c *ServerConfig) {
			c.Environment = "production"
			c.Auth.JWTSecret = "short"
		}, true},
		{"zero rate", func(c *ServerConfig) { c.WriteRateLimit = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseStorageURL(t *testing.T) {
	tests := []struct {
		raw  string
		want storageLocation
	}{
		{"", storageLocation{kind: "memory"}},
		{"memory://", storageLocation{kind: "memory"}},
		{"file:///var/lib/heritage", storageLocation{kind: "fs", path: "/var/lib/heritage"}},
		{"file://./data", storageLocation{kind: "fs", path: "./data"}},
		{"s3://heritage-media?prefix=uploads", storageLocation{kind: "s3", bucket: "heritage-media", prefix: "uploads"}},
	}
	for _, tt := range tests {
		got, err := parseStorageURL(tt.raw)
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.want, got, tt.raw)
	}
}

func TestBuilders_Memory(t *testing.T) {
	ctx := context.Background()
	cfg := validConfig()
	adminID := uuid.New()
	cfg.Auth.AdminUserID = adminID.String()
	cfg.Auth.AdminEmail = "curator@example.org"
	cfg.Auth.AdminRole = "admin"

	pool, err := cfg.Connect(ctx)
	require.NoError(t, err)
	assert.Nil(t, pool)

	repo, err := cfg.BuildRepository(ctx, pool)
	require.NoError(t, err)
	assert.IsType(t, &memory.Repository{}, repo)

	svc, err := cfg.BuildService(repo)
	require.NoError(t, err)
	assert.NotNil(t, svc)

	store, err := cfg.BuildBlobStore()
	require.NoError(t, err)
	assert.IsType(t, &memorystorage.Backend{}, store)

	users, err := cfg.BuildUserDirectory(ctx, pool)
	require.NoError(t, err)
	identity, err := users.LookupUser(ctx, adminID)
	require.NoError(t, err)
	assert.Equal(t, "curator@example.org", identity.Email)

	gate, err := cfg.BuildGate(users)
	require.NoError(t, err)
	token, err := cfg.BuildIssuer().Issue(*identity)
	require.NoError(t, err)
	v := gate.Verify(ctx, token)
	assert.True(t, v.Authenticated())
	assert.Equal(t, adminID, v.Identity.UserID)
}

func TestBuildBlobStore_Filesystem(t *testing.T) {
	cfg := validConfig()
	cfg.StorageURL = "file://" + t.TempDir()

	store, err := cfg.BuildBlobStore()
	require.NoError(t, err)
	assert.IsType(t, &fsstorage.Backend{}, store)
}

func TestBuildGate_RequiredRole(t *testing.T) {
	cfg := validConfig()
	cfg.Auth.RequiredRole = "admin"
	editor := auth.NewMemoryUsers()
	gate, err := cfg.BuildGate(editor)
	require.NoError(t, err)
	assert.NotNil(t, gate)
}

func TestAdminIdentity(t *testing.T) {
	cfg := validConfig()
	assert.Nil(t, cfg.AdminIdentity())

	cfg.Auth.AdminEmail = "a@example.org"
	identity := cfg.AdminIdentity()
	require.NotNil(t, identity)
	assert.Equal(t, uuid.Nil, identity.UserID)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("HERITAGE_DOTENV_PROBE=loaded\n"), 0o600))
	t.Setenv("HERITAGE_DOTENV_PROBE", "")
	require.NoError(t, os.Unsetenv("HERITAGE_DOTENV_PROBE"))

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env"), path))
	assert.Equal(t, "loaded", os.Getenv("HERITAGE_DOTENV_PROBE"))
}
