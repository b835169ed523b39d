package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/tendant/heritage-site/pkg/pastevent"
	"github.com/tendant/heritage-site/pkg/pastevent/auth"
	"github.com/tendant/heritage-site/pkg/pastevent/repo/memory"
	repopg "github.com/tendant/heritage-site/pkg/pastevent/repo/postgres"
	fsstorage "github.com/tendant/heritage-site/pkg/pastevent/storage/fs"
	memorystorage "github.com/tendant/heritage-site/pkg/pastevent/storage/memory"
	s3storage "github.com/tendant/heritage-site/pkg/pastevent/storage/s3"
)

// ServerConfig represents server configuration for the heritage site.
// Values come from the environment, or from a YAML file with environment
// overrides.
type ServerConfig struct {
	Host        string `yaml:"host" env:"HOST" env-default:"0.0.0.0"`
	Port        string `yaml:"port" env:"PORT" env-default:"8080"`
	Environment string `yaml:"environment" env:"ENVIRONMENT" env-default:"development"`
	LogFormat   string `yaml:"log_format" env:"LOG_FORMAT" env-default:"text"` // text, json
	LogLevel    string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`

	// Database: "memory" or a postgres:// URL
	DatabaseURL string `yaml:"database_url" env:"DATABASE_URL" env-default:"memory"`
	DBSchema    string `yaml:"db_schema" env:"DB_SCHEMA" env-default:""`
	AutoMigrate bool   `yaml:"auto_migrate" env:"AUTO_MIGRATE" env-default:"true"`
	ReadRetries uint   `yaml:"read_retries" env:"READ_RETRIES" env-default:"3"`

	// Storage: memory://, file:///path or s3://bucket?prefix=uploads
	StorageURL string   `yaml:"storage_url" env:"STORAGE_URL" env-default:"memory://"`
	S3         S3Config `yaml:"s3"`

	Auth AuthConfig `yaml:"auth"`

	WriteRateLimit float64 `yaml:"write_rate_limit" env:"WRITE_RATE_LIMIT" env-default:"2"`
	WriteRateBurst int     `yaml:"write_rate_burst" env:"WRITE_RATE_BURST" env-default:"20"`
}

// S3Config carries the credentials and endpoint for s3:// storage URLs.
type S3Config struct {
	Endpoint        string `yaml:"endpoint" env:"AWS_S3_ENDPOINT"`
	AccessKeyID     string `yaml:"access_key_id" env:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey string `yaml:"secret_access_key" env:"AWS_SECRET_ACCESS_KEY"`
	Region          string `yaml:"region" env:"AWS_REGION" env-default:"us-east-1"`
	UsePathStyle    bool   `yaml:"use_path_style" env:"AWS_S3_USE_PATH_STYLE" env-default:"false"`
	PresignDuration int    `yaml:"presign_duration" env:"AWS_S3_PRESIGN_DURATION" env-default:"900"`
	CreateBucket    bool   `yaml:"create_bucket" env:"AWS_S3_CREATE_BUCKET" env-default:"false"`
}

// AuthConfig configures the credential gate.
type AuthConfig struct {
	JWTSecret     string        `yaml:"jwt_secret" env:"JWT_SECRET"`
	Users         string        `yaml:"users" env:"AUTH_USERS" env-default:"memory"` // memory, postgres
	LookupTimeout time.Duration `yaml:"lookup_timeout" env:"AUTH_LOOKUP_TIMEOUT" env-default:"2s"`
	TokenTTL      time.Duration `yaml:"token_ttl" env:"AUTH_TOKEN_TTL" env-default:"168h"`
	RequiredRole  string        `yaml:"required_role" env:"AUTH_REQUIRED_ROLE"`

	// Bootstrap admin, registered in the user directory at startup
	AdminUserID string `yaml:"admin_user_id" env:"ADMIN_USER_ID"`
	AdminEmail  string `yaml:"admin_email" env:"ADMIN_EMAIL"`
	AdminName   string `yaml:"admin_name" env:"ADMIN_NAME"`
	AdminRole   string `yaml:"admin_role" env:"ADMIN_ROLE" env-default:"admin"`
}

// Load reads the configuration from path when it is set, otherwise from the
// environment alone, and validates it.
func Load(path string) (*ServerConfig, error) {
	var cfg ServerConfig
	var err error
	if path != "" {
		err = cleanenv.ReadConfig(path, &cfg)
	} else {
		err = cleanenv.ReadEnv(&cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("read configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}
	if c.DatabaseURL != "memory" && !c.UsesPostgres() {
		return fmt.Errorf("unsupported DATABASE_URL format (use 'memory' or 'postgres://...')")
	}
	if _, err := parseStorageURL(c.StorageURL); err != nil {
		return err
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("log_format must be 'text' or 'json', got %q", c.LogFormat)
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if len(c.Auth.JWTSecret) < 16 && c.Environment == "production" {
		return errors.New("JWT_SECRET must be at least 16 characters in production")
	}
	switch c.Auth.Users {
	case "memory":
	case "postgres":
		if !c.UsesPostgres() {
			return errors.New("AUTH_USERS=postgres requires a postgres DATABASE_URL")
		}
	default:
		return fmt.Errorf("AUTH_USERS must be 'memory' or 'postgres', got %q", c.Auth.Users)
	}
	if c.Auth.AdminUserID != "" {
		if _, err := uuid.Parse(c.Auth.AdminUserID); err != nil {
			return fmt.Errorf("ADMIN_USER_ID must be a UUID: %w", err)
		}
	}
	if c.WriteRateLimit <= 0 || c.WriteRateBurst <= 0 {
		return errors.New("write rate limit and burst must be positive")
	}
	return nil
}

// UsesPostgres reports whether DatabaseURL points at postgres.
func (c *ServerConfig) UsesPostgres() bool {
	return strings.HasPrefix(c.DatabaseURL, "postgres://") || strings.HasPrefix(c.DatabaseURL, "postgresql://")
}

// LogLevelValue maps LogLevel to a slog level, defaulting to info.
func (c *ServerConfig) LogLevelValue() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Addr is the listen address
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + c.Port
}

// Connect opens the postgres pool, or returns nil when DatabaseURL is
// "memory".
func (c *ServerConfig) Connect(ctx context.Context) (*pgxpool.Pool, error) {
	if !c.UsesPostgres() {
		return nil, nil
	}
	cfg, err := pgxpool.ParseConfig(c.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
	}
	if schema := c.DBSchema; schema != "" {
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			_, err := conn.Exec(ctx, "SET search_path TO "+pgx.Identifier{schema}.Sanitize())
			return err
		}
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	return pool, nil
}

// BuildRepository creates the repository. pool must be set when
// DatabaseURL is a postgres URL.
func (c *ServerConfig) BuildRepository(ctx context.Context, pool *pgxpool.Pool) (pastevent.Repository, error) {
	if !c.UsesPostgres() {
		return memory.New(), nil
	}
	if pool == nil {
		return nil, errors.New("postgres pool is required")
	}
	repo := repopg.NewWithPool(pool)
	if c.AutoMigrate {
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, err
		}
	}
	return repo, nil
}

// BuildService creates the past event service over repo.
func (c *ServerConfig) BuildService(repo pastevent.Repository) (pastevent.Service, error) {
	return pastevent.New(
		pastevent.WithRepository(repo),
		pastevent.WithReadRetry(c.ReadRetries, 0),
	)
}

// BuildBlobStore creates the image store named by StorageURL.
func (c *ServerConfig) BuildBlobStore() (pastevent.BlobStore, error) {
	loc, err := parseStorageURL(c.StorageURL)
	if err != nil {
		return nil, err
	}
	switch loc.kind {
	case "memory":
		return memorystorage.New(), nil
	case "fs":
		return fsstorage.New(fsstorage.Config{BaseDir: loc.path})
	case "s3":
		return s3storage.New(s3storage.Config{
			Region:                 c.S3.Region,
			Bucket:                 loc.bucket,
			Prefix:                 loc.prefix,
			AccessKeyID:            c.S3.AccessKeyID,
			SecretAccessKey:        c.S3.SecretAccessKey,
			Endpoint:               c.S3.Endpoint,
			UsePathStyle:           c.S3.UsePathStyle,
			PresignDuration:        c.S3.PresignDuration,
			CreateBucketIfNotExist: c.S3.CreateBucket,
		})
	default:
		return nil, fmt.Errorf("unsupported storage backend type: %s", loc.kind)
	}
}

// BuildUserDirectory creates the directory the gate resolves token
// subjects against, and registers the bootstrap admin when one is
// configured.
func (c *ServerConfig) BuildUserDirectory(ctx context.Context, pool *pgxpool.Pool) (auth.UserDirectory, error) {
	admin := c.AdminIdentity()

	if c.Auth.Users == "postgres" {
		if pool == nil {
			return nil, errors.New("postgres pool is required")
		}
		users := auth.NewPostgresUsers(pool)
		if c.AutoMigrate {
			if err := users.EnsureSchema(ctx); err != nil {
				return nil, err
			}
		}
		if admin != nil {
			if err := users.UpsertUser(ctx, admin); err != nil {
				return nil, err
			}
		}
		return users, nil
	}

	users := auth.NewMemoryUsers()
	if admin != nil {
		users.Add(*admin)
	}
	return users, nil
}

// AdminIdentity returns the bootstrap admin, or nil when none is configured.
func (c *ServerConfig) AdminIdentity() *pastevent.Identity {
	if c.Auth.AdminUserID == "" && c.Auth.AdminEmail == "" {
		return nil
	}
	identity := &pastevent.Identity{
		Email: c.Auth.AdminEmail,
		Name:  c.Auth.AdminName,
		Role:  c.Auth.AdminRole,
	}
	if id, err := uuid.Parse(c.Auth.AdminUserID); err == nil {
		identity.UserID = id
	}
	return identity
}

// BuildGate creates the JWT credential gate over users.
func (c *ServerConfig) BuildGate(users auth.UserDirectory) (*auth.JWTGate, error) {
	opts := []auth.GateOption{auth.WithLookupTimeout(c.Auth.LookupTimeout)}
	if c.Auth.RequiredRole != "" {
		opts = append(opts, auth.WithRequiredRole(c.Auth.RequiredRole))
	}
	return auth.NewJWTGate(auth.NewJWTAuth(c.Auth.JWTSecret), users, opts...)
}

// BuildIssuer creates a token issuer sharing the gate's secret.
func (c *ServerConfig) BuildIssuer() *auth.Issuer {
	return auth.NewIssuer(auth.NewJWTAuth(c.Auth.JWTSecret), c.Auth.TokenTTL)
}

type storageLocation struct {
	kind   string // memory, fs, s3
	path   string
	bucket string
	prefix string
}

func parseStorageURL(raw string) (storageLocation, error) {
	if raw == "" || raw == "memory" || raw == "memory://" {
		return storageLocation{kind: "memory"}, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return storageLocation{}, fmt.Errorf("invalid STORAGE_URL: %w", err)
	}
	switch u.Scheme {
	case "file":
		path := u.Host + u.Path
		if path == "" {
			return storageLocation{}, errors.New("filesystem path cannot be empty in STORAGE_URL")
		}
		return storageLocation{kind: "fs", path: path}, nil
	case "s3":
		if u.Host == "" {
			return storageLocation{}, errors.New("S3 bucket name cannot be empty in STORAGE_URL")
		}
		return storageLocation{kind: "s3", bucket: u.Host, prefix: u.Query().Get("prefix")}, nil
	default:
		return storageLocation{}, fmt.Errorf("unsupported STORAGE_URL format: %s (use 'memory://', 'file://...', or 's3://...')", raw)
	}
}

// LoadDotEnv loads variables from the given .env files into the process
// environment. Missing files are skipped; existing variables win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", path, err)
		}
		slog.Debug("Loaded environment file", "path", path)
	}
	return nil
}
