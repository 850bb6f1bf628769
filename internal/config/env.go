package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

// Restore sources accepted by RESTORE_FROM.
const (
	RestoreNone   = "none"
	RestoreSQLite = "sqlite"
	RestoreBackup = "backup"
)

// Backup transports accepted by BACKUP_TYPE.
const (
	BackupNone  = "none"
	BackupLocal = "local"
	BackupS3    = "s3"
)

// BaseEnv holds the server, storage and logging settings.
type BaseEnv struct {
	Addr        string   `envconfig:"ADDR" default:":8080"`
	DBPath      string   `envconfig:"DB_PATH" default:"data/kanban.db"`
	LogLevel    string   `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat   string   `envconfig:"LOG_FORMAT" default:"text"`
	CORSOrigins []string `envconfig:"CORS_ORIGINS" default:"*"`
	RestoreFrom string   `envconfig:"RESTORE_FROM" default:"sqlite"`
}

// BackupEnv selects the versioned backup transport.
type BackupEnv struct {
	Type   string `envconfig:"BACKUP_TYPE" default:"none"`
	Dir    string `envconfig:"BACKUP_DIR" default:"data/backup"`
	Key    string `envconfig:"BACKUP_KEY" default:"kanban"`
	Format string `envconfig:"BACKUP_FORMAT" default:"json"`
	Keep   int    `envconfig:"BACKUP_KEEP" default:"10"`
	// S3 settings (used when Type == "s3")
	S3Bucket string `envconfig:"S3_BUCKET"`
	S3Prefix string `envconfig:"S3_PREFIX" default:"kanban/"`
	S3Region string `envconfig:"S3_REGION" default:"us-east-1"`
}

// Env is the full process configuration, read from KANBAN_* variables.
type Env struct {
	BaseEnv
	BackupEnv
}

const namespace = "KANBAN"

// LoadEnv reads and validates the environment.
func LoadEnv() (*Env, error) {
	var env Env
	if err := envconfig.Process(namespace, &env); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}
	if err := env.Validate(); err != nil {
		return nil, err
	}
	return &env, nil
}

// Validate checks the enumerated settings.
func (e *Env) Validate() error {
	e.RestoreFrom = strings.ToLower(e.RestoreFrom)
	switch e.RestoreFrom {
	case RestoreNone, RestoreSQLite, RestoreBackup:
	default:
		return fmt.Errorf("invalid RESTORE_FROM %q", e.RestoreFrom)
	}
	e.BackupEnv.Type = strings.ToLower(e.BackupEnv.Type)
	switch e.BackupEnv.Type {
	case "", BackupNone, BackupLocal:
	case BackupS3:
		if e.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required when BACKUP_TYPE=s3")
		}
	default:
		return fmt.Errorf("invalid BACKUP_TYPE %q", e.BackupEnv.Type)
	}
	if e.RestoreFrom == RestoreBackup && !e.BackupEnabled() {
		return fmt.Errorf("RESTORE_FROM=backup requires BACKUP_TYPE")
	}
	return nil
}

// BackupEnabled reports whether a backup transport is configured.
func (e *BackupEnv) BackupEnabled() bool {
	return e.Type != "" && e.Type != BackupNone
}

// SlogLevel parses LogLevel, falling back to info.
func (e *BaseEnv) SlogLevel() slog.Level {
	if e == nil {
		return slog.LevelInfo
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(e.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}
