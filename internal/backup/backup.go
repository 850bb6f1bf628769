// Package backup ships serialized snapshots to a key-value store.
//
// Each Save writes an immutable version keyed by a ULID and overwrites the
// "latest" key. Retries and network failure handling are left to the
// underlying Storage.
package backup

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/oklog/ulid/v2"

	"kanban/internal/snapshot"
)

// Backup implements snapshot.Sink on top of a Storage.
type Backup struct {
	storage Storage
	key     string
	format  snapshot.Format
	keep    int
	logger  *slog.Logger
}

// New returns a Backup that stores snapshots under key. keep bounds the
// number of retained versions; zero keeps all of them.
func New(storage Storage, key string, format snapshot.Format, keep int, logger *slog.Logger) *Backup {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if key = strings.Trim(key, "/"); key == "" {
		key = "kanban"
	}
	return &Backup{storage: storage, key: key, format: format, keep: keep, logger: logger}
}

func (b *Backup) latestKey() string {
	return path.Join(b.key, "latest."+b.format.Ext())
}

func (b *Backup) versionsPrefix() string {
	return path.Join(b.key, "versions")
}

func (b *Backup) versionKey(version string) string {
	return path.Join(b.versionsPrefix(), version+"."+b.format.Ext())
}

// Save writes snap as a new version and as the latest snapshot.
func (b *Backup) Save(ctx context.Context, snap snapshot.Snapshot) error {
	data, err := snapshot.Marshal(b.format, snap)
	if err != nil {
		return err
	}
	version := ulid.Make().String()
	if err := b.storage.Write(ctx, b.versionKey(version), data); err != nil {
		return fmt.Errorf("write backup version %s: %w", version, err)
	}
	if err := b.storage.Write(ctx, b.latestKey(), data); err != nil {
		return fmt.Errorf("write latest backup: %w", err)
	}
	b.logger.Debug("backup saved", slog.String("version", version), slog.Int("bytes", len(data)))
	return b.prune(ctx)
}

// Load reads a version, or the latest snapshot when version is empty.
func (b *Backup) Load(ctx context.Context, version string) (snapshot.Snapshot, error) {
	key := b.latestKey()
	if version != "" {
		if _, err := ulid.ParseStrict(version); err != nil {
			return snapshot.Snapshot{}, fmt.Errorf("invalid backup version %q: %w", version, err)
		}
		key = b.versionKey(version)
	}
	data, err := b.storage.Read(ctx, key)
	if err != nil {
		return snapshot.Snapshot{}, fmt.Errorf("read backup: %w", err)
	}
	return snapshot.Unmarshal(b.format, data)
}

// Versions lists stored versions, oldest first.
func (b *Backup) Versions(ctx context.Context) ([]string, error) {
	keys, err := b.storage.List(ctx, b.versionsPrefix())
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}
	suffix := "." + b.format.Ext()
	versions := make([]string, 0, len(keys))
	for _, k := range keys {
		name := path.Base(k)
		if !strings.HasSuffix(name, suffix) {
			continue
		}
		version := strings.TrimSuffix(name, suffix)
		if _, err := ulid.ParseStrict(version); err != nil {
			continue
		}
		versions = append(versions, version)
	}
	return versions, nil
}

func (b *Backup) prune(ctx context.Context) error {
	if b.keep <= 0 {
		return nil
	}
	versions, err := b.Versions(ctx)
	if err != nil {
		return err
	}
	for len(versions) > b.keep {
		if err := b.storage.Delete(ctx, b.versionKey(versions[0])); err != nil {
			return fmt.Errorf("prune backup %s: %w", versions[0], err)
		}
		versions = versions[1:]
	}
	return nil
}
