// Package backup snapshots whole tables to object storage and restores them.
package backup

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path"
	"strings"

	hrerrors "github.com/hrload/hrload/internal/errors"
	"github.com/hrload/hrload/internal/record"
	"github.com/hrload/hrload/internal/schema"
	"github.com/hrload/hrload/internal/snapshot"
	"github.com/hrload/hrload/internal/storage"
)

// TableStore is the part of the relational store that backup and restore
// need.
type TableStore interface {
	ReadAll(ctx context.Context, desc *schema.TableDescriptor) ([]record.AllocatedRow, error)
	UpsertRows(ctx context.Context, desc *schema.TableDescriptor, rows []record.AllocatedRow) (int, error)
}

// Config configures where snapshots are kept.
type Config struct {
	// Prefix is the key prefix for snapshot objects (default "backups")
	Prefix string

	// Extension is the snapshot file extension (default ".snap")
	Extension string
}

// DefaultConfig returns the default backup configuration.
func DefaultConfig() Config {
	return Config{
		Prefix:    "backups",
		Extension: ".snap",
	}
}

// Service backs up and restores tables. Concurrent backups of one table are
// last-writer-wins; a backup racing a restore of the same table is not
// coordinated.
type Service struct {
	registry *schema.Registry
	store    TableStore
	objects  storage.ObjectStorage
	config   Config
}

// NewService creates a backup service.
func NewService(registry *schema.Registry, store TableStore, objects storage.ObjectStorage, cfg Config) *Service {
	def := DefaultConfig()
	if cfg.Prefix == "" {
		cfg.Prefix = def.Prefix
	}
	if cfg.Extension == "" {
		cfg.Extension = def.Extension
	}
	return &Service{
		registry: registry,
		store:    store,
		objects:  objects,
		config:   cfg,
	}
}

// Key returns the object key of a table's snapshot.
func (s *Service) Key(table string) string {
	return path.Join(s.config.Prefix, table+s.config.Extension)
}

// Backup serializes the current contents of table and overwrites its
// snapshot. It returns the snapshot location.
func (s *Service) Backup(ctx context.Context, table string) (string, error) {
	desc, err := s.registry.Lookup(table)
	if err != nil {
		return "", err
	}

	rows, err := s.store.ReadAll(ctx, desc)
	if err != nil {
		log.Printf("backup: failed to read %s: %v", table, err)
		return "", err
	}

	data, err := snapshot.Encode(desc.Fields, rows)
	if err != nil {
		log.Printf("backup: failed to encode %s: %v", table, err)
		return "", hrerrors.NewInternalError(fmt.Sprintf("failed to encode snapshot of %s", table), err)
	}

	key := s.Key(table)
	if err := s.objects.Put(ctx, key, data); err != nil {
		log.Printf("backup: failed to write %s: %v", key, err)
		return "", hrerrors.NewInternalError(fmt.Sprintf("failed to write snapshot of %s", table), err)
	}

	location := s.objects.Location(key)
	log.Printf("backup: wrote %d rows of %s to %s (%d bytes)", len(rows), table, location, len(data))
	return location, nil
}

// Restore reads the snapshot of table and upserts every row, preserving
// identifiers. Restoring the same snapshot twice leaves the table as after
// the first restore.
func (s *Service) Restore(ctx context.Context, table string) (string, error) {
	desc, err := s.registry.Lookup(table)
	if err != nil {
		return "", err
	}

	key := s.Key(table)
	location := s.objects.Location(key)

	data, err := s.objects.Get(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return "", hrerrors.NewBackupNotFoundError(location)
		}
		log.Printf("backup: failed to read %s: %v", location, err)
		return "", hrerrors.NewInternalError(fmt.Sprintf("failed to read snapshot of %s", table), err)
	}

	snap, err := snapshot.Decode(data)
	if err != nil {
		log.Printf("backup: %s: %v", location, err)
		return "", err
	}
	if !schema.EqualFields(snap.Fields, desc.Fields) {
		return "", hrerrors.NewCorruptSnapshotError(
			fmt.Sprintf("snapshot fields %v do not match table %s", snap.Fields, table), nil)
	}

	n, err := s.store.UpsertRows(ctx, desc, snap.Rows)
	if err != nil {
		log.Printf("backup: failed to restore %s: %v", table, err)
		return "", err
	}

	msg := fmt.Sprintf("restored %d rows into %s from %s", n, table, location)
	log.Printf("backup: %s", msg)
	return msg, nil
}

// Entry is one stored snapshot.
type Entry struct {
	Table string `json:"table"`
	File  string `json:"file"`
}

// List returns the snapshots present in storage, sorted by table. Objects
// under the prefix that do not belong to a registered table are skipped.
func (s *Service) List(ctx context.Context) ([]Entry, error) {
	keys, err := s.objects.List(ctx, s.config.Prefix+"/")
	if err != nil {
		log.Printf("backup: failed to list %s: %v", s.config.Prefix, err)
		return nil, hrerrors.NewInternalError("failed to list snapshots", err)
	}

	entries := make([]Entry, 0, len(keys))
	for _, key := range keys {
		table := strings.TrimSuffix(path.Base(key), s.config.Extension)
		if _, err := s.registry.Lookup(table); err != nil || key != s.Key(table) {
			continue
		}
		entries = append(entries, Entry{Table: table, File: s.objects.Location(key)})
	}
	return entries, nil
}

// Delete removes the snapshot of table and returns its former location. A
// table without a snapshot yields BackupNotFound.
func (s *Service) Delete(ctx context.Context, table string) (string, error) {
	if _, err := s.registry.Lookup(table); err != nil {
		return "", err
	}

	key := s.Key(table)
	location := s.objects.Location(key)

	exists, err := s.objects.Exists(ctx, key)
	if err != nil {
		log.Printf("backup: failed to stat %s: %v", location, err)
		return "", hrerrors.NewInternalError(fmt.Sprintf("failed to check snapshot of %s", table), err)
	}
	if !exists {
		return "", hrerrors.NewBackupNotFoundError(location)
	}

	if err := s.objects.Delete(ctx, key); err != nil {
		log.Printf("backup: failed to delete %s: %v", location, err)
		return "", hrerrors.NewInternalError(fmt.Sprintf("failed to delete snapshot of %s", table), err)
	}
	log.Printf("backup: deleted %s", location)
	return location, nil
}
