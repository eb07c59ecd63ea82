package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// AggregateDocument is the row shape of the local authoritative store:
// one row per aggregate key. UpdatedAt doubles as the last-write-wins
// timestamp for reconciliation.
type AggregateDocument struct {
	Key       string         `gorm:"primaryKey;size:64"`
	Data      datatypes.JSON `gorm:"type:json"`
	UpdatedAt int64          `gorm:"autoUpdateTime:milli"`
}

// Local is the gorm-backed authoritative store.
type Local struct {
	db *gorm.DB
}

// Connect opens the local store. A postgres:// or postgresql:// URL uses
// the PostgreSQL driver; anything else is treated as a SQLite file path.
func Connect(databaseURL string) (*Local, error) {
	dsn := strings.TrimSpace(databaseURL)
	if dsn == "" {
		return nil, errors.New("APP_DATABASE_URL is required")
	}

	var dialector gorm.Dialector
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		// PrepareStmt: true prevents the GORM postgres migrator from forcing
		// simple protocol for "SELECT * FROM table LIMIT 1", which would
		// otherwise trigger "insufficient arguments".
		dialector = postgres.Open(dsn)
	} else {
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, err
			}
		}
		dialector = sqlite.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{PrepareStmt: true})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&AggregateDocument{}); err != nil {
		return nil, err
	}

	return &Local{db: db}, nil
}

// NewLocal wraps an already-open gorm connection, for tests and callers
// that manage migration themselves.
func NewLocal(db *gorm.DB) *Local {
	return &Local{db: db}
}

// DB exposes the underlying connection so sibling components (the retry
// buffer) can share it.
func (l *Local) DB() *gorm.DB {
	return l.db
}

// Get loads the document for key.
func (l *Local) Get(ctx context.Context, key string) (*Document, error) {
	var row AggregateDocument
	err := l.db.WithContext(ctx).Where("key = ?", key).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &Document{
		Key:       row.Key,
		Data:      json.RawMessage(row.Data),
		UpdatedAt: millisToTime(row.UpdatedAt),
	}, nil
}

// Set overwrites the document for key.
func (l *Local) Set(ctx context.Context, key string, data json.RawMessage) error {
	db := l.db.WithContext(ctx)

	var existing AggregateDocument
	err := db.Where("key = ?", key).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return db.Create(&AggregateDocument{Key: key, Data: datatypes.JSON(data)}).Error
	}
	if err != nil {
		return err
	}
	return db.Model(&existing).Update("data", datatypes.JSON(data)).Error
}

func millisToTime(ms int64) time.Time {
	return time.UnixMilli(ms)
}
