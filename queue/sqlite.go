// SPDX-License-Identifier: MIT
//
// Copyright © 2018 Kent Gibson <warthog618@gmail.com>.

package queue

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// entry is a queued payload.
type entry struct {
	ID        int64  `gorm:"primaryKey"`
	Queue     string `gorm:"index;not null"`
	Payload   []byte `gorm:"not null"`
	CreatedAt time.Time
}

func (entry) TableName() string {
	return "queue_entries"
}

// SQLite is a queue held in a SQLite database file, for hosts without a
// Redis server.
//
// Payloads are ordered by insertion.
type SQLite struct {
	db   *gorm.DB
	name string
}

// OpenSQLite opens, or creates, the database file and the queue table.
func OpenSQLite(path, name string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "create queue directory")
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	if err := db.AutoMigrate(&entry{}); err != nil {
		return nil, errors.Wrap(err, "migrate queue table")
	}
	return &SQLite{db: db, name: name}, nil
}

// Len returns the number of payloads in the queue.
func (s *SQLite) Len(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&entry{}).Where("queue = ?", s.name).Count(&n).Error
	return n, errors.Wrap(err, "count")
}

// PopOldest removes and returns the oldest payload.
func (s *SQLite) PopOldest(ctx context.Context) ([]byte, bool, error) {
	var e entry
	found := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("queue = ?", s.name).Order("id").First(&e).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return tx.Delete(&e).Error
	})
	if err != nil {
		return nil, false, errors.Wrap(err, "pop")
	}
	if !found {
		return nil, false, nil
	}
	return e.Payload, true, nil
}

// Push appends the payload to the queue.
func (s *SQLite) Push(ctx context.Context, payload []byte) error {
	err := s.db.WithContext(ctx).Create(&entry{Queue: s.name, Payload: payload}).Error
	return errors.Wrap(err, "push")
}

// Requeue returns a payload to the oldest end of the queue.
//
// The entry is given an id below any in the table, so it is the next to be
// popped.
func (s *SQLite) Requeue(ctx context.Context, payload []byte) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var low sql.NullInt64
		if err := tx.Model(&entry{}).Select("MIN(id)").Scan(&low).Error; err != nil {
			return err
		}
		e := entry{Queue: s.name, Payload: payload}
		if low.Valid {
			e.ID = low.Int64 - 1
			if e.ID == 0 {
				// zero is taken as unset
				e.ID = -1
			}
		}
		return tx.Create(&e).Error
	})
	return errors.Wrap(err, "requeue")
}

// Close closes the database.
func (s *SQLite) Close() error {
	db, err := s.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}
