package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type kvEntry struct {
	Namespace string    `gorm:"primaryKey;size:191"`
	Key       string    `gorm:"primaryKey;column:entry_key;size:191"`
	Value     string    `gorm:"type:text;not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (kvEntry) TableName() string { return "kv_entries" }

// GormBackend keeps every namespace in one kv_entries table.
type GormBackend struct {
	db *gorm.DB
}

func NewGormBackend(ctx context.Context, db *gorm.DB) (*GormBackend, error) {
	if err := db.WithContext(ctx).AutoMigrate(&kvEntry{}); err != nil {
		return nil, fmt.Errorf("migrate kv_entries: %w", err)
	}
	return &GormBackend{db: db}, nil
}

func (b *GormBackend) Scope(namespace string) Store {
	return &gormStore{db: b.db, ns: namespace}
}

func (b *GormBackend) Close() error {
	sqlDB, err := b.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type gormStore struct {
	db *gorm.DB
	ns string
}

func (s *gormStore) Get(ctx context.Context, key string) ([]byte, error) {
	var e kvEntry
	err := s.db.WithContext(ctx).
		Where("namespace = ? AND entry_key = ?", s.ns, key).
		First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return []byte(e.Value), nil
}

func (s *gormStore) Put(ctx context.Context, key string, value []byte) error {
	e := kvEntry{Namespace: s.ns, Key: key, Value: string(value), UpdatedAt: time.Now().UTC()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "namespace"}, {Name: "entry_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&e).Error
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (s *gormStore) Delete(ctx context.Context, key string) error {
	err := s.db.WithContext(ctx).
		Where("namespace = ? AND entry_key = ?", s.ns, key).
		Delete(&kvEntry{}).Error
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
