package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/joelmale/nexus/internal/protocol"
)

// roomSnapshot is the persisted row for one room.
type roomSnapshot struct {
	Code      string `gorm:"primaryKey;size:16"`
	State     []byte `gorm:"type:jsonb"`
	UpdatedAt time.Time
}

func (roomSnapshot) TableName() string { return "room_snapshots" }

// DB is the postgres-backed archive.
type DB struct {
	db *gorm.DB
}

// OpenDB connects to postgres and migrates the snapshot table.
func OpenDB(dsn string) (*DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.AutoMigrate(&roomSnapshot{}); err != nil {
		return nil, fmt.Errorf("migrate room_snapshots: %w", err)
	}
	return &DB{db: db}, nil
}

func (d *DB) Save(ctx context.Context, code string, state protocol.GameState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", code, err)
	}
	row := roomSnapshot{Code: code, State: data, UpdatedAt: time.Now()}
	if err := d.db.WithContext(ctx).Save(&row).Error; err != nil {
		return fmt.Errorf("save snapshot %s: %w", code, err)
	}
	return nil
}

func (d *DB) Load(ctx context.Context, code string) (protocol.GameState, bool, error) {
	var row roomSnapshot
	err := d.db.WithContext(ctx).First(&row, "code = ?", code).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return protocol.GameState{}, false, nil
	}
	if err != nil {
		return protocol.GameState{}, false, fmt.Errorf("load snapshot %s: %w", code, err)
	}
	var state protocol.GameState
	if err := json.Unmarshal(row.State, &state); err != nil {
		return protocol.GameState{}, false, fmt.Errorf("decode snapshot %s: %w", code, err)
	}
	return state, true, nil
}

func (d *DB) Delete(ctx context.Context, code string) error {
	if err := d.db.WithContext(ctx).Delete(&roomSnapshot{}, "code = ?", code).Error; err != nil {
		return fmt.Errorf("delete snapshot %s: %w", code, err)
	}
	return nil
}
