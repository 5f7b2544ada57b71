package database

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"inkwell/internal/middleware"

	"gorm.io/gorm"
)

// AppliedMigration is one row of the schema_migrations ledger.
type AppliedMigration struct {
	Version   int       `gorm:"primaryKey;autoIncrement:false"`
	Name      string    `gorm:"size:255;not null"`
	AppliedAt time.Time `gorm:"autoCreateTime"`
}

func (AppliedMigration) TableName() string {
	return "schema_migrations"
}

// Migrator applies and reverts versioned SQL migrations, recording each in
// schema_migrations.
type Migrator struct {
	db  *gorm.DB
	set []Migration
}

// NewMigrator works on the embedded migration set.
func NewMigrator(db *gorm.DB) *Migrator {
	return &Migrator{db: db, set: migrations}
}

// Applied returns the recorded versions in ascending order. A database that
// has never been migrated has none.
func (m *Migrator) Applied(ctx context.Context) ([]int, error) {
	db := m.db.WithContext(ctx)
	if !db.Migrator().HasTable(&AppliedMigration{}) {
		return nil, nil
	}
	var versions []int
	if err := db.Model(&AppliedMigration{}).Order("version").Pluck("version", &versions).Error; err != nil {
		return nil, fmt.Errorf("read schema_migrations: %w", err)
	}
	return versions, nil
}

// Pending returns the migrations not yet applied, oldest first. It fails when
// the ledger names a version this build does not know, which means the
// database was migrated by a newer build.
func (m *Migrator) Pending(ctx context.Context) ([]Migration, error) {
	applied, err := m.Applied(ctx)
	if err != nil {
		return nil, err
	}
	if err := checkKnownVersions(applied, m.set); err != nil {
		return nil, err
	}

	done := make(map[int]bool, len(applied))
	for _, v := range applied {
		done[v] = true
	}
	var pending []Migration
	for _, mig := range m.set {
		if !done[mig.Version] {
			pending = append(pending, mig)
		}
	}
	return pending, nil
}

// Up applies every pending migration and returns how many ran. Each script
// and its ledger row commit together.
func (m *Migrator) Up(ctx context.Context) (int, error) {
	if err := m.db.WithContext(ctx).AutoMigrate(&AppliedMigration{}); err != nil {
		return 0, fmt.Errorf("create schema_migrations: %w", err)
	}
	pending, err := m.Pending(ctx)
	if err != nil {
		return 0, err
	}

	for i, mig := range pending {
		err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Exec(mig.UpScript).Error; err != nil {
				return fmt.Errorf("apply %s: %w", mig, err)
			}
			return tx.Create(&AppliedMigration{Version: mig.Version, Name: mig.Name}).Error
		})
		if err != nil {
			return i, err
		}
		middleware.Logger.InfoContext(ctx, "migration applied", slog.String("migration", mig.String()))
	}
	return len(pending), nil
}

// Down reverts version, which must be the most recently applied migration.
func (m *Migrator) Down(ctx context.Context, version int) error {
	var target *Migration
	for i := range m.set {
		if m.set[i].Version == version {
			target = &m.set[i]
		}
	}
	if target == nil {
		return fmt.Errorf("migration %06d is not part of this build", version)
	}

	applied, err := m.Applied(ctx)
	if err != nil {
		return err
	}
	if len(applied) == 0 || applied[len(applied)-1] != version {
		return fmt.Errorf("migration %06d is not the latest applied migration", version)
	}

	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(target.DownScript).Error; err != nil {
			return fmt.Errorf("revert %s: %w", target, err)
		}
		return tx.Delete(&AppliedMigration{}, "version = ?", version).Error
	})
	if err != nil {
		return err
	}
	middleware.Logger.InfoContext(ctx, "migration reverted", slog.String("migration", target.String()))
	return nil
}

func checkKnownVersions(applied []int, set []Migration) error {
	known := make(map[int]bool, len(set))
	for _, mig := range set {
		known[mig.Version] = true
	}

	var unknown []string
	for _, v := range applied {
		if !known[v] {
			unknown = append(unknown, fmt.Sprintf("%06d", v))
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	return fmt.Errorf("schema_migrations records versions this build does not have: %s", strings.Join(unknown, ", "))
}
