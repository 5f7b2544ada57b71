package database

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// joinTables are many2many tables that have no model of their own.
var joinTables = []string{"post_tags"}

// PersistentTables returns the table names behind PersistentModels plus the
// join tables, children first.
func PersistentTables(db *gorm.DB) ([]string, error) {
	registered := PersistentModels()
	tables := append([]string{}, joinTables...)
	for i := len(registered) - 1; i >= 0; i-- {
		stmt := &gorm.Statement{DB: db}
		if err := stmt.Parse(registered[i]); err != nil {
			return nil, fmt.Errorf("parse model %T: %w", registered[i], err)
		}
		tables = append(tables, stmt.Schema.Table)
	}
	return tables, nil
}

// TruncateAllTables removes every row from the application tables. On
// PostgreSQL identities restart; other dialects delete row by row.
func TruncateAllTables(db *gorm.DB) error {
	tables, err := PersistentTables(db)
	if err != nil {
		return err
	}

	if db.Dialector.Name() == "postgres" {
		sql := "TRUNCATE TABLE " + strings.Join(tables, ", ") + " RESTART IDENTITY CASCADE"
		return db.Exec(sql).Error
	}

	return db.Transaction(func(tx *gorm.DB) error {
		for _, table := range tables {
			if err := tx.Exec("DELETE FROM " + table).Error; err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}
		return nil
	})
}
