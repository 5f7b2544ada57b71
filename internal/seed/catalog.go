package seed

import (
	_ "embed"
	"fmt"
	"strings"

	"inkwell/internal/models"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

//go:embed catalog.yaml
var catalogYAML []byte

// CatalogData is the built-in set of categories and tags.
type CatalogData struct {
	Categories []string `yaml:"categories"`
	Tags       []string `yaml:"tags"`
}

// LoadCatalog parses the embedded catalog.
func LoadCatalog() (*CatalogData, error) {
	return ParseCatalog(catalogYAML)
}

// ParseCatalog decodes a catalog document, trimming names and dropping
// blanks, overlong names and duplicates.
func ParseCatalog(raw []byte) (*CatalogData, error) {
	var data CatalogData
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	data.Categories = uniqueNames(data.Categories, models.MaxCategoryNameLength)
	data.Tags = uniqueNames(data.Tags, models.MaxTagNameLength)
	return &data, nil
}

func uniqueNames(names []string, maxLen int) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" || len(name) > maxLen {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

// Catalog inserts the built-in categories and tags. Existing names are left
// as they are, so it is safe to run on every startup.
func Catalog(db *gorm.DB) error {
	data, err := LoadCatalog()
	if err != nil {
		return err
	}
	return ApplyCatalog(db, data)
}

// ApplyCatalog inserts data's categories and tags in one transaction.
func ApplyCatalog(db *gorm.DB, data *CatalogData) error {
	return db.Transaction(func(tx *gorm.DB) error {
		for _, name := range data.Categories {
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "name"}},
				DoNothing: true,
			}).Create(&models.Category{Name: name}).Error; err != nil {
				return fmt.Errorf("seed category %q: %w", name, err)
			}
		}
		for _, name := range data.Tags {
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "name"}},
				DoNothing: true,
			}).Create(&models.Tag{Name: name}).Error; err != nil {
				return fmt.Errorf("seed tag %q: %w", name, err)
			}
		}
		return nil
	})
}
