package database

import (
	"context"
	"testing"
	"testing/fstest"
	"time"

	"inkwell/internal/config"
	"inkwell/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func openSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared&_foreign_keys=on"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func TestConfigurePool(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	cfg := &config.Config{
		DBMaxOpenConns:           10,
		DBMaxIdleConns:           5,
		DBConnMaxLifetimeMinutes: 15,
	}

	require.NoError(t, configurePool(db, cfg))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	assert.Equal(t, 10, sqlDB.Stats().MaxOpenConnections)
}

func TestConfigurePool_Defaults(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, configurePool(db, &config.Config{}))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	assert.Equal(t, 25, sqlDB.Stats().MaxOpenConnections)
}

func TestPlanSchema(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.Config
		wantSQL  bool
		wantAuto bool
		wantErr  bool
	}{
		{"hybrid in development", config.Config{Env: "development"}, true, true, false},
		{"hybrid in production", config.Config{Env: "production", DBSchemaMode: "hybrid"}, true, false, false},
		{"hybrid in staging", config.Config{Env: "Staging"}, true, false, false},
		{"sql only", config.Config{Env: "development", DBSchemaMode: "sql"}, true, false, false},
		{"auto in production refused", config.Config{Env: "production", DBSchemaMode: "auto"}, false, false, true},
		{"auto in production allowed", config.Config{Env: "production", DBSchemaMode: "auto", DBAutoMigrateAllowDestructive: true}, false, true, false},
		{"sqlite builds from models", config.Config{Env: "development", DBDriver: "sqlite"}, false, true, false},
		{"sqlite rejects sql", config.Config{Env: "development", DBDriver: "sqlite", DBSchemaMode: "sql"}, false, false, true},
		{"unknown mode", config.Config{DBSchemaMode: "magic"}, false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := PlanSchema(&tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, plan.SQL)
			assert.Equal(t, tt.wantAuto, plan.AutoMigrate)
		})
	}
}

func TestApplySchema_SQLiteEnforcesPublishInvariant(t *testing.T) {
	db := openSQLite(t)
	cfg := &config.Config{Env: "test", DBDriver: DriverSQLite}
	require.NoError(t, ApplySchema(context.Background(), db, cfg))

	user := models.User{Username: "ada", Email: "ada@example.com", Password: "x"}
	require.NoError(t, db.Create(&user).Error)

	now := time.Now()
	bad := models.Post{Title: "t", Content: "c", AuthorID: user.ID, Status: models.PostStatusDraft, PublishedDate: &now}
	assert.Error(t, db.Create(&bad).Error, "draft with published_date must be rejected")

	good := models.Post{Title: "t", Content: "c", AuthorID: user.ID, Status: models.PostStatusDraft}
	require.NoError(t, db.Create(&good).Error)

	badRating := models.Rating{UserID: user.ID, PostID: good.ID, Score: 6}
	assert.Error(t, db.Create(&badRating).Error, "score outside 1..5 must be rejected")
}

func TestRegisteredMigrations(t *testing.T) {
	all := Migrations()
	require.NotEmpty(t, all)
	assert.Equal(t, 1, all[0].Version)
	assert.Equal(t, "000001_init", all[0].String())
	assert.Contains(t, all[0].UpScript, "CREATE TABLE IF NOT EXISTS posts")
	assert.Contains(t, all[0].DownScript, "DROP TABLE IF EXISTS posts")

	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1].Version, all[i].Version)
	}
	_, ok := MigrationByVersion(999999)
	assert.False(t, ok)

	feed, ok := MigrationByVersion(2)
	require.True(t, ok)
	assert.Equal(t, "feed_indexes", feed.Name)
	assert.Contains(t, feed.UpScript, "idx_posts_status_created_at")
}

func TestLoadMigrations(t *testing.T) {
	valid := fstest.MapFS{
		"m/000002_ratings.up.sql":   {Data: []byte("CREATE TABLE ratings (id INT);")},
		"m/000002_ratings.down.sql": {Data: []byte("DROP TABLE ratings;")},
		"m/000001_posts.up.sql":     {Data: []byte("CREATE TABLE posts (id INT);")},
		"m/000001_posts.down.sql":   {Data: []byte("DROP TABLE posts;")},
		"m/README.md":               {Data: []byte("notes")},
	}
	got, err := loadMigrations(valid, "m")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "000001_posts", got[0].String())
	assert.Equal(t, "DROP TABLE ratings;", got[1].DownScript)

	broken := map[string]fstest.MapFS{
		"missing down": {
			"m/000001_posts.up.sql": {Data: []byte("CREATE TABLE posts (id INT);")},
		},
		"bad version": {
			"m/first_posts.up.sql":   {Data: []byte("CREATE TABLE posts (id INT);")},
			"m/first_posts.down.sql": {Data: []byte("DROP TABLE posts;")},
		},
		"duplicate version": {
			"m/000001_posts.up.sql":   {Data: []byte("CREATE TABLE posts (id INT);")},
			"m/000001_posts.down.sql": {Data: []byte("DROP TABLE posts;")},
			"m/000001_likes.up.sql":   {Data: []byte("CREATE TABLE likes (id INT);")},
			"m/000001_likes.down.sql": {Data: []byte("DROP TABLE likes;")},
		},
		"empty up": {
			"m/000001_posts.up.sql":   {Data: []byte("  \n")},
			"m/000001_posts.down.sql": {Data: []byte("DROP TABLE posts;")},
		},
	}
	for name, fsys := range broken {
		t.Run(name, func(t *testing.T) {
			_, err := loadMigrations(fsys, "m")
			assert.Error(t, err)
		})
	}
}

func testMigrator(t *testing.T) (*Migrator, *gorm.DB) {
	t.Helper()
	db := openSQLite(t)
	set, err := loadMigrations(fstest.MapFS{
		"m/000001_posts.up.sql":     {Data: []byte("CREATE TABLE posts (id INTEGER PRIMARY KEY, title TEXT)")},
		"m/000001_posts.down.sql":   {Data: []byte("DROP TABLE posts")},
		"m/000002_ratings.up.sql":   {Data: []byte("CREATE TABLE ratings (post_id INTEGER, score INTEGER)")},
		"m/000002_ratings.down.sql": {Data: []byte("DROP TABLE ratings")},
	}, "m")
	require.NoError(t, err)
	return &Migrator{db: db, set: set}, db
}

func TestMigrator_UpIsIdempotent(t *testing.T) {
	m, db := testMigrator(t)
	ctx := context.Background()

	applied, err := m.Applied(ctx)
	require.NoError(t, err)
	assert.Empty(t, applied)

	n, err := m.Up(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, db.Migrator().HasTable("ratings"))

	n, err = m.Up(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	applied, err = m.Applied(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, applied)
}

func TestMigrator_FailedScriptLeavesNoLedgerRow(t *testing.T) {
	m, _ := testMigrator(t)
	ctx := context.Background()
	m.set = append(m.set, Migration{Version: 3, Name: "broken", UpScript: "CREATE TABLE (", DownScript: "SELECT 1"})

	n, err := m.Up(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "000003_broken")
	assert.Equal(t, 2, n)

	pending, err := m.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 3, pending[0].Version)
}

func TestMigrator_DownRevertsLatestOnly(t *testing.T) {
	m, db := testMigrator(t)
	ctx := context.Background()
	_, err := m.Up(ctx)
	require.NoError(t, err)

	err = m.Down(ctx, 1)
	assert.ErrorContains(t, err, "not the latest")
	assert.ErrorContains(t, m.Down(ctx, 9), "not part of this build")

	require.NoError(t, m.Down(ctx, 2))
	assert.False(t, db.Migrator().HasTable("ratings"))
	assert.True(t, db.Migrator().HasTable("posts"))

	pending, err := m.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "ratings", pending[0].Name)
}

func TestMigrator_UnknownAppliedVersion(t *testing.T) {
	m, db := testMigrator(t)
	ctx := context.Background()
	_, err := m.Up(ctx)
	require.NoError(t, err)
	require.NoError(t, db.Create(&AppliedMigration{Version: 7, Name: "from_newer_build"}).Error)

	_, err = m.Pending(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "000007")
}

func TestGetSchemaStatus_SQLiteSkipsLedger(t *testing.T) {
	db := openSQLite(t)
	status, err := GetSchemaStatus(context.Background(), db, &config.Config{Env: "test", DBDriver: DriverSQLite})
	require.NoError(t, err)
	assert.False(t, status.SQL)
	assert.True(t, status.AutoMigrate)
	assert.Empty(t, status.PendingMigrations)
	assert.False(t, db.Migrator().HasTable(&AppliedMigration{}))
}
