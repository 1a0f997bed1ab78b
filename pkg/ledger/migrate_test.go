package ledger

import (
	"context"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mediadl/pkg/logger"
)

const legacyMedia = `CREATE TABLE media (
	domain TEXT,
	url_path TEXT,
	referer TEXT,
	download_path TEXT,
	download_filename TEXT,
	original_filename TEXT,
	completed INTEGER NOT NULL
)`

func openRawDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := sqlx.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func seedLegacy(t *testing.T, db *sqlx.DB) {
	t.Helper()
	db.MustExec(legacyMedia)
	rows := []struct {
		domain, path, referer, file string
		completed                   int
	}{
		{"coomer", "/a", "https://coomer.su/p/1", "a.jpg", 1},
		{"coomer", "/a", "https://coomer.su/p/2", "a.jpg", 1},
		{"coomer", "/a", "https://coomer.su/p/3", "a.jpg", 0},
		{"coomer", "/b", "https://coomer.su/p/1", "b.jpg", 0},
		{"coomer", "/b", "https://coomer.su/p/1", "b.jpg", 0},
		{"bunkr", "/c", "https://bunkr.si/a/1", "c.mp4", 1},
		{"bunkr", "/d", "https://bunkr.si/a/1", "d.mp4", 0},
		{"bunkrr", "/c", "https://bunkrr.su/a/1", "c-new.mp4", 0},
	}
	for _, r := range rows {
		db.MustExec(`INSERT INTO media VALUES (?, ?, ?, '/downloads', ?, ?, ?)`,
			r.domain, r.path, r.referer, r.file, r.file, r.completed)
	}
}

func primaryKey(t *testing.T, l *Ledger) map[string]int {
	t.Helper()
	cols, err := l.tableInfo(context.Background(), "media")
	require.NoError(t, err)
	pk := map[string]int{}
	for _, c := range cols {
		if c.PK > 0 {
			pk[c.Name] = c.PK
		}
	}
	return pk
}

func columnNames(t *testing.T, l *Ledger) []string {
	t.Helper()
	cols, err := l.tableInfo(context.Background(), "media")
	require.NoError(t, err)
	var names []string
	for _, c := range cols {
		names = append(names, c.Name)
	}
	return names
}

func TestStartupMigratesLegacyTable(t *testing.T) {
	ctx := context.Background()
	db := openRawDB(t)
	seedLegacy(t, db)

	l := New(db, Options{
		DomainRenames: []Rename{{From: "bunkr", To: "bunkrr"}},
		Logger:        logger.NewNopLogger(),
	})
	require.NoError(t, l.Startup(ctx))

	assert.Equal(t, map[string]int{"domain": 1, "url_path": 2}, primaryKey(t, l))
	assert.ElementsMatch(t, mediaColumns, columnNames(t, l))

	var groups []struct {
		Domain string `db:"domain"`
		Path   string `db:"url_path"`
		N      int    `db:"n"`
	}
	require.NoError(t, db.Select(&groups, `
		SELECT domain, url_path, COUNT(*) AS n FROM media
		GROUP BY domain, url_path, original_filename ORDER BY domain, url_path`))
	require.Len(t, groups, 3)
	for _, g := range groups {
		assert.Equal(t, 1, g.N, "%s %s", g.Domain, g.Path)
	}

	// first inserted row of a duplicate group is kept
	var referer string
	require.NoError(t, db.Get(&referer, `SELECT referer FROM media WHERE domain = 'coomer' AND url_path = '/a'`))
	assert.Equal(t, "https://coomer.su/p/1", referer)

	// the completed bunkr row replaced the stale bunkrr one; the pending one is gone
	var n int
	require.NoError(t, db.Get(&n, `SELECT COUNT(*) FROM media WHERE domain = 'bunkr'`))
	assert.Zero(t, n)
	var file string
	require.NoError(t, db.Get(&file, `SELECT download_filename FROM media WHERE domain = 'bunkrr' AND url_path = '/c'`))
	assert.Equal(t, "c.mp4", file)
}

func TestStartupIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := openRawDB(t)
	seedLegacy(t, db)

	l := New(db, Options{DomainRenames: []Rename{{From: "bunkr", To: "bunkrr"}}, Logger: logger.NewNopLogger()})
	require.NoError(t, l.Startup(ctx))

	var before []string
	require.NoError(t, db.Select(&before, `SELECT domain || url_path || COALESCE(referer, '') FROM media ORDER BY 1`))

	require.NoError(t, l.Startup(ctx))
	require.NoError(t, l.Startup(ctx))

	var after []string
	require.NoError(t, db.Select(&after, `SELECT domain || url_path || COALESCE(referer, '') FROM media ORDER BY 1`))
	assert.Equal(t, before, after)
	assert.Equal(t, map[string]int{"domain": 1, "url_path": 2}, primaryKey(t, l))
}

func TestStartupRecoversInterruptedRebuild(t *testing.T) {
	ctx := context.Background()
	db := openRawDB(t)
	seedLegacy(t, db)
	// a crash mid-rebuild left a half-filled copy behind
	db.MustExec(`CREATE TABLE media_copy (domain TEXT, url_path TEXT)`)
	db.MustExec(`INSERT INTO media_copy VALUES ('coomer', '/zzz')`)

	l := New(db, Options{Logger: logger.NewNopLogger()})
	require.NoError(t, l.Startup(ctx))

	assert.Equal(t, map[string]int{"domain": 1, "url_path": 2}, primaryKey(t, l))

	var n int
	require.NoError(t, db.Get(&n, `SELECT COUNT(*) FROM media WHERE url_path = '/zzz'`))
	assert.Zero(t, n)

	var copies int
	require.NoError(t, db.Get(&copies, `SELECT COUNT(*) FROM sqlite_master WHERE name = 'media_copy'`))
	assert.Zero(t, copies)
}

func TestStartupPromotesOrphanedCopy(t *testing.T) {
	ctx := context.Background()
	db := openRawDB(t)
	db.MustExec(`CREATE TABLE media_copy (
		domain TEXT NOT NULL, url_path TEXT NOT NULL, referer TEXT, download_path TEXT,
		download_filename TEXT, original_filename TEXT, completed INTEGER NOT NULL,
		PRIMARY KEY (domain, url_path))`)
	db.MustExec(`INSERT INTO media_copy (domain, url_path, completed) VALUES ('coomer', '/kept', 1)`)

	l := New(db, Options{Logger: logger.NewNopLogger()})
	require.NoError(t, l.Startup(ctx))

	var n int
	require.NoError(t, db.Get(&n, `SELECT COUNT(*) FROM media WHERE url_path = '/kept'`))
	assert.Equal(t, 1, n)
	assert.ElementsMatch(t, mediaColumns, columnNames(t, l))
}

func TestStartupRebuildsWrongCompositeKey(t *testing.T) {
	ctx := context.Background()
	db := openRawDB(t)
	db.MustExec(`CREATE TABLE media (
		domain TEXT, url_path TEXT, referer TEXT, download_path TEXT,
		download_filename TEXT, original_filename TEXT, completed INTEGER NOT NULL,
		PRIMARY KEY (domain, url_path, original_filename))`)
	db.MustExec(`INSERT INTO media VALUES ('coomer', '/a', 'r', '/d', 'a.jpg', 'a.jpg', 1)`)

	l := New(db, Options{Logger: logger.NewNopLogger()})
	require.NoError(t, l.Startup(ctx))

	assert.Equal(t, map[string]int{"domain": 1, "url_path": 2}, primaryKey(t, l))
	var n int
	require.NoError(t, db.Get(&n, `SELECT COUNT(*) FROM media`))
	assert.Equal(t, 1, n)
}

func TestStartupAddsMissingColumnsOnly(t *testing.T) {
	ctx := context.Background()
	db := openRawDB(t)
	db.MustExec(`CREATE TABLE media (
		domain TEXT NOT NULL, url_path TEXT NOT NULL, referer TEXT, download_path TEXT,
		download_filename TEXT, original_filename TEXT, completed INTEGER NOT NULL,
		album_id TEXT,
		PRIMARY KEY (domain, url_path))`)
	db.MustExec(`INSERT INTO media (domain, url_path, completed, album_id) VALUES ('coomer', '/a', 1, 'al')`)

	l := New(db, Options{Logger: logger.NewNopLogger()})
	require.NoError(t, l.Startup(ctx))

	assert.ElementsMatch(t, mediaColumns, columnNames(t, l))
	var album string
	require.NoError(t, db.Get(&album, `SELECT album_id FROM media WHERE url_path = '/a'`))
	assert.Equal(t, "al", album)
}

func TestOpenCreatesFileLedger(t *testing.T) {
	path := t.TempDir() + "/nested/ledger.db"
	l, err := Open(context.Background(), path, Options{Logger: logger.NewNopLogger()})
	require.NoError(t, err)
	require.NoError(t, l.Close())

	// reopening an already migrated file is a no-op migration
	l, err = Open(context.Background(), path, Options{Logger: logger.NewNopLogger()})
	require.NoError(t, err)
	defer l.Close()
	assert.Equal(t, map[string]int{"domain": 1, "url_path": 2}, primaryKey(t, l))
}
