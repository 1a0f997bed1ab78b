package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	errs "mediadl/pkg/errors"
	"mediadl/pkg/ledger/migrations"
)

const createMedia = `
CREATE TABLE IF NOT EXISTS %s (
    domain TEXT NOT NULL,
    url_path TEXT NOT NULL,
    referer TEXT,
    album_id TEXT,
    download_path TEXT,
    download_filename TEXT,
    original_filename TEXT,
    completed INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP,
    completed_at TIMESTAMP,
    file_size INT,
    PRIMARY KEY (domain, url_path)
)`

// mediaColumns lists the media columns in table order
var mediaColumns = []string{
	"domain", "url_path", "referer", "album_id", "download_path", "download_filename",
	"original_filename", "completed", "created_at", "completed_at", "file_size",
}

// optionalColumns were appended after the first released schema. Older ledgers
// may lack any of them.
var optionalColumns = []struct {
	name string
	ddl  string
}{
	{"album_id", "TEXT"},
	{"created_at", "TIMESTAMP"},
	{"completed_at", "TIMESTAMP"},
	{"file_size", "INT"},
}

type columnInfo struct {
	CID     int     `db:"cid"`
	Name    string  `db:"name"`
	Type    string  `db:"type"`
	NotNull int     `db:"notnull"`
	Default *string `db:"dflt_value"`
	PK      int     `db:"pk"`
}

// Startup brings any existing ledger to the current shape. Every step checks
// before it acts, so running it again on a migrated ledger changes nothing.
// Any error here means the schema is in an unknown state and the run must stop.
func (l *Ledger) Startup(ctx context.Context) error {
	l.writeM.Lock()
	defer l.writeM.Unlock()

	start := time.Now()
	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"create media", l.createTable},
		{"fix primary key", l.fixPrimaryKey},
		{"add columns", l.addColumns},
		{"domain renames", l.applyRenames},
		{"auxiliary tables", l.migrateAuxiliary},
	}

	for _, step := range steps {
		if err := step.fn(ctx); err != nil {
			return errs.NewStorageError("startup "+step.name, err)
		}
	}

	l.log.DebugWithFields("Ledger ready", map[string]interface{}{"took": time.Since(start)})
	return nil
}

// createTable creates media if absent. A rebuild interrupted between dropping
// media and renaming its copy leaves only media_copy; that copy is promoted.
func (l *Ledger) createTable(ctx context.Context) error {
	hasMedia, err := l.tableExists(ctx, "media")
	if err != nil {
		return err
	}
	if !hasMedia {
		hasCopy, err := l.tableExists(ctx, "media_copy")
		if err != nil {
			return err
		}
		if hasCopy {
			l.log.Warn("Recovering ledger from interrupted rebuild")
			if _, err := l.db.ExecContext(ctx, `ALTER TABLE media_copy RENAME TO media`); err != nil {
				return err
			}
		}
	}

	_, err = l.db.ExecContext(ctx, fmt.Sprintf(createMedia, "media"))
	return err
}

func (l *Ledger) tableExists(ctx context.Context, name string) (bool, error) {
	var n int
	err := l.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name)
	return n > 0, err
}

func (l *Ledger) tableInfo(ctx context.Context, table string) ([]columnInfo, error) {
	var cols []columnInfo
	err := l.db.SelectContext(ctx, &cols, fmt.Sprintf("PRAGMA table_info(%s)", table))
	return cols, err
}

// hasExpectedKey reports whether the primary key is exactly (domain, url_path)
func hasExpectedKey(cols []columnInfo) bool {
	key := map[string]int{}
	for _, c := range cols {
		if c.PK > 0 {
			key[c.Name] = c.PK
		}
	}
	return len(key) == 2 && key["domain"] == 1 && key["url_path"] == 2
}

// fixPrimaryKey rebuilds a legacy media table that lacks the composite key.
// Duplicate (domain, url_path, original_filename) groups collapse to their
// first-inserted row. The rebuild runs in one transaction; a stale media_copy
// from an interrupted older run is discarded first.
func (l *Ledger) fixPrimaryKey(ctx context.Context) error {
	cols, err := l.tableInfo(ctx, "media")
	if err != nil {
		return err
	}
	if hasExpectedKey(cols) {
		return nil
	}

	l.log.Warn("Rebuilding ledger primary key, do not interrupt")

	present := map[string]bool{}
	for _, c := range cols {
		present[c.Name] = true
	}
	var copyCols []string
	for _, name := range mediaColumns {
		if present[name] {
			copyCols = append(copyCols, name)
		}
	}
	colList := strings.Join(copyCols, ", ")

	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmts := []string{
		`DROP TABLE IF EXISTS media_copy`,
		fmt.Sprintf(createMedia, "media_copy"),
		fmt.Sprintf(`INSERT OR IGNORE INTO media_copy (%[1]s)
			SELECT %[1]s FROM media
			WHERE rowid IN (SELECT MIN(rowid) FROM media GROUP BY domain, url_path, original_filename)
			ORDER BY rowid`, colList),
		`DROP TABLE media`,
		`ALTER TABLE media_copy RENAME TO media`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: %w", strings.Fields(stmt)[0], err)
		}
	}
	return tx.Commit()
}

func (l *Ledger) addColumns(ctx context.Context) error {
	cols, err := l.tableInfo(ctx, "media")
	if err != nil {
		return err
	}
	present := map[string]bool{}
	for _, c := range cols {
		present[c.Name] = true
	}

	for _, oc := range optionalColumns {
		if present[oc.name] {
			continue
		}
		if _, err := l.db.ExecContext(ctx, fmt.Sprintf("ALTER TABLE media ADD COLUMN %s %s", oc.name, oc.ddl)); err != nil {
			return fmt.Errorf("add column %s: %w", oc.name, err)
		}
		l.log.InfoWithFields("Added ledger column", map[string]interface{}{"column": oc.name})
	}
	return nil
}

// applyRenames moves completed rows from an outdated domain key to its
// replacement and drops everything left under the old key.
func (l *Ledger) applyRenames(ctx context.Context) error {
	cols := strings.Join(mediaColumns[1:], ", ")

	for _, r := range l.opts.DomainRenames {
		tx, err := l.db.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, fmt.Sprintf(
			`INSERT OR REPLACE INTO media (domain, %[1]s) SELECT ?, %[1]s FROM media WHERE domain = ? AND completed = 1`, cols),
			r.To, r.From)
		if err == nil {
			_, err = tx.ExecContext(ctx, `DELETE FROM media WHERE domain = ?`, r.From)
		}
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("rename %s -> %s: %w", r.From, r.To, err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

func (l *Ledger) migrateAuxiliary(ctx context.Context) error {
	return migrations.MigrateUp(l.db.DB)
}
