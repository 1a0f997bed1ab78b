// Package ledger persists per-file completion state so each media item is
// downloaded exactly once across runs.
//
// Records live in the SQLite table media, keyed by (domain, url_path) after
// canonicalization. All mutations go through one connection and are
// serialized by the Ledger; callers may share a single Ledger between any
// number of goroutines. Startup must succeed before any other method is used.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	errs "mediadl/pkg/errors"
	"mediadl/pkg/logger"
	"mediadl/pkg/models"
)

// Rename rewrites ledger rows stored under an outdated domain key
type Rename struct {
	From string
	To   string
}

// Options configure a Ledger at construction
type Options struct {
	// IgnoreHistory makes every completion check report false without
	// touching stored rows.
	IgnoreHistory   bool
	KnownBadDigests []string
	KnownBadSizes   []int64
	DomainRenames   []Rename
	Canonicalizer   *Canonicalizer
	Logger          logger.Logger
}

// Ledger is the completion ledger
type Ledger struct {
	db     *sqlx.DB
	opts   Options
	canon  *Canonicalizer
	log    logger.Logger
	writeM sync.Mutex
}

// Open opens (creating if needed) the ledger database at path and runs the
// startup migration. A migration failure is returned and the database closed.
func Open(ctx context.Context, path string, opts Options) (*Ledger, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, errs.NewStorageError("open", err)
		}
		dsn = fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path)
	}

	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, errs.NewStorageError("open", err)
	}

	l := New(db, opts)
	if err := l.Startup(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

// New wraps an existing handle. It pins the pool to one connection; call
// Startup before use.
func New(db *sqlx.DB, opts Options) *Ledger {
	db.SetMaxOpenConns(1)

	canon := opts.Canonicalizer
	if canon == nil {
		canon = DefaultCanonicalizer()
	}
	log := opts.Logger
	if log == nil {
		log = logger.GetLogger()
	}

	return &Ledger{
		db:    db,
		opts:  opts,
		canon: canon,
		log:   log.WithField("component", "ledger"),
	}
}

// Close closes the underlying database
func (l *Ledger) Close() error {
	return l.db.Close()
}

// IgnoreHistory reports whether completion checks are disabled for this run
func (l *Ledger) IgnoreHistory() bool {
	return l.opts.IgnoreHistory
}

// key canonicalizes the (domain, url_path) pair for item
func (l *Ledger) key(domain string, item *models.MediaItem) (string, string) {
	return l.canon.Domain(domain), l.canon.Path(item.URL, item.Referer)
}

// IsComplete reports whether the file is recorded as completed. When it is and
// the stored referer differs from referer, the stored referer is updated so
// IsCompleteByReferer finds the file from its newest page.
func (l *Ledger) IsComplete(ctx context.Context, domain string, item *models.MediaItem) (bool, error) {
	if l.opts.IgnoreHistory {
		return false, nil
	}

	d, p := l.key(domain, item)

	var row struct {
		Referer   sql.NullString `db:"referer"`
		Completed int            `db:"completed"`
	}
	err := l.db.GetContext(ctx, &row, `SELECT referer, completed FROM media WHERE domain = ? AND url_path = ?`, d, p)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, errs.NewStorageError("check complete", err)
	}
	if row.Completed == 0 {
		return false, nil
	}

	if item.Referer != "" && item.Referer != row.Referer.String {
		l.writeM.Lock()
		_, err = l.db.ExecContext(ctx, `UPDATE media SET referer = ? WHERE domain = ? AND url_path = ?`, item.Referer, d, p)
		l.writeM.Unlock()
		if err != nil {
			return true, errs.NewStorageError("update referer", err)
		}
		l.log.DebugWithFields("Referer updated", map[string]interface{}{
			"domain": d, "url_path": p, "referer": item.Referer,
		})
	}
	return true, nil
}

// IsCompleteByReferer looks a completed file up by the page that linked it
func (l *Ledger) IsCompleteByReferer(ctx context.Context, domain, referer string) (bool, error) {
	if l.opts.IgnoreHistory {
		return false, nil
	}

	var completed int
	err := l.db.GetContext(ctx, &completed,
		`SELECT completed FROM media WHERE domain = ? AND referer = ? ORDER BY completed DESC LIMIT 1`,
		l.canon.Domain(domain), referer)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, errs.NewStorageError("check complete by referer", err)
	}
	return completed != 0, nil
}

// CheckAlbumStatus returns url_path -> completed for every record of an album
func (l *Ledger) CheckAlbumStatus(ctx context.Context, domain, albumID string) (map[string]bool, error) {
	status := map[string]bool{}
	if l.opts.IgnoreHistory {
		return status, nil
	}

	var rows []struct {
		URLPath   string `db:"url_path"`
		Completed int    `db:"completed"`
	}
	err := l.db.SelectContext(ctx, &rows,
		`SELECT url_path, completed FROM media WHERE domain = ? AND album_id = ?`,
		l.canon.Domain(domain), albumID)
	if err != nil {
		return nil, errs.NewStorageError("check album", err)
	}

	for _, r := range rows {
		status[r.URLPath] = r.Completed != 0
	}
	return status, nil
}

// RecordIncomplete inserts a pending record, adopting a placeholder row left
// by a generic handler for the same path and referer. Repeating the call with
// the same item leaves exactly one record.
func (l *Ledger) RecordIncomplete(ctx context.Context, domain string, item *models.MediaItem) error {
	d, p := l.key(domain, item)

	l.writeM.Lock()
	defer l.writeM.Unlock()

	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return errs.NewStorageError("record incomplete", err)
	}
	defer tx.Rollback()

	if d != PlaceholderDomain {
		_, err = tx.ExecContext(ctx,
			`UPDATE media SET domain = ?, album_id = ? WHERE domain = ? AND url_path = ? AND referer = ?`,
			d, nullString(item.AlbumID), PlaceholderDomain, p, item.Referer)
		if isConstraint(err) {
			_, err = tx.ExecContext(ctx, `DELETE FROM media WHERE domain = ? AND url_path = ?`, PlaceholderDomain, p)
		}
		if err != nil {
			return errs.NewStorageError("adopt placeholder", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO media
			(domain, url_path, referer, album_id, download_path, download_filename, original_filename, completed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, CURRENT_TIMESTAMP)`,
		d, p, item.Referer, nullString(item.AlbumID), item.DownloadFolder, item.DownloadFilename, item.OriginalFilename)
	if err != nil {
		return errs.NewStorageError("insert incomplete", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE media SET download_filename = ? WHERE domain = ? AND url_path = ?`,
		item.DownloadFilename, d, p)
	if err != nil {
		return errs.NewStorageError("update filename", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE media SET referer = ?, album_id = COALESCE(?, album_id)
		WHERE domain = ? AND url_path = ? AND completed = 0`,
		item.Referer, nullString(item.AlbumID), d, p)
	if err != nil {
		return errs.NewStorageError("update pending", err)
	}

	return errs.NewStorageError("commit incomplete", tx.Commit())
}

// MarkComplete flags the record completed. It upserts, so it is safe without a
// preceding RecordIncomplete, and never clears the flag.
func (l *Ledger) MarkComplete(ctx context.Context, domain string, item *models.MediaItem) error {
	d, p := l.key(domain, item)

	l.writeM.Lock()
	defer l.writeM.Unlock()

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO media
			(domain, url_path, referer, album_id, download_path, download_filename, original_filename, completed, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT (domain, url_path) DO UPDATE SET completed = 1, completed_at = CURRENT_TIMESTAMP`,
		d, p, item.Referer, nullString(item.AlbumID), item.DownloadFolder, item.DownloadFilename, item.OriginalFilename)
	return errs.NewStorageError("mark complete", err)
}

// RecordFileSize stores the on-disk size of item.CompleteFile. A missing file
// is logged and skipped.
func (l *Ledger) RecordFileSize(ctx context.Context, domain string, item *models.MediaItem) error {
	info, err := os.Stat(item.CompleteFile)
	if err != nil {
		l.log.WithError(err).WarnWithFields("Cannot record file size", map[string]interface{}{
			"file": item.CompleteFile,
		})
		return nil
	}
	item.FileSize = info.Size()

	d, p := l.key(domain, item)

	l.writeM.Lock()
	defer l.writeM.Unlock()

	_, err = l.db.ExecContext(ctx, `UPDATE media SET file_size = ? WHERE domain = ? AND url_path = ?`, info.Size(), d, p)
	return errs.NewStorageError("record file size", err)
}

// AttachAlbumID late-binds an album association
func (l *Ledger) AttachAlbumID(ctx context.Context, domain string, item *models.MediaItem) error {
	d, p := l.key(domain, item)

	l.writeM.Lock()
	defer l.writeM.Unlock()

	_, err := l.db.ExecContext(ctx, `UPDATE media SET album_id = ? WHERE domain = ? AND url_path = ?`, nullString(item.AlbumID), d, p)
	return errs.NewStorageError("attach album id", err)
}

// FilenameExists reports whether any record already uses filename on disk
func (l *Ledger) FilenameExists(ctx context.Context, filename string) (bool, error) {
	var exists bool
	err := l.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM media WHERE download_filename = ?)`, filename)
	if err != nil {
		return false, errs.NewStorageError("filename exists", err)
	}
	return exists, nil
}

// DownloadedFilename returns the stored final filename for item, or "" if unknown
func (l *Ledger) DownloadedFilename(ctx context.Context, domain string, item *models.MediaItem) (string, error) {
	d, p := l.key(domain, item)

	var name sql.NullString
	err := l.db.GetContext(ctx, &name, `SELECT download_filename FROM media WHERE domain = ? AND url_path = ?`, d, p)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", errs.NewStorageError("downloaded filename", err)
	}
	return name.String, nil
}

// DigestRow is one stored content digest
type DigestRow struct {
	Folder           string `db:"folder"`
	DownloadFilename string `db:"download_filename"`
	Hash             string `db:"hash"`
}

// RecordDigest stores the digest of a downloaded file
func (l *Ledger) RecordDigest(ctx context.Context, item *models.MediaItem, algorithm string) error {
	l.writeM.Lock()
	defer l.writeM.Unlock()

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO hash (folder, download_filename, original_filename, file_size, hash, algorithm)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (folder, download_filename) DO UPDATE SET
			original_filename = excluded.original_filename,
			file_size = excluded.file_size,
			hash = excluded.hash,
			algorithm = excluded.algorithm`,
		item.DownloadFolder, item.DownloadFilename, item.OriginalFilename, item.FileSize, item.Digest, algorithm)
	return errs.NewStorageError("record digest", err)
}

// FilesWithDigest lists every stored file whose content has digest
func (l *Ledger) FilesWithDigest(ctx context.Context, digest string) ([]DigestRow, error) {
	var rows []DigestRow
	err := l.db.SelectContext(ctx, &rows,
		`SELECT folder, download_filename, hash FROM hash WHERE hash = ? ORDER BY folder, download_filename`, digest)
	if err != nil {
		return nil, errs.NewStorageError("files with digest", err)
	}
	return rows, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func isConstraint(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.Code == sqlite3.ErrConstraint
}
