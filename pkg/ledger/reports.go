package ledger

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	errs "mediadl/pkg/errors"
)

// ReportRow is the projection shared by all report queries
type ReportRow struct {
	Referer      string `db:"referer"`
	DownloadPath string `db:"download_path"`
	CompletedAt  string `db:"completed_at"`
	CreatedAt    string `db:"created_at"`
}

const reportColumns = `COALESCE(m.referer, '') AS referer,
	COALESCE(m.download_path, '') AS download_path,
	COALESCE(m.completed_at, '') AS completed_at,
	COALESCE(m.created_at, '') AS created_at`

// FailedItems lists records that never completed
func (l *Ledger) FailedItems(ctx context.Context) ([]ReportRow, error) {
	var rows []ReportRow
	err := l.db.SelectContext(ctx, &rows, `SELECT `+reportColumns+` FROM media m WHERE m.completed = 0`)
	if err != nil {
		return nil, errs.NewStorageError("failed items", err)
	}
	return rows, nil
}

// ItemsBetween lists records completed within [after, before], whole UTC days
// inclusive, newest first. Records without a completion time sort as if
// completed at the epoch.
func (l *Ledger) ItemsBetween(ctx context.Context, after, before time.Time) ([]ReportRow, error) {
	var rows []ReportRow
	err := l.db.SelectContext(ctx, &rows, `
		SELECT `+reportColumns+`
		FROM media m
		WHERE COALESCE(m.completed_at, '1970-01-01') BETWEEN ? AND ?
		ORDER BY COALESCE(m.completed_at, '1970-01-01') DESC`,
		after.UTC().Format("2006-01-02"), before.UTC().Format("2006-01-02")+" 23:59:59")
	if err != nil {
		return nil, errs.NewStorageError("items between", err)
	}
	return rows, nil
}

// UniqueDownloadPaths lists every distinct destination folder
func (l *Ledger) UniqueDownloadPaths(ctx context.Context) ([]string, error) {
	var paths []string
	err := l.db.SelectContext(ctx, &paths,
		`SELECT DISTINCT download_path FROM media WHERE download_path IS NOT NULL ORDER BY download_path`)
	if err != nil {
		return nil, errs.NewStorageError("unique download paths", err)
	}
	return paths, nil
}

// KnownBadItems lists records whose file matches a known-bad digest or size,
// i.e. placeholder content a host served instead of the real file. Failures
// are logged and produce an empty result rather than an error.
func (l *Ledger) KnownBadItems(ctx context.Context) []ReportRow {
	return append(l.knownBadByDigest(ctx), l.knownBadBySize(ctx)...)
}

func (l *Ledger) knownBadByDigest(ctx context.Context) []ReportRow {
	if len(l.opts.KnownBadDigests) == 0 {
		return nil
	}

	query, args, err := sqlx.In(`
		SELECT `+reportColumns+`
		FROM hash h
		INNER JOIN media m ON h.download_filename = m.download_filename
		WHERE h.hash IN (?)`, l.opts.KnownBadDigests)
	if err == nil {
		var rows []ReportRow
		if err = l.db.SelectContext(ctx, &rows, l.db.Rebind(query), args...); err == nil {
			return rows
		}
	}

	l.log.WithError(err).Warn("Known-bad digest lookup failed, skipping")
	return nil
}

func (l *Ledger) knownBadBySize(ctx context.Context) []ReportRow {
	if len(l.opts.KnownBadSizes) == 0 {
		return nil
	}

	query, args, err := sqlx.In(`SELECT `+reportColumns+` FROM media m WHERE m.file_size IN (?)`, l.opts.KnownBadSizes)
	if err == nil {
		var rows []ReportRow
		if err = l.db.SelectContext(ctx, &rows, l.db.Rebind(query), args...); err == nil {
			return rows
		}
	}

	l.log.WithError(err).Warn("Known-bad size lookup failed, skipping")
	return nil
}
