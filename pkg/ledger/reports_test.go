package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	errs "mediadl/pkg/errors"
	"mediadl/pkg/logger"
)

func newMockLedger(t *testing.T, opts Options) (*Ledger, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	if opts.Logger == nil {
		opts.Logger = logger.NewNopLogger()
	}
	return New(sqlx.NewDb(mockDB, "sqlite3"), opts), mock
}

func reportRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"referer", "download_path", "completed_at", "created_at"})
}

func TestFailedItems(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, Options{})

	done := newItem(t, "https://coomer.su/data/ok.jpg", "https://coomer.su/p/1")
	failed := newItem(t, "https://coomer.su/data/bad.jpg", "https://coomer.su/p/2")
	require.NoError(t, l.RecordIncomplete(ctx, "coomer", done))
	require.NoError(t, l.RecordIncomplete(ctx, "coomer", failed))
	require.NoError(t, l.MarkComplete(ctx, "coomer", done))

	rows, err := l.FailedItems(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "https://coomer.su/p/2", rows[0].Referer)
	assert.Equal(t, "/downloads/alice", rows[0].DownloadPath)
	assert.Empty(t, rows[0].CompletedAt)
	assert.NotEmpty(t, rows[0].CreatedAt)
}

func TestItemsBetween(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, Options{})

	l.db.MustExec(`INSERT INTO media (domain, url_path, referer, completed, completed_at) VALUES
		('coomer', '/early', 'r-early', 1, '2024-01-05 10:00:00'),
		('coomer', '/late', 'r-late', 1, '2024-01-10 23:00:00'),
		('coomer', '/outside', 'r-outside', 1, '2024-02-01 00:00:00'),
		('coomer', '/never', 'r-never', 0, NULL)`)

	day := func(s string) time.Time {
		d, err := time.Parse("2006-01-02", s)
		require.NoError(t, err)
		return d
	}

	rows, err := l.ItemsBetween(ctx, day("2024-01-01"), day("2024-01-10"))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "r-late", rows[0].Referer, "newest first and last day inclusive")
	assert.Equal(t, "r-early", rows[1].Referer)

	rows, err = l.ItemsBetween(ctx, day("1970-01-01"), day("2024-01-06"))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "r-early", rows[0].Referer)
	assert.Equal(t, "r-never", rows[1].Referer, "missing completion time sorts as the epoch")

	// 00:30 at UTC+2 is still the 9th in UTC, so the 10th is excluded
	east := time.Date(2024, 1, 10, 0, 30, 0, 0, time.FixedZone("UTC+2", 2*3600))
	rows, err = l.ItemsBetween(ctx, day("2024-01-01"), east)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "r-early", rows[0].Referer)
}

func TestUniqueDownloadPaths(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, Options{})

	for _, raw := range []string{"https://a/1.jpg", "https://a/2.jpg", "https://a/3.jpg"} {
		item := newItem(t, raw, "r")
		if raw == "https://a/3.jpg" {
			item.DownloadFolder = "/downloads/bob"
		}
		require.NoError(t, l.RecordIncomplete(ctx, "a", item))
	}

	paths, err := l.UniqueDownloadPaths(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"/downloads/alice", "/downloads/bob"}, paths)
}

func TestKnownBadItems(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, Options{
		KnownBadDigests: []string{"badhash1", "badhash2"},
		KnownBadSizes:   []int64{322509},
	})

	placeholder := newItem(t, "https://cdn.bunkr.ru/ph.jpg", "https://bunkr.si/f/ph")
	placeholder.Digest = "badhash2"
	good := newItem(t, "https://cdn.bunkr.ru/ok.jpg", "https://bunkr.si/f/ok")
	good.Digest = "fine"
	sized := newItem(t, "https://cdn.bunkr.ru/sz.jpg", "https://bunkr.si/f/sz")

	require.NoError(t, l.RecordIncomplete(ctx, "bunkrr", placeholder))
	require.NoError(t, l.RecordIncomplete(ctx, "bunkrr", good))
	require.NoError(t, l.RecordIncomplete(ctx, "bunkrr", sized))
	require.NoError(t, l.RecordDigest(ctx, placeholder, "blake2b"))
	require.NoError(t, l.RecordDigest(ctx, good, "blake2b"))
	l.db.MustExec(`UPDATE media SET file_size = 322509 WHERE url_path = '/sz.jpg'`)

	rows := l.KnownBadItems(ctx)
	require.Len(t, rows, 2)
	assert.Equal(t, "https://bunkr.si/f/ph", rows[0].Referer)
	assert.Equal(t, "https://bunkr.si/f/sz", rows[1].Referer)
}

func TestKnownBadItemsMissingHashTable(t *testing.T) {
	ctx := context.Background()
	tl := logger.NewTestLogger()
	l := newTestLedger(t, Options{KnownBadDigests: []string{"x"}, KnownBadSizes: []int64{5}, Logger: tl})
	l.db.MustExec(`DROP TABLE hash`)
	l.db.MustExec(`INSERT INTO media (domain, url_path, referer, completed, file_size) VALUES ('d', '/p', 'ref', 1, 5)`)

	rows := l.KnownBadItems(ctx)
	require.Len(t, rows, 1, "the size query still runs")
	assert.Equal(t, "ref", rows[0].Referer)
	assert.Len(t, tl.GetMessagesByLevel("WARN"), 1)
}

func TestKnownBadItemsDegradesOnQueryFailure(t *testing.T) {
	tl := logger.NewTestLogger()
	l, mock := newMockLedger(t, Options{
		KnownBadDigests: []string{"a", "b"},
		KnownBadSizes:   []int64{1},
		Logger:          tl,
	})

	mock.ExpectQuery(`FROM hash h\s+INNER JOIN media m`).
		WithArgs("a", "b").
		WillReturnError(errors.New("database disk image is malformed"))
	mock.ExpectQuery(`FROM media m WHERE m.file_size IN \(\?\)`).
		WithArgs(int64(1)).
		WillReturnRows(reportRows().AddRow("ref", "/d", "2024-01-01 00:00:00", "2024-01-01 00:00:00"))

	rows := l.KnownBadItems(context.Background())
	require.Len(t, rows, 1)
	assert.Equal(t, "ref", rows[0].Referer)
	assert.True(t, tl.HasMessage("Known-bad digest lookup failed"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestKnownBadItemsEmptySets(t *testing.T) {
	l, mock := newMockLedger(t, Options{})
	assert.Empty(t, l.KnownBadItems(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet(), "no query is issued without known-bad values")
}

func TestStorageFaultsAreTyped(t *testing.T) {
	ctx := context.Background()
	l, mock := newMockLedger(t, Options{})
	item := newItem(t, "https://coomer.su/x", "https://coomer.su/p")

	mock.ExpectQuery(`SELECT referer, completed FROM media`).
		WithArgs("coomer", "/x").
		WillReturnError(errors.New("disk I/O error"))
	_, err := l.IsComplete(ctx, "coomer", item)
	var se *errs.StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "check complete", se.Op)

	mock.ExpectExec(`UPDATE media SET album_id`).WillReturnError(errors.New("database is locked"))
	require.ErrorAs(t, l.AttachAlbumID(ctx, "coomer", item), &se)

	mock.ExpectQuery(`WHERE m.completed = 0`).WillReturnError(errors.New("no such table: media"))
	_, err = l.FailedItems(ctx)
	require.ErrorAs(t, err, &se)

	assert.NoError(t, mock.ExpectationsWereMet())
}
