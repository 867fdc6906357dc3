package lock

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"emperror.dev/errors"
	_ "github.com/mattn/go-sqlite3"
	"github.com/ocfl-archive/ocflkit/pkg/ocflerrors"
)

// SQLiteObjectLock coordinates writers across processes through an
// exclusive transaction on a per-object row. The busy timeout doubles as
// the lock timeout.
type SQLiteObjectLock struct {
	db      *sql.DB
	timeout time.Duration
}

func NewSQLiteObjectLock(dbFile string, timeout time.Duration) (*SQLiteObjectLock, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=WAL", dbFile, timeout.Milliseconds())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open lock database '%s'", dbFile)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS ocfl_object_lock (
		object_id TEXT PRIMARY KEY,
		acquired TIMESTAMP NOT NULL
	)`); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "cannot create lock table")
	}
	return &SQLiteObjectLock{db: db, timeout: timeout}, nil
}

func (l *SQLiteObjectLock) Close() error {
	return errors.Wrap(l.db.Close(), "cannot close lock database")
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "database table is locked")
}

func (l *SQLiteObjectLock) DoInWriteLock(objectID string, fn func() error) error {
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()

	conn, err := l.db.Conn(ctx)
	if err != nil {
		return errors.Wrap(err, "cannot get lock connection")
	}
	defer conn.Close()

	// an immediate transaction takes the database write lock up front so
	// that two processes cannot both pass the row update
	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		if isBusy(err) || ctx.Err() != nil {
			return ocflerrors.LockTimeout("cannot acquire write lock for '%s' within %s", objectID, l.timeout)
		}
		return errors.Wrapf(err, "cannot begin lock transaction for '%s'", objectID)
	}
	committed := false
	defer func() {
		if !committed {
			conn.ExecContext(context.Background(), "ROLLBACK")
		}
	}()

	if _, err := conn.ExecContext(ctx,
		`INSERT INTO ocfl_object_lock (object_id, acquired) VALUES (?, ?)
		 ON CONFLICT(object_id) DO UPDATE SET acquired = excluded.acquired`,
		objectID, time.Now().UTC()); err != nil {
		if isBusy(err) || ctx.Err() != nil {
			return ocflerrors.LockTimeout("cannot acquire write lock for '%s' within %s", objectID, l.timeout)
		}
		return errors.Wrapf(err, "cannot lock row for '%s'", objectID)
	}

	fnErr := fn()

	if _, err := conn.ExecContext(context.Background(), "COMMIT"); err != nil {
		if fnErr != nil {
			return fnErr
		}
		return errors.Wrapf(err, "cannot release write lock for '%s'", objectID)
	}
	committed = true
	return fnErr
}

var (
	_ ObjectLock = &SQLiteObjectLock{}
)
