package transcript

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite" // register sqlite driver
)

const writeQueueCapacity = 1024

// Entry is one persisted transcript row.
type Entry struct {
	At      int64 // unix nanoseconds
	Tag     string
	Message string
}

// SQLiteLogger stores transcript lines in a SQLite database. Writes are
// enqueued and inserted by a single background writer, so Write costs one
// channel send; Close drains the queue before releasing the database.
type SQLiteLogger struct {
	db     *sql.DB
	logger *slog.Logger

	queue chan Entry
	done  chan struct{}
	wg    sync.WaitGroup

	closeOnce sync.Once
	closeErr  error
}

// NewSQLite opens (or creates) the transcript database at path and starts the
// background writer.
func NewSQLite(ctx context.Context, path string) (*SQLiteLogger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open transcript db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("ping transcript db: %w", err)
	}
	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode = WAL;`); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("set wal mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS transcript (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			at_ns INTEGER NOT NULL,
			tag TEXT NOT NULL,
			message TEXT NOT NULL
		);
	`); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("create transcript table: %w", err)
	}

	l := &SQLiteLogger{
		db:     db,
		logger: slog.With("component", "transcript.sqlite"),
		queue:  make(chan Entry, writeQueueCapacity),
		done:   make(chan struct{}),
	}
	l.wg.Add(1)
	go l.run()

	return l, nil
}

func (l *SQLiteLogger) Write(message, tag string) {
	e := Entry{At: time.Now().UnixNano(), Tag: tag, Message: normalize(message)}
	select {
	case l.queue <- e:
	case <-l.done:
		// Closing: the row is dropped, teardown is best-effort.
	}
}

func (l *SQLiteLogger) run() {
	defer l.wg.Done()
	for {
		select {
		case e := <-l.queue:
			l.insert(e)
		case <-l.done:
			for {
				select {
				case e := <-l.queue:
					l.insert(e)
				default:
					return
				}
			}
		}
	}
}

func (l *SQLiteLogger) insert(e Entry) {
	_, err := l.db.Exec(
		`INSERT INTO transcript(at_ns, tag, message) VALUES (?, ?, ?)`,
		e.At, e.Tag, e.Message,
	)
	if err != nil {
		l.logger.Error("transcript insert failed", "tag", e.Tag, "error", err)
	}
}

// Close drains pending writes and closes the database exactly once.
func (l *SQLiteLogger) Close() error {
	l.closeOnce.Do(func() {
		close(l.done)
		l.wg.Wait()
		l.closeErr = l.db.Close()
	})

	return l.closeErr
}

// Entries returns every stored row in insertion order.
func (l *SQLiteLogger) Entries(ctx context.Context) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT at_ns, tag, message FROM transcript ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query transcript: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.At, &e.Tag, &e.Message); err != nil {
			return nil, fmt.Errorf("scan transcript row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transcript rows: %w", err)
	}

	return entries, nil
}
