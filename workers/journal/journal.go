// ════════════════════════════════════════════════════════════════════════════════════════════════
// 🗄️ JOURNAL WORKER
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Component: SQLite Persistence Off The Realtime Thread
//
// Description:
//   Appends each request payload to a SQLite table on the scheduler thread and answers with
//   the new row id (8 bytes, little-endian). The realtime side only ever sees the row id.
//
// Schema:
//   journal(id INTEGER PRIMARY KEY, seq INTEGER, payload BLOB, recorded_at INTEGER)
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package journal

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"sync/atomic"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"rtwork/debug"
	"rtwork/work"
)

const schema = `CREATE TABLE IF NOT EXISTS journal (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	seq         INTEGER NOT NULL,
	payload     BLOB,
	recorded_at INTEGER NOT NULL
)`

// Worker persists request payloads.
type Worker struct {
	*work.Worker

	db     *sql.DB
	insert *sql.Stmt

	// Background thread only
	seq   int64
	rowID [8]byte

	failures atomic.Uint64

	// Realtime thread only
	lastRow int64
	acked   uint64
}

// Open opens (or creates) the database at path and registers a journal worker with s.
// ":memory:" keeps the journal in process.
func Open(s *work.Scheduler, path string, responseCapacity int) (*Worker, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	// One connection: a :memory: database lives and dies with it
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: schema: %w", err)
	}
	insert, err := db.Prepare(`INSERT INTO journal (seq, payload, recorded_at) VALUES (?, ?, ?)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: prepare: %w", err)
	}

	j := &Worker{db: db, insert: insert}
	w, err := work.NewWorker(s, responseCapacity, j)
	if err != nil {
		insert.Close()
		db.Close()
		return nil, err
	}
	j.Worker = w
	return j, nil
}

// ProcessRequest writes one row and responds with its id.
func (j *Worker) ProcessRequest(r work.Responder, payload []byte) {
	j.seq++
	res, err := j.insert.Exec(j.seq, payload, time.Now().UnixNano())
	if err != nil {
		j.failures.Add(1)
		debug.DropError("JOURNAL_INSERT", err)
		return
	}
	id, err := res.LastInsertId()
	if err != nil {
		j.failures.Add(1)
		debug.DropError("JOURNAL_ROWID", err)
		return
	}
	binary.LittleEndian.PutUint64(j.rowID[:], uint64(id))
	r.RespondToWork(j.rowID[:])
}

// ProcessResponse records the acknowledged row id.
func (j *Worker) ProcessResponse(payload []byte) {
	if len(payload) != len(j.rowID) {
		return
	}
	j.lastRow = int64(binary.LittleEndian.Uint64(payload))
	j.acked++
}

// LastRow returns the most recently acknowledged row id. Realtime thread only.
func (j *Worker) LastRow() int64 { return j.lastRow }

// Acked returns the number of acknowledged rows. Realtime thread only.
func (j *Worker) Acked() uint64 { return j.acked }

// Failures returns the number of payloads that could not be stored.
func (j *Worker) Failures() uint64 { return j.failures.Load() }

// Rows counts stored rows. Must not be called on the realtime thread.
func (j *Worker) Rows(ctx context.Context) (int64, error) {
	var n int64
	err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM journal`).Scan(&n)
	return n, err
}

// Payload returns the payload stored under row id.
func (j *Worker) Payload(ctx context.Context, id int64) ([]byte, error) {
	var p []byte
	err := j.db.QueryRowContext(ctx, `SELECT payload FROM journal WHERE id = ?`, id).Scan(&p)
	return p, err
}

// Close deregisters the worker and closes the database. Returns work.ErrBusy
// while a request is outstanding.
func (j *Worker) Close() error {
	if err := j.Worker.Close(); err != nil {
		return err
	}
	j.insert.Close()
	return j.db.Close()
}
