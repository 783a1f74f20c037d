// Package eventdb keeps an append-only log of committed engine events
// in SQLite, for external indexers and the event RPC surface.
package eventdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/railpay/paymentsd/internal/core/engine"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	kind        TEXT    NOT NULL,
	epoch       INTEGER NOT NULL,
	rail_id     INTEGER,
	token       TEXT,
	payload     TEXT    NOT NULL,
	recorded_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_kind ON events(kind, seq);
CREATE INDEX IF NOT EXISTS idx_events_rail ON events(rail_id, seq);
`

// StoredEvent is one row of the event log.
type StoredEvent struct {
	Seq        int64           `json:"seq"`
	Kind       string          `json:"kind"`
	Epoch      uint64          `json:"epoch"`
	RailID     *uint64         `json:"rail_id,omitempty"`
	Token      string          `json:"token,omitempty"`
	Payload    json.RawMessage `json:"payload"`
	RecordedAt time.Time       `json:"recorded_at"`
}

// Store is the SQLite-backed event log.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (and if needed bootstraps) the event log at path. The path
// ":memory:" keeps the log ephemeral.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open event db: %w", err)
	}
	// SQLite tolerates one writer; a single connection sidesteps
	// SQLITE_BUSY under concurrent appends.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("bootstrap event db schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Append records one committed engine event.
func (s *Store) Append(ctx context.Context, epoch uint64, ev engine.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	railID, token := eventScope(ev)
	var railArg interface{}
	if railID != nil {
		railArg = int64(*railID)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO events (kind, epoch, rail_id, token, payload, recorded_at) VALUES (?, ?, ?, ?, ?, ?)`,
		ev.Kind(), int64(epoch), railArg, token, string(payload), s.now().Unix())
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// Recent returns the newest events, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]StoredEvent, error) {
	return s.query(ctx,
		`SELECT seq, kind, epoch, rail_id, token, payload, recorded_at
		 FROM events ORDER BY seq DESC LIMIT ?`, limit)
}

// ByRail returns the newest events for one rail, newest first.
func (s *Store) ByRail(ctx context.Context, railID uint64, limit int) ([]StoredEvent, error) {
	return s.query(ctx,
		`SELECT seq, kind, epoch, rail_id, token, payload, recorded_at
		 FROM events WHERE rail_id = ? ORDER BY seq DESC LIMIT ?`, int64(railID), limit)
}

// ByKind returns the newest events of one kind, newest first.
func (s *Store) ByKind(ctx context.Context, kind string, limit int) ([]StoredEvent, error) {
	return s.query(ctx,
		`SELECT seq, kind, epoch, rail_id, token, payload, recorded_at
		 FROM events WHERE kind = ? ORDER BY seq DESC LIMIT ?`, kind, limit)
}

// Count returns the total number of stored events.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return count, nil
}

func (s *Store) query(ctx context.Context, q string, args ...interface{}) ([]StoredEvent, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []StoredEvent
	for rows.Next() {
		var (
			ev       StoredEvent
			epoch    int64
			railID   sql.NullInt64
			token    sql.NullString
			payload  string
			recorded int64
		)
		if err := rows.Scan(&ev.Seq, &ev.Kind, &epoch, &railID, &token, &payload, &recorded); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		ev.Epoch = uint64(epoch)
		if railID.Valid {
			id := uint64(railID.Int64)
			ev.RailID = &id
		}
		ev.Token = token.String
		ev.Payload = json.RawMessage(payload)
		ev.RecordedAt = time.Unix(recorded, 0)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// eventScope extracts the rail and token an event concerns, when it has
// either, so rows can be indexed without unpacking the payload.
func eventScope(ev engine.Event) (*uint64, string) {
	switch e := ev.(type) {
	case engine.DepositEvent:
		return nil, e.Token
	case engine.WithdrawEvent:
		return nil, e.Token
	case engine.OperatorApprovalEvent:
		return nil, e.Token
	case engine.RailCreatedEvent:
		return &e.RailID, e.Token
	case engine.RailRateModifiedEvent:
		return &e.RailID, ""
	case engine.RailLockupModifiedEvent:
		return &e.RailID, ""
	case engine.OneTimePaymentEvent:
		return &e.RailID, ""
	case engine.RailTerminatedEvent:
		return &e.RailID, ""
	case engine.RailSettledEvent:
		return &e.RailID, ""
	case engine.RailFinalizedEvent:
		return &e.RailID, ""
	case engine.FeesBurnedEvent:
		return nil, e.Token
	case engine.AuctionRestartedEvent:
		return nil, e.Token
	default:
		return nil, ""
	}
}
