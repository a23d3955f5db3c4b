package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"

	"github.com/terraskye/eventflow"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// timeLayout is fixed width so the lexicographic comparison SQLite applies
// to TEXT columns matches chronological order. RFC3339Nano trims trailing
// zeros, which would sort "12:00:00Z" after "12:00:00.5Z".
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store persists envelopes to SQLite. The table is append-only: rows are
// never updated, event IDs are unique, and a global AUTOINCREMENT sequence
// orders the whole store. Suitable for single-process production use.
type Store struct {
	db    *sql.DB
	codec *eventflow.Codec
	feed  chan *eventflow.Envelope
}

// NewStore opens (or creates) an event store at the given path. Use
// ":memory:" for testing. The codec's type registry must know every event
// type that will be loaded back.
func NewStore(path string, codec *eventflow.Codec) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// WAL mode for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			global_seq INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id TEXT NOT NULL UNIQUE,
			stream_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			version INTEGER NOT NULL,
			occurred_at TEXT NOT NULL,
			data BLOB NOT NULL,
			UNIQUE (stream_id, version)
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_events_stream
		ON events(stream_id, version)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create index: %w", err)
	}

	_ = eventflow.Init()

	return &Store{
		db:    db,
		codec: codec,
		feed:  make(chan *eventflow.Envelope, 256),
	}, nil
}

// Append stores a single envelope without a revision check. An envelope
// whose event ID already exists is skipped silently.
func (s *Store) Append(ctx context.Context, env *eventflow.Envelope) error {
	if env == nil {
		return nil
	}

	data, err := s.codec.Encode(env)
	if err != nil {
		return eventflow.WrapEventStoreError("append", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO events (event_id, stream_id, event_type, version, occurred_at, data)
		VALUES (?, ?, ?, ?, ?, ?)
	`, env.EventID.String(), env.StreamID, env.EventType(), env.Version,
		env.OccurredAt.UTC().Format(timeLayout), data)
	if err != nil {
		return eventflow.WrapEventStoreError("append", err)
	}

	if n, _ := res.RowsAffected(); n > 0 {
		if seq, err := res.LastInsertId(); err == nil {
			env.GlobalVersion = uint64(seq)
		}
		s.recordAppend(ctx, env)
	}
	return nil
}

// AppendToStream atomically appends a batch to one stream after enforcing
// the revision inside a single transaction. All envelopes must carry the
// given stream ID.
func (s *Store) AppendToStream(ctx context.Context, streamID string, events []eventflow.Envelope, revision eventflow.StreamState) (eventflow.AppendResult, error) {
	if len(events) == 0 {
		return eventflow.AppendResult{Successful: true}, nil
	}

	for i, env := range events {
		if env.StreamID != streamID {
			return eventflow.AppendResult{}, fmt.Errorf(
				"append to stream %q: %w: event %d has different stream ID %q",
				streamID, eventflow.ErrInvalidEventBatch, i, env.StreamID,
			)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eventflow.AppendResult{}, eventflow.WrapEventStoreError("append", err)
	}
	defer tx.Rollback()

	var currentVersion uint64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM events WHERE stream_id = ?`, streamID,
	).Scan(&currentVersion)
	if err != nil {
		return eventflow.AppendResult{}, eventflow.WrapEventStoreError("append", err)
	}

	switch rev := revision.(type) {
	case eventflow.Any:
		// No concurrency check
	case eventflow.NoStream:
		if currentVersion != 0 {
			err := fmt.Errorf("stream %q: already exists: %w", streamID, eventflow.ErrStreamExists)
			return eventflow.AppendResult{Successful: false}, err
		}
	case eventflow.StreamExists:
		if currentVersion == 0 {
			err := fmt.Errorf("stream %q: should exist: %w", streamID, eventflow.ErrStreamNotFound)
			return eventflow.AppendResult{Successful: false}, err
		}
	case eventflow.Revision:
		if currentVersion != uint64(rev) {
			return eventflow.AppendResult{}, &eventflow.StreamRevisionConflictError{
				Stream:           streamID,
				ExpectedRevision: rev,
				ActualRevision:   eventflow.Revision(currentVersion),
			}
		}
	default:
		err := fmt.Errorf("unsupported revision type for stream %s: %w", streamID, eventflow.ErrInvalidRevision)
		return eventflow.AppendResult{Successful: false}, err
	}

	appended := make([]*eventflow.Envelope, 0, len(events))
	for i := range events {
		env := &events[i]
		if env.Version == 0 {
			env.Version = currentVersion + 1
		}

		data, err := s.codec.Encode(env)
		if err != nil {
			return eventflow.AppendResult{}, eventflow.WrapEventStoreError("append", err)
		}

		res, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO events (event_id, stream_id, event_type, version, occurred_at, data)
			VALUES (?, ?, ?, ?, ?, ?)
		`, env.EventID.String(), env.StreamID, env.EventType(), env.Version,
			env.OccurredAt.UTC().Format(timeLayout), data)
		if err != nil {
			return eventflow.AppendResult{}, eventflow.WrapEventStoreError("append", err)
		}

		if n, _ := res.RowsAffected(); n > 0 {
			if seq, err := res.LastInsertId(); err == nil {
				env.GlobalVersion = uint64(seq)
			}
			currentVersion = env.Version
			appended = append(appended, env)
		}
	}

	if err := tx.Commit(); err != nil {
		return eventflow.AppendResult{}, eventflow.WrapEventStoreError("append", err)
	}

	for _, env := range appended {
		s.recordAppend(ctx, env)
	}

	return eventflow.AppendResult{
		Successful:          true,
		NextExpectedVersion: currentVersion,
	}, nil
}

func (s *Store) recordAppend(ctx context.Context, env *eventflow.Envelope) {
	eventflow.EventsAppended.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event.type", env.EventType()),
		attribute.String("store", "sqlite"),
	))

	select {
	case s.feed <- env:
	default:
		// Drop if the feed is full
	}
}

// Load returns all envelopes matching the filter in global sequence order.
// Aggregate ID, event types, and time range are pushed into SQL; rows are
// decoded lazily as the iterator advances.
func (s *Store) Load(ctx context.Context, filter eventflow.Filter) (*eventflow.Iterator[*eventflow.Envelope], error) {
	q := `SELECT global_seq, data FROM events WHERE 1=1`
	args := make([]any, 0, 4)

	if filter.AggregateID != "" {
		q += ` AND stream_id = ?`
		args = append(args, filter.AggregateID)
	}
	if len(filter.EventTypes) > 0 {
		q += ` AND event_type IN (?` + strings.Repeat(",?", len(filter.EventTypes)-1) + `)`
		for _, t := range filter.EventTypes {
			args = append(args, t)
		}
	}
	if !filter.From.IsZero() {
		q += ` AND occurred_at >= ?`
		args = append(args, filter.From.UTC().Format(timeLayout))
	}
	if !filter.To.IsZero() {
		q += ` AND occurred_at < ?`
		args = append(args, filter.To.UTC().Format(timeLayout))
	}
	q += ` ORDER BY global_seq ASC`

	return s.query(ctx, q, args...)
}

// LoadStream returns the stream's envelopes in version order, or
// ErrStreamNotFound for an unknown stream.
func (s *Store) LoadStream(ctx context.Context, id string) (*eventflow.Iterator[*eventflow.Envelope], error) {
	return s.LoadStreamFrom(ctx, id, 0)
}

// LoadStreamFrom returns the stream's envelopes with version greater than
// the given version, in version order.
func (s *Store) LoadStreamFrom(ctx context.Context, id string, version uint64) (*eventflow.Iterator[*eventflow.Envelope], error) {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM events WHERE stream_id = ?`, id,
	).Scan(&exists)
	if err != nil {
		return nil, eventflow.WrapEventStoreError("load", err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("load stream %q: %w", id, eventflow.ErrStreamNotFound)
	}

	return s.query(ctx,
		`SELECT global_seq, data FROM events WHERE stream_id = ? AND version > ? ORDER BY version ASC`,
		id, version)
}

// query runs a row query and wraps the result set in a lazy iterator. The
// iterator owns the rows and closes them at EOF or on error.
func (s *Store) query(ctx context.Context, q string, args ...any) (*eventflow.Iterator[*eventflow.Envelope], error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, eventflow.WrapEventStoreError("load", err)
	}

	iter := eventflow.NewIteratorFunc(func(ctx context.Context) (*eventflow.Envelope, error) {
		if ctx.Err() != nil {
			rows.Close()
			return nil, ctx.Err()
		}
		if !rows.Next() {
			defer rows.Close()
			if err := rows.Err(); err != nil {
				return nil, eventflow.WrapEventStoreError("load", err)
			}
			return nil, io.EOF
		}

		var seq uint64
		var data []byte
		if err := rows.Scan(&seq, &data); err != nil {
			rows.Close()
			return nil, eventflow.WrapEventStoreError("load", err)
		}

		env, err := s.codec.Decode(data)
		if err != nil {
			rows.Close()
			return nil, err
		}
		env.GlobalVersion = seq

		eventflow.EventsLoaded.Add(ctx, 1, metric.WithAttributes(
			attribute.String("store", "sqlite"),
		))
		return env, nil
	})

	return iter, nil
}

// Events returns the live feed of appended envelopes. Consumers that fall
// behind the buffer miss events; the feed is a convenience for wiring a
// store to a bus, not a durable subscription.
func (s *Store) Events() <-chan *eventflow.Envelope {
	return s.feed
}

// Close closes the database. The feed channel is left open for drained
// readers; no more events will arrive on it.
func (s *Store) Close() error {
	return s.db.Close()
}
