package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"medvault/types/ids"

	_ "modernc.org/sqlite"
)

// SQLiteSink indexes committed events for external queries.
type SQLiteSink struct {
	db *sql.DB
}

// OpenSQLiteSink opens (or creates) the index database at path.
func OpenSQLiteSink(path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s, err := NewSQLiteSink(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func NewSQLiteSink(db *sql.DB) (*SQLiteSink, error) {
	s := &SQLiteSink{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteSink) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS vault_events (
		seq INTEGER PRIMARY KEY,
		event_id TEXT NOT NULL,
		type TEXT NOT NULL,
		patient_id TEXT,
		actor TEXT,
		fields JSON,
		timestamp TEXT,
		prev_hash TEXT NOT NULL DEFAULT '',
		hash TEXT NOT NULL
	);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

func (s *SQLiteSink) Close() error { return s.db.Close() }

func (s *SQLiteSink) Publish(ctx context.Context, evs []Event) error {
	if len(evs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	query := `INSERT OR IGNORE INTO vault_events (
		seq, event_id, type, patient_id, actor, fields, timestamp, prev_hash, hash
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	for _, ev := range evs {
		fieldsJSON, _ := json.Marshal(ev.Fields)
		_, err := tx.ExecContext(ctx, query,
			ev.Seq, ev.ID.String(), string(ev.Type), ev.Patient.Hex(), ev.Actor.Hex(),
			string(fieldsJSON), ev.Timestamp.UTC().Format(time.RFC3339Nano), ev.PrevHash, ev.Hash,
		)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to index event %d: %w", ev.Seq, err)
		}
	}
	return tx.Commit()
}

// ByPatient returns the most recent events for one patient, newest first.
func (s *SQLiteSink) ByPatient(ctx context.Context, pid ids.ID, limit int) ([]Event, error) {
	query := `
		SELECT seq, event_id, type, patient_id, actor, fields, timestamp, prev_hash, hash
		FROM vault_events
		WHERE patient_id = ?
		ORDER BY seq DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, pid.Hex(), limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Event
	for rows.Next() {
		var (
			ev                         Event
			eventID, typ, patient, who string
			fields, ts                 string
		)
		if err := rows.Scan(&ev.Seq, &eventID, &typ, &patient, &who, &fields, &ts, &ev.PrevHash, &ev.Hash); err != nil {
			return nil, err
		}
		if ev.ID, err = uuid.Parse(eventID); err != nil {
			return nil, err
		}
		if ev.Patient, err = ids.FromString(patient); err != nil {
			return nil, err
		}
		if ev.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(fields), &ev.Fields); err != nil {
			return nil, err
		}
		ev.Type = Type(typ)
		ev.Actor = common.HexToAddress(who)
		out = append(out, ev)
	}
	return out, rows.Err()
}
