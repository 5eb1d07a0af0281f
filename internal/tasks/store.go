// Package tasks persists booking intents so scheduled work survives a
// restart. The scheduler treats this as an optional hook; the rows here are
// bookkeeping, not the record of whether a booking happened.
package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/example/court-scheduler/internal/booking"
	"github.com/example/court-scheduler/internal/db"
)

type Store struct{ db *db.DB }

func NewStore(d *db.DB) *Store { return &Store{db: d} }

func (s *Store) Save(ctx context.Context, in booking.Intent) error {
	slots, err := json.Marshal(in.Slots)
	if err != nil {
		return fmt.Errorf("encode slots: %w", err)
	}
	return s.db.Exec(ctx, `
INSERT INTO tasks (id, name, trigger_at, target_date, slots, notify_address, created_at)
VALUES ($1,$2,$3,$4,$5,$6,now())
ON CONFLICT (id) DO UPDATE
SET name=EXCLUDED.name, trigger_at=EXCLUDED.trigger_at,
    target_date=EXCLUDED.target_date, slots=EXCLUDED.slots,
    notify_address=EXCLUDED.notify_address`,
		in.ID, in.Name, in.TriggerAt.UTC(), in.TargetDate.Format("2006-01-02"), slots, in.NotifyAddress,
	)
}

func (s *Store) Delete(ctx context.Context, id string) error {
	return s.db.Exec(ctx, `DELETE FROM tasks WHERE id=$1`, id)
}

func (s *Store) LoadAll(ctx context.Context) ([]booking.Intent, error) {
	rows, err := s.db.Query(ctx, `
SELECT id, name, trigger_at, target_date, slots, notify_address
FROM tasks
ORDER BY trigger_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []booking.Intent
	for rows.Next() {
		var (
			in         booking.Intent
			targetDate string
			slots      []byte
		)
		if err := rows.Scan(&in.ID, &in.Name, &in.TriggerAt, &targetDate, &slots, &in.NotifyAddress); err != nil {
			return nil, err
		}
		if in.TargetDate, err = time.Parse("2006-01-02", targetDate); err != nil {
			return nil, fmt.Errorf("task %s: bad target date: %w", in.ID, err)
		}
		if err := json.Unmarshal(slots, &in.Slots); err != nil {
			return nil, fmt.Errorf("task %s: decode slots: %w", in.ID, err)
		}
		out = append(out, in)
	}
	return out, rows.Err()
}
