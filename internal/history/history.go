package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-cmdswitch/internal/commandline"
)

const (
	// DefaultLimit is used by Recent when no positive limit is given.
	DefaultLimit = 50

	// MaxLimit caps the number of rows Recent returns.
	MaxLimit = 200

	// timestampLayout sorts lexically and matches the column default.
	timestampLayout = "2006-01-02T15:04:05.000Z"
)

// ErrMissingSwitchID is returned when a switch ID is empty.
var ErrMissingSwitchID = errors.New("history: switch id is required")

// Entry is a single recorded state change.
type Entry struct {
	ID        int64              `json:"id"`
	SwitchID  string             `json:"switch_id"`
	State     commandline.State  `json:"state"`
	Assumed   bool               `json:"assumed_state"`
	Payload   string             `json:"payload,omitempty"`
	Source    commandline.Source `json:"source"`
	CreatedAt time.Time          `json:"created_at"`
}

// Repository stores and retrieves switch state history.
type Repository interface {
	// Record persists a state change.
	Record(ctx context.Context, u commandline.Update) error

	// Recent returns up to limit entries for a switch, newest first.
	Recent(ctx context.Context, switchID string, limit int) ([]Entry, error)

	// Prune deletes entries older than olderThan and returns the count.
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}

// SQLiteRepository implements Repository on the switch_state_history table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository over an open connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Record inserts a history row for the update.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - u: The update delivered by the switch
//
// Returns:
//   - error: ErrMissingSwitchID, or the underlying database error
func (r *SQLiteRepository) Record(ctx context.Context, u commandline.Update) error {
	if u.SwitchID == "" {
		return ErrMissingSwitchID
	}
	ts := u.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	state := u.State
	if state == "" {
		state = commandline.StateUnknown
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO switch_state_history (switch_id, state, assumed, payload, source, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		u.SwitchID,
		string(state),
		u.Assumed,
		u.Payload,
		string(u.Source),
		ts.UTC().Format(timestampLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting switch history: %w", err)
	}
	return nil
}

// Recent returns the newest entries for a switch.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - switchID: Switch identifier
//   - limit: Maximum entries (default 50, max 200)
//
// Returns:
//   - []Entry: Entries ordered newest first (may be empty)
//   - error: ErrMissingSwitchID, or the underlying query error
func (r *SQLiteRepository) Recent(ctx context.Context, switchID string, limit int) ([]Entry, error) {
	if switchID == "" {
		return nil, ErrMissingSwitchID
	}
	limit = clampLimit(limit)

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, switch_id, state, assumed, payload, source, created_at
		 FROM switch_state_history
		 WHERE switch_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		switchID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying switch history: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var (
			e         Entry
			state     string
			source    string
			createdAt string
		)
		if err := rows.Scan(&e.ID, &e.SwitchID, &state, &e.Assumed, &e.Payload, &source, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning switch history: %w", err)
		}
		e.State = commandline.State(state)
		e.Source = commandline.Source(source)

		e.CreatedAt, err = parseTimestamp(createdAt)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating switch history: %w", err)
	}
	return entries, nil
}

// Prune deletes entries older than olderThan.
func (r *SQLiteRepository) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := time.Now().UTC().Add(-olderThan).Format(timestampLayout)
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM switch_state_history WHERE created_at < ?",
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting switch history: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

// parseTimestamp accepts the stored layout and plain RFC 3339.
func parseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("created_at is empty")
	}
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing created_at: %w", err)
	}
	return ts.UTC(), nil
}
