package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200

	// Fixed-width UTC so text ordering matches time ordering.
	timeLayout = "2006-01-02T15:04:05.000000000Z"
)

// SQLiteRepository implements Repository on the games and game_events tables.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository wraps an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t, nil
}

// CreateGame inserts the opening row of a game.
func (r *SQLiteRepository) CreateGame(ctx context.Context, g *Game) error {
	if g == nil || g.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidGame)
	}
	if g.StartedAt.IsZero() {
		g.StartedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO games (id, serial, started_at, max_strikes, time_limit_ms, remaining_ms, modules_total)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.Serial, formatTime(g.StartedAt), g.MaxStrikes, g.TimeLimitMs, g.RemainingMs, g.ModulesTotal,
	)
	if err != nil {
		return fmt.Errorf("inserting game: %w", err)
	}
	return nil
}

// FinishGame writes the closing fields and final snapshot of a game.
func (r *SQLiteRepository) FinishGame(ctx context.Context, g *Game) error {
	if g == nil || g.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidGame)
	}
	ended := time.Now().UTC()
	if g.EndedAt != nil {
		ended = *g.EndedAt
	}

	blob, err := EncodeSnapshot(g.Snapshot)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE games
		 SET ended_at = ?, outcome = ?, strikes = ?, remaining_ms = ?,
		     modules_total = ?, modules_solved = ?, snapshot = ?
		 WHERE id = ?`,
		formatTime(ended), g.Outcome, g.Strikes, g.RemainingMs,
		g.ModulesTotal, g.ModulesSolved, blob, g.ID,
	)
	if err != nil {
		return fmt.Errorf("updating game: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrGameNotFound
	}
	g.EndedAt = &ended
	return nil
}

// AddEvent appends an event and sets e.ID.
func (r *SQLiteRepository) AddEvent(ctx context.Context, e *Event) error {
	if e == nil || e.GameID == "" || e.Kind == "" {
		return fmt.Errorf("%w: event needs game id and kind", ErrInvalidGame)
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}

	res, err := r.db.ExecContext(ctx,
		"INSERT INTO game_events (game_id, at, kind, detail) VALUES (?, ?, ?, ?)",
		e.GameID, formatTime(e.At), e.Kind, e.Detail,
	)
	if err != nil {
		return fmt.Errorf("inserting game event: %w", err)
	}
	if e.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("reading event id: %w", err)
	}
	return nil
}

const gameColumns = `id, serial, started_at, ended_at, outcome, strikes, max_strikes,
	time_limit_ms, remaining_ms, modules_total, modules_solved`

type scanner interface {
	Scan(dest ...any) error
}

func scanGame(row scanner, extra ...any) (*Game, error) {
	var g Game
	var started string
	var ended sql.NullString
	dest := []any{
		&g.ID, &g.Serial, &started, &ended, &g.Outcome, &g.Strikes, &g.MaxStrikes,
		&g.TimeLimitMs, &g.RemainingMs, &g.ModulesTotal, &g.ModulesSolved,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	var err error
	if g.StartedAt, err = parseTime(started); err != nil {
		return nil, err
	}
	if ended.Valid {
		t, err := parseTime(ended.String)
		if err != nil {
			return nil, err
		}
		g.EndedAt = &t
	}
	return &g, nil
}

// GetGame loads a game including its decoded final snapshot.
func (r *SQLiteRepository) GetGame(ctx context.Context, id string) (*Game, error) {
	var blob []byte
	row := r.db.QueryRowContext(ctx, "SELECT "+gameColumns+", snapshot FROM games WHERE id = ?", id)
	g, err := scanGame(row, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrGameNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying game: %w", err)
	}
	if g.Snapshot, err = DecodeSnapshot(blob); err != nil {
		return nil, err
	}
	return g, nil
}

// ListGames returns a page of games, newest first, without snapshots.
func (r *SQLiteRepository) ListGames(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any
	if filter.Outcome != "" {
		conditions = append(conditions, "outcome = ?")
		args = append(args, filter.Outcome)
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM games"+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting games: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT "+gameColumns+" FROM games"+where+" ORDER BY started_at DESC, id LIMIT ? OFFSET ?",
		append(args, filter.Limit, filter.Offset)...,
	)
	if err != nil {
		return nil, fmt.Errorf("querying games: %w", err)
	}
	defer rows.Close()

	result := &ListResult{Games: []Game{}, Total: total, Limit: filter.Limit, Offset: filter.Offset}
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning game: %w", err)
		}
		result.Games = append(result.Games, *g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating games: %w", err)
	}
	return result, nil
}

// Events returns a game's events in insertion order.
func (r *SQLiteRepository) Events(ctx context.Context, gameID string) ([]Event, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, game_id, at, kind, detail FROM game_events WHERE game_id = ? ORDER BY id",
		gameID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying game events: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var e Event
		var at string
		if err := rows.Scan(&e.ID, &e.GameID, &at, &e.Kind, &e.Detail); err != nil {
			return nil, fmt.Errorf("scanning game event: %w", err)
		}
		if e.At, err = parseTime(at); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating game events: %w", err)
	}
	return events, nil
}

// Prune deletes games started before the cutoff. Their events go with them.
func (r *SQLiteRepository) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM games WHERE started_at < ?", formatTime(before))
	if err != nil {
		return 0, fmt.Errorf("pruning games: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}
