// Package sqlite provides a durable core.Store backed by SQLite. Version
// assignment, status compare-and-set and the corresponding event append all
// happen inside one transaction, so the projection and the event log cannot
// diverge even across process crashes.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/hupe1980/deckmesh/core"
)

// Store implements core.Store on a SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (and migrates) the database at path. Use ":memory:" for an
// ephemeral database in tests.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// SQLite allows one writer; serializing in the pool avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// NewFromDB wraps an already opened and migrated database handle.
func NewFromDB(db *sql.DB) *Store { return &Store{db: db} }

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// CreateDeck inserts a new deck row.
func (s *Store) CreateDeck(ctx context.Context, d *core.Deck) error {
	var planJSON any
	if d.Plan != nil {
		data, err := json.Marshal(d.Plan)
		if err != nil {
			return fmt.Errorf("marshal plan: %w", err)
		}
		planJSON = string(data)
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO decks
		(id, title, topic, audience, theme, color_preference, quality, slide_count, status, version, plan_json, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		d.ID, d.Title, d.Topic, d.Audience, d.Theme, d.ColorPreference, string(d.Quality),
		d.SlideCount, string(d.Status), d.Version, planJSON, fmtTime(d.CreatedAt), fmtTime(d.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert deck: %w", err)
	}
	return nil
}

// Deck reads one deck row.
func (s *Store) Deck(ctx context.Context, id string) (*core.Deck, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, title, topic, audience, theme, color_preference, quality, slide_count, status, version, plan_json, created_at, updated_at FROM decks WHERE id = ?`, id)
	return scanDeck(row)
}

// Slides reads a deck's slides in deck order.
func (s *Store) Slides(ctx context.Context, deckID string) ([]core.Slide, error) {
	if err := s.deckExists(ctx, deckID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT deck_id, ord, id, title, layout, html_content, notes, status, applied_version, created_at, updated_at FROM slides WHERE deck_id = ? ORDER BY ord`, deckID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []core.Slide
	for rows.Next() {
		sl, err := scanSlide(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sl)
	}
	return out, rows.Err()
}

// Slide reads one slide by (deck id, order).
func (s *Store) Slide(ctx context.Context, deckID string, order int) (*core.Slide, error) {
	row := s.db.QueryRowContext(ctx, `SELECT deck_id, ord, id, title, layout, html_content, notes, status, applied_version, created_at, updated_at FROM slides WHERE deck_id = ? AND ord = ?`, deckID, order)
	sl, err := scanSlide(row)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, fmt.Errorf("slide %s/%d: %w", deckID, order, core.ErrNotFound)
		}
		return nil, err
	}
	return sl, nil
}

// ListDecks reads all decks, newest first.
func (s *Store) ListDecks(ctx context.Context) ([]core.Deck, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, title, topic, audience, theme, color_preference, quality, slide_count, status, version, plan_json, created_at, updated_at FROM decks ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []core.Deck
	for rows.Next() {
		d, err := scanDeck(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// DeleteDeck removes the deck; slides and events cascade.
func (s *Store) DeleteDeck(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM decks WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("deck %s: %w", id, core.ErrNotFound)
	}
	return nil
}

// Append implements core.EventLog.
func (s *Store) Append(ctx context.Context, deckID string, typ core.EventType, payload any) (core.Event, error) {
	var ev core.Event
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		ev, err = appendTx(ctx, tx, deckID, typ, payload)
		return err
	})
	return ev, err
}

// ReadFrom implements core.EventLog.
func (s *Store) ReadFrom(ctx context.Context, deckID string, from int64) ([]core.Event, error) {
	if err := s.deckExists(ctx, deckID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT deck_id, version, event_type, payload_json, ts FROM deck_events WHERE deck_id = ? AND version > ? ORDER BY version`, deckID, from)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []core.Event
	for rows.Next() {
		var ev core.Event
		var typ, payload, ts string
		if err := rows.Scan(&ev.DeckID, &ev.Version, &typ, &payload, &ts); err != nil {
			return nil, err
		}
		ev.Type = core.EventType(typ)
		ev.Payload = json.RawMessage(payload)
		ev.Timestamp, err = parseTime(ts)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Transition implements the compare-and-set status change.
func (s *Store) Transition(ctx context.Context, deckID string, from []core.Status, to core.Status, typ core.EventType, payload any) (core.Event, error) {
	var ev core.Event
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		status, err := deckStatusTx(ctx, tx, deckID)
		if err != nil {
			return err
		}
		if !statusIn(status, from) {
			return fmt.Errorf("deck %s is %s: %w", deckID, status, core.ErrConflict)
		}
		ev, err = appendTx(ctx, tx, deckID, typ, payload)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE decks SET status = ? WHERE id = ?`, string(to), deckID)
		return err
	})
	return ev, err
}

// ApplyPlan persists the plan, its placeholders and the PlanUpdated event.
func (s *Store) ApplyPlan(ctx context.Context, deckID string, plan *core.DeckPlan) (core.Event, error) {
	planJSON, err := json.Marshal(plan)
	if err != nil {
		return core.Event{}, fmt.Errorf("marshal plan: %w", err)
	}
	var ev core.Event
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		status, err := deckStatusTx(ctx, tx, deckID)
		if err != nil {
			return err
		}
		if status != core.StatusPlanning {
			return fmt.Errorf("deck %s is %s: %w", deckID, status, core.ErrConflict)
		}
		ev, err = appendTx(ctx, tx, deckID, core.EventPlanUpdated, core.PlanUpdatedPayload{
			SlideCount: len(plan.Slides),
			Title:      plan.Title,
			Topic:      plan.Topic,
			Audience:   plan.Audience,
			Theme:      plan.Theme,
		})
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE decks SET status = ?, plan_json = ?, title = CASE WHEN ? != '' THEN ? ELSE title END WHERE id = ?`,
			string(core.StatusGenerating), string(planJSON), plan.Title, plan.Title, deckID)
		if err != nil {
			return err
		}
		ts := fmtTime(ev.Timestamp)
		for _, spec := range plan.Slides {
			_, err = tx.ExecContext(ctx, `INSERT INTO slides (deck_id, ord, id, title, status, created_at, updated_at) VALUES (?,?,?,?,?,?,?)`,
				deckID, spec.Order, uuid.NewString(), spec.Title, string(core.SlidePending), ts, ts)
			if err != nil {
				return fmt.Errorf("insert slide %d: %w", spec.Order, err)
			}
		}
		return nil
	})
	return ev, err
}

// AddSlideContent commits rendered slide content idempotently.
func (s *Store) AddSlideContent(ctx context.Context, deckID string, order int, content core.SlideContent, trigger int64) (core.Event, bool, error) {
	var ev core.Event
	applied := false
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var slideID string
		var html sql.NullString
		var appliedVersion int64
		err := tx.QueryRowContext(ctx, `SELECT id, html_content, applied_version FROM slides WHERE deck_id = ? AND ord = ?`, deckID, order).
			Scan(&slideID, &html, &appliedVersion)
		if err == sql.ErrNoRows {
			return fmt.Errorf("slide %s/%d: %w", deckID, order, core.ErrNotFound)
		}
		if err != nil {
			return err
		}
		if html.Valid && trigger <= appliedVersion {
			// Retried or redelivered task: the work already happened.
			return nil
		}
		ev, err = writeSlideTx(ctx, tx, deckID, order, slideID, content, core.EventSlideAdded)
		if err != nil {
			return err
		}
		applied = true
		return nil
	})
	return ev, applied, err
}

// ReplaceSlideContent overwrites slide content on an explicit edit.
func (s *Store) ReplaceSlideContent(ctx context.Context, deckID string, order int, content core.SlideContent) (core.Event, error) {
	var ev core.Event
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var slideID string
		err := tx.QueryRowContext(ctx, `SELECT id FROM slides WHERE deck_id = ? AND ord = ?`, deckID, order).Scan(&slideID)
		if err == sql.ErrNoRows {
			return fmt.Errorf("slide %s/%d: %w", deckID, order, core.ErrNotFound)
		}
		if err != nil {
			return err
		}
		ev, err = writeSlideTx(ctx, tx, deckID, order, slideID, content, core.EventSlideUpdated)
		return err
	})
	return ev, err
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) deckExists(ctx context.Context, deckID string) error {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM decks WHERE id = ?`, deckID).Scan(&one)
	if err == sql.ErrNoRows {
		return fmt.Errorf("deck %s: %w", deckID, core.ErrNotFound)
	}
	return err
}

func deckStatusTx(ctx context.Context, tx *sql.Tx, deckID string) (core.Status, error) {
	var status string
	err := tx.QueryRowContext(ctx, `SELECT status FROM decks WHERE id = ?`, deckID).Scan(&status)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("deck %s: %w", deckID, core.ErrNotFound)
	}
	if err != nil {
		return "", err
	}
	return core.Status(status), nil
}

// appendTx assigns the next version and inserts the event; the deck row's
// version column is the authority.
func appendTx(ctx context.Context, tx *sql.Tx, deckID string, typ core.EventType, payload any) (core.Event, error) {
	var version int64
	err := tx.QueryRowContext(ctx, `SELECT version FROM decks WHERE id = ?`, deckID).Scan(&version)
	if err == sql.ErrNoRows {
		return core.Event{}, fmt.Errorf("deck %s: %w", deckID, core.ErrNotFound)
	}
	if err != nil {
		return core.Event{}, err
	}
	ev, err := core.NewEvent(deckID, typ, payload)
	if err != nil {
		return core.Event{}, err
	}
	ev.Version = version + 1
	if len(ev.Payload) == 0 {
		ev.Payload = json.RawMessage(`{}`)
	}
	ts := fmtTime(ev.Timestamp)
	if _, err := tx.ExecContext(ctx, `UPDATE decks SET version = ?, updated_at = ? WHERE id = ?`, ev.Version, ts, deckID); err != nil {
		return core.Event{}, err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO deck_events (deck_id, version, event_type, payload_json, ts) VALUES (?,?,?,?,?)`,
		deckID, ev.Version, string(ev.Type), string(ev.Payload), ts); err != nil {
		return core.Event{}, fmt.Errorf("append event: %w", err)
	}
	return ev, nil
}

func writeSlideTx(ctx context.Context, tx *sql.Tx, deckID string, order int, slideID string, content core.SlideContent, typ core.EventType) (core.Event, error) {
	ev, err := appendTx(ctx, tx, deckID, typ, core.SlidePayload{
		SlideID:     slideID,
		Order:       order,
		Title:       content.Title,
		HTMLContent: content.HTML,
	})
	if err != nil {
		return core.Event{}, err
	}
	_, err = tx.ExecContext(ctx, `UPDATE slides SET html_content = ?, notes = CASE WHEN ? != '' THEN ? ELSE notes END,
		title = CASE WHEN ? != '' THEN ? ELSE title END, layout = ?, status = ?, applied_version = ?, updated_at = ?
		WHERE deck_id = ? AND ord = ?`,
		content.HTML, content.Notes, content.Notes, content.Title, content.Title, content.Layout,
		string(core.SlideRendered), ev.Version, fmtTime(ev.Timestamp), deckID, order)
	if err != nil {
		return core.Event{}, err
	}
	return ev, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDeck(row rowScanner) (*core.Deck, error) {
	var d core.Deck
	var quality, status, createdAt, updatedAt string
	var planJSON sql.NullString
	err := row.Scan(&d.ID, &d.Title, &d.Topic, &d.Audience, &d.Theme, &d.ColorPreference,
		&quality, &d.SlideCount, &status, &d.Version, &planJSON, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("deck: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	d.Quality = core.Quality(quality)
	d.Status = core.Status(status)
	if planJSON.Valid && planJSON.String != "" {
		var plan core.DeckPlan
		if err := json.Unmarshal([]byte(planJSON.String), &plan); err != nil {
			return nil, fmt.Errorf("decode plan: %w", err)
		}
		d.Plan = &plan
	}
	if d.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if d.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

func scanSlide(row rowScanner) (*core.Slide, error) {
	var sl core.Slide
	var html, notes sql.NullString
	var status, createdAt, updatedAt string
	err := row.Scan(&sl.DeckID, &sl.Order, &sl.ID, &sl.Title, &sl.Layout, &html, &notes,
		&status, &sl.AppliedVersion, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("slide: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	sl.Status = core.SlideStatus(status)
	if html.Valid {
		v := html.String
		sl.HTMLContent = &v
	}
	if notes.Valid {
		v := notes.String
		sl.Notes = &v
	}
	if sl.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if sl.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &sl, nil
}

func statusIn(s core.Status, set []core.Status) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

func fmtTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) (time.Time, error) { return time.Parse(time.RFC3339Nano, s) }
