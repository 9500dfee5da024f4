package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"time"

	"github.com/mattn/go-sqlite3"

	"board-api/domain"
)

//go:embed schema.sql
var schema string

const (
	cardColumns = "id, title, description, status, position, created_at, updated_at"
	timeLayout  = time.RFC3339Nano
)

// Store persists cards in sqlite. Transactions start with an immediate
// write lock so concurrent moves touching overlapping columns serialize
// and every transaction sees a consistent snapshot.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database at path and bootstraps the schema.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_txlock=immediate&_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Find returns the card with the given id.
func (s *Store) Find(ctx context.Context, id string) (domain.Card, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+cardColumns+" FROM cards WHERE id = ?", id)
	c, err := scanCard(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Card{}, domain.NotFoundError{ID: id}
	}
	return c, mapErr(err)
}

// ListAll returns every card, status ascending then order ascending.
func (s *Store) ListAll(ctx context.Context) ([]domain.Card, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+cardColumns+" FROM cards ORDER BY status, position")
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	return collectCards(rows)
}

// CreateOne inserts the card at the end of its column. The max-order
// read and the insert share one transaction so a concurrent move cannot
// hand out a duplicate order.
func (s *Store) CreateOne(ctx context.Context, c domain.Card) (domain.Card, error) {
	err := s.RunTransaction(ctx, func(tx domain.Tx) error {
		t := tx.(*storeTx)
		var max sql.NullInt64
		if err := t.tx.QueryRowContext(t.ctx,
			"SELECT MAX(position) FROM cards WHERE status = ?", string(c.Status)).Scan(&max); err != nil {
			return err
		}
		c.Order = 0
		if max.Valid {
			c.Order = int(max.Int64) + 1
		}
		_, err := t.tx.ExecContext(t.ctx,
			"INSERT INTO cards ("+cardColumns+") VALUES (?, ?, ?, ?, ?, ?, ?)",
			c.ID, c.Title, c.Description, string(c.Status), c.Order,
			c.CreatedAt.UTC().Format(timeLayout), c.UpdatedAt.UTC().Format(timeLayout))
		return err
	})
	if err != nil {
		return domain.Card{}, err
	}
	return c, nil
}

// UpdateOne applies the supplied fields to an existing card and
// refreshes updated_at.
func (s *Store) UpdateOne(ctx context.Context, id string, u domain.CardUpdate, now time.Time) (domain.Card, error) {
	var updated domain.Card
	err := s.RunTransaction(ctx, func(tx domain.Tx) error {
		t := tx.(*storeTx)
		c, err := t.find(id)
		if err != nil {
			return err
		}
		if u.Title != nil {
			c.Title = *u.Title
		}
		if u.Description != nil {
			c.Description = *u.Description
		}
		c.UpdatedAt = now.UTC()
		if _, err := t.tx.ExecContext(t.ctx,
			"UPDATE cards SET title = ?, description = ?, updated_at = ? WHERE id = ?",
			c.Title, c.Description, c.UpdatedAt.Format(timeLayout), id); err != nil {
			return err
		}
		updated = c
		return nil
	})
	if err != nil {
		return domain.Card{}, err
	}
	return updated, nil
}

// RunTransaction executes fn inside a single immediate transaction. All
// writes commit atomically or none do; sqlite busy errors surface as
// domain.ConflictError.
func (s *Store) RunTransaction(ctx context.Context, fn func(domain.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapErr(err)
	}
	if err := fn(&storeTx{ctx: ctx, tx: tx}); err != nil {
		_ = tx.Rollback()
		return mapErr(err)
	}
	return mapErr(tx.Commit())
}

type storeTx struct {
	ctx context.Context
	tx  *sql.Tx
}

func (t *storeTx) ListAll() ([]domain.Card, error) {
	rows, err := t.tx.QueryContext(t.ctx, "SELECT "+cardColumns+" FROM cards ORDER BY status, position")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectCards(rows)
}

func (t *storeTx) SetOrder(id string, order int, now time.Time) error {
	res, err := t.tx.ExecContext(t.ctx,
		"UPDATE cards SET position = ?, updated_at = ? WHERE id = ?",
		order, now.UTC().Format(timeLayout), id)
	if err != nil {
		return err
	}
	return requireRow(res, id)
}

func (t *storeTx) Relocate(id string, status domain.Status, order int, now time.Time) error {
	res, err := t.tx.ExecContext(t.ctx,
		"UPDATE cards SET status = ?, position = ?, updated_at = ? WHERE id = ?",
		string(status), order, now.UTC().Format(timeLayout), id)
	if err != nil {
		return err
	}
	return requireRow(res, id)
}

func (t *storeTx) find(id string) (domain.Card, error) {
	row := t.tx.QueryRowContext(t.ctx, "SELECT "+cardColumns+" FROM cards WHERE id = ?", id)
	c, err := scanCard(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Card{}, domain.NotFoundError{ID: id}
	}
	return c, err
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.NotFoundError{ID: id}
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCard(row scanner) (domain.Card, error) {
	var c domain.Card
	var status, created, updated string
	if err := row.Scan(&c.ID, &c.Title, &c.Description, &status, &c.Order, &created, &updated); err != nil {
		return domain.Card{}, err
	}
	c.Status = domain.Status(status)
	var err error
	if c.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return domain.Card{}, err
	}
	if c.UpdatedAt, err = time.Parse(timeLayout, updated); err != nil {
		return domain.Card{}, err
	}
	return c, nil
}

func collectCards(rows *sql.Rows) ([]domain.Card, error) {
	cards := []domain.Card{}
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		cards = append(cards, c)
	}
	return cards, mapErr(rows.Err())
}

// mapErr converts sqlite serialization failures into the domain's
// conflict error so callers can retry. Domain errors pass through.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var se sqlite3.Error
	if errors.As(err, &se) && (se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked) {
		return domain.ConflictError{Err: err}
	}
	return err
}
