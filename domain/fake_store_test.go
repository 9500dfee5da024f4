package domain

import (
	"context"
	"errors"
	"sync"
	"time"
)

// fakeStore is an in-memory Store with copy-on-write transactions so
// service tests exercise real commit/rollback behavior.
type fakeStore struct {
	mu    sync.Mutex
	cards []Card

	conflictsLeft int // operations fail with ConflictError while > 0
}

func (f *fakeStore) conflict() error {
	if f.conflictsLeft > 0 {
		f.conflictsLeft--
		return ConflictError{Err: errors.New("store busy")}
	}
	return nil
}

func (f *fakeStore) snapshotLocked() []Card {
	out := make([]Card, len(f.cards))
	copy(out, f.cards)
	SortCards(out)
	return out
}

func (f *fakeStore) Find(_ context.Context, id string) (Card, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.cards {
		if c.ID == id {
			return c, nil
		}
	}
	return Card{}, NotFoundError{ID: id}
}

func (f *fakeStore) ListAll(context.Context) ([]Card, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotLocked(), nil
}

func (f *fakeStore) CreateOne(_ context.Context, c Card) (Card, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.conflict(); err != nil {
		return Card{}, err
	}
	max := -1
	for _, existing := range f.cards {
		if existing.Status == c.Status && existing.Order > max {
			max = existing.Order
		}
	}
	c.Order = max + 1
	f.cards = append(f.cards, c)
	return c, nil
}

func (f *fakeStore) UpdateOne(_ context.Context, id string, u CardUpdate, now time.Time) (Card, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.conflict(); err != nil {
		return Card{}, err
	}
	for i := range f.cards {
		if f.cards[i].ID != id {
			continue
		}
		if u.Title != nil {
			f.cards[i].Title = *u.Title
		}
		if u.Description != nil {
			f.cards[i].Description = *u.Description
		}
		f.cards[i].UpdatedAt = now
		return f.cards[i], nil
	}
	return Card{}, NotFoundError{ID: id}
}

func (f *fakeStore) RunTransaction(_ context.Context, fn func(Tx) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.conflict(); err != nil {
		return err
	}
	tx := &fakeTx{staged: f.snapshotLocked()}
	if err := fn(tx); err != nil {
		return err
	}
	f.cards = tx.staged
	return nil
}

type fakeTx struct {
	staged []Card
}

func (t *fakeTx) ListAll() ([]Card, error) {
	out := make([]Card, len(t.staged))
	copy(out, t.staged)
	SortCards(out)
	return out, nil
}

func (t *fakeTx) SetOrder(id string, order int, now time.Time) error {
	for i := range t.staged {
		if t.staged[i].ID == id {
			t.staged[i].Order = order
			t.staged[i].UpdatedAt = now
			return nil
		}
	}
	return NotFoundError{ID: id}
}

func (t *fakeTx) Relocate(id string, status Status, order int, now time.Time) error {
	for i := range t.staged {
		if t.staged[i].ID == id {
			t.staged[i].Status = status
			t.staged[i].Order = order
			t.staged[i].UpdatedAt = now
			return nil
		}
	}
	return NotFoundError{ID: id}
}

// recorderBroadcaster captures announced events for assertions.
type recorderBroadcaster struct {
	mu     sync.Mutex
	events []recordedEvent
	err    error
}

type recordedEvent struct {
	name    string
	payload any
}

func (r *recorderBroadcaster) Broadcast(_ context.Context, event string, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, recordedEvent{name: event, payload: payload})
	return nil
}

func (r *recorderBroadcaster) recorded() []recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]recordedEvent, len(r.events))
	copy(out, r.events)
	return out
}
