package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Store is the durable ordered-record store the service mutates. It is
// the single authority for card state; everything else holds transient
// copies.
type Store interface {
	Find(ctx context.Context, id string) (Card, error)
	// ListAll returns every card, status ascending then order ascending.
	ListAll(ctx context.Context) ([]Card, error)
	// CreateOne inserts the card, assigning it the next free order in
	// its column atomically with the insert.
	CreateOne(ctx context.Context, c Card) (Card, error)
	// UpdateOne applies the supplied fields to an existing card and
	// refreshes its updatedAt.
	UpdateOne(ctx context.Context, id string, u CardUpdate, now time.Time) (Card, error)
	// RunTransaction executes fn against a consistent snapshot; all
	// writes inside fn commit atomically or not at all.
	RunTransaction(ctx context.Context, fn func(Tx) error) error
}

// Tx exposes the operations available inside a store transaction.
type Tx interface {
	ListAll() ([]Card, error)
	SetOrder(id string, order int, now time.Time) error
	Relocate(id string, status Status, order int, now time.Time) error
}

// Broadcaster delivers an event to every connected observer, including
// the one that triggered it.
type Broadcaster interface {
	Broadcast(ctx context.Context, event string, payload any) error
}

// Event names pushed to observers after a committed mutation.
const (
	EventCardCreated = "card:created"
	EventCardUpdated = "card:updated"
	EventCardMoved   = "card:moved"
)

const (
	conflictRetries  = 3
	conflictBackoff  = 25 * time.Millisecond
	broadcastTimeout = 5 * time.Second
)

// Service orchestrates card mutations against the store and announces
// committed changes on the broadcaster. Broadcast failures never affect
// the mutation result.
type Service struct {
	store Store
	bc    Broadcaster
	log   *log.Logger

	now   func() time.Time
	newID func() string
}

// NewService constructs a Service. The broadcaster may be nil, in which
// case mutations commit silently.
func NewService(store Store, bc Broadcaster, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Service{
		store: store,
		bc:    bc,
		log:   logger,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// List returns the full card set, status ascending then order ascending.
func (s *Service) List(ctx context.Context) ([]Card, error) {
	return s.store.ListAll(ctx)
}

// Create validates the fields, appends the card to the end of its
// column and announces card:created.
func (s *Service) Create(ctx context.Context, fields CardFields) (Card, error) {
	if err := fields.Validate(); err != nil {
		return Card{}, err
	}
	now := s.now().UTC()
	card := Card{
		ID:          s.newID(),
		Title:       fields.Title,
		Description: fields.Description,
		Status:      fields.Status,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	var created Card
	err := s.withConflictRetry(ctx, func() error {
		var err error
		created, err = s.store.CreateOne(ctx, card)
		return err
	})
	if err != nil {
		return Card{}, err
	}
	s.announce(EventCardCreated, created)
	return created, nil
}

// Update applies the supplied fields to an existing card and announces
// card:updated.
func (s *Service) Update(ctx context.Context, id string, u CardUpdate) (Card, error) {
	if err := u.Validate(); err != nil {
		return Card{}, err
	}
	var updated Card
	err := s.withConflictRetry(ctx, func() error {
		var err error
		updated, err = s.store.UpdateOne(ctx, id, u, s.now().UTC())
		return err
	})
	if err != nil {
		return Card{}, err
	}
	s.announce(EventCardUpdated, updated)
	return updated, nil
}

// Move relocates a card to destIndex in the dest column inside a single
// transaction, re-reads the authoritative card set and announces it as
// card:moved. A move to the card's current position writes nothing but
// still returns and announces the current set.
func (s *Service) Move(ctx context.Context, id string, dest Status, destIndex int) ([]Card, error) {
	err := s.withConflictRetry(ctx, func() error {
		return s.store.RunTransaction(ctx, func(tx Tx) error {
			cards, err := tx.ListAll()
			if err != nil {
				return err
			}
			plan, err := PlanMove(cards, id, dest, destIndex)
			if err != nil {
				return err
			}
			if plan.NoOp {
				return nil
			}
			now := s.now().UTC()
			for _, d := range plan.Deltas {
				if err := tx.SetOrder(d.CardID, d.NewOrder, now); err != nil {
					return err
				}
			}
			return tx.Relocate(plan.CardID, plan.Status, plan.Order, now)
		})
	})
	if err != nil {
		return nil, err
	}
	// Rebroadcasting the full, freshly read set sidesteps ordering
	// ambiguity between incremental events across clients.
	cards, err := s.store.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	s.announce(EventCardMoved, cards)
	return cards, nil
}

func (s *Service) withConflictRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		var conflict ConflictError
		if err == nil || !errors.As(err, &conflict) || attempt >= conflictRetries {
			return err
		}
		s.log.WithError(err).WithField("attempt", attempt+1).Warn("transaction conflict, retrying")
		select {
		case <-ctx.Done():
			return err
		case <-time.After(conflictBackoff):
		}
	}
}

func (s *Service) announce(event string, payload any) {
	if s.bc == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), broadcastTimeout)
	defer cancel()
	if err := s.bc.Broadcast(ctx, event, payload); err != nil {
		s.log.WithError(err).WithField("event", event).Warn("broadcast failed")
	}
}
