package domain

import "sync"

// Projection is a client-side replica of the board. It keeps two card
// sets: confirmed, sourced only from server broadcasts, and an optional
// pending overlay holding a locally computed move that has not been
// confirmed yet. A confirmed full-state broadcast always wins and
// discards the overlay.
type Projection struct {
	mu         sync.Mutex
	confirmed  []Card
	pending    []Card
	hasPending bool
}

// NewProjection creates a projection seeded with the server's initial
// card set.
func NewProjection(initial []Card) *Projection {
	p := &Projection{}
	p.confirmed = cloneCards(initial)
	SortCards(p.confirmed)
	return p
}

// View returns the cards to render: the pending overlay when a local
// move is awaiting confirmation, the confirmed set otherwise.
func (p *Projection) View() []Card {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.hasPending {
		return cloneCards(p.pending)
	}
	return cloneCards(p.confirmed)
}

// ApplyLocalMove recomputes the board with the same reorder algorithm
// the server runs and stores the result as the pending overlay so the
// move renders instantly. The caller still issues the Move request; the
// card:moved broadcast replaces this guess either way.
func (p *Projection) ApplyLocalMove(cardID string, dest Status, destIndex int) ([]Card, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	base := p.confirmed
	if p.hasPending {
		base = p.pending
	}
	plan, err := PlanMove(base, cardID, dest, destIndex)
	if err != nil {
		return nil, err
	}
	p.pending = plan.Apply(base)
	p.hasPending = true
	return cloneCards(p.pending), nil
}

// ConfirmBoard handles a card:moved broadcast: the payload replaces the
// confirmed set and any pending overlay is discarded, even one from a
// move this projection has not seen confirmed yet.
func (p *Projection) ConfirmBoard(cards []Card) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.confirmed = cloneCards(cards)
	SortCards(p.confirmed)
	p.pending = nil
	p.hasPending = false
}

// ConfirmCard handles a card:created or card:updated broadcast by
// merging the single card into the replica: inserted if absent,
// replaced otherwise. A pending overlay receives the same merge so an
// in-flight local move is not reverted by an unrelated edit.
func (p *Projection) ConfirmCard(c Card) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.confirmed = mergeCard(p.confirmed, c)
	if p.hasPending {
		p.pending = mergeCard(p.pending, c)
	}
}

func mergeCard(cards []Card, c Card) []Card {
	for i := range cards {
		if cards[i].ID == c.ID {
			cards[i] = c
			SortCards(cards)
			return cards
		}
	}
	cards = append(cards, c)
	SortCards(cards)
	return cards
}

func cloneCards(cards []Card) []Card {
	out := make([]Card, len(cards))
	copy(out, cards)
	return out
}
