package domain

import "sort"

// Delta is a single order adjustment another card needs so its column
// stays dense after a move.
type Delta struct {
	CardID   string
	NewOrder int
}

// MovePlan describes the complete set of writes needed to relocate one
// card. Deltas never include the moved card itself; its target position
// is carried by Status and Order.
type MovePlan struct {
	CardID string
	Status Status
	Order  int
	Deltas []Delta
	// NoOp is set when the card already sits at the requested position.
	NoOp bool
}

// PlanMove computes the minimal order adjustments required to place the
// card at destIndex in the dest column. cards is a consistent snapshot
// of the whole board; every column is assumed dense. A destination index
// past the end of the column is treated as append, a negative one as
// insert-at-front.
func PlanMove(cards []Card, cardID string, dest Status, destIndex int) (MovePlan, error) {
	if !dest.Valid() {
		return MovePlan{}, ValidationError{Field: "status", Reason: "unknown column"}
	}

	var moved *Card
	colSize := make(map[Status]int, len(Statuses))
	for i := range cards {
		colSize[cards[i].Status]++
		if cards[i].ID == cardID {
			moved = &cards[i]
		}
	}
	if moved == nil {
		return MovePlan{}, NotFoundError{ID: cardID}
	}

	oldStatus, oldOrder := moved.Status, moved.Order
	newOrder := destIndex
	if newOrder < 0 {
		newOrder = 0
	}

	if dest == oldStatus {
		if last := colSize[dest] - 1; newOrder > last {
			newOrder = last
		}
		plan := MovePlan{CardID: cardID, Status: dest, Order: newOrder}
		switch {
		case newOrder == oldOrder:
			plan.NoOp = true
		case newOrder > oldOrder:
			// Cards between the old and new slot shift down one.
			for _, c := range cards {
				if c.Status == oldStatus && c.Order > oldOrder && c.Order <= newOrder {
					plan.Deltas = append(plan.Deltas, Delta{CardID: c.ID, NewOrder: c.Order - 1})
				}
			}
		default:
			// Cards between the new and old slot shift up one.
			for _, c := range cards {
				if c.Status == oldStatus && c.Order >= newOrder && c.Order < oldOrder {
					plan.Deltas = append(plan.Deltas, Delta{CardID: c.ID, NewOrder: c.Order + 1})
				}
			}
		}
		return plan, nil
	}

	if size := colSize[dest]; newOrder > size {
		newOrder = size
	}
	plan := MovePlan{CardID: cardID, Status: dest, Order: newOrder}
	for _, c := range cards {
		switch {
		case c.Status == oldStatus && c.Order > oldOrder:
			// Close the gap left in the source column.
			plan.Deltas = append(plan.Deltas, Delta{CardID: c.ID, NewOrder: c.Order - 1})
		case c.Status == dest && c.Order >= newOrder:
			// Open a slot in the destination column.
			plan.Deltas = append(plan.Deltas, Delta{CardID: c.ID, NewOrder: c.Order + 1})
		}
	}
	return plan, nil
}

// Apply returns a copy of cards with the plan applied, sorted by status
// then order. The inputs are not modified.
func (p MovePlan) Apply(cards []Card) []Card {
	shifted := make(map[string]int, len(p.Deltas))
	for _, d := range p.Deltas {
		shifted[d.CardID] = d.NewOrder
	}
	out := make([]Card, len(cards))
	copy(out, cards)
	for i := range out {
		if out[i].ID == p.CardID {
			out[i].Status = p.Status
			out[i].Order = p.Order
			continue
		}
		if o, ok := shifted[out[i].ID]; ok {
			out[i].Order = o
		}
	}
	SortCards(out)
	return out
}

// SortCards orders cards the way the store lists them: status ascending,
// then order ascending.
func SortCards(cards []Card) {
	sort.Slice(cards, func(i, j int) bool {
		if cards[i].Status != cards[j].Status {
			return cards[i].Status < cards[j].Status
		}
		return cards[i].Order < cards[j].Order
	})
}
