// Package exchange is the player-to-player order book. Posting escrows the
// poster's side of the trade in the book; a fill settles the taker at once and
// leaves the poster's proceeds in the book until the poster claims them. Each
// farm.State is only touched by calls made on behalf of its own player.
package exchange

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"tappytrade.io/internal/sim/farm"
)

type Status string

const (
	Open      Status = "open"
	Filled    Status = "filled"
	Settled   Status = "settled"
	Cancelled Status = "cancelled"
)

// Order is a posted offer. Side is the poster's side: a sell order escrows
// items, a buy order escrows money.
type Order struct {
	ID         string         `json:"id"`
	Owner      string         `json:"owner"`
	Side       farm.Direction `json:"side"`
	ResourceID string         `json:"resource"`
	Quantity   int            `json:"quantity"`
	UnitPrice  float64        `json:"unit_price"`
	Status     Status         `json:"status"`
	CreatedAt  int64          `json:"created_at"`
	FilledBy   string         `json:"filled_by,omitempty"`
	FilledAt   int64          `json:"filled_at,omitempty"`
}

func (o Order) Total() float64 { return o.UnitPrice * float64(o.Quantity) }

type Book struct {
	mu     sync.Mutex
	orders map[string]*Order
}

func NewBook() *Book {
	return &Book{orders: map[string]*Order{}}
}

// Post escrows the poster's side and lists the order.
func (b *Book) Post(st *farm.State, r farm.Rules, owner string, side farm.Direction, resourceID string, qty int, unitPrice float64, nowMillis int64) (Order, error) {
	if _, ok := r.Cat.Resource(resourceID); !ok {
		return Order{}, farm.Reject(farm.InvalidTarget, "unknown resource %q", resourceID)
	}
	if qty <= 0 || !(unitPrice > 0) {
		return Order{}, farm.Reject(farm.InvalidTarget, "quantity and price must be positive")
	}
	o := Order{
		ID:         uuid.NewString(),
		Owner:      owner,
		Side:       side,
		ResourceID: resourceID,
		Quantity:   qty,
		UnitPrice:  unitPrice,
		Status:     Open,
		CreatedAt:  nowMillis,
	}
	switch side {
	case farm.Sell:
		if !st.Inventory.Remove(resourceID, qty) {
			return Order{}, farm.Reject(farm.InsufficientInventory, "have %d %s", st.Inventory.Count(resourceID), resourceID)
		}
	case farm.Buy:
		if st.Money < o.Total() {
			return Order{}, farm.Reject(farm.InsufficientFunds, "need %.2f", o.Total())
		}
		st.Money -= o.Total()
	default:
		return Order{}, farm.Reject(farm.InvalidTarget, "unknown side %q", side)
	}

	b.mu.Lock()
	b.orders[o.ID] = &o
	b.mu.Unlock()
	return o, nil
}

// Fill takes the whole order on behalf of taker. There are no partial fills.
func (b *Book) Fill(st *farm.State, r farm.Rules, taker, id string, nowMillis int64) (Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	o, ok := b.orders[id]
	if !ok || o.Status != Open {
		return Order{}, farm.Reject(farm.InvalidTarget, "order %q is not open", id)
	}
	if o.Owner == taker {
		return Order{}, farm.Reject(farm.InvalidTarget, "cannot fill own order")
	}
	switch o.Side {
	case farm.Sell:
		if st.Money < o.Total() {
			return Order{}, farm.Reject(farm.InsufficientFunds, "need %.2f", o.Total())
		}
		if st.Inventory.Total()+o.Quantity > r.Capacity(st) {
			return Order{}, farm.Reject(farm.InventoryFull, "no room for %d %s", o.Quantity, o.ResourceID)
		}
		st.Money -= o.Total()
		st.Inventory.Add(o.ResourceID, o.Quantity)
	case farm.Buy:
		if !st.Inventory.Remove(o.ResourceID, o.Quantity) {
			return Order{}, farm.Reject(farm.InsufficientInventory, "need %d %s", o.Quantity, o.ResourceID)
		}
		st.Money += o.Total()
	}
	o.Status = Filled
	o.FilledBy = taker
	o.FilledAt = nowMillis
	return *o, nil
}

// Cancel withdraws an open order and returns its escrow to the owner.
func (b *Book) Cancel(st *farm.State, r farm.Rules, owner, id string) (Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	o, ok := b.orders[id]
	if !ok || o.Owner != owner || o.Status != Open {
		return Order{}, farm.Reject(farm.InvalidTarget, "no open order %q", id)
	}
	switch o.Side {
	case farm.Sell:
		if st.Inventory.Total()+o.Quantity > r.Capacity(st) {
			return Order{}, farm.Reject(farm.InventoryFull, "no room to return %d %s", o.Quantity, o.ResourceID)
		}
		st.Inventory.Add(o.ResourceID, o.Quantity)
	case farm.Buy:
		st.Money += o.Total()
	}
	o.Status = Cancelled
	return *o, nil
}

// Claim delivers the proceeds of owner's filled orders: money for sells,
// items for buys. Item proceeds that do not fit stay claimable.
func (b *Book) Claim(st *farm.State, r farm.Rules, owner string) []Order {
	b.mu.Lock()
	defer b.mu.Unlock()

	var settled []Order
	for _, o := range b.sortedLocked() {
		if o.Owner != owner || o.Status != Filled {
			continue
		}
		switch o.Side {
		case farm.Sell:
			st.Money += o.Total()
			st.Stats.Earned += o.Total()
			st.Stats.Sold += o.Quantity
		case farm.Buy:
			if st.Inventory.Total()+o.Quantity > r.Capacity(st) {
				continue
			}
			st.Inventory.Add(o.ResourceID, o.Quantity)
		}
		o.Status = Settled
		settled = append(settled, *o)
	}
	return settled
}

// Open lists open orders, oldest first.
func (b *Book) Open() []Order {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Order
	for _, o := range b.sortedLocked() {
		if o.Status == Open {
			out = append(out, *o)
		}
	}
	return out
}

func (b *Book) Get(id string) (Order, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.orders[id]
	if !ok {
		return Order{}, false
	}
	return *o, true
}

// Prune forgets settled and cancelled orders.
func (b *Book) Prune() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for id, o := range b.orders {
		if o.Status == Settled || o.Status == Cancelled {
			delete(b.orders, id)
			n++
		}
	}
	return n
}

func (b *Book) sortedLocked() []*Order {
	out := make([]*Order, 0, len(b.orders))
	for _, o := range b.orders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}
