// Package orders tracks approved orders that have not been filled or
// cancelled yet, so their notional counts against later gate checks.
package orders

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ducminhle1904/trade-guard/internal/monitoring"
	"github.com/ducminhle1904/trade-guard/internal/risk"
	"github.com/google/uuid"
)

// Order is a reserved, approved trade
type Order struct {
	ID         string     `json:"id"`
	Trade      risk.Trade `json:"trade"`
	Notional   float64    `json:"notional"`
	ReservedAt time.Time  `json:"reserved_at"`
}

type slot struct {
	order Order
	used  bool
}

// Arena owns the pending orders. Slots are indexed by ID and reused through a
// free list; all access goes through one mutex.
type Arena struct {
	mu       sync.Mutex
	slots    []slot
	free     []int
	index    map[string]int
	exposure float64
	inst     monitoring.Instrumentation
	now      func() time.Time
}

// NewArena creates an empty arena. inst may be nil.
func NewArena(inst monitoring.Instrumentation) *Arena {
	return &Arena{
		index: make(map[string]int),
		inst:  monitoring.OrNop(inst),
		now:   time.Now,
	}
}

// Reserve stores trade and returns its order
func (a *Arena) Reserve(trade risk.Trade) (Order, error) {
	if trade.Quantity <= 0 || !(trade.Price > 0) {
		return Order{}, fmt.Errorf("cannot reserve %s: quantity and price must be positive", trade.Ticker)
	}

	order := Order{
		ID:         uuid.New().String(),
		Trade:      trade,
		Notional:   trade.Value(),
		ReservedAt: a.now(),
	}

	a.mu.Lock()
	var i int
	if n := len(a.free); n > 0 {
		i = a.free[n-1]
		a.free = a.free[:n-1]
		a.slots[i] = slot{order: order, used: true}
	} else {
		i = len(a.slots)
		a.slots = append(a.slots, slot{order: order, used: true})
	}
	a.index[order.ID] = i
	a.exposure += order.Notional
	count, exposure := len(a.index), a.exposure
	a.mu.Unlock()

	a.inst.PendingOrders(count, exposure)
	return order, nil
}

// Release removes an order on fill or cancel
func (a *Arena) Release(id string) (Order, bool) {
	a.mu.Lock()
	order, ok := a.releaseLocked(id)
	count, exposure := len(a.index), a.exposure
	a.mu.Unlock()

	if ok {
		a.inst.PendingOrders(count, exposure)
	}
	return order, ok
}

func (a *Arena) releaseLocked(id string) (Order, bool) {
	i, ok := a.index[id]
	if !ok {
		return Order{}, false
	}
	order := a.slots[i].order
	a.slots[i] = slot{}
	a.free = append(a.free, i)
	delete(a.index, id)

	a.exposure -= order.Notional
	if len(a.index) == 0 {
		// drop accumulated float error
		a.exposure = 0
	}
	return order, true
}

// Get returns the order with id
func (a *Arena) Get(id string) (Order, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	i, ok := a.index[id]
	if !ok {
		return Order{}, false
	}
	return a.slots[i].order, true
}

// Exposure is the gross notional of pending orders. Sells add to it like buys:
// an unfilled sell has not reduced the book yet.
func (a *Arena) Exposure() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.exposure
}

// Len is the number of pending orders
func (a *Arena) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.index)
}

// List returns the pending orders, oldest first
func (a *Arena) List() []Order {
	a.mu.Lock()
	out := make([]Order, 0, len(a.index))
	for _, s := range a.slots {
		if s.used {
			out = append(out, s.order)
		}
	}
	a.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ReservedAt.Before(out[j].ReservedAt) })
	return out
}

// Expire releases orders reserved before cutoff and returns them
func (a *Arena) Expire(cutoff time.Time) []Order {
	a.mu.Lock()
	var expired []Order
	for _, s := range a.slots {
		if s.used && s.order.ReservedAt.Before(cutoff) {
			expired = append(expired, s.order)
		}
	}
	for _, o := range expired {
		a.releaseLocked(o.ID)
	}
	count, exposure := len(a.index), a.exposure
	a.mu.Unlock()

	if len(expired) > 0 {
		a.inst.PendingOrders(count, exposure)
	}
	return expired
}
