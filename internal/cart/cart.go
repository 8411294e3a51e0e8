// Package cart holds the customer's in-progress selection on the device.
// Nothing here talks to the server; lines become an order only at checkout.
package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiwari-pos/ordering/internal/order"
	"github.com/kiwari-pos/ordering/internal/pricing"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidQuantity = errors.New("quantity must be > 0")
	ErrLineNotFound    = errors.New("cart line not found")
	ErrInvalidFood     = errors.New("food id is required")
)

// Storage persists the serialized cart. Load returns nil, nil when nothing
// has been saved yet.
type Storage interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
}

// Line is one distinct food in the cart.
type Line struct {
	ID                  string     `json:"id"`
	Food                order.Food `json:"food"`
	Quantity            int        `json:"quantity"`
	SpecialInstructions string     `json:"special_instructions,omitempty"`
	AddedAt             time.Time  `json:"added_at"`
}

// Total is the line's price at the cart's copy of the food.
func (l Line) Total() decimal.Decimal {
	return l.Food.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type snapshot struct {
	Lines []Line `json:"lines"`
}

// Cart merges duplicate foods into one line and re-serializes itself to
// Storage after every mutation.
type Cart struct {
	mu      sync.Mutex
	storage Storage
	lines   []Line
	now     func() time.Time
}

// Open loads the persisted cart once. A corrupt blob is logged and
// replaced by an empty cart.
func Open(ctx context.Context, storage Storage) (*Cart, error) {
	c := &Cart{storage: storage, now: time.Now}

	data, err := storage.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	if len(data) == 0 {
		return c, nil
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		log.Warn().Err(err).Msg("cart: discarding unreadable saved cart")
		return c, nil
	}
	for _, l := range snap.Lines {
		if l.Quantity > 0 && l.Food.ID != "" {
			c.lines = append(c.lines, l)
		}
	}
	return c, nil
}

// Add puts quantity of food into the cart. If the food is already there its
// quantity grows and a non-empty instructions value replaces the old one.
func (c *Cart) Add(ctx context.Context, food order.Food, quantity int, instructions string) (Line, error) {
	if quantity <= 0 {
		return Line{}, ErrInvalidQuantity
	}
	if food.ID == "" {
		return Line{}, ErrInvalidFood
	}
	instructions = strings.TrimSpace(instructions)

	c.mu.Lock()
	defer c.mu.Unlock()

	if i := c.indexByFood(food.ID); i >= 0 {
		c.lines[i].Quantity += quantity
		if instructions != "" {
			c.lines[i].SpecialInstructions = instructions
		}
		return c.lines[i], c.persist(ctx)
	}

	line := Line{
		ID:                  uuid.NewString(),
		Food:                food,
		Quantity:            quantity,
		SpecialInstructions: instructions,
		AddedAt:             c.now(),
	}
	c.lines = append(c.lines, line)
	return line, c.persist(ctx)
}

// Remove drops a line. Removing an absent line is a no-op.
func (c *Cart) Remove(ctx context.Context, lineID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remove(ctx, lineID)
}

// SetQuantity replaces a line's quantity; zero or negative removes it.
func (c *Cart) SetQuantity(ctx context.Context, lineID string, quantity int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if quantity <= 0 {
		return c.remove(ctx, lineID)
	}
	i := c.indexByID(lineID)
	if i < 0 {
		return ErrLineNotFound
	}
	c.lines[i].Quantity = quantity
	return c.persist(ctx)
}

// Clear empties the cart, typically after a successful checkout.
func (c *Cart) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = nil
	return c.persist(ctx)
}

// Lines returns a copy of the cart lines in insertion order.
func (c *Cart) Lines() []Line {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Line, len(c.lines))
	copy(out, c.lines)
	return out
}

// Total is Σ price × quantity, recomputed on every call.
func (c *Cart) Total() decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := decimal.Zero
	for _, l := range c.lines {
		total = total.Add(l.Total())
	}
	return total
}

// Count is the number of items across all lines.
func (c *Cart) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, l := range c.lines {
		n += l.Quantity
	}
	return n
}

// OrderLines snapshots the cart into order lines priced at the cart's copy
// of each food.
func (c *Cart) OrderLines() []order.OrderLine {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]order.OrderLine, len(c.lines))
	for i, l := range c.lines {
		out[i] = order.OrderLine{
			FoodID:              l.Food.ID,
			FoodName:            l.Food.Name,
			Quantity:            l.Quantity,
			UnitPrice:           l.Food.Price,
			SpecialInstructions: l.SpecialInstructions,
		}
	}
	return out
}

// Preview prices the cart the same way the server prices the order.
func (c *Cart) Preview(policy pricing.Policy) pricing.Summary {
	return policy.Compute(c.OrderLines())
}

func (c *Cart) remove(ctx context.Context, lineID string) error {
	i := c.indexByID(lineID)
	if i < 0 {
		return nil
	}
	c.lines = append(c.lines[:i], c.lines[i+1:]...)
	return c.persist(ctx)
}

func (c *Cart) indexByID(id string) int {
	for i, l := range c.lines {
		if l.ID == id {
			return i
		}
	}
	return -1
}

func (c *Cart) indexByFood(foodID string) int {
	for i, l := range c.lines {
		if l.Food.ID == foodID {
			return i
		}
	}
	return -1
}

// persist must be called with mu held.
func (c *Cart) persist(ctx context.Context) error {
	data, err := json.Marshal(snapshot{Lines: c.lines})
	if err != nil {
		return fmt.Errorf("encode cart: %w", err)
	}
	if err := c.storage.Save(ctx, data); err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	return nil
}
