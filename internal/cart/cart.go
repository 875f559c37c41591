// Package cart holds the request-scoped shopping cart. The cart lives
// in a client cookie; each request rehydrates it, mutates the value and
// writes it back. There is no server-side cart state.
package cart

import (
	"github.com/luckpoint/my-cafe-demo/internal/order"
)

// TaxRatePercent is the flat surcharge applied at display time. It is
// never stored with the cart or the order.
const TaxRatePercent = 10

// Line identity is the (ProductID, Size) pair: the same drink in two
// sizes is two lines. UnitPrice is a snapshot of the per-size price at
// the time the line was added.
type Line struct {
	ProductID string     `json:"id"`
	Name      string     `json:"name"`
	Size      order.Size `json:"size"`
	UnitPrice int64      `json:"price"`
	Quantity  int64      `json:"quantity"`
	Image     string     `json:"image,omitempty"`
}

type Cart struct {
	Lines []Line `json:"lines"`
}

func (c *Cart) find(productID string, size order.Size) int {
	for i, l := range c.Lines {
		if l.ProductID == productID && l.Size == size {
			return i
		}
	}
	return -1
}

// Add merges into an existing (ProductID, Size) line or appends a new
// one. Quantities below one are treated as one.
func (c *Cart) Add(line Line) {
	if line.Quantity < 1 {
		line.Quantity = 1
	}
	if i := c.find(line.ProductID, line.Size); i >= 0 {
		c.Lines[i].Quantity += line.Quantity
		return
	}
	c.Lines = append(c.Lines, line)
}

// SetQuantity replaces a line's quantity; zero or negative removes the
// line entirely rather than storing a non-positive quantity. Setting a
// quantity for an absent line is a no-op.
func (c *Cart) SetQuantity(productID string, size order.Size, quantity int64) {
	i := c.find(productID, size)
	if i < 0 {
		return
	}
	if quantity <= 0 {
		c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
		return
	}
	c.Lines[i].Quantity = quantity
}

func (c *Cart) Remove(productID string, size order.Size) {
	if i := c.find(productID, size); i >= 0 {
		c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
	}
}

func (c *Cart) Clear() {
	c.Lines = nil
}

func (c *Cart) Empty() bool {
	return len(c.Lines) == 0
}

func (c *Cart) Subtotal() int64 {
	var sum int64
	for _, l := range c.Lines {
		sum += l.UnitPrice * l.Quantity
	}
	return sum
}

func (c *Cart) Tax() int64 {
	return c.Subtotal() * TaxRatePercent / 100
}

func (c *Cart) Total() int64 {
	return c.Subtotal() + c.Tax()
}
