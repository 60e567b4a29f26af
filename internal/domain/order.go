package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Order is an immutable record of a completed ordering flow.
type Order struct {
	ID             string    `json:"order_id"`
	Buyer          string    `json:"buyer"`
	ProductName    string    `json:"product_name"`
	Quantity       int       `json:"quantity"`
	UnitPrice      int       `json:"price"`
	DeliveryCharge int       `json:"delivery_charge"`
	Total          int       `json:"total"`
	Location       string    `json:"location"`
	CreatedAt      time.Time `json:"created_at"`
}

// NewOrder builds an order from the data collected for buyer.
func NewOrder(buyer string, data SessionData, deliveryCharge int, now time.Time) *Order {
	return &Order{
		ID:             NewOrderID(),
		Buyer:          buyer,
		ProductName:    data.ProductName,
		Quantity:       data.Quantity,
		UnitPrice:      data.Price,
		DeliveryCharge: deliveryCharge,
		Total:          OrderTotal(data.Price, data.Quantity, deliveryCharge),
		Location:       data.Location,
		CreatedAt:      now.UTC(),
	}
}

// Bounds on order inputs. With both in range, price*quantity plus a
// delivery charge of at most MaxPrice fits in an int64.
const (
	MaxQuantity = 10_000
	MaxPrice    = 1_000_000_000
)

// OrderTotal computes price*quantity plus the delivery charge. Callers keep
// quantity within MaxQuantity and price and charge within MaxPrice.
func OrderTotal(price, quantity, deliveryCharge int) int {
	return price*quantity + deliveryCharge
}

// NewOrderID returns a random order identifier in compact hex form.
func NewOrderID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Product is a catalog entry.
type Product struct {
	ID    int    `json:"id" yaml:"id" toml:"id"`
	Name  string `json:"name" yaml:"name" toml:"name"`
	Price int    `json:"price" yaml:"price" toml:"price"`
}
