package order

import "errors"

// Validation errors returned by Order.Validate.
var (
	ErrNegativeTotal     = errors.New("order total cannot be negative")
	ErrNoItems           = errors.New("order must contain at least one item")
	ErrNoCustomerContact = errors.New("order must carry at least one customer contact field")
)

// CanonicalStatus is the provider-agnostic order status.
type CanonicalStatus string

const (
	StatusPending        CanonicalStatus = "PENDING"
	StatusConfirmed      CanonicalStatus = "CONFIRMED"
	StatusPreparing      CanonicalStatus = "PREPARING"
	StatusReady          CanonicalStatus = "READY"
	StatusOutForDelivery CanonicalStatus = "OUT_FOR_DELIVERY"
	StatusDelivered      CanonicalStatus = "DELIVERED"
	StatusCancelled      CanonicalStatus = "CANCELLED"
	StatusRejected       CanonicalStatus = "REJECTED"
)

// Customer holds buyer contact details as delivered by the provider.
type Customer struct {
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

// Modifier is an add-on or option attached to a line item.
type Modifier struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

// Item is one order line.
type Item struct {
	Name      string     `json:"name"`
	Quantity  int        `json:"quantity"`
	UnitPrice float64    `json:"unit_price"`
	Modifiers []Modifier `json:"modifiers,omitempty"`
}

// Address is the delivery destination, including optional coordinates.
type Address struct {
	Street string  `json:"street,omitempty"`
	City   string  `json:"city,omitempty"`
	Notes  string  `json:"notes,omitempty"`
	Lat    float64 `json:"lat,omitempty"`
	Lng    float64 `json:"lng,omitempty"`
}

// Payment describes how the order is paid for.
type Payment struct {
	Method string `json:"method,omitempty"`
	Status string `json:"status,omitempty"`
}

// Totals carries the monetary breakdown computed by the provider.
type Totals struct {
	Subtotal    float64 `json:"subtotal"`
	DeliveryFee float64 `json:"delivery_fee"`
	Tax         float64 `json:"tax"`
	Discount    float64 `json:"discount"`
	Total       float64 `json:"total"`
}

// Order is the canonical, provider-agnostic order representation produced by
// a provider adapter. Metadata retains the original payload for traceability.
type Order struct {
	ExternalID string          `json:"external_id"`
	Provider   string          `json:"provider"`
	BranchID   string          `json:"branch_id"`
	Customer   Customer        `json:"customer"`
	Items      []Item          `json:"items"`
	Address    Address         `json:"address"`
	Payment    Payment         `json:"payment"`
	Totals     Totals          `json:"totals"`
	Status     CanonicalStatus `json:"status"`
	Metadata   map[string]any  `json:"metadata,omitempty"`
}

// Validate enforces the canonical order invariants: a non-negative total,
// a non-empty item list, and at least one customer contact field.
func (o Order) Validate() error {
	if o.Totals.Total < 0 {
		return ErrNegativeTotal
	}
	if len(o.Items) == 0 {
		return ErrNoItems
	}
	if o.Customer.Name == "" && o.Customer.Phone == "" && o.Customer.Email == "" {
		return ErrNoCustomerContact
	}
	return nil
}
