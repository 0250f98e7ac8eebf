package provider

import (
	"fmt"

	"github.com/restohub/ingest/internal/order"
)

// careemStatusMap translates Careem Now order statuses. Unknown values fall
// back to PENDING so a new provider-side status never breaks ingestion.
var careemStatusMap = map[string]order.CanonicalStatus{
	"pending":         order.StatusPending,
	"accepted":        order.StatusConfirmed,
	"confirmed":       order.StatusConfirmed,
	"preparing":       order.StatusPreparing,
	"ready":           order.StatusReady,
	"driver_assigned": order.StatusOutForDelivery,
	"dispatched":      order.StatusOutForDelivery,
	"delivered":       order.StatusDelivered,
	"cancelled":       order.StatusCancelled,
	"rejected":        order.StatusRejected,
}

// CareemAdapter normalizes Careem Now webhook payloads.
type CareemAdapter struct{}

func NewCareemAdapter() CareemAdapter { return CareemAdapter{} }

func (CareemAdapter) Name() string { return "careem" }

func (a CareemAdapter) ValidatePayload(payload map[string]any) bool {
	if payload == nil {
		return false
	}
	if stringField(payload, "id", "order_id", "reference_id") == "" {
		return false
	}
	if sliceField(payload, "items", "order_items") == nil {
		return false
	}
	customer := mapField(payload, "customer", "client")
	return stringField(customer, "name", "full_name") != ""
}

func (a CareemAdapter) ExtractOrder(payload map[string]any) (order.Order, error) {
	if !a.ValidatePayload(payload) {
		return order.Order{}, fmt.Errorf("%w: careem payload missing required fields", ErrInvalidPayload)
	}

	customer := mapField(payload, "customer", "client")
	address := mapField(payload, "delivery_address", "address")
	payment := mapField(payload, "payment", "payment_info")
	totals := mapField(payload, "totals", "price")
	if totals == nil {
		// Older Careem webhooks carried totals at the top level.
		totals = payload
	}

	o := order.Order{
		ExternalID: stringField(payload, "id", "order_id", "reference_id"),
		Provider:   a.Name(),
		BranchID:   stringField(payload, "branch_id", "merchant_id", "store_id"),
		Customer: order.Customer{
			Name:  stringField(customer, "name", "full_name"),
			Phone: stringField(customer, "phone", "phone_number", "mobile"),
			Email: stringField(customer, "email"),
		},
		Items: extractItems(sliceField(payload, "items", "order_items")),
		Address: order.Address{
			Street: stringField(address, "street", "address_line1", "line1"),
			City:   stringField(address, "city", "area"),
			Notes:  stringField(address, "notes", "instructions"),
			Lat:    numberField(address, "lat", "latitude"),
			Lng:    numberField(address, "lng", "longitude"),
		},
		Payment: order.Payment{
			Method: stringField(payment, "method", "type"),
			Status: stringField(payment, "status"),
		},
		Totals: order.Totals{
			Subtotal:    numberField(totals, "subtotal", "sub_total"),
			DeliveryFee: numberField(totals, "delivery_fee", "deliveryFee"),
			Tax:         numberField(totals, "tax", "vat"),
			Discount:    numberField(totals, "discount"),
			Total:       numberField(totals, "total", "grand_total", "total_amount"),
		},
		Status:   a.MapStatus(stringField(payload, "status", "order_status")),
		Metadata: map[string]any{"raw": payload},
	}
	if err := o.Validate(); err != nil {
		return order.Order{}, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	return o, nil
}

func (CareemAdapter) MapStatus(nativeStatus string) order.CanonicalStatus {
	if s, ok := careemStatusMap[nativeStatus]; ok {
		return s
	}
	return order.StatusPending
}

// FormatAck returns the {status, order_id, message} shape Careem expects.
func (CareemAdapter) FormatAck(success bool, orderID string, err error) any {
	if success {
		return map[string]any{
			"status":   "success",
			"order_id": orderID,
			"message":  "order accepted",
		}
	}
	return map[string]any{
		"status":  "error",
		"message": "order could not be processed",
	}
}

// extractItems decodes a provider item list, tolerating per-item alias drift.
// Shared by adapters whose item shapes converged on {name, quantity, price}.
func extractItems(raw []any) []order.Item {
	items := make([]order.Item, 0, len(raw))
	for _, entry := range raw {
		m, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		item := order.Item{
			Name:      stringField(m, "name", "title", "item_name"),
			Quantity:  intField(m, "quantity", "qty", "count"),
			UnitPrice: numberField(m, "unit_price", "price", "item_price"),
		}
		if item.Quantity == 0 {
			item.Quantity = 1
		}
		for _, rawMod := range sliceField(m, "modifiers", "options", "add_ons") {
			mod, ok := rawMod.(map[string]any)
			if !ok {
				continue
			}
			item.Modifiers = append(item.Modifiers, order.Modifier{
				Name:  stringField(mod, "name", "title"),
				Price: numberField(mod, "price", "amount"),
			})
		}
		items = append(items, item)
	}
	return items
}
