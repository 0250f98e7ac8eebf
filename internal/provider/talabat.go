package provider

import (
	"fmt"

	"github.com/restohub/ingest/internal/order"
)

var talabatStatusMap = map[string]order.CanonicalStatus{
	"order_received":  order.StatusPending,
	"order_accepted":  order.StatusConfirmed,
	"accepted":        order.StatusConfirmed,
	"order_preparing": order.StatusPreparing,
	"order_prepared":  order.StatusReady,
	"order_picked_up": order.StatusOutForDelivery,
	"order_delivered": order.StatusDelivered,
	"order_cancelled": order.StatusCancelled,
	"order_rejected":  order.StatusRejected,
}

// TalabatAdapter normalizes Talabat webhook payloads.
type TalabatAdapter struct{}

func NewTalabatAdapter() TalabatAdapter { return TalabatAdapter{} }

func (TalabatAdapter) Name() string { return "talabat" }

func (a TalabatAdapter) ValidatePayload(payload map[string]any) bool {
	if payload == nil {
		return false
	}
	if stringField(payload, "token", "order_id", "shortCode") == "" {
		return false
	}
	if sliceField(payload, "products", "items") == nil {
		return false
	}
	customer := mapField(payload, "customer")
	return stringField(customer, "firstName", "name") != ""
}

func (a TalabatAdapter) ExtractOrder(payload map[string]any) (order.Order, error) {
	if !a.ValidatePayload(payload) {
		return order.Order{}, fmt.Errorf("%w: talabat payload missing required fields", ErrInvalidPayload)
	}

	customer := mapField(payload, "customer")
	delivery := mapField(payload, "delivery", "deliveryAddress")
	price := mapField(payload, "price", "totals")
	if price == nil {
		price = payload
	}

	name := stringField(customer, "firstName", "name")
	if last := stringField(customer, "lastName"); last != "" {
		name += " " + last
	}

	o := order.Order{
		ExternalID: stringField(payload, "token", "order_id", "shortCode"),
		Provider:   a.Name(),
		BranchID:   stringField(payload, "localInfo", "branch_id", "vendor_id"),
		Customer: order.Customer{
			Name:  name,
			Phone: stringField(customer, "mobilePhone", "phone"),
			Email: stringField(customer, "email"),
		},
		Items: extractTalabatItems(sliceField(payload, "products", "items")),
		Address: order.Address{
			Street: stringField(delivery, "street", "address"),
			City:   stringField(delivery, "city"),
			Notes:  stringField(delivery, "comments", "notes"),
			Lat:    numberField(delivery, "latitude", "lat"),
			Lng:    numberField(delivery, "longitude", "lng"),
		},
		Payment: order.Payment{
			Method: stringField(payload, "paymentType", "payment_method"),
			Status: stringField(payload, "paymentStatus", "payment_status"),
		},
		Totals: order.Totals{
			Subtotal:    numberField(price, "subTotal", "subtotal"),
			DeliveryFee: numberField(price, "deliveryFees", "delivery_fee"),
			Tax:         numberField(price, "vatTotal", "tax"),
			Discount:    numberField(price, "discountAmountTotal", "discount"),
			Total:       numberField(price, "grandTotal", "total"),
		},
		Status:   a.MapStatus(stringField(payload, "status", "orderStatus")),
		Metadata: map[string]any{"raw": payload},
	}
	if err := o.Validate(); err != nil {
		return order.Order{}, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	return o, nil
}

func (TalabatAdapter) MapStatus(nativeStatus string) order.CanonicalStatus {
	if s, ok := talabatStatusMap[nativeStatus]; ok {
		return s
	}
	return order.StatusPending
}

// FormatAck returns the {success, orderId, error} shape Talabat expects.
func (TalabatAdapter) FormatAck(success bool, orderID string, err error) any {
	if success {
		return map[string]any{
			"success": true,
			"orderId": orderID,
		}
	}
	return map[string]any{
		"success": false,
		"error":   "order could not be processed",
	}
}

// extractTalabatItems handles Talabat's product shape, which nests unit price
// under either a flat key or a price object depending on webhook version.
func extractTalabatItems(raw []any) []order.Item {
	items := make([]order.Item, 0, len(raw))
	for _, entry := range raw {
		m, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		unitPrice := numberField(m, "unitPrice", "price")
		if unitPrice == 0 {
			if p := mapField(m, "price"); p != nil {
				unitPrice = numberField(p, "unitPrice", "value")
			}
		}
		item := order.Item{
			Name:      stringField(m, "name", "title"),
			Quantity:  intField(m, "quantity", "qty"),
			UnitPrice: unitPrice,
		}
		if item.Quantity == 0 {
			item.Quantity = 1
		}
		for _, rawTop := range sliceField(m, "selectedToppings", "toppings", "modifiers") {
			top, ok := rawTop.(map[string]any)
			if !ok {
				continue
			}
			item.Modifiers = append(item.Modifiers, order.Modifier{
				Name:  stringField(top, "name"),
				Price: numberField(top, "price"),
			})
		}
		items = append(items, item)
	}
	return items
}
