package provider_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/restohub/ingest/internal/order"
	"github.com/restohub/ingest/internal/provider"
)

const talabatPayload = `{
	"token": "TLB-5005",
	"localInfo": "vendor-12",
	"status": "order_accepted",
	"paymentType": "cash",
	"customer": {"firstName": "Lina", "lastName": "Haddad", "mobilePhone": "+96170111222"},
	"products": [
		{"name": "Mixed Grill", "quantity": 1, "price": {"unitPrice": 24},
		 "selectedToppings": [{"name": "Extra Bread", "price": 1.5}]},
		{"name": "Hummus", "quantity": 2, "unitPrice": 6}
	],
	"delivery": {"street": "Hamra St 4", "city": "Beirut", "comments": "call on arrival"},
	"price": {"subTotal": 36, "deliveryFees": 3, "vatTotal": 4, "grandTotal": 43}
}`

func TestTalabatAdapter_ExtractOrder(t *testing.T) {
	t.Parallel()

	a := provider.NewTalabatAdapter()
	payload := decodePayload(t, talabatPayload)

	o, err := a.ExtractOrder(payload)
	require.NoError(t, err)

	assert.Equal(t, "TLB-5005", o.ExternalID)
	assert.Equal(t, "talabat", o.Provider)
	assert.Equal(t, "vendor-12", o.BranchID)
	assert.Equal(t, order.StatusConfirmed, o.Status)

	// First and last names are joined.
	assert.Equal(t, "Lina Haddad", o.Customer.Name)
	assert.Equal(t, "+96170111222", o.Customer.Phone)

	require.Len(t, o.Items, 2)

	// Unit price nested under a price object.
	assert.Equal(t, float64(24), o.Items[0].UnitPrice)
	require.Len(t, o.Items[0].Modifiers, 1)
	assert.Equal(t, "Extra Bread", o.Items[0].Modifiers[0].Name)

	// Flat unitPrice variant.
	assert.Equal(t, float64(6), o.Items[1].UnitPrice)
	assert.Equal(t, 2, o.Items[1].Quantity)

	assert.Equal(t, "Beirut", o.Address.City)
	assert.Equal(t, "call on arrival", o.Address.Notes)
	assert.Equal(t, "cash", o.Payment.Method)

	assert.Equal(t, float64(36), o.Totals.Subtotal)
	assert.Equal(t, float64(3), o.Totals.DeliveryFee)
	assert.Equal(t, float64(43), o.Totals.Total)
}

func TestTalabatAdapter_SingleNameCustomer(t *testing.T) {
	t.Parallel()

	a := provider.NewTalabatAdapter()
	payload := decodePayload(t, `{
		"order_id": "TLB-7",
		"customer": {"name": "Karim"},
		"items": [{"name": "Manakish", "price": 4}],
		"total": 4
	}`)

	o, err := a.ExtractOrder(payload)
	require.NoError(t, err)
	assert.Equal(t, "TLB-7", o.ExternalID)
	assert.Equal(t, "Karim", o.Customer.Name)
	assert.Equal(t, float64(4), o.Totals.Total)
}

func TestTalabatAdapter_ValidatePayload(t *testing.T) {
	t.Parallel()

	a := provider.NewTalabatAdapter()

	assert.True(t, a.ValidatePayload(decodePayload(t,
		`{"token":"1","customer":{"firstName":"L"},"products":[{"name":"x"}]}`)))
	assert.False(t, a.ValidatePayload(decodePayload(t,
		`{"customer":{"firstName":"L"},"products":[{"name":"x"}]}`)))
	assert.False(t, a.ValidatePayload(decodePayload(t,
		`{"token":"1","customer":{"firstName":"L"},"products":[]}`)))
	assert.False(t, a.ValidatePayload(decodePayload(t,
		`{"token":"1","products":[{"name":"x"}]}`)))
	assert.False(t, a.ValidatePayload(nil))
}

func TestTalabatAdapter_MapStatus(t *testing.T) {
	t.Parallel()

	a := provider.NewTalabatAdapter()

	assert.Equal(t, order.StatusPending, a.MapStatus("order_received"))
	assert.Equal(t, order.StatusConfirmed, a.MapStatus("order_accepted"))
	assert.Equal(t, order.StatusOutForDelivery, a.MapStatus("order_picked_up"))
	assert.Equal(t, order.StatusPending, a.MapStatus("unmapped"))
}

func TestTalabatAdapter_FormatAck(t *testing.T) {
	t.Parallel()

	a := provider.NewTalabatAdapter()

	ack, ok := a.FormatAck(true, "backend-9", nil).(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, ack["success"])
	assert.Equal(t, "backend-9", ack["orderId"])

	nack, ok := a.FormatAck(false, "", assert.AnError).(map[string]any)
	require.True(t, ok)
	assert.Equal(t, false, nack["success"])
	assert.NotContains(t, nack["error"], assert.AnError.Error())
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	r := provider.NewRegistry(provider.NewCareemAdapter(), provider.NewTalabatAdapter())

	a, err := r.Get("careem")
	require.NoError(t, err)
	assert.Equal(t, "careem", a.Name())

	a, err = r.Get("TALABAT")
	require.NoError(t, err)
	assert.Equal(t, "talabat", a.Name())

	_, err = r.Get("deliveroo")
	require.ErrorIs(t, err, provider.ErrUnknownProvider)

	assert.ElementsMatch(t, []string{"careem", "talabat"}, r.Names())
}
