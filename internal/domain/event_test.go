package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderCreatedEvent_WireFormat(t *testing.T) {
	ev := OrderCreatedEvent{
		OrderID:     uuid.MustParse("7f1d0c4e-3a52-4f0e-9d6b-1c2a3b4c5d6e"),
		UserID:      uuid.MustParse("0b9e8d7c-6f5a-4b3c-8d2e-1f0a9b8c7d6e"),
		TotalAmount: decimal.RequireFromString("49.98"),
		CreatedAt:   time.Date(2025, 12, 21, 13, 23, 57, 0, time.UTC),
	}

	body, err := json.Marshal(ev)
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"orderId": "7f1d0c4e-3a52-4f0e-9d6b-1c2a3b4c5d6e",
		"userId": "0b9e8d7c-6f5a-4b3c-8d2e-1f0a9b8c7d6e",
		"totalAmount": 49.98,
		"createdAt": "2025-12-21T13:23:57Z"
	}`, string(body))
}

func TestNewOrderCreatedEvent(t *testing.T) {
	order := &Order{
		ID:          uuid.New(),
		UserID:      uuid.New(),
		TotalAmount: decimal.RequireFromString("10.00"),
		CreatedAt:   time.Now().UTC(),
	}

	ev := NewOrderCreatedEvent(order)

	assert.Equal(t, order.ID, ev.OrderID)
	assert.Equal(t, order.UserID, ev.UserID)
	assert.True(t, order.TotalAmount.Equal(ev.TotalAmount))
	assert.Equal(t, order.CreatedAt, ev.CreatedAt)
}

func TestDecodeOrderCreatedEvent(t *testing.T) {
	valid := `{"orderId":"7f1d0c4e-3a52-4f0e-9d6b-1c2a3b4c5d6e","userId":"0b9e8d7c-6f5a-4b3c-8d2e-1f0a9b8c7d6e","totalAmount":49.98,"createdAt":"2025-12-21T13:23:57Z"}`

	ev, err := DecodeOrderCreatedEvent([]byte(valid))
	require.NoError(t, err)
	assert.Equal(t, "49.98", ev.TotalAmount.String())

	// quoted amounts from older producers still decode
	_, err = DecodeOrderCreatedEvent([]byte(`{"orderId":"7f1d0c4e-3a52-4f0e-9d6b-1c2a3b4c5d6e","userId":"0b9e8d7c-6f5a-4b3c-8d2e-1f0a9b8c7d6e","totalAmount":"49.98","createdAt":"2025-12-21T13:23:57Z"}`))
	require.NoError(t, err)
}

func TestDecodeOrderCreatedEvent_Malformed(t *testing.T) {
	bodies := map[string]string{
		"not json":       `{{{`,
		"null":           `null`,
		"empty object":   `{}`,
		"bad uuid":       `{"orderId":"nope","userId":"0b9e8d7c-6f5a-4b3c-8d2e-1f0a9b8c7d6e","totalAmount":1,"createdAt":"2025-12-21T13:23:57Z"}`,
		"missing user":   `{"orderId":"7f1d0c4e-3a52-4f0e-9d6b-1c2a3b4c5d6e","totalAmount":1,"createdAt":"2025-12-21T13:23:57Z"}`,
		"negative total": `{"orderId":"7f1d0c4e-3a52-4f0e-9d6b-1c2a3b4c5d6e","userId":"0b9e8d7c-6f5a-4b3c-8d2e-1f0a9b8c7d6e","totalAmount":-1,"createdAt":"2025-12-21T13:23:57Z"}`,
		"missing time":   `{"orderId":"7f1d0c4e-3a52-4f0e-9d6b-1c2a3b4c5d6e","userId":"0b9e8d7c-6f5a-4b3c-8d2e-1f0a9b8c7d6e","totalAmount":1}`,
	}

	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeOrderCreatedEvent([]byte(body))
			require.Error(t, err)
			assert.Equal(t, KindDecode, KindOf(err))
		})
	}
}
