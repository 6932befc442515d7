package razorpay

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	pkgerrors "github.com/vedant2606-dev/bg-removal-service/pkg/errors"
)

func TestClient_CreateOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/orders", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "key_id", user)
		assert.Equal(t, "key_secret", pass)

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, float64(1000), body["amount"])
		assert.Equal(t, "INR", body["currency"])
		assert.Equal(t, "tx-1", body["receipt"])

		json.NewEncoder(w).Encode(Order{
			ID:       "order_1",
			Amount:   1000,
			Currency: "INR",
			Receipt:  "tx-1",
			Status:   "created",
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "key_id", "key_secret")
	order, err := client.CreateOrder(context.Background(), 1000, "INR", "tx-1")
	require.NoError(t, err)
	assert.Equal(t, "order_1", order.ID)
	assert.Equal(t, "tx-1", order.Receipt)
}

func TestClient_CreateOrder_GatewayError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(server.URL, "key_id", "key_secret")
	_, err := client.CreateOrder(context.Background(), 1000, "INR", "tx-1")
	assert.ErrorIs(t, err, pkgerrors.ErrUnavailable)
}

func TestClient_FetchOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/orders/order_1":
			json.NewEncoder(w).Encode(Order{ID: "order_1", Receipt: "tx-1", Status: "paid"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, "key_id", "key_secret")

	order, err := client.FetchOrder(context.Background(), "order_1")
	require.NoError(t, err)
	assert.Equal(t, "paid", order.Status)

	_, err = client.FetchOrder(context.Background(), "order_missing")
	assert.ErrorIs(t, err, pkgerrors.ErrTransactionNotFound)
}

func TestClient_VerifySignature(t *testing.T) {
	client := NewClient("http://unused", "key_id", "key_secret")

	mac := hmac.New(sha256.New, []byte("key_secret"))
	fmt.Fprintf(mac, "%s|%s", "order_1", "pay_1")
	valid := hex.EncodeToString(mac.Sum(nil))

	assert.NoError(t, client.VerifySignature("order_1", "pay_1", valid))
	assert.ErrorIs(t, client.VerifySignature("order_1", "pay_2", valid), pkgerrors.ErrInvalidSignature)
	assert.ErrorIs(t, client.VerifySignature("order_1", "pay_1", "deadbeef"), pkgerrors.ErrInvalidSignature)
}
