package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"separation-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		status    int
		body      string
		kind      Kind
		message   string
		retryable bool
	}{
		{404, `{"detail":"Pedido não encontrado"}`, KindNotFound, "Pedido não encontrado", false},
		{401, `{"detail":"Não autenticado"}`, KindUnauthorized, "Não autenticado", false},
		{403, ``, KindForbidden, "", false},
		{400, `{"detail":"Pedido já foi finalizado"}`, KindValidation, "Pedido já foi finalizado", false},
		{422, `{"message":"campo inválido"}`, KindValidation, "campo inválido", false},
		{500, `{"error":"boom"}`, KindServer, "boom", true},
		{503, `upstream down`, KindServer, "upstream down", true},
		{418, ``, KindValidation, "", false},
	}

	for _, tt := range tests {
		e := classify(tt.status, []byte(tt.body))
		assert.Equal(t, tt.kind, e.Kind, "status %d", tt.status)
		assert.Equal(t, tt.message, e.Message, "status %d", tt.status)
		assert.Equal(t, tt.retryable, e.Retryable(), "status %d", tt.status)
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(&Error{Kind: KindNetwork}))
	assert.True(t, IsRetryable(&Error{Kind: KindServer}))
	assert.False(t, IsRetryable(&Error{Kind: KindValidation}))
	assert.False(t, IsRetryable(&Error{Kind: KindUnauthorized}))
	// Plain transport errors count as network failures.
	assert.True(t, IsRetryable(errors.New("connection refused")))
	assert.False(t, IsRetryable(nil))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindForbidden, KindOf(&Error{Kind: KindForbidden}))
	assert.Equal(t, KindNetwork, KindOf(errors.New("dial tcp: refused")))
}

func TestOrderDetailSendsBearerToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.Equal(t, "/api/orders/7/detail", r.URL.Path)
		json.NewEncoder(w).Encode(models.OrderDetail{
			Order: models.Order{ID: 7, OrderNumber: "PED-0007"},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "secret")
	detail, err := client.OrderDetail(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "PED-0007", detail.OrderNumber)
}

func TestErrorResponsesAreClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"detail":"Pedido não encontrado"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "secret")
	_, err := client.OrderDetail(context.Background(), 999)
	require.Error(t, err)

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, KindNotFound, apiErr.Kind)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "Pedido não encontrado", apiErr.Message)
}

func TestTransportFailureIsNetworkKind(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listening anymore

	client := NewClient(srv.URL, "secret")
	_, err := client.OrderDetail(context.Background(), 1)
	require.Error(t, err)
	assert.Equal(t, KindNetwork, KindOf(err))
	assert.True(t, IsRetryable(err))
}

func TestActiveUsersUnwrapsEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/orders/7/active-users", r.URL.Path)
		w.Write([]byte(`{"order_id":7,"active_users":[{"user_id":3,"user_name":"Maria"}]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "secret")
	users, err := client.ActiveUsers(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "Maria", users[0].UserName)
}
