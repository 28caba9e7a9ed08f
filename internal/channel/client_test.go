package channel

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClientOpenSession(t *testing.T) {
	var gotDebits []BalanceChange
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/sessions", r.URL.Path)

		var req struct {
			Debits []BalanceChange `json:"debits"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotDebits = req.Debits

		json.NewEncoder(w).Encode(map[string]string{"session_id": "sess-42"})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	sessionID, err := client.OpenSession(context.Background(), []BalanceChange{{Address: "0xA", Amount: 100}})
	require.NoError(t, err)
	require.Equal(t, "sess-42", sessionID)
	require.Equal(t, []BalanceChange{{Address: "0xA", Amount: 100}}, gotDebits)
}

func TestClientOpenSessionRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "insufficient balance", http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	_, err := client.OpenSession(context.Background(), nil)
	require.Error(t, err)

	var sessionErr *SessionError
	require.ErrorAs(t, err, &sessionErr)
	require.Equal(t, "openSession", sessionErr.Op)
}

func TestClientOpenSessionEmptyID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	_, err := client.OpenSession(context.Background(), nil)

	var sessionErr *SessionError
	require.ErrorAs(t, err, &sessionErr)
}

func TestClientCollectSignatures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/sessions/sess-1/signatures", r.URL.Path)

		var req struct {
			TimeoutMs int64 `json:"timeout_ms"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, int64(30000), req.TimeoutMs)

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	require.NoError(t, client.CollectSignatures(context.Background(), "sess-1", 30*time.Second))
}

func TestClientCollectSignaturesTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "grace period elapsed", http.StatusRequestTimeout)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	err := client.CollectSignatures(context.Background(), "sess-1", time.Second)

	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	require.Equal(t, "sess-1", timeoutErr.SessionID)
}

func TestClientFinalizeSettlement(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/sessions/sess-1/settlement", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	err := client.FinalizeSettlement(context.Background(), "sess-1", []BalanceChange{{Address: "0xA", Amount: 200}})
	require.NoError(t, err)
}

func TestClientFinalizeSettlementRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "signature mismatch", http.StatusConflict)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	err := client.FinalizeSettlement(context.Background(), "sess-1", nil)

	var settlementErr *SettlementError
	require.ErrorAs(t, err, &settlementErr)
}

func TestClientEndSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		require.Equal(t, "/sessions/sess-1", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	require.NoError(t, client.EndSession(context.Background(), "sess-1"))
}

func TestClientSendsHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]string{"session_id": "sess-1"})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	client.SetHeader("Authorization", "Bearer token")
	_, err := client.OpenSession(context.Background(), nil)
	require.NoError(t, err)
}
