package bracket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlaceBracket(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(Result{
			EntryOrderID: 1001, TakeProfitOrderID: 1002, StopLossOrderID: 1003,
			Symbol: "MNQ", Quantity: 2, Side: "buy",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	res, err := c.PlaceBracket(context.Background(), PlaceParams{
		Symbol: "MNQ", Entry: 18000, TakeProfit: 18010, StopLoss: 17995, Quantity: 2,
		CustomTag: "cli",
	})
	require.NoError(t, err)

	assert.Equal(t, "/place-oco", gotPath)
	assert.Equal(t, "MNQ", gotBody["symbol"])
	assert.Equal(t, 18000.0, gotBody["op"])
	assert.Equal(t, 18010.0, gotBody["tp"])
	assert.Equal(t, 17995.0, gotBody["sl"])
	assert.Equal(t, "cli", gotBody["customTag"])
	assert.Equal(t, int64(1001), res.EntryOrderID)
	assert.Equal(t, int64(1003), res.StopLossOrderID)
}

func TestPlaceBracketStopEntryPath(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewEncoder(w).Encode(Result{EntryOrderID: 1})
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).PlaceBracket(context.Background(), PlaceParams{
		Symbol: "MNQ", Entry: 18000, TakeProfit: 18010, StopLoss: 17995, StopEntry: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "/place-oco-stop", gotPath)
}

func TestPlaceBracketAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{
			"error": "unknown_symbol: no contract for symbol \"ZB\"",
			"kind":  "unknown_symbol",
		})
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).PlaceBracket(context.Background(), PlaceParams{Symbol: "ZB"})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "unknown_symbol", apiErr.Kind)
	assert.Contains(t, apiErr.Error(), "unknown_symbol")
}

func TestGetBalance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/balance", r.URL.Path)
		json.NewEncoder(w).Encode(Balance{AccountID: 1001, Balance: 50000, MaximumLoss: 2000})
	}))
	defer srv.Close()

	b, err := NewClient(srv.URL).GetBalance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1001), b.AccountID)
	assert.Equal(t, 50000.0, b.Balance)
}

func TestListContracts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"contracts": []Contract{
				{Symbol: "MNQ", ContractID: "CON.F.US.MNQ.U25", TickSize: 0.25, TickValue: 0.5},
			},
		})
	}))
	defer srv.Close()

	contracts, err := NewClient(srv.URL).ListContracts(context.Background())
	require.NoError(t, err)
	require.Len(t, contracts, 1)
	assert.Equal(t, "MNQ", contracts[0].Symbol)
}

func TestHistoryLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		json.NewEncoder(w).Encode(map[string]any{"placements": []Placement{{EntryOrderID: 1}}})
	}))
	defer srv.Close()

	placements, err := NewClient(srv.URL).History(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, placements, 1)
}

func TestErrorWithoutJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).GetBalance(context.Background())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
}
