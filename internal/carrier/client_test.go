package carrier

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedRequest struct {
	Path    string
	Token   string
	ShopID  string
	Payload map[string]any
}

func newTestClient(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*Client, *[]capturedRequest) {
	t.Helper()

	var captured []capturedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var payload map[string]any
		require.NoError(t, json.Unmarshal(body, &payload))
		captured = append(captured, capturedRequest{
			Path:    r.URL.Path,
			Token:   r.Header.Get("Token"),
			ShopID:  r.Header.Get("ShopId"),
			Payload: payload,
		})
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	client, err := NewClient(Config{
		BaseURL: server.URL,
		Token:   "token-123",
		ShopID:  "198093",
		Origin: Origin{
			Name:       "Storefront",
			Phone:      "0394811866",
			Address:    "2 Lai Xa",
			DistrictID: 1805,
			WardCode:   "1B2311",
		},
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	return client, &captured
}

func writeEnvelope(t *testing.T, w http.ResponseWriter, status int, code int, data any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(t, json.NewEncoder(w).Encode(map[string]any{
		"code":    code,
		"message": "Success",
		"data":    data,
	}))
}

func TestNewClientRequiresCredentials(t *testing.T) {
	t.Parallel()

	_, err := NewClient(Config{Token: "token"}, nil)
	assert.ErrorIs(t, err, ErrMissingCredentials)
}

func TestQuoteFee(t *testing.T) {
	t.Parallel()

	client, captured := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(t, w, http.StatusOK, 200, map[string]any{"total": 36300, "service_fee": 36300})
	})

	fee, err := client.QuoteFee(t.Context(), FeeRequest{
		Destination: Destination{DistrictID: 1442, WardCode: "20109"},
		Weight:      1100,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(36300), fee)

	require.Len(t, *captured, 1)
	req := (*captured)[0]
	assert.Equal(t, "/shipping-order/fee", req.Path)
	assert.Equal(t, "token-123", req.Token)
	assert.Equal(t, "198093", req.ShopID)
	assert.EqualValues(t, 2, req.Payload["service_type_id"])
	assert.EqualValues(t, 1805, req.Payload["from_district_id"])
	assert.Equal(t, "1B2311", req.Payload["from_ward_code"])
	assert.EqualValues(t, 1442, req.Payload["to_district_id"])
	assert.Equal(t, "20109", req.Payload["to_ward_code"])
	assert.EqualValues(t, 1100, req.Payload["weight"])
	assert.EqualValues(t, 20, req.Payload["length"])
	assert.EqualValues(t, 10, req.Payload["width"])
	assert.EqualValues(t, 10, req.Payload["height"])
	assert.EqualValues(t, 0, req.Payload["insurance_value"])
}

func TestQuoteFeeReturnsAPIErrorOnFailureEnvelope(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(t, w, http.StatusBadRequest, 400, nil)
	})

	_, err := client.QuoteFee(t.Context(), FeeRequest{Destination: Destination{DistrictID: 1, WardCode: "1"}, Weight: 500})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "fee", apiErr.Operation)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, 400, apiErr.Code)
}

func TestCreateShipmentCOD(t *testing.T) {
	t.Parallel()

	client, captured := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(t, w, http.StatusOK, 200, map[string]any{"order_code": "LBK6RF", "total_fee": 33000})
	})

	shipment, err := client.CreateShipment(t.Context(), ShipmentRequest{
		ClientOrderCode: "order-1",
		Recipient: Recipient{
			Name:       "Nguyen Van A",
			Phone:      "0900000000",
			Address:    "1 Hang Bai",
			DistrictID: 1442,
			WardCode:   "20109",
		},
		Items:     []Item{{Name: "Phone case", Code: "PC-1", Quantity: 2, Price: 100, Weight: 300}},
		Weight:    600,
		CODAmount: 230,
	})
	require.NoError(t, err)
	assert.Equal(t, "LBK6RF", shipment.OrderCode)
	assert.Equal(t, int64(33000), shipment.TotalFee)

	require.Len(t, *captured, 1)
	payload := (*captured)[0].Payload
	assert.Equal(t, "/shipping-order/create", (*captured)[0].Path)
	assert.EqualValues(t, 2, payload["payment_type_id"])
	assert.Equal(t, "KHONGCHOXEMHANG", payload["required_note"])
	assert.EqualValues(t, 230, payload["cod_amount"])
	assert.Equal(t, "order-1", payload["client_order_code"])
	assert.Equal(t, "Nguyen Van A", payload["to_name"])
	assert.EqualValues(t, 1442, payload["to_district_id"])
	items, ok := payload["items"].([]any)
	require.True(t, ok)
	require.Len(t, items, 1)
	item := items[0].(map[string]any)
	assert.Equal(t, "Phone case", item["name"])
	assert.EqualValues(t, 2, item["quantity"])
	assert.EqualValues(t, 300, item["weight"])
}

func TestCreateShipmentPrepaidUsesShopPaysPaymentType(t *testing.T) {
	t.Parallel()

	client, captured := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(t, w, http.StatusOK, 200, map[string]any{"order_code": "LBK6RG"})
	})

	_, err := client.CreateShipment(t.Context(), ShipmentRequest{
		ClientOrderCode: "order-2",
		Recipient:       Recipient{Name: "B", Phone: "1", Address: "x", DistrictID: 1, WardCode: "1"},
		Weight:          500,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, (*captured)[0].Payload["payment_type_id"])
	assert.EqualValues(t, 0, (*captured)[0].Payload["cod_amount"])
}

func TestCreateShipmentRequiresOrderCode(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(t, w, http.StatusOK, 200, map[string]any{})
	})

	_, err := client.CreateShipment(t.Context(), ShipmentRequest{ClientOrderCode: "order-3"})
	assert.True(t, errors.Is(err, ErrMissingOrderCode))
}

func TestShipmentDetail(t *testing.T) {
	t.Parallel()

	client, captured := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(t, w, http.StatusOK, 200, map[string]any{
			"order_code":  "LBK6RF",
			"status":      "delivering",
			"status_name": "Đang giao hàng",
		})
	})

	detail, err := client.ShipmentDetail(t.Context(), "LBK6RF")
	require.NoError(t, err)
	assert.Equal(t, "delivering", detail.Status)
	assert.Equal(t, "Đang giao hàng", detail.StatusName)
	assert.Equal(t, "/shipping-order/detail", (*captured)[0].Path)
	assert.Equal(t, "LBK6RF", (*captured)[0].Payload["order_code"])
}

func TestCancelShipment(t *testing.T) {
	t.Parallel()

	t.Run("accepted", func(t *testing.T) {
		t.Parallel()

		client, captured := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeEnvelope(t, w, http.StatusOK, 200, []map[string]any{{"order_code": "LBK6RF", "result": true}})
		})

		require.NoError(t, client.CancelShipment(t.Context(), "LBK6RF"))
		assert.Equal(t, "/switch-status/cancel", (*captured)[0].Path)
		assert.Equal(t, []any{"LBK6RF"}, (*captured)[0].Payload["order_codes"])
	})

	t.Run("refused", func(t *testing.T) {
		t.Parallel()

		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeEnvelope(t, w, http.StatusOK, 200, []map[string]any{{"order_code": "LBK6RF", "result": false, "message": "already picked"}})
		})

		var apiErr *APIError
		require.ErrorAs(t, client.CancelShipment(t.Context(), "LBK6RF"), &apiErr)
		assert.Equal(t, "already picked", apiErr.Message)
	})
}
