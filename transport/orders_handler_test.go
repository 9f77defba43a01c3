package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"OrderPipeline/internal/domain/models"
	"OrderPipeline/internal/domain/models/transport"
	"OrderPipeline/internal/services/intake"
	"OrderPipeline/internal/storage/postgres"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubIntake struct {
	resp transport.OrderResponse
	err  error
	key  string
}

func (s *stubIntake) PlaceOrder(_ context.Context, _ transport.PlaceOrderRequest, idempotencyKey string) (transport.OrderResponse, error) {
	s.key = idempotencyKey
	return s.resp, s.err
}

type stubOrders struct {
	order     models.Order
	status    models.OrderStatus
	err       error
	cancelErr error
}

func (s *stubOrders) Cancel(context.Context, uuid.UUID) (models.OrderStatus, error) {
	return s.status, s.cancelErr
}

func (s *stubOrders) GetOrder(context.Context, uuid.UUID) (models.Order, error) {
	return s.order, s.err
}

type stubLister struct {
	orders []models.Order
	err    error
}

func (s *stubLister) GetUserOrders(context.Context, string, *models.OrderStatus) ([]models.Order, error) {
	return s.orders, s.err
}

func newOrderServer(intakeSvc intakeService, orderSvc orderService, lister orderLister) *httptest.Server {
	h := NewOrderHandler(discardLogger(), intakeSvc, orderSvc, lister, validator.New())
	return httptest.NewServer(h.Routes())
}

func placeBody(t *testing.T) *bytes.Buffer {
	t.Helper()
	body, err := json.Marshal(transport.PlaceOrderRequest{
		UserId:    "u1",
		Symbol:    "BTC/USD",
		Side:      models.Buy,
		OrderType: models.Market,
		Quantity:  decimal.NewFromInt(2),
	})
	if err != nil {
		t.Fatal(err)
	}
	return bytes.NewBuffer(body)
}

func TestPostPlaceOrderSuccess(t *testing.T) {
	want := transport.OrderResponse{
		OrderId:   uuid.New(),
		Status:    models.StatusAccepted,
		Symbol:    "BTC/USD",
		Side:      models.Buy,
		OrderType: models.Market,
		Quantity:  decimal.NewFromInt(2),
		CreatedAt: time.Now().UTC(),
	}
	svc := &stubIntake{resp: want}
	srv := newOrderServer(svc, &stubOrders{}, &stubLister{})
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/", placeBody(t))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(idempotencyHeader, "key-1")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if svc.key != "key-1" {
		t.Errorf("idempotency key passed = %q", svc.key)
	}

	var got transport.OrderResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.OrderId != want.OrderId {
		t.Errorf("order id = %s, want %s", got.OrderId, want.OrderId)
	}
}

func TestPostPlaceOrderErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"missing key", intake.ErrMissingIdempotencyKey, http.StatusBadRequest},
		{"validation", &intake.ValidationError{Fields: map[string]string{"symbol": "bad"}}, http.StatusBadRequest},
		{"downstream", intake.ErrDownstreamUnavailable, http.StatusServiceUnavailable},
		{"internal", context.DeadlineExceeded, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newOrderServer(&stubIntake{err: tt.err}, &stubOrders{}, &stubLister{})
			defer srv.Close()

			req, _ := http.NewRequest(http.MethodPost, srv.URL+"/", placeBody(t))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set(idempotencyHeader, "key-1")

			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
		})
	}
}

func TestPostPlaceOrderValidationFieldsReturned(t *testing.T) {
	svcErr := &intake.ValidationError{Fields: map[string]string{"symbol": "symbol must be in format BASE/QUOTE (e.g. BTC/USD)"}}
	srv := newOrderServer(&stubIntake{err: svcErr}, &stubOrders{}, &stubLister{})
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/", placeBody(t))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(idempotencyHeader, "key-1")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var body transport.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Fields["symbol"] == "" {
		t.Errorf("field errors not propagated: %+v", body)
	}
}

func TestPostCancelOrderNotFound(t *testing.T) {
	srv := newOrderServer(&stubIntake{}, &stubOrders{cancelErr: postgres.ErrOrderNotExists}, &stubLister{})
	defer srv.Close()

	body, _ := json.Marshal(transport.CancelOrderRequest{OrderId: uuid.New()})
	resp, err := http.Post(srv.URL+"/cancel", "application/json", bytes.NewBuffer(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestPostCancelOrderSuccess(t *testing.T) {
	srv := newOrderServer(&stubIntake{}, &stubOrders{status: models.StatusCancelled}, &stubLister{})
	defer srv.Close()

	id := uuid.New()
	body, _ := json.Marshal(transport.CancelOrderRequest{OrderId: id})
	resp, err := http.Post(srv.URL+"/cancel", "application/json", bytes.NewBuffer(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var got transport.CancelOrderResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Status != models.StatusCancelled || got.OrderId != id {
		t.Errorf("got %+v", got)
	}
}

func TestGetOrderInvalidId(t *testing.T) {
	srv := newOrderServer(&stubIntake{}, &stubOrders{}, &stubLister{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/not-a-uuid")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestGetOrderNotFound(t *testing.T) {
	srv := newOrderServer(&stubIntake{}, &stubOrders{err: postgres.ErrOrderNotExists}, &stubLister{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/" + uuid.NewString())
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestGetUserOrdersRequiresUserId(t *testing.T) {
	srv := newOrderServer(&stubIntake{}, &stubOrders{}, &stubLister{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestGetUserOrdersReturnsList(t *testing.T) {
	orders := []models.Order{
		{Id: uuid.New(), UserId: "u1", Symbol: "BTC/USD", Status: models.StatusFilled},
		{Id: uuid.New(), UserId: "u1", Symbol: "ETH/USD", Status: models.StatusAccepted},
	}
	srv := newOrderServer(&stubIntake{}, &stubOrders{}, &stubLister{orders: orders})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/?userId=u1")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var got transport.ListOrdersResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if len(got.Orders) != 2 {
		t.Errorf("got %d orders, want 2", len(got.Orders))
	}
}
