package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"OrderPipeline/internal/domain/models"
	"OrderPipeline/internal/domain/models/transport"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type stubRiskService struct {
	result models.RiskValidationResult
	err    error
	limits models.RiskLimits
	gotReq models.RiskValidationRequest
}

func (s *stubRiskService) Validate(_ context.Context, req models.RiskValidationRequest) (models.RiskValidationResult, error) {
	s.gotReq = req
	return s.result, s.err
}

func (s *stubRiskService) Limits(string) models.RiskLimits { return s.limits }

type stubPriceSource struct {
	price decimal.Decimal
	err   error
}

func (s *stubPriceSource) GetCurrentPrice(context.Context, string) (decimal.Decimal, error) {
	return s.price, s.err
}

func newRiskServer(svc riskService, prices priceSource) *httptest.Server {
	h := NewRiskHandler(discardLogger(), svc, prices, validator.New())
	return httptest.NewServer(h.Routes())
}

func validateBody(t *testing.T, currentPrice *decimal.Decimal) *bytes.Buffer {
	t.Helper()
	body, err := json.Marshal(transport.ValidateRiskRequest{
		OrderId:      uuid.New(),
		UserId:       "u1",
		Symbol:       "BTC/USD",
		Side:         models.Buy,
		OrderType:    models.Market,
		Quantity:     decimal.NewFromInt(2),
		CurrentPrice: currentPrice,
	})
	if err != nil {
		t.Fatal(err)
	}
	return bytes.NewBuffer(body)
}

func TestPostValidateUsesRequestPrice(t *testing.T) {
	svc := &stubRiskService{result: models.RiskValidationResult{Approved: true}}
	// The price source would fail, so passing a price must avoid the lookup.
	srv := newRiskServer(svc, &stubPriceSource{err: errors.New("down")})
	defer srv.Close()

	price := decimal.NewFromInt(123)
	resp, err := http.Post(srv.URL+"/validate", "application/json", validateBody(t, &price))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if !svc.gotReq.CurrentPrice.Equal(price) {
		t.Errorf("current price = %s, want 123", svc.gotReq.CurrentPrice)
	}
}

func TestPostValidateFallsBackToPriceLookup(t *testing.T) {
	svc := &stubRiskService{result: models.RiskValidationResult{Approved: true}}
	srv := newRiskServer(svc, &stubPriceSource{price: decimal.NewFromInt(456)})
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/validate", "application/json", validateBody(t, nil))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if !svc.gotReq.CurrentPrice.Equal(decimal.NewFromInt(456)) {
		t.Errorf("current price = %s, want 456", svc.gotReq.CurrentPrice)
	}
}

func TestPostValidatePriceUnavailable(t *testing.T) {
	srv := newRiskServer(&stubRiskService{}, &stubPriceSource{err: errors.New("cache miss")})
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/validate", "application/json", validateBody(t, nil))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}

func TestGetLimits(t *testing.T) {
	svc := &stubRiskService{limits: models.RiskLimits{
		UserId:             "u1",
		MaxPositionSize:    decimal.NewFromInt(1_000_000),
		MaxOrdersPerMinute: 100,
	}}
	srv := newRiskServer(svc, &stubPriceSource{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/limits/u1")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var got transport.RiskLimitsResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.UserId != "u1" || got.MaxOrdersPerMinute != 100 {
		t.Errorf("got %+v", got)
	}
}
