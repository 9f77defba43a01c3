package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"OrderPipeline/internal/domain/models"
	"OrderPipeline/internal/domain/models/transport"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

type RiskHandler struct {
	log         *slog.Logger
	riskService riskService
	prices      priceSource
	validate    *validator.Validate
}

type riskService interface {
	Validate(ctx context.Context, req models.RiskValidationRequest) (models.RiskValidationResult, error)
	Limits(userId string) models.RiskLimits
}

type priceSource interface {
	GetCurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

func NewRiskHandler(log *slog.Logger, riskService riskService, prices priceSource, validate *validator.Validate) *RiskHandler {
	return &RiskHandler{
		log:         log,
		riskService: riskService,
		prices:      prices,
		validate:    validate,
	}
}

func (h *RiskHandler) Routes() chi.Router {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)

	router.Post("/validate", h.PostValidate)
	router.Get("/limits/{userId}", h.GetLimits)

	return router
}

func (h *RiskHandler) PostValidate(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var req transport.ValidateRiskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Error("Failed to decode request", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(transport.ErrorResponse{
			Error: "Invalid request format",
		})
		return
	}

	if err := h.validate.Struct(req); err != nil {
		h.log.Error("Validation failed", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(transport.ErrorResponse{
			Error: "Invalid validation parameters",
		})
		return
	}

	currentPrice := decimal.Zero
	if req.CurrentPrice != nil {
		currentPrice = *req.CurrentPrice
	} else {
		price, err := h.prices.GetCurrentPrice(r.Context(), req.Symbol)
		if err != nil {
			h.log.Error("Failed to get current price", "error", err, "symbol", req.Symbol)
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(transport.ErrorResponse{
				Error: "Market price unavailable",
			})
			return
		}
		currentPrice = price
	}

	result, err := h.riskService.Validate(r.Context(), models.RiskValidationRequest{
		OrderId:      req.OrderId,
		UserId:       req.UserId,
		Symbol:       req.Symbol,
		Side:         req.Side,
		OrderType:    req.OrderType,
		Quantity:     req.Quantity,
		Price:        req.Price,
		CurrentPrice: currentPrice,
	})
	if err != nil {
		h.log.Error("Risk validation failed", "error", err, "orderId", req.OrderId)
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(transport.ErrorResponse{
			Error: "Failed to validate order",
		})
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(transport.ValidateRiskResponse{
		Approved:             result.Approved,
		Reason:               result.Reason,
		RequiredMargin:       result.RequiredMargin,
		AvailableMargin:      result.AvailableMargin,
		CurrentPositionValue: result.CurrentPositionValue,
		NewPositionValue:     result.NewPositionValue,
		FailedChecks:         result.FailedChecks,
		ValidatedAt:          result.ValidatedAt,
	})
}

func (h *RiskHandler) GetLimits(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	userId := chi.URLParam(r, "userId")
	if userId == "" {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(transport.ErrorResponse{
			Error: "userId is required",
		})
		return
	}

	limits := h.riskService.Limits(userId)

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(transport.RiskLimitsResponse{
		UserId:             limits.UserId,
		MaxPositionSize:    limits.MaxPositionSize,
		MaxDailyLoss:       limits.MaxDailyLoss,
		MaxLeverage:        limits.MaxLeverage,
		MaxConcentration:   limits.MaxConcentration,
		MaxOrdersPerMinute: limits.MaxOrdersPerMinute,
		InitialMargin:      limits.InitialMargin,
	})
}
