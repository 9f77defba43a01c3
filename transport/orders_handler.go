package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"OrderPipeline/internal/coordinator"
	"OrderPipeline/internal/domain/models"
	"OrderPipeline/internal/domain/models/transport"
	"OrderPipeline/internal/services/intake"
	"OrderPipeline/internal/storage/postgres"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const idempotencyHeader = "X-Idempotency-Key"

type OrderHandler struct {
	log           *slog.Logger
	intakeService intakeService
	orderService  orderService
	orders        orderLister
	validate      *validator.Validate
}

type intakeService interface {
	PlaceOrder(ctx context.Context, req transport.PlaceOrderRequest, idempotencyKey string) (transport.OrderResponse, error)
}

type orderService interface {
	Cancel(ctx context.Context, orderId uuid.UUID) (models.OrderStatus, error)
	GetOrder(ctx context.Context, orderId uuid.UUID) (models.Order, error)
}

type orderLister interface {
	GetUserOrders(ctx context.Context, userId string, status *models.OrderStatus) ([]models.Order, error)
}

func NewOrderHandler(log *slog.Logger, intakeService intakeService, orderService orderService, orders orderLister, validate *validator.Validate) *OrderHandler {
	return &OrderHandler{
		log:           log,
		intakeService: intakeService,
		orderService:  orderService,
		orders:        orders,
		validate:      validate,
	}
}

func (h *OrderHandler) Routes() chi.Router {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)

	router.Post("/", h.PostPlaceOrder)
	router.Post("/cancel", h.PostCancelOrder)
	router.Get("/{id}", h.GetOrder)
	router.Get("/", h.GetUserOrders)

	return router
}

func (h *OrderHandler) PostPlaceOrder(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var req transport.PlaceOrderRequest
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
			Error: "Invalid order parameters",
		})
		return
	}

	resp, err := h.intakeService.PlaceOrder(r.Context(), req, r.Header.Get(idempotencyHeader))
	if err != nil {
		var validationErr *intake.ValidationError

		switch {
		case errors.Is(err, intake.ErrMissingIdempotencyKey):
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(transport.ErrorResponse{
				Error: idempotencyHeader + " header is required",
			})
		case errors.As(err, &validationErr):
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(transport.ErrorResponse{
				Error:  "Invalid order parameters",
				Fields: validationErr.Fields,
			})
		case errors.Is(err, intake.ErrDownstreamUnavailable):
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(transport.ErrorResponse{
				Error: "Failed to process order. Please try again.",
			})
		default:
			h.log.Error("Failed to place order", "error", err, "userId", req.UserId)
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(transport.ErrorResponse{
				Error: "Failed to place order",
			})
		}
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}

func (h *OrderHandler) PostCancelOrder(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var req transport.CancelOrderRequest
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
			Error: "Order ID is required",
		})
		return
	}

	status, err := h.orderService.Cancel(r.Context(), req.OrderId)
	if err != nil {
		h.log.Error("Failed to cancel order", "error", err, "orderId", req.OrderId)

		if errors.Is(err, postgres.ErrOrderNotExists) {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(transport.ErrorResponse{
				Error: "Order not found",
			})
			return
		}
		if errors.Is(err, coordinator.ErrNotCancellable) {
			w.WriteHeader(http.StatusConflict)
			json.NewEncoder(w).Encode(transport.ErrorResponse{
				Error: "Order cannot be cancelled in its current state",
			})
			return
		}
		if errors.Is(err, coordinator.ErrInboxFull) {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(transport.ErrorResponse{
				Error: "Order is busy, try again",
			})
			return
		}

		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(transport.ErrorResponse{
			Error: "Failed to cancel order",
		})
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(transport.CancelOrderResponse{
		OrderId: req.OrderId,
		Status:  status,
	})
}

func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(transport.ErrorResponse{
			Error: "Invalid order id",
		})
		return
	}

	order, err := h.orderService.GetOrder(r.Context(), id)
	if err != nil {
		if errors.Is(err, postgres.ErrOrderNotExists) {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(transport.ErrorResponse{
				Error: "Order not found",
			})
			return
		}
		h.log.Error("Failed to get order", "error", err, "orderId", id)
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(transport.ErrorResponse{
			Error: "Failed to get order",
		})
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(orderDetails(order))
}

func (h *OrderHandler) GetUserOrders(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	userId := r.URL.Query().Get("userId")
	if userId == "" {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(transport.ErrorResponse{
			Error: "userId query parameter is required",
		})
		return
	}

	var status *models.OrderStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		s := models.OrderStatus(raw)
		status = &s
	}

	orders, err := h.orders.GetUserOrders(r.Context(), userId, status)
	if err != nil {
		h.log.Error("Failed to get user orders", "error", err, "userId", userId)
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(transport.ErrorResponse{
			Error: "Failed to get orders",
		})
		return
	}

	resp := transport.ListOrdersResponse{Orders: make([]transport.OrderDetails, 0, len(orders))}
	for _, order := range orders {
		resp.Orders = append(resp.Orders, orderDetails(order))
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}

func orderDetails(order models.Order) transport.OrderDetails {
	return transport.OrderDetails{
		OrderId:         order.Id,
		UserId:          order.UserId,
		Symbol:          order.Symbol,
		Side:            order.Side,
		OrderType:       order.Type,
		Quantity:        order.Quantity,
		Price:           order.Price,
		Status:          order.Status,
		FilledQuantity:  order.FilledQuantity,
		FillPrice:       order.FillPrice,
		RejectionReason: order.RejectionReason,
		CreatedAt:       order.CreatedAt,
		UpdatedAt:       order.UpdatedAt,
	}
}
