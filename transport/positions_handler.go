package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"OrderPipeline/internal/domain/models"
	"OrderPipeline/internal/domain/models/transport"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type PositionHandler struct {
	log    *slog.Logger
	ledger positionSource
	prices priceSource
}

type positionSource interface {
	UserPositions(userId string) []models.Position
}

func NewPositionHandler(log *slog.Logger, ledger positionSource, prices priceSource) *PositionHandler {
	return &PositionHandler{
		log:    log,
		ledger: ledger,
		prices: prices,
	}
}

func (h *PositionHandler) Routes() chi.Router {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)

	router.Get("/", h.GetUserPositions)

	return router
}

func (h *PositionHandler) GetUserPositions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	userId := r.URL.Query().Get("userId")
	if userId == "" {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(transport.ErrorResponse{
			Error: "userId query parameter is required",
		})
		return
	}

	positions := h.ledger.UserPositions(userId)

	resp := transport.ListPositionsResponse{Positions: make([]transport.PositionView, 0, len(positions))}
	for _, p := range positions {
		// Marks are refreshed opportunistically; a stale price keeps the
		// last marked value.
		if price, err := h.prices.GetCurrentPrice(r.Context(), p.Symbol); err == nil {
			p = p.WithMark(price)
		}
		resp.Positions = append(resp.Positions, transport.PositionView{
			UserId:        p.UserId,
			Symbol:        p.Symbol,
			Quantity:      p.Quantity,
			AvgPrice:      p.AvgPrice,
			CurrentPrice:  p.CurrentPrice,
			UnrealizedPnl: p.UnrealizedPnl,
			RealizedPnl:   p.RealizedPnl,
			UpdatedAt:     p.UpdatedAt,
		})
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}
