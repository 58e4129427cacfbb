package routes

import (
	"context"
	"errors"
	"net/http"
	"time"

	"chatcommerce/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
)

// OrderStore reads orders for the dashboard and payment pages.
type OrderStore interface {
	OrderByID(ctx context.Context, id string) (*store.Order, error)
	RecentOrdersByPhone(ctx context.Context, phone string, limit int) ([]store.Order, error)
}

type OrderItemResponse struct {
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	UnitPrice   int    `json:"unit_price"`
}

type OrderResponse struct {
	ID        string              `json:"id"`
	Status    string              `json:"status"`
	Total     int                 `json:"total"`
	CreatedAt time.Time           `json:"created_at"`
	Items     []OrderItemResponse `json:"items"`
}

func OrderHandler(orders OrderStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			writeError(w, http.StatusBadRequest, "order id is required")
			return
		}

		order, err := orders.OrderByID(r.Context(), id)
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		writeJSON(w, http.StatusOK, orderResponse(order))
	}
}

func OrdersByPhoneHandler(orders OrderStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		phone := r.URL.Query().Get("phone")
		if phone == "" {
			writeError(w, http.StatusBadRequest, "phone is required")
			return
		}

		recent, err := orders.RecentOrdersByPhone(r.Context(), phone, 10)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		resp := make([]OrderResponse, 0, len(recent))
		for i := range recent {
			resp = append(resp, orderResponse(&recent[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func orderResponse(o *store.Order) OrderResponse {
	resp := OrderResponse{
		ID:        o.ID,
		Status:    o.Status,
		Total:     o.Total,
		CreatedAt: o.CreatedAt,
	}
	for _, it := range o.Items {
		resp.Items = append(resp.Items, OrderItemResponse{
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
		})
	}
	return resp
}
