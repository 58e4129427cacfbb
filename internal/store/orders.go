package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type OrderItem struct {
	ProductName        string
	ProductDescription string
	Quantity           int
	UnitPrice          int
}

type Order struct {
	ID        string
	Status    string
	Total     int
	CreatedAt time.Time
	Items     []OrderItem
}

type CreateOrderInput struct {
	UserID          string
	AgentID         string
	ConversationID  string
	CustomerName    string
	CustomerPhone   string
	DeliveryAddress string
	PaymentMethod   string
	Status          string
	Notes           string
	Total           int
	Items           []OrderItem
}

// CreateOrder inserts an order and its line items, returning the new
// order id.
func (s *Store) CreateOrder(ctx context.Context, in CreateOrderInput) (string, error) {
	orderID := uuid.NewString()

	_, err := s.DB.Exec(ctx,
		`INSERT INTO orders
		   (id, user_id, agent_id, conversation_id, customer_name, customer_phone,
		    status, total_fcfa, delivery_address, payment_method, notes, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now())`,
		orderID, in.UserID, in.AgentID, in.ConversationID, in.CustomerName,
		in.CustomerPhone, in.Status, in.Total, in.DeliveryAddress,
		in.PaymentMethod, in.Notes,
	)
	if err != nil {
		return "", fmt.Errorf("insert order: %w", err)
	}

	for _, item := range in.Items {
		_, err := s.DB.Exec(ctx,
			`INSERT INTO order_items
			   (order_id, product_name, product_description, quantity, unit_price_fcfa)
			 VALUES ($1, $2, $3, $4, $5)`,
			orderID, item.ProductName, item.ProductDescription, item.Quantity, item.UnitPrice,
		)
		if err != nil {
			return "", fmt.Errorf("insert order item: %w", err)
		}
	}

	return orderID, nil
}

func (s *Store) OrderByID(ctx context.Context, id string) (*Order, error) {
	var o Order
	err := s.DB.QueryRow(ctx,
		`SELECT id, status, total_fcfa, created_at FROM orders WHERE id = $1`,
		id,
	).Scan(&o.ID, &o.Status, &o.Total, &o.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("load order %s: %w", id, err)
	}
	return &o, nil
}

// RecentOrdersByPhone returns a customer's latest orders with their
// line items, newest first.
func (s *Store) RecentOrdersByPhone(ctx context.Context, phone string, limit int) ([]Order, error) {
	rows, err := s.DB.Query(ctx,
		`SELECT id, status, total_fcfa, created_at
		 FROM orders
		 WHERE customer_phone = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		phone, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("find orders: %w", err)
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.Status, &o.Total, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find orders: %w", err)
	}

	for i := range orders {
		itemRows, err := s.DB.Query(ctx,
			`SELECT product_name, quantity, unit_price_fcfa
			 FROM order_items WHERE order_id = $1`,
			orders[i].ID,
		)
		if err != nil {
			return nil, fmt.Errorf("load order items: %w", err)
		}
		for itemRows.Next() {
			var item OrderItem
			if err := itemRows.Scan(&item.ProductName, &item.Quantity, &item.UnitPrice); err != nil {
				itemRows.Close()
				return nil, fmt.Errorf("scan order item: %w", err)
			}
			orders[i].Items = append(orders[i].Items, item)
		}
		itemRows.Close()
		if err := itemRows.Err(); err != nil {
			return nil, fmt.Errorf("load order items: %w", err)
		}
	}

	return orders, nil
}

type CreateBookingInput struct {
	UserID         string
	AgentID        string
	ConversationID string
	BookingType    string
	ServiceID      string
	ServiceName    string
	CustomerName   string
	CustomerPhone  string
	StartTime      time.Time
	PreferredDate  string
	PreferredTime  string
	EndDate        string
	PartySize      int
	Price          int
	Variant        string
	Supplements    string
	Notes          string
}

func (s *Store) CreateBooking(ctx context.Context, in CreateBookingInput) (string, error) {
	bookingID := uuid.NewString()

	_, err := s.DB.Exec(ctx,
		`INSERT INTO bookings
		   (id, user_id, agent_id, conversation_id, booking_type, service_id, service_name,
		    customer_name, customer_phone, start_time, preferred_date, preferred_time,
		    end_date, party_size, price_fcfa, selected_variant, selected_supplements,
		    notes, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
		         NULLIF($16, ''), NULLIF($17, ''), NULLIF($18, ''), 'confirmed', now())`,
		bookingID, in.UserID, in.AgentID, in.ConversationID, in.BookingType,
		in.ServiceID, in.ServiceName, in.CustomerName, in.CustomerPhone,
		in.StartTime, in.PreferredDate, in.PreferredTime, in.EndDate,
		in.PartySize, in.Price, in.Variant, in.Supplements, in.Notes,
	)
	if err != nil {
		return "", fmt.Errorf("insert booking: %w", err)
	}
	return bookingID, nil
}
