package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"chatcommerce/internal/catalog"
	"chatcommerce/internal/logging"
	"chatcommerce/internal/store"
)

// OrderStore is the persistence surface the executor needs.
type OrderStore interface {
	CreateOrder(ctx context.Context, in store.CreateOrderInput) (string, error)
	OrderByID(ctx context.Context, id string) (*store.Order, error)
	RecentOrdersByPhone(ctx context.Context, phone string, limit int) ([]store.Order, error)
	CreateBooking(ctx context.Context, in store.CreateBookingInput) (string, error)
	DecrementStock(ctx context.Context, productID string, quantity int) error
}

// ImagePayload asks the channel to send a product image alongside the
// reply.
type ImagePayload struct {
	URL     string
	Caption string
}

// Result is what a tool hands back: a JSON payload for the model, and
// optionally an image for the customer.
type Result struct {
	Payload string
	Image   *ImagePayload
}

// ExecContext carries the per-turn state tools operate on.
type ExecContext struct {
	Agent          *store.Agent
	Catalog        *catalog.Catalog
	ConversationID string
}

type Executor struct {
	Orders OrderStore
	AppURL string
}

func NewExecutor(orders OrderStore, appURL string) *Executor {
	return &Executor{Orders: orders, AppURL: appURL}
}

// Execute runs one tool call. Business failures (unknown product, out
// of stock, missing variant) are reported in the payload so the model
// can recover; the error return is for system failures only.
func (e *Executor) Execute(ctx context.Context, ec ExecContext, name string, args json.RawMessage) (*Result, error) {
	logging.Info(ctx).Str("tool", name).Msg("executing tool")

	switch name {
	case ToolCreateOrder:
		return e.createOrder(ctx, ec, args)
	case ToolCheckPaymentStatus:
		return e.checkPaymentStatus(ctx, args)
	case ToolSendImage:
		return e.sendImage(ctx, ec, args)
	case ToolCreateBooking:
		return e.createBooking(ctx, ec, args)
	case ToolFindOrder:
		return e.findOrder(ctx, ec, args)
	default:
		return failure(fmt.Sprintf("Outil inconnu: %s", name)), nil
	}
}

func (e *Executor) createOrder(ctx context.Context, ec ExecContext, raw json.RawMessage) (*Result, error) {
	var args CreateOrderArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return failure("Arguments invalides pour create_order."), nil
	}

	notes := args.Notes
	if args.Email != "" {
		notes += "\n📧 Email: " + args.Email
	}

	// Digital products are delivered by email.
	for _, line := range args.Items {
		if it := ec.Catalog.Resolve(line.ProductName); it != nil && it.Type == "digital" && args.Email == "" {
			return payload(map[string]any{
				"success": false,
				"error":   "EMAIL REQUIS. Ce produit numérique sera envoyé par email. Demande l'adresse email du client avant de créer la commande.",
				"hint":    `Demande : "À quelle adresse email souhaitez-vous recevoir votre produit ?"`,
			}), nil
		}
	}

	total := 0
	var orderItems []store.OrderItem
	type stockLine struct {
		productID string
		quantity  int
	}
	var stockLines []stockLine

	for _, line := range args.Items {
		product := ec.Catalog.SearchScored(line.ProductName)
		if product == nil {
			return failure(fmt.Sprintf("Produit %q non trouvé. Disponibles: %s",
				line.ProductName, strings.Join(itemNames(ec.Catalog), ", "))), nil
		}

		if ok, available := product.CheckStock(line.Quantity); !ok {
			hint := "Proposez un produit alternatif."
			detail := "Produit épuisé."
			if available > 0 {
				hint = fmt.Sprintf("Proposez %d unités ou un produit alternatif.", available)
				detail = fmt.Sprintf("Seulement %d disponible(s).", available)
			}
			return payload(map[string]any{
				"success":         false,
				"error":           fmt.Sprintf("Stock insuffisant pour %q. %s", product.Name, detail),
				"available_stock": available,
				"hint":            hint,
			}), nil
		}

		pricing := product.UnitPrice(line.SelectedVariants, line.ProductName)
		if len(pricing.Missing) > 0 {
			g := pricing.Missing[0]
			return payload(map[string]any{
				"success": false,
				"error": fmt.Sprintf("Variante %q requise pour %q. Options: %s",
					g.Name, product.Name, strings.Join(g.OptionLabels(), ", ")),
				"hint": "Utilisez selected_variants.",
			}), nil
		}

		displayName := product.Name
		if len(pricing.Matched) > 0 {
			displayName = fmt.Sprintf("%s (%s)", product.Name, strings.Join(pricing.Matched, ", "))
		}

		total += pricing.Unit * line.Quantity
		orderItems = append(orderItems, store.OrderItem{
			ProductName:        displayName,
			ProductDescription: product.Description,
			Quantity:           line.Quantity,
			UnitPrice:          pricing.Unit,
		})
		stockLines = append(stockLines, stockLine{productID: product.ID, quantity: line.Quantity})
	}

	status := "pending"
	paymentMethod := args.PaymentMethod
	if paymentMethod == "" {
		paymentMethod = "online"
	}
	if paymentMethod == "cod" {
		status = "pending_delivery"
	}

	customerName := args.CustomerName
	if customerName == "" {
		customerName = "Non spécifié"
	}
	deliveryAddress := args.DeliveryAddress
	if deliveryAddress == "" {
		deliveryAddress = "Non spécifié"
	}

	orderID, err := e.Orders.CreateOrder(ctx, store.CreateOrderInput{
		UserID:          ec.Agent.UserID,
		AgentID:         ec.Agent.ID,
		ConversationID:  ec.ConversationID,
		CustomerName:    customerName,
		CustomerPhone:   NormalizePhone(args.CustomerPhone),
		DeliveryAddress: deliveryAddress,
		PaymentMethod:   paymentMethod,
		Status:          status,
		Notes:           notes,
		Total:           total,
		Items:           orderItems,
	})
	if err != nil {
		return nil, err
	}

	for _, sl := range stockLines {
		if err := e.Orders.DecrementStock(ctx, sl.productID, sl.quantity); err != nil {
			logging.Error(ctx).Err(err).Str("product_id", sl.productID).Msg("stock decrement failed")
		}
	}

	itemsSummary := groupedSummary(orderItems)

	switch {
	case paymentMethod == "cod":
		msg := fmt.Sprintf("✅ Commande confirmée ! Nous préparons la livraison. 🚚\nPaiement de %d FCFA à prévoir à la livraison.", total)
		msg += escalationNote(ec.Agent)
		return payload(map[string]any{
			"success": true, "order_id": orderID, "payment_method": "cod",
			"items": itemsSummary, "message": msg,
		}), nil

	case ec.Agent.PaymentMode == "mobile_money_direct":
		var methods []map[string]string
		if ec.Agent.MobileMoneyOrange != "" {
			methods = append(methods, map[string]string{"type": "Orange Money", "number": ec.Agent.MobileMoneyOrange})
		}
		if ec.Agent.MobileMoneyMTN != "" {
			methods = append(methods, map[string]string{"type": "MTN Money", "number": ec.Agent.MobileMoneyMTN})
		}
		if ec.Agent.MobileMoneyWave != "" {
			methods = append(methods, map[string]string{"type": "Wave", "number": ec.Agent.MobileMoneyWave})
		}
		msg := fmt.Sprintf("✅ Commande enregistrée en attente de paiement. Veuillez effectuer le transfert de %d FCFA.", total)
		msg += escalationNote(ec.Agent)
		return payload(map[string]any{
			"success": true, "order_id": orderID, "total": total,
			"payment_method": "mobile_money_direct", "payment_methods": methods,
			"items": itemsSummary, "message": msg,
		}), nil

	default:
		msg := fmt.Sprintf("✅ Commande créée ! Lien de paiement généré pour %d FCFA.", total)
		msg += escalationNote(ec.Agent)
		return payload(map[string]any{
			"success": true, "order_id": orderID, "total": total,
			"payment_method": "online",
			"payment_link":   fmt.Sprintf("%s/pay/%s", e.AppURL, orderID),
			"items":          itemsSummary, "message": msg,
		}), nil
	}
}

var statusMessages = map[string]string{
	"pending":          "⏳ En attente de paiement.",
	"paid":             "✅ Paiement confirmé ! En cours de traitement.",
	"pending_delivery": "📦 En cours de livraison.",
	"delivered":        "🎉 Livrée avec succès !",
	"cancelled":        "❌ Commande annulée.",
}

func (e *Executor) checkPaymentStatus(ctx context.Context, raw json.RawMessage) (*Result, error) {
	var args CheckPaymentStatusArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return failure("Arguments invalides pour check_payment_status."), nil
	}

	order, err := e.Orders.OrderByID(ctx, args.OrderID)
	if err != nil {
		return failure(fmt.Sprintf("Commande %s introuvable.", args.OrderID)), nil
	}

	statusMsg, ok := statusMessages[order.Status]
	if !ok {
		statusMsg = order.Status
	}
	if order.Status == "pending" {
		statusMsg = fmt.Sprintf("⏳ En attente de paiement. Total: %d FCFA.", order.Total)
	}

	return payload(map[string]any{
		"success":  true,
		"order_id": order.ID,
		"status":   order.Status,
		"message":  fmt.Sprintf("Commande #%s : %s", shortID(order.ID), statusMsg),
	}), nil
}

func (e *Executor) findOrder(ctx context.Context, ec ExecContext, raw json.RawMessage) (*Result, error) {
	var args FindOrderArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return failure("Arguments invalides pour find_order."), nil
	}
	if strings.TrimSpace(args.PhoneNumber) == "" {
		return failure("Numéro invalide"), nil
	}

	orders, err := e.Orders.RecentOrdersByPhone(ctx, NormalizePhone(args.PhoneNumber), 3)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return payload(map[string]any{
			"success": true,
			"message": "Aucune commande trouvée pour ce numéro.",
		}), nil
	}

	var lines []string
	for _, o := range orders {
		var items []string
		for _, it := range o.Items {
			items = append(items, fmt.Sprintf("%dx %s", it.Quantity, it.ProductName))
		}
		lines = append(lines, fmt.Sprintf("- Commande #%s du %s (%d FCFA) : %s\n  Articles: %s",
			shortID(o.ID), o.CreatedAt.Format("02/01/2006"), o.Total, o.Status,
			strings.Join(items, ", ")))
	}

	msg := "Voici les dernières commandes trouvées :\n" + strings.Join(lines, "\n\n")
	msg += "\n\nℹ️ Ceci sont vos 3 dernières commandes."
	if ec.Agent.EscalationPhone != "" {
		msg += fmt.Sprintf(" Pour tout historique plus ancien, veuillez contacter le service client au %s.", ec.Agent.EscalationPhone)
	} else {
		msg += " Pour tout historique plus ancien, veuillez contacter le service client."
	}

	return payload(map[string]any{"success": true, "message": msg}), nil
}

func (e *Executor) createBooking(ctx context.Context, ec ExecContext, raw json.RawMessage) (*Result, error) {
	var args CreateBookingArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return failure("Arguments invalides pour create_booking."), nil
	}

	var service *catalog.Item
	var serviceNames []string
	search := strings.ToLower(args.ServiceName)
	for i := range ec.Catalog.Items {
		it := &ec.Catalog.Items[i]
		if it.Type != "service" {
			continue
		}
		serviceNames = append(serviceNames, it.Name)
		if service == nil && strings.Contains(strings.ToLower(it.Name), search) {
			service = it
		}
	}
	if service == nil {
		available := "Aucun"
		if len(serviceNames) > 0 {
			available = strings.Join(serviceNames, ", ")
		}
		return failure(fmt.Sprintf("Service %q non trouvé. Disponibles: %s", args.ServiceName, available)), nil
	}

	price := 0
	if service.BasePrice != nil {
		price = *service.BasePrice
	}
	variantDetail := ""
	if args.SelectedVariant != "" {
		for i := range service.Groups {
			g := &service.Groups[i]
			if g.Kind != catalog.KindFixed {
				continue
			}
			if opt, ok := g.Match(args.SelectedVariant); ok {
				if opt.Price > 0 {
					price = opt.Price
					variantDetail = fmt.Sprintf("%s: %s", g.Name, opt.Label)
				}
				break
			}
		}
	}

	var supplements []string
	for i := range service.Groups {
		g := &service.Groups[i]
		if g.Kind != catalog.KindAdditive {
			continue
		}
		for _, opt := range g.Options {
			if args.SelectedSupplements[opt.Label] {
				price += opt.Price
				supplements = append(supplements, fmt.Sprintf("%s (+%d FCFA)", opt.Label, opt.Price))
			}
		}
	}

	startTime, err := parseStartTime(args.PreferredDate, args.PreferredTime)
	if err != nil {
		return failure("Date de réservation invalide. Format attendu: YYYY-MM-DD."), nil
	}

	bookingType := args.BookingType
	if bookingType == "" {
		bookingType = "slot"
	}
	partySize := args.PartySize
	if partySize <= 0 {
		partySize = 1
	}

	bookingID, err := e.Orders.CreateBooking(ctx, store.CreateBookingInput{
		UserID:         ec.Agent.UserID,
		AgentID:        ec.Agent.ID,
		ConversationID: ec.ConversationID,
		BookingType:    bookingType,
		ServiceID:      service.ID,
		ServiceName:    service.Name,
		CustomerName:   args.CustomerName,
		CustomerPhone:  NormalizePhone(args.CustomerPhone),
		StartTime:      startTime,
		PreferredDate:  args.PreferredDate,
		PreferredTime:  args.PreferredTime,
		EndDate:        args.EndDate,
		PartySize:      partySize,
		Price:          price,
		Variant:        variantDetail,
		Supplements:    strings.Join(supplements, ", "),
		Notes:          args.Notes,
	})
	if err != nil {
		return nil, err
	}

	msg := fmt.Sprintf("📅 Réservation confirmée ! %s le %s", service.Name, args.PreferredDate)
	if args.PreferredTime != "" {
		msg += " à " + args.PreferredTime
	}
	if variantDetail != "" {
		msg += " (" + variantDetail + ")"
	}
	if price > 0 {
		msg += fmt.Sprintf(". Total: %d FCFA.", price)
	}
	msg += escalationNote(ec.Agent)

	return payload(map[string]any{
		"success":    true,
		"booking_id": bookingID,
		"price":      price,
		"message":    msg,
	}), nil
}

func (e *Executor) sendImage(_ context.Context, ec ExecContext, raw json.RawMessage) (*Result, error) {
	var args SendImageArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return failure("Arguments invalides pour send_image."), nil
	}

	product := ec.Catalog.Resolve(args.ProductName)
	if product == nil {
		return failure(fmt.Sprintf("Produit %q introuvable.", args.ProductName)), nil
	}

	imageURL := product.ImageURL
	variantName := ""

	for i := range product.Groups {
		g := &product.Groups[i]

		target := ""
		for key, value := range args.SelectedVariants {
			if strings.EqualFold(key, g.Name) {
				target = value
				break
			}
		}
		if target == "" {
			target = args.VariantValue
		}
		if target == "" {
			continue
		}

		if opt, ok := g.Match(target); ok && opt.Image != "" {
			imageURL = opt.Image
			variantName = opt.Label
			break
		}
	}

	if imageURL == "" {
		return failure(fmt.Sprintf("Pas d'image pour %q.", product.Name)), nil
	}

	caption := fmt.Sprintf("Voici %s !", product.Name)
	if variantName != "" {
		caption = fmt.Sprintf("Voici %s (%s) !", product.Name, variantName)
	}

	res := payload(map[string]any{
		"success": true,
		"message": "Image envoyée au client.",
	})
	res.Image = &ImagePayload{URL: imageURL, Caption: caption}
	return res, nil
}

func parseStartTime(date, clock string) (time.Time, error) {
	if clock != "" {
		return time.Parse("2006-01-02T15:04", date+"T"+clock)
	}
	return time.Parse("2006-01-02T15:04", date+"T09:00")
}

// groupedSummary renders order lines grouped by base product with one
// "variant qty X unit = total" line each.
func groupedSummary(items []store.OrderItem) string {
	type group struct {
		lines    []string
		subtotal int
	}
	var order []string
	groups := make(map[string]*group)

	for _, item := range items {
		baseName := item.ProductName
		variant := "Standard"
		if idx := strings.Index(baseName, "("); idx >= 0 {
			variant = strings.TrimSuffix(strings.TrimSpace(baseName[idx+1:]), ")")
			baseName = strings.TrimSpace(baseName[:idx])
		}

		g, ok := groups[baseName]
		if !ok {
			g = &group{}
			groups[baseName] = g
			order = append(order, baseName)
		}

		lineTotal := item.Quantity * item.UnitPrice
		g.subtotal += lineTotal
		g.lines = append(g.lines, fmt.Sprintf("- %s %d X %d = %d FCFA",
			variant, item.Quantity, item.UnitPrice, lineTotal))
	}

	var parts []string
	for _, name := range order {
		g := groups[name]
		parts = append(parts, fmt.Sprintf("*%s* :\n%s\nSous-total = %d FCFA",
			name, strings.Join(g.lines, "\n"), g.subtotal))
	}
	return strings.Join(parts, "\n\n")
}

func escalationNote(agent *store.Agent) string {
	if agent.EscalationPhone == "" {
		return ""
	}
	return fmt.Sprintf("\n\n📞 En cas de besoin, contactez le service client au %s.", agent.EscalationPhone)
}

func itemNames(c *catalog.Catalog) []string {
	names := make([]string, len(c.Items))
	for i, it := range c.Items {
		names[i] = it.Name
	}
	return names
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func payload(v map[string]any) *Result {
	b, err := json.Marshal(v)
	if err != nil {
		return &Result{Payload: `{"success":false,"error":"internal"}`}
	}
	return &Result{Payload: string(b)}
}

func failure(msg string) *Result {
	return payload(map[string]any{"success": false, "error": msg})
}
