package tools

import (
	"encoding/json"

	"chatcommerce/internal/llm"
)

const (
	ToolCreateOrder        = "create_order"
	ToolCheckPaymentStatus = "check_payment_status"
	ToolSendImage          = "send_image"
	ToolCreateBooking      = "create_booking"
	ToolFindOrder          = "find_order"
)

// Definitions returns the tool surface exposed to the model.
func Definitions() []llm.ToolDefinition {
	return []llm.ToolDefinition{
		{
			Name: ToolCreateOrder,
			Description: "Créer une commande pour un client.\n\n" +
				"IMPORTANT - VARIANTES :\n" +
				"- Si un produit a des variantes (taille, couleur, etc.), tu DOIS les spécifier dans 'selected_variants'\n" +
				"- Collecte TOUTES les variantes AVANT d'appeler cette fonction\n" +
				"- Exemple: selected_variants: {\"Taille\": \"Petite\", \"Couleur\": \"Bleu\"}\n" +
				"- Les noms courts suffisent: \"Petite\" matchera \"Petite (50g)\"",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"items": {
						"type": "array",
						"items": {
							"type": "object",
							"properties": {
								"product_name": {"type": "string", "description": "Nom du produit (sans les variantes)"},
								"quantity": {"type": "integer", "description": "Quantité"},
								"selected_variants": {
									"type": "object",
									"description": "Variantes sélectionnées. Ex: {\"Taille\": \"Petite\", \"Couleur\": \"Rouge\"}",
									"additionalProperties": {"type": "string"}
								}
							},
							"required": ["product_name", "quantity"]
						}
					},
					"customer_name": {"type": "string", "description": "Nom complet du client"},
					"customer_phone": {"type": "string", "description": "Numéro de téléphone"},
					"delivery_address": {"type": "string", "description": "Adresse de livraison complète"},
					"email": {"type": "string", "description": "Email (requis pour produits numériques)"},
					"payment_method": {"type": "string", "enum": ["online", "cod"], "description": "Mode de paiement"},
					"notes": {"type": "string", "description": "Instructions spéciales"}
				},
				"required": ["items", "customer_name", "customer_phone"]
			}`),
		},
		{
			Name:        ToolCheckPaymentStatus,
			Description: "Vérifier le statut d'une commande.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"order_id": {"type": "string", "description": "ID de la commande (UUID)"}
				},
				"required": ["order_id"]
			}`),
		},
		{
			Name:        ToolSendImage,
			Description: "Envoyer l'image d'un produit au client.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"product_name": {"type": "string", "description": "Nom du produit"},
					"selected_variants": {
						"type": "object",
						"description": "Variantes sélectionnées. Ex: {\"Couleur\": \"Rouge\"}",
						"additionalProperties": {"type": "string"}
					},
					"variant_value": {"type": "string", "description": "OBSOLÈTE (Utiliser selected_variants)"}
				},
				"required": ["product_name"]
			}`),
		},
		{
			Name:        ToolCreateBooking,
			Description: "Créer une réservation pour un service (hôtel, restaurant, salon, consulting, etc.).",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"booking_type": {"type": "string", "description": "Type de réservation: \"stay\" (hôtel), \"table\" (restaurant), \"slot\" (rdv), \"rental\" (location)"},
					"service_name": {"type": "string", "description": "Nom du service/produit dans le catalogue (ex: \"Chambres\", \"Menu Gourmet\")"},
					"selected_variant": {"type": "string", "description": "Variante choisie (ex: \"Suite\", \"VIP\", \"Menu Découverte\") - OBLIGATOIRE si le service a des variantes"},
					"customer_phone": {"type": "string", "description": "Téléphone du client (avec indicatif)"},
					"customer_name": {"type": "string", "description": "Nom du client"},
					"preferred_date": {"type": "string", "description": "Date de début (YYYY-MM-DD)"},
					"preferred_time": {"type": "string", "description": "Heure (HH:MM) - pour table/slot"},
					"end_date": {"type": "string", "description": "Date de fin (YYYY-MM-DD) - pour stay/rental"},
					"party_size": {"type": "number", "description": "Nombre de personnes/couverts"},
					"selected_supplements": {"type": "object", "description": "Suppléments choisis (ex: {\"Petit déjeuner\": true})"},
					"notes": {"type": "string", "description": "Demandes spéciales (allergies, préférences, etc.)"}
				},
				"required": ["booking_type", "service_name", "customer_phone", "customer_name", "preferred_date"]
			}`),
		},
		{
			Name:        ToolFindOrder,
			Description: "Trouver les dernières commandes d'un client par son numéro de téléphone.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"phone_number": {"type": "string", "description": "Numéro de téléphone du client"}
				},
				"required": ["phone_number"]
			}`),
		},
	}
}

// Billable reports whether a tool consumes an action credit before it
// runs.
func Billable(name string) bool {
	return name == ToolCreateOrder || name == ToolCreateBooking
}

type OrderLineArgs struct {
	ProductName      string            `json:"product_name"`
	Quantity         int               `json:"quantity"`
	SelectedVariants map[string]string `json:"selected_variants"`
}

type CreateOrderArgs struct {
	Items           []OrderLineArgs `json:"items"`
	CustomerName    string          `json:"customer_name"`
	CustomerPhone   string          `json:"customer_phone"`
	DeliveryAddress string          `json:"delivery_address"`
	Email           string          `json:"email"`
	PaymentMethod   string          `json:"payment_method"`
	Notes           string          `json:"notes"`
}

type CheckPaymentStatusArgs struct {
	OrderID string `json:"order_id"`
}

type SendImageArgs struct {
	ProductName      string            `json:"product_name"`
	SelectedVariants map[string]string `json:"selected_variants"`
	// VariantValue is the pre-variants-map argument some prompts still
	// produce.
	VariantValue string `json:"variant_value"`
}

type CreateBookingArgs struct {
	BookingType         string          `json:"booking_type"`
	ServiceName         string          `json:"service_name"`
	SelectedVariant     string          `json:"selected_variant"`
	CustomerPhone       string          `json:"customer_phone"`
	CustomerName        string          `json:"customer_name"`
	PreferredDate       string          `json:"preferred_date"`
	PreferredTime       string          `json:"preferred_time"`
	EndDate             string          `json:"end_date"`
	PartySize           int             `json:"party_size"`
	SelectedSupplements map[string]bool `json:"selected_supplements"`
	Notes               string          `json:"notes"`
}

type FindOrderArgs struct {
	PhoneNumber string `json:"phone_number"`
}
