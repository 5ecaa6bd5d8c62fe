package schema

import "offer-parser/internal/model"

// DefaultDocument returns the built-in commercial-offer template served until
// a schema is stored.
func DefaultDocument() model.Document {
	str := func(desc string) map[string]interface{} {
		return map[string]interface{}{"type": "string", "description": desc}
	}
	num := func(desc string) map[string]interface{} {
		return map[string]interface{}{"type": "number", "description": desc}
	}
	return model.Document{
		"type": "object",
		"properties": map[string]interface{}{
			"company_name":  str("Name of the company making the offer"),
			"contact_email": str("Contact email address"),
			"contact_name":  str("Name of the contact person"),
			"website_url":   str("Website URL being offered"),
			"offer_type":    str("Type of offer (e.g., partnership, advertising, guest_post, link_exchange, acquisition, sponsored)"),
			"price": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"amount":   num("Price amount if mentioned"),
					"currency": str("Currency code (USD, EUR, etc.)"),
				},
			},
			"description": str("Brief summary of what is being offered"),
			"metrics": map[string]interface{}{
				"type":        "object",
				"description": "Website metrics if mentioned in the email",
				"properties": map[string]interface{}{
					"monthly_traffic":  str("Monthly visitors/traffic if mentioned"),
					"domain_authority": num("DA score if mentioned"),
					"page_authority":   num("PA score if mentioned"),
				},
			},
		},
		"required": []interface{}{"company_name", "offer_type"},
	}
}
