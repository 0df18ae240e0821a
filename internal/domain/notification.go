package domain

// TaxFormRequestTemplate is the e-mail template key for signature requests.
const TaxFormRequestTemplate = "tax-form-request"

// TaxFormRequestEmail is the template payload for the "please sign" e-mail.
type TaxFormRequestEmail struct {
	DocumentLink  string `json:"documentLink"`
	RecipientName string `json:"recipientName"`
	AccountName   string `json:"accountName"`
}

// EmailEvent is published to the notification exchange for delivery.
type EmailEvent struct {
	Template  string              `json:"template"`
	Recipient string              `json:"recipient"`
	Data      TaxFormRequestEmail `json:"data"`
}
