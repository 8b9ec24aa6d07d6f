package billing

import (
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v76/webhook"
	"github.com/tidwall/gjson"
	"personapost/pkg/domain"
)

// Webhook event types handled by the billing service. Stripe sends both
// invoice.paid and invoice.payment_succeeded for one payment; only
// invoice.paid extends coverage.
const (
	EventInvoicePaymentSucceeded = "invoice.payment_succeeded"
	EventInvoicePaid             = "invoice.paid"
	EventSubscriptionDeleted     = "customer.subscription.deleted"
)

// DefaultWebhookTolerance bounds the age of a signed webhook timestamp.
const DefaultWebhookTolerance = 5 * time.Minute

// WebhookEvent holds the fields the billing service reads from an event.
type WebhookEvent struct {
	ID             string
	Type           string
	CustomerEmail  string
	CustomerID     string
	SubscriptionID string
	InvoiceID      string
}

// IsInvoicePaid reports whether the event confirms a successful payment.
func (e WebhookEvent) IsInvoicePaid() bool {
	return e.Type == EventInvoicePaid
}

// DeliveryKey identifies the payment an event applies, so redeliveries and
// sibling events for the same invoice collapse onto one key. Empty when the
// event carries neither an invoice nor an event ID.
func (e WebhookEvent) DeliveryKey() string {
	switch {
	case e.InvoiceID != "":
		return "invoice:" + e.InvoiceID
	case e.ID != "":
		return "event:" + e.ID
	default:
		return ""
	}
}

// WebhookVerifier checks the Stripe-Signature header of incoming events.
type WebhookVerifier struct {
	secret    string
	tolerance time.Duration
}

// NewWebhookVerifier builds a verifier for the endpoint signing secret.
func NewWebhookVerifier(secret string, tolerance time.Duration) (*WebhookVerifier, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, fmt.Errorf("stripe webhook secret required")
	}
	if tolerance <= 0 {
		tolerance = DefaultWebhookTolerance
	}
	return &WebhookVerifier{secret: secret, tolerance: tolerance}, nil
}

// Verify validates the signature and decodes the event.
func (v *WebhookVerifier) Verify(payload []byte, signatureHeader string) (WebhookEvent, error) {
	if err := webhook.ValidatePayloadWithTolerance(payload, signatureHeader, v.secret, v.tolerance); err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: webhook signature: %v", domain.ErrUnauthorized, err)
	}
	return ParseWebhookEvent(payload)
}

// ParseWebhookEvent extracts the event fields. Invoices carry the
// subscription either at the top level or under parent.subscription_details
// depending on API version.
func ParseWebhookEvent(payload []byte) (WebhookEvent, error) {
	if !gjson.ValidBytes(payload) {
		return WebhookEvent{}, domain.Validationf("webhook payload is not valid JSON")
	}
	root := gjson.ParseBytes(payload)
	ev := WebhookEvent{
		ID:   root.Get("id").String(),
		Type: root.Get("type").String(),
	}
	if ev.Type == "" {
		return WebhookEvent{}, domain.Validationf("webhook event type missing")
	}
	obj := root.Get("data.object")
	switch obj.Get("object").String() {
	case "subscription":
		ev.SubscriptionID = obj.Get("id").String()
		ev.CustomerID = idOf(obj.Get("customer"))
	case "invoice":
		ev.InvoiceID = obj.Get("id").String()
		fallthrough
	default:
		ev.CustomerEmail = strings.TrimSpace(obj.Get("customer_email").String())
		ev.CustomerID = idOf(obj.Get("customer"))
		ev.SubscriptionID = idOf(obj.Get("subscription"))
		if ev.SubscriptionID == "" {
			ev.SubscriptionID = idOf(obj.Get("parent.subscription_details.subscription"))
		}
	}
	return ev, nil
}

// idOf reads an expandable field that is either an ID or an object.
func idOf(r gjson.Result) string {
	if r.IsObject() {
		return r.Get("id").String()
	}
	return r.String()
}
