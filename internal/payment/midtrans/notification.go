package midtrans

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"

	"github.com/loramulaku/LABcourse-sub002/internal/payment"
)

// Notification is the subset of the HTTP notification body the reconciler needs.
type Notification struct {
	OrderID           string `json:"order_id" validate:"required"`
	StatusCode        string `json:"status_code" validate:"required"`
	GrossAmount       string `json:"gross_amount" validate:"required"`
	SignatureKey      string `json:"signature_key" validate:"required"`
	TransactionStatus string `json:"transaction_status" validate:"required"`
	FraudStatus       string `json:"fraud_status"`
	TransactionID     string `json:"transaction_id"`
	PaymentType       string `json:"payment_type"`
}

// Signature computes the signature_key Midtrans sends with a notification.
func Signature(orderID, statusCode, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}

func (n Notification) VerifySignature(serverKey string) bool {
	want := Signature(n.OrderID, n.StatusCode, n.GrossAmount, serverKey)
	return subtle.ConstantTimeCompare([]byte(want), []byte(n.SignatureKey)) == 1
}

// Outcome maps the notification onto a reconciler outcome. ok is false for states
// that settle nothing yet.
func (n Notification) Outcome() (payment.Outcome, bool) {
	return MapStatus(n.TransactionStatus, n.FraudStatus)
}

func MapStatus(transactionStatus, fraudStatus string) (payment.Outcome, bool) {
	switch transactionStatus {
	case "capture":
		if fraudStatus == "accept" || fraudStatus == "" {
			return payment.OutcomePaid, true
		}
		if fraudStatus == "deny" {
			return payment.OutcomeFailed, true
		}
		return "", false
	case "settlement":
		return payment.OutcomePaid, true
	case "deny", "cancel", "expire", "failure":
		return payment.OutcomeFailed, true
	case "refund", "partial_refund":
		return payment.OutcomeRefunded, true
	}
	return "", false
}
