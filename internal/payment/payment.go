// Package payment holds the Cashout record and the client for the
// payment-channel hub that issues and redeems them.
package payment

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/tipdai/tipdai/internal/currency"
)

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusRedeemed Status = "REDEEMED"
	StatusFailed   Status = "FAILED"
)

// Cashout is an externally issued, single-redemption payment-channel
// transfer. A cashout is never edited in place: once redeemed it is
// superseded by a freshly created record.
type Cashout struct {
	ID        uint      `gorm:"primarykey" json:"-"`
	PaymentId string    `gorm:"uniqueIndex" json:"paymentId"`
	Secret    string    `json:"secret"`
	Amount    string    `json:"amount"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created"`
	UpdatedAt time.Time `json:"updated"`
}

var paymentIdRegex = regexp.MustCompile(`paymentId=(0x[0-9a-fA-F]{64})`)
var secretRegex = regexp.MustCompile(`secret=(0x[0-9a-fA-F]{64})`)

// ParseLink pulls paymentId and secret out of a pasted cashout link.
func ParseLink(link string) (paymentId string, secret string, ok bool) {
	pm := paymentIdRegex.FindStringSubmatch(link)
	sm := secretRegex.FindStringSubmatch(link)
	if pm == nil || sm == nil {
		return "", "", false
	}
	return pm[1], sm[1], true
}

// Link composes the user-facing redemption URL for a cashout.
func Link(baseUrl string, c *Cashout) string {
	return fmt.Sprintf("%s?paymentId=%s&secret=%s", baseUrl, c.PaymentId, c.Secret)
}

// Provider is the external payment hub. CreatePayment issues a new
// pending cashout, RedeemPayment consumes one (exactly once per payment
// id, the hub enforces idempotency), UpdatePayment refreshes the status
// of an existing record for balance queries.
type Provider interface {
	CreatePayment(ctx context.Context, amount currency.Amount, ownerId string) (*Cashout, error)
	RedeemPayment(ctx context.Context, c *Cashout) (currency.Amount, error)
	UpdatePayment(ctx context.Context, c *Cashout) (*Cashout, error)
	RequestDepositAddress(ctx context.Context, ownerId string) (string, error)
}
