// Package user holds the ledger's identity records. A user may be known
// on several platforms at once and owns at most one active cashout.
package user

import (
	"fmt"
	"strconv"
	"time"

	"github.com/tipdai/tipdai/internal/currency"
	"github.com/tipdai/tipdai/internal/payment"
)

type Platform string

const (
	PlatformTwitter  Platform = "twitter"
	PlatformTelegram Platform = "telegram"
	PlatformDiscord  Platform = "discord"
)

type User struct {
	ID               uint    `gorm:"primarykey" json:"id"`
	TwitterId        *string `gorm:"uniqueIndex" json:"twitterId"`
	TwitterName      *string `json:"twitterName"`
	TelegramId       *int64  `gorm:"uniqueIndex" json:"telegramId"`
	TelegramUsername *string `json:"telegramUsername"`
	DiscordId        *string `gorm:"uniqueIndex" json:"discordId"`
	Address          *string `json:"address"`

	CashoutID *uint            `json:"-"`
	Cashout   *payment.Cashout `gorm:"foreignKey:CashoutID" json:"cashout"`

	CreatedAt time.Time `json:"created"`
	UpdatedAt time.Time `json:"updated"`
}

// Username returns the best user-facing handle this user is known by.
func (u *User) Username() string {
	if u.TwitterName != nil && *u.TwitterName != "" {
		return *u.TwitterName
	}
	if u.TelegramUsername != nil && *u.TelegramUsername != "" {
		return *u.TelegramUsername
	}
	if u.DiscordId != nil && *u.DiscordId != "" {
		return *u.DiscordId
	}
	if u.TwitterId != nil && *u.TwitterId != "" {
		return *u.TwitterId
	}
	if u.TelegramId != nil {
		return strconv.FormatInt(*u.TelegramId, 10)
	}
	return fmt.Sprintf("user-%d", u.ID)
}

// OwnerId is the stable id handed to the payment hub as cashout owner.
func (u *User) OwnerId() string {
	return fmt.Sprintf("user-%d", u.ID)
}

// Balance is the user's redeemable amount, which is the amount of the
// pending cashout or zero without one.
func (u *User) Balance() currency.Amount {
	if u.Cashout == nil || u.Cashout.Status != payment.StatusPending {
		return currency.Zero()
	}
	amount, err := currency.Parse(u.Cashout.Amount)
	if err != nil {
		return currency.Zero()
	}
	return amount
}

// SetCashout replaces the user's active cashout. The old record is
// retired by the caller (it stays in the payments table for audit).
func (u *User) SetCashout(c *payment.Cashout) {
	u.Cashout = c
	if c == nil {
		u.CashoutID = nil
	} else {
		u.CashoutID = &c.ID
	}
}
