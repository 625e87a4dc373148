package tip

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/tipdai/tipdai/internal/currency"
	"github.com/tipdai/tipdai/internal/errors"
	"github.com/tipdai/tipdai/internal/i18n"
	"github.com/tipdai/tipdai/internal/payment"
	"github.com/tipdai/tipdai/internal/runtime/mutex"
	"github.com/tipdai/tipdai/internal/user"
)

// UserStore persists ledger users and their cashout association.
type UserStore interface {
	Save(u *user.User) error
}

// Engine executes settlements. One settlement redeems the sender's
// cashout, reissues the remainder, and redeems-and-reissues the
// recipient's cashout with the tip added. The hub's own idempotency per
// payment id is the recovery mechanism for partial failures; the engine
// never attempts compensating transactions.
type Engine struct {
	users      UserStore
	tips       Store
	provider   payment.Provider
	currency   string
	maintainer string
	timeout    time.Duration
}

func NewEngine(users UserStore, tips Store, provider payment.Provider, currencyCode, maintainer string) *Engine {
	return &Engine{
		users:      users,
		tips:       tips,
		provider:   provider,
		currency:   currencyCode,
		maintainer: maintainer,
		timeout:    30 * time.Second,
	}
}

// Settle moves amount from sender to recipient and returns the
// user-facing reply plus the terminal result. Both accounts are locked
// in stable order for the whole settlement so no two concurrent
// settlements can read-then-write the same user's cashout.
func (e *Engine) Settle(ctx context.Context, sender *user.User, recipient *user.User, amount string, message string) (string, Result) {
	amountParsed, err := currency.Parse(amount)
	if err != nil {
		log.Errorf("[Settle] unparseable amount %q: %s", amount, err.Error())
		return e.apology(), ResultError
	}

	unlock := lockAccounts(sender, recipient)
	defer unlock()

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	log.Infof("[Settle] handling tip of %s from %s to %s", amount, sender.Username(), recipient.Username())
	t := &Tip{
		SenderID:    sender.ID,
		Sender:      sender.Username(),
		RecipientID: recipient.ID,
		Recipient:   recipient.Username(),
		Amount:      amount,
		Message:     message,
		Result:      string(ResultProcessing),
	}
	// the audit trail must exist before any side effect
	if err := e.tips.Save(t); err != nil {
		log.Errorf("[Settle] could not persist tip audit record: %s", err.Error())
		return e.apology(), ResultError
	}

	// the dominant rejection path: checked in full before any hub call,
	// so nothing is mutated when the sender can't cover the tip
	if sender.Cashout == nil {
		log.Infof("[Settle] sender balance %s0 (no deposits) is less than tip amount of %s", e.currency, amount)
		return e.insufficient(t, amount)
	}
	if sender.Cashout.Status != payment.StatusPending {
		log.Infof("[Settle] sender balance %s0 (prev cashout of %s%s %s) is lower than tip amount of %s",
			e.currency, e.currency, sender.Cashout.Amount, sender.Cashout.Status, amount)
		return e.insufficient(t, amount)
	}
	senderOld, err := currency.Parse(sender.Cashout.Amount)
	if err != nil {
		return e.fail(t, errors.New(errors.InvalidAmountError, fmt.Errorf("unparseable cashout amount %q: %v", sender.Cashout.Amount, err)))
	}
	if senderOld.LessThan(amountParsed) {
		log.Infof("[Settle] sender balance %s%s is lower than tip amount of %s", e.currency, sender.Cashout.Amount, amount)
		return e.insufficient(t, amount)
	}

	// the deadline covers lock wait too: once it passed, stop before
	// the first hub call instead of starting a doomed settlement
	if err := ctx.Err(); err != nil {
		return e.fail(t, errors.New(errors.ProviderError, err))
	}

	redeemed, err := e.provider.RedeemPayment(ctx, sender.Cashout)
	if err != nil {
		return e.fail(t, errors.New(errors.ProviderError, err))
	}
	log.Infof("[Settle] redeemed sender cashout over %s", redeemed)
	senderBalance := redeemed.Sub(amountParsed)
	if senderBalance.Wei().Sign() < 0 {
		return e.fail(t, errors.New(errors.InvariantError, fmt.Errorf("cashout %s redeemed for %s, less than tip amount %s",
			sender.Cashout.PaymentId, redeemed, amount)))
	}
	if senderBalance.IsPositive() {
		c, err := e.provider.CreatePayment(ctx, senderBalance, sender.OwnerId())
		if err != nil {
			return e.fail(t, errors.New(errors.ProviderError, err))
		}
		sender.SetCashout(c)
		log.Infof("[Settle] gave sender new cashout over %s", senderBalance)
	} else {
		// exact spend: the sender ends with no cashout, not a zero one
		sender.SetCashout(nil)
	}
	if err := e.users.Save(sender); err != nil {
		return e.fail(t, errors.New(errors.PersistenceError, err))
	}

	if err := ctx.Err(); err != nil {
		return e.fail(t, errors.New(errors.ProviderError, err))
	}

	recipientBalance := amountParsed
	if recipient.Cashout != nil {
		prev, err := e.provider.RedeemPayment(ctx, recipient.Cashout)
		if err != nil {
			return e.fail(t, errors.New(errors.ProviderError, err))
		}
		recipientBalance = prev.Add(amountParsed)
	}
	c, err := e.provider.CreatePayment(ctx, recipientBalance, recipient.OwnerId())
	if err != nil {
		return e.fail(t, errors.New(errors.ProviderError, err))
	}
	recipient.SetCashout(c)
	log.Infof("[Settle] gave recipient new cashout over %s", recipientBalance)
	if err := e.users.Save(recipient); err != nil {
		return e.fail(t, errors.New(errors.PersistenceError, err))
	}

	t.Result = string(ResultSuccess)
	if err := e.tips.Save(t); err != nil {
		log.Errorf("[Settle] could not persist tip result: %s", err.Error())
	}
	return fmt.Sprintf(i18n.Translate("tipSuccessMessage"), e.currency, amount, recipient.Username(), sender.Username()), ResultSuccess
}

func (e *Engine) insufficient(t *Tip, amount string) (string, Result) {
	t.Result = string(ResultInsufficientBalance)
	if err := e.tips.Save(t); err != nil {
		log.Errorf("[Settle] could not persist tip result: %s", err.Error())
	}
	return fmt.Sprintf(i18n.Translate("balanceTooLowMessage"), e.currency, amount), ResultInsufficientBalance
}

func (e *Engine) fail(t *Tip, err error) (string, Result) {
	log.Errorf("[Settle] failed to handle tip: %s", err.Error())
	t.Result = fmt.Sprintf("%s: %s", ResultError, err.Error())
	if saveErr := e.tips.Save(t); saveErr != nil {
		log.Errorf("[Settle] could not persist tip error: %s", saveErr.Error())
	}
	return e.apology(), ResultError
}

func (e *Engine) apology() string {
	return fmt.Sprintf(i18n.Translate("tipErrorMessage"), e.maintainer)
}

func accountKey(u *user.User) string {
	return fmt.Sprintf("account:%d", u.ID)
}

// lockAccounts locks both parties in ascending account-id order so two
// settlements touching the same pair can't deadlock each other.
func lockAccounts(a *user.User, b *user.User) func() {
	if a.ID == b.ID {
		mutex.Lock(accountKey(a))
		return func() { mutex.Unlock(accountKey(a)) }
	}
	first, second := a, b
	if second.ID < first.ID {
		first, second = second, first
	}
	mutex.Lock(accountKey(first))
	mutex.Lock(accountKey(second))
	return func() {
		mutex.Unlock(accountKey(second))
		mutex.Unlock(accountKey(first))
	}
}
