// Package dispatch turns parsed inbound messages into settlement calls
// and account-management flows, producing platform-neutral replies the
// connectors render.
package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	uuid "github.com/satori/go.uuid"
	log "github.com/sirupsen/logrus"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/tipdai/tipdai/internal/currency"
	"github.com/tipdai/tipdai/internal/i18n"
	"github.com/tipdai/tipdai/internal/pattern"
	"github.com/tipdai/tipdai/internal/payment"
	"github.com/tipdai/tipdai/internal/runtime/mutex"
	"github.com/tipdai/tipdai/internal/storage"
	"github.com/tipdai/tipdai/internal/tip"
	"github.com/tipdai/tipdai/internal/user"
)

const depositSessionTTL = 10 * time.Minute

// OutboundReply is what a connector should send back. Image is an
// optional PNG attachment (cashout QR), Text is always set.
type OutboundReply struct {
	Text  string
	Image []byte
}

// Settler runs one tip settlement.
type Settler interface {
	Settle(ctx context.Context, sender *user.User, recipient *user.User, amount string, message string) (string, tip.Result)
}

// UserSaver persists ledger users.
type UserSaver interface {
	Save(u *user.User) error
}

type Dispatcher struct {
	engine     Settler
	provider   payment.Provider
	users      UserSaver
	bunt       *storage.DB
	linkBase   string
	currency   string
	maintainer string
}

func NewDispatcher(engine Settler, provider payment.Provider, users UserSaver, bunt *storage.DB, linkBase, currencyCode, maintainer string) *Dispatcher {
	return &Dispatcher{
		engine:     engine,
		provider:   provider,
		users:      users,
		bunt:       bunt,
		linkBase:   linkBase,
		currency:   currencyCode,
		maintainer: maintainer,
	}
}

// HandlePublicMessage settles the tip a public message encodes. The
// self-tip guard lives here so the engine never locks one account twice
// for the same transfer.
func (d *Dispatcher) HandlePublicMessage(ctx context.Context, sender *user.User, recipient *user.User, req *pattern.TipRequest) *OutboundReply {
	if sender.ID == recipient.ID {
		return &OutboundReply{Text: i18n.Translate("tipYourselfMessage")}
	}
	text, _ := d.engine.Settle(ctx, sender, recipient, req.Amount, req.RawMessage)
	return &OutboundReply{Text: text}
}

// HandlePrivateMessage runs the DM command surface: pasted cashout links
// top up the balance, "balance"/"refresh" report it, "deposit"/"wait"
// manage an on-chain deposit session. Anything else gets a usage hint.
// Commands match on prefix ("balance please" still works) and a single
// inbound message can produce several replies, sent in order.
func (d *Dispatcher) HandlePrivateMessage(ctx context.Context, u *user.User, text string) []*OutboundReply {
	if paymentId, secret, ok := payment.ParseLink(text); ok {
		return []*OutboundReply{d.handleLinkDeposit(ctx, u, paymentId, secret)}
	}
	command := strings.ToLower(strings.TrimSpace(text))
	switch {
	case strings.HasPrefix(command, "balance"), strings.HasPrefix(command, "refresh"), strings.HasPrefix(command, "cashout"):
		return []*OutboundReply{d.handleBalance(ctx, u)}
	case strings.HasPrefix(command, "deposit"):
		return d.handleDeposit(ctx, u)
	case strings.HasPrefix(command, "wait"):
		return d.handleDepositWait(u)
	}
	return []*OutboundReply{{Text: i18n.Translate("huhMessage")}}
}

// handleLinkDeposit redeems a pasted cashout link and merges it into the
// user's balance. The account lock keeps it from racing a settlement on
// the same user.
func (d *Dispatcher) handleLinkDeposit(ctx context.Context, u *user.User, paymentId, secret string) *OutboundReply {
	lockKey := accountKey(u)
	mutex.Lock(lockKey)
	defer mutex.Unlock(lockKey)

	deposited, err := d.provider.RedeemPayment(ctx, &payment.Cashout{PaymentId: paymentId, Secret: secret})
	if err != nil {
		log.Warnf("[Dispatch] could not redeem link payment %s of %s: %s", paymentId, u.Username(), err.Error())
		return &OutboundReply{Text: i18n.Translate("linkDepositErrorMessage")}
	}
	balance := deposited
	if u.Cashout != nil && u.Cashout.Status == payment.StatusPending {
		prev, err := d.provider.RedeemPayment(ctx, u.Cashout)
		if err != nil {
			return d.errorReply(err)
		}
		balance = prev.Add(deposited)
	}
	c, err := d.provider.CreatePayment(ctx, balance, u.OwnerId())
	if err != nil {
		return d.errorReply(err)
	}
	u.SetCashout(c)
	if err := d.users.Save(u); err != nil {
		return d.errorReply(err)
	}
	log.Infof("[Dispatch] %s deposited %s via link payment", u.Username(), deposited)
	return &OutboundReply{Text: fmt.Sprintf(i18n.Translate("linkDepositSuccessMessage"), d.currency, balance.String())}
}

// handleBalance refreshes the cashout status against the hub before
// reporting, so a link the user already redeemed elsewhere reads zero.
// It holds the account lock: it rewrites the cashout pointer on a stale
// link and must not interleave with a settlement on the same account.
func (d *Dispatcher) handleBalance(ctx context.Context, u *user.User) *OutboundReply {
	lockKey := accountKey(u)
	mutex.Lock(lockKey)
	defer mutex.Unlock(lockKey)

	if u.Cashout == nil {
		return &OutboundReply{Text: fmt.Sprintf(i18n.Translate("balanceZeroMessage"), d.currency)}
	}
	c, err := d.provider.UpdatePayment(ctx, u.Cashout)
	if err != nil {
		return d.errorReply(err)
	}
	if c.Status != payment.StatusPending {
		u.SetCashout(nil)
		if err := d.users.Save(u); err != nil {
			return d.errorReply(err)
		}
		return &OutboundReply{Text: fmt.Sprintf(i18n.Translate("balanceZeroMessage"), d.currency)}
	}
	amount, err := currency.Parse(c.Amount)
	if err != nil {
		return d.errorReply(err)
	}
	if amount.IsZero() {
		return &OutboundReply{Text: i18n.Translate("cashoutNoBalanceMessage")}
	}
	if d.linkBase == "" {
		log.Warnf("[Dispatch] no link base url configured, %s gets no cashout link", u.Username())
		return &OutboundReply{Text: fmt.Sprintf(i18n.Translate("cashoutLinkUnavailableMessage"), d.currency, amount.String())}
	}
	link := payment.Link(d.linkBase, c)
	reply := &OutboundReply{Text: fmt.Sprintf(i18n.Translate("balanceMessage"), d.currency, amount.String(), link)}
	png, err := qrcode.Encode(link, qrcode.Medium, 256)
	if err != nil {
		log.Warnf("[Dispatch] could not render cashout qr for %s: %s", u.Username(), err.Error())
		return reply
	}
	reply.Image = png
	return reply
}

// depositSession tracks an open on-chain deposit address per user.
type depositSession struct {
	*storage.Base
	SessionId string `json:"sessionId"`
	OwnerId   string `json:"ownerId"`
	Address   string `json:"address"`
}

func newDepositSession(ownerId string) depositSession {
	return depositSession{
		Base:    storage.New(storage.ID("deposit-session:" + ownerId)),
		OwnerId: ownerId,
	}
}

// handleDeposit answers with two messages like the original bot did: the
// instructions first, then the bare address so it can be copied as-is.
func (d *Dispatcher) handleDeposit(ctx context.Context, u *user.User) []*OutboundReply {
	address, err := d.provider.RequestDepositAddress(ctx, u.OwnerId())
	if err != nil {
		log.Errorf("[Dispatch] could not get deposit address for %s: %s", u.Username(), err.Error())
		return []*OutboundReply{{Text: i18n.Translate("depositErrorMessage")}}
	}
	session := newDepositSession(u.OwnerId())
	session.SessionId = uuid.NewV4().String()
	session.Address = address
	if err := d.bunt.SetWithTTL(session, depositSessionTTL); err != nil {
		log.Errorf("[Dispatch] could not store deposit session of %s: %s", u.Username(), err.Error())
		return []*OutboundReply{{Text: i18n.Translate("depositErrorMessage")}}
	}
	return []*OutboundReply{
		{Text: i18n.Translate("depositStartMessage")},
		{Text: address},
	}
}

func (d *Dispatcher) handleDepositWait(u *user.User) []*OutboundReply {
	session := newDepositSession(u.OwnerId())
	if err := d.bunt.Get(&session); err != nil {
		return []*OutboundReply{{Text: i18n.Translate("depositNoSessionMessage")}}
	}
	if err := d.bunt.SetWithTTL(session, depositSessionTTL); err != nil {
		log.Errorf("[Dispatch] could not extend deposit session of %s: %s", u.Username(), err.Error())
		return []*OutboundReply{{Text: i18n.Translate("depositErrorMessage")}}
	}
	return []*OutboundReply{
		{Text: i18n.Translate("depositWaitMessage")},
		{Text: session.Address},
	}
}

func (d *Dispatcher) errorReply(err error) *OutboundReply {
	log.Errorf("[Dispatch] %s", err.Error())
	return &OutboundReply{Text: fmt.Sprintf(i18n.Translate("tipErrorMessage"), d.maintainer)}
}

func accountKey(u *user.User) string {
	return fmt.Sprintf("account:%d", u.ID)
}
