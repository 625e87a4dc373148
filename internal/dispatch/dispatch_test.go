package dispatch

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tipdai/tipdai/internal/currency"
	"github.com/tipdai/tipdai/internal/pattern"
	"github.com/tipdai/tipdai/internal/payment"
	"github.com/tipdai/tipdai/internal/runtime/mutex"
	"github.com/tipdai/tipdai/internal/storage"
	"github.com/tipdai/tipdai/internal/tip"
	"github.com/tipdai/tipdai/internal/user"
)

type fakeProvider struct {
	nextId     int
	payments   map[string]*payment.Cashout
	redeemErr  error
	depositErr error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{payments: map[string]*payment.Cashout{}}
}

func (p *fakeProvider) issue(amount string) *payment.Cashout {
	p.nextId++
	c := &payment.Cashout{
		ID:        uint(p.nextId),
		PaymentId: fmt.Sprintf("0x%064x", p.nextId),
		Secret:    fmt.Sprintf("0x%064x", 1000+p.nextId),
		Amount:    amount,
		Status:    payment.StatusPending,
	}
	p.payments[c.PaymentId] = c
	return c
}

func (p *fakeProvider) CreatePayment(_ context.Context, amount currency.Amount, _ string) (*payment.Cashout, error) {
	return p.issue(amount.String()), nil
}

func (p *fakeProvider) RedeemPayment(_ context.Context, c *payment.Cashout) (currency.Amount, error) {
	if p.redeemErr != nil {
		return currency.Zero(), p.redeemErr
	}
	known, ok := p.payments[c.PaymentId]
	if !ok || known.Status != payment.StatusPending || known.Secret != c.Secret {
		return currency.Zero(), fmt.Errorf("payment %s not redeemable", c.PaymentId)
	}
	known.Status = payment.StatusRedeemed
	return currency.MustParse(known.Amount), nil
}

func (p *fakeProvider) UpdatePayment(_ context.Context, c *payment.Cashout) (*payment.Cashout, error) {
	known, ok := p.payments[c.PaymentId]
	if !ok {
		return nil, fmt.Errorf("payment %s not found", c.PaymentId)
	}
	c.Amount = known.Amount
	c.Status = known.Status
	return c, nil
}

func (p *fakeProvider) RequestDepositAddress(_ context.Context, _ string) (string, error) {
	if p.depositErr != nil {
		return "", p.depositErr
	}
	return "0xdeadbeef", nil
}

type fakeSettler struct {
	calls  int
	amount string
	reply  string
	result tip.Result
}

func (s *fakeSettler) Settle(_ context.Context, _ *user.User, _ *user.User, amount string, _ string) (string, tip.Result) {
	s.calls++
	s.amount = amount
	return s.reply, s.result
}

type fakeUserSaver struct {
	saved []*user.User
}

func (s *fakeUserSaver) Save(u *user.User) error {
	s.saved = append(s.saved, u)
	return nil
}

func newTestDispatcher(t *testing.T, settler Settler, provider payment.Provider) (*Dispatcher, *fakeUserSaver) {
	t.Helper()
	users := &fakeUserSaver{}
	bunt := storage.NewBunt(":memory:")
	t.Cleanup(func() { bunt.Close() })
	return NewDispatcher(settler, provider, users, bunt, "https://pay.example.com/redeem", "GZE", "maintainer"), users
}

func testUser(id uint, name string) *user.User {
	return &user.User{ID: id, TwitterName: &name}
}

func tipRequest(amount string) *pattern.TipRequest {
	return &pattern.TipRequest{RecipientHandle: "bob", AmountToken: "$" + amount, Amount: amount, RawMessage: "@TipDai @bob $" + amount}
}

func onlyReply(t *testing.T, replies []*OutboundReply) *OutboundReply {
	t.Helper()
	require.Len(t, replies, 1)
	return replies[0]
}

func TestPublicMessageRunsSettlement(t *testing.T) {
	settler := &fakeSettler{reply: "done", result: tip.ResultSuccess}
	d, _ := newTestDispatcher(t, settler, newFakeProvider())

	reply := d.HandlePublicMessage(context.Background(), testUser(1, "alice"), testUser(2, "bob"), tipRequest("2"))
	assert.Equal(t, "done", reply.Text)
	assert.Equal(t, 1, settler.calls)
	assert.Equal(t, "2", settler.amount)
}

func TestPublicMessageSelfTipNeverSettles(t *testing.T) {
	settler := &fakeSettler{}
	d, _ := newTestDispatcher(t, settler, newFakeProvider())

	reply := d.HandlePublicMessage(context.Background(), testUser(1, "alice"), testUser(1, "alice"), tipRequest("2"))
	assert.Contains(t, reply.Text, "yourself")
	assert.Zero(t, settler.calls)
}

func TestLinkDepositCreatesBalance(t *testing.T) {
	provider := newFakeProvider()
	d, users := newTestDispatcher(t, &fakeSettler{}, provider)
	u := testUser(1, "alice")
	link := payment.Link("https://pay.example.com/redeem", provider.issue("3"))

	reply := onlyReply(t, d.HandlePrivateMessage(context.Background(), u, link))
	assert.Contains(t, reply.Text, "GZE3")
	require.NotNil(t, u.Cashout)
	assert.Equal(t, "3", u.Cashout.Amount)
	assert.Contains(t, users.saved, u)
}

func TestLinkDepositMergesExistingBalance(t *testing.T) {
	provider := newFakeProvider()
	d, _ := newTestDispatcher(t, &fakeSettler{}, provider)
	u := testUser(1, "alice")
	u.SetCashout(provider.issue("1.5"))
	link := payment.Link("https://pay.example.com/redeem", provider.issue("3"))

	reply := onlyReply(t, d.HandlePrivateMessage(context.Background(), u, link))
	assert.Contains(t, reply.Text, "GZE4.5")
	assert.Equal(t, "4.5", u.Cashout.Amount)
}

func TestLinkDepositSpentLink(t *testing.T) {
	provider := newFakeProvider()
	d, users := newTestDispatcher(t, &fakeSettler{}, provider)
	u := testUser(1, "alice")
	spent := provider.issue("3")
	spent.Status = payment.StatusRedeemed
	link := payment.Link("https://pay.example.com/redeem", spent)

	reply := onlyReply(t, d.HandlePrivateMessage(context.Background(), u, link))
	assert.Contains(t, reply.Text, "couldn't be redeemed")
	assert.Nil(t, u.Cashout)
	assert.Empty(t, users.saved)
}

func TestBalanceWithoutCashout(t *testing.T) {
	d, _ := newTestDispatcher(t, &fakeSettler{}, newFakeProvider())

	reply := onlyReply(t, d.HandlePrivateMessage(context.Background(), testUser(1, "alice"), "balance"))
	assert.Contains(t, reply.Text, "GZE0.00")
}

func TestBalanceReportsLinkAndQr(t *testing.T) {
	provider := newFakeProvider()
	d, _ := newTestDispatcher(t, &fakeSettler{}, provider)
	u := testUser(1, "alice")
	u.SetCashout(provider.issue("2.5"))

	reply := onlyReply(t, d.HandlePrivateMessage(context.Background(), u, "Balance"))
	assert.Contains(t, reply.Text, "GZE2.5")
	assert.Contains(t, reply.Text, "paymentId="+u.Cashout.PaymentId)
	assert.NotEmpty(t, reply.Image)
}

func TestBalanceCommandAliases(t *testing.T) {
	provider := newFakeProvider()
	d, _ := newTestDispatcher(t, &fakeSettler{}, provider)
	u := testUser(1, "alice")
	u.SetCashout(provider.issue("2.5"))

	// the command surface matches on prefix like the original bot
	for _, text := range []string{"refresh", "Refresh my balance", "balance please", "cashout"} {
		reply := onlyReply(t, d.HandlePrivateMessage(context.Background(), u, text))
		assert.Contains(t, reply.Text, "GZE2.5", text)
	}
}

func TestBalanceClearsStaleCashout(t *testing.T) {
	provider := newFakeProvider()
	d, users := newTestDispatcher(t, &fakeSettler{}, provider)
	u := testUser(1, "alice")
	c := provider.issue("2.5")
	u.SetCashout(c)
	// redeemed out of band, the stored record is stale
	provider.payments[c.PaymentId].Status = payment.StatusRedeemed

	reply := onlyReply(t, d.HandlePrivateMessage(context.Background(), u, "balance"))
	assert.Contains(t, reply.Text, "GZE0.00")
	assert.Nil(t, u.Cashout)
	assert.Contains(t, users.saved, u)
}

func TestBalanceWithoutLinkBase(t *testing.T) {
	provider := newFakeProvider()
	users := &fakeUserSaver{}
	bunt := storage.NewBunt(":memory:")
	t.Cleanup(func() { bunt.Close() })
	d := NewDispatcher(&fakeSettler{}, provider, users, bunt, "", "GZE", "maintainer")
	u := testUser(1, "alice")
	u.SetCashout(provider.issue("2.5"))

	reply := onlyReply(t, d.HandlePrivateMessage(context.Background(), u, "balance"))
	assert.Contains(t, reply.Text, "GZE2.5")
	assert.NotContains(t, reply.Text, "paymentId=")
	assert.NotContains(t, reply.Text, "never happen")
	// the cashout pointer stays untouched, only the link is unavailable
	require.NotNil(t, u.Cashout)
	assert.Empty(t, users.saved)
}

func TestBalanceWaitsForAccountLock(t *testing.T) {
	provider := newFakeProvider()
	d, _ := newTestDispatcher(t, &fakeSettler{}, provider)
	u := testUser(77, "alice")
	u.SetCashout(provider.issue("2"))

	// simulate a settlement holding the account: balance must queue
	// behind it instead of reading mid-settlement state
	mutex.Lock("account:77")
	done := make(chan []*OutboundReply, 1)
	go func() {
		done <- d.HandlePrivateMessage(context.Background(), u, "balance")
	}()
	select {
	case <-done:
		t.Fatal("balance ran while the account was locked")
	case <-time.After(100 * time.Millisecond):
	}
	mutex.Unlock("account:77")
	select {
	case replies := <-done:
		assert.Contains(t, onlyReply(t, replies).Text, "GZE2")
	case <-time.After(2 * time.Second):
		t.Fatal("balance never finished after the lock was released")
	}
}

func TestDepositStartAndWait(t *testing.T) {
	d, _ := newTestDispatcher(t, &fakeSettler{}, newFakeProvider())
	u := testUser(1, "alice")

	// two messages like the original: instructions, then the address
	replies := d.HandlePrivateMessage(context.Background(), u, "deposit")
	require.Len(t, replies, 2)
	assert.Contains(t, replies[0].Text, "deposit")
	assert.Equal(t, "0xdeadbeef", replies[1].Text)

	replies = d.HandlePrivateMessage(context.Background(), u, "wait")
	require.Len(t, replies, 2)
	assert.Contains(t, replies[0].Text, "extended")
	assert.Equal(t, "0xdeadbeef", replies[1].Text)
}

func TestDepositWaitWithoutSession(t *testing.T) {
	d, _ := newTestDispatcher(t, &fakeSettler{}, newFakeProvider())

	reply := onlyReply(t, d.HandlePrivateMessage(context.Background(), testUser(1, "alice"), "wait"))
	assert.Contains(t, reply.Text, "No deposit found")
}

func TestUnknownPrivateMessage(t *testing.T) {
	d, _ := newTestDispatcher(t, &fakeSettler{}, newFakeProvider())

	reply := onlyReply(t, d.HandlePrivateMessage(context.Background(), testUser(1, "alice"), "hello there"))
	assert.True(t, strings.HasPrefix(reply.Text, "Huh?"))
}
