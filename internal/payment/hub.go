package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/imroc/req"
	log "github.com/sirupsen/logrus"

	"github.com/tipdai/tipdai/internal/currency"
)

// HubClient talks to the payment hub's HTTP API.
type HubClient struct {
	client *req.Req
	header req.Header
	url    string
}

// NewHubClient returns a new payment hub api client. Requests carry a
// 30s timeout so a stuck hub can't hold a settlement lock forever.
func NewHubClient(key, url string) *HubClient {
	client := req.New()
	client.SetTimeout(30 * time.Second)
	return &HubClient{
		client: client,
		url:    url,
		header: req.Header{
			"Content-Type":  "application/json",
			"Accept":        "application/json",
			"Authorization": "Bearer " + key,
		},
	}
}

type hubError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Code    int    `json:"code"`
	Status  int    `json:"status"`
}

func (err hubError) Error() string {
	return err.Message
}

type hubPayment struct {
	PaymentId string `json:"paymentId"`
	Secret    string `json:"secret"`
	Amount    string `json:"amount"`
	Status    Status `json:"status"`
}

func (c *HubClient) CreatePayment(ctx context.Context, amount currency.Amount, ownerId string) (*Cashout, error) {
	resp, err := c.client.Post(c.url+"/api/payments", c.header, req.BodyJSON(struct {
		Amount    string `json:"amount"`
		Recipient string `json:"recipient"`
	}{amount.String(), ownerId}))
	if err != nil {
		return nil, err
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	var p hubPayment
	if err := resp.ToJSON(&p); err != nil {
		return nil, err
	}
	log.Debugf("[Hub] created payment %s over %s", p.PaymentId, p.Amount)
	return &Cashout{
		PaymentId: p.PaymentId,
		Secret:    p.Secret,
		Amount:    p.Amount,
		Status:    p.Status,
	}, nil
}

func (c *HubClient) RedeemPayment(ctx context.Context, cashout *Cashout) (currency.Amount, error) {
	resp, err := c.client.Post(c.url+"/api/payments/"+cashout.PaymentId+"/redeem", c.header, req.BodyJSON(struct {
		Secret string `json:"secret"`
	}{cashout.Secret}))
	if err != nil {
		return currency.Zero(), err
	}
	if err := checkStatus(resp); err != nil {
		return currency.Zero(), err
	}
	var p hubPayment
	if err := resp.ToJSON(&p); err != nil {
		return currency.Zero(), err
	}
	amount, err := currency.Parse(p.Amount)
	if err != nil {
		return currency.Zero(), fmt.Errorf("hub returned unparseable amount for %s: %v", cashout.PaymentId, err)
	}
	log.Debugf("[Hub] redeemed payment %s over %s", cashout.PaymentId, p.Amount)
	return amount, nil
}

func (c *HubClient) UpdatePayment(ctx context.Context, cashout *Cashout) (*Cashout, error) {
	resp, err := c.client.Get(c.url+"/api/payments/"+cashout.PaymentId, c.header)
	if err != nil {
		return nil, err
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	var p hubPayment
	if err := resp.ToJSON(&p); err != nil {
		return nil, err
	}
	cashout.Amount = p.Amount
	cashout.Status = p.Status
	return cashout, nil
}

func (c *HubClient) RequestDepositAddress(ctx context.Context, ownerId string) (string, error) {
	resp, err := c.client.Post(c.url+"/api/deposits", c.header, req.BodyJSON(struct {
		Recipient string `json:"recipient"`
	}{ownerId}))
	if err != nil {
		return "", err
	}
	if err := checkStatus(resp); err != nil {
		return "", err
	}
	var d struct {
		Address string `json:"address"`
	}
	if err := resp.ToJSON(&d); err != nil {
		return "", err
	}
	return d.Address, nil
}

func checkStatus(resp *req.Resp) error {
	if resp.Response().StatusCode >= 300 {
		var reqErr hubError
		resp.ToJSON(&reqErr)
		if reqErr.Message == "" {
			reqErr.Message = resp.Response().Status
		}
		return reqErr
	}
	return nil
}
