// Package twitter connects the bot to the Twitter Account Activity API:
// an outbound client for tweets and DMs plus the event handlers the
// webhook feeds.
package twitter

import (
	"fmt"

	"github.com/imroc/req"
	log "github.com/sirupsen/logrus"
)

const apiBaseUrl = "https://api.twitter.com/1.1"

// Client calls the Twitter REST API.
type Client struct {
	header req.Header
	url    string
}

func NewClient(bearerToken string) *Client {
	return &Client{
		url: apiBaseUrl,
		header: req.Header{
			"Content-Type":  "application/json",
			"Authorization": "Bearer " + bearerToken,
		},
	}
}

type dmEvent struct {
	Type          string `json:"type"`
	MessageCreate struct {
		Target struct {
			RecipientId string `json:"recipient_id"`
		} `json:"target"`
		MessageData struct {
			Text string `json:"text"`
		} `json:"message_data"`
	} `json:"message_create"`
}

// SendDM sends a direct message to the given user id.
func (c *Client) SendDM(recipientId, text string) error {
	var event dmEvent
	event.Type = "message_create"
	event.MessageCreate.Target.RecipientId = recipientId
	event.MessageCreate.MessageData.Text = text
	resp, err := req.Post(c.url+"/direct_messages/events/new.json", c.header, req.BodyJSON(struct {
		Event dmEvent `json:"event"`
	}{event}))
	if err != nil {
		return err
	}
	if err := checkStatus(resp); err != nil {
		return err
	}
	log.Debugf("[Twitter] sent dm to %s", recipientId)
	return nil
}

// Tweet posts a status, optionally as a reply.
func (c *Client) Tweet(status string, inReplyToId string) error {
	params := req.Param{"status": status}
	if inReplyToId != "" {
		params["in_reply_to_status_id"] = inReplyToId
	}
	resp, err := req.Post(c.url+"/statuses/update.json", c.header, params)
	if err != nil {
		return err
	}
	if err := checkStatus(resp); err != nil {
		return err
	}
	log.Debugf("[Twitter] sent tweet in reply to %s", inReplyToId)
	return nil
}

// TriggerCRC asks Twitter to re-run the CRC handshake on our webhook.
func (c *Client) TriggerCRC(env, webhookId string) error {
	resp, err := req.Put(fmt.Sprintf("%s/account_activity/all/%s/webhooks/%s.json", c.url, env, webhookId), c.header)
	if err != nil {
		return err
	}
	return checkStatus(resp)
}

// Subscribe subscribes the bot account to its own activity events.
func (c *Client) Subscribe(env string) error {
	resp, err := req.Post(fmt.Sprintf("%s/account_activity/all/%s/subscriptions.json", c.url, env), c.header)
	if err != nil {
		return err
	}
	return checkStatus(resp)
}

// GetSubscriptions lists active event subscriptions for the environment.
func (c *Client) GetSubscriptions(env string) (string, error) {
	resp, err := req.Get(fmt.Sprintf("%s/account_activity/all/%s/subscriptions/list.json", c.url, env), c.header)
	if err != nil {
		return "", err
	}
	if err := checkStatus(resp); err != nil {
		return "", err
	}
	return resp.String(), nil
}

func checkStatus(resp *req.Resp) error {
	if resp.Response().StatusCode >= 300 {
		return fmt.Errorf("twitter api error: %s: %s", resp.Response().Status, resp.String())
	}
	return nil
}
