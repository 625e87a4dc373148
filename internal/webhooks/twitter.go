// Package webhooks receives Twitter Account Activity callbacks: the CRC
// challenge handshake and the event payloads that drive the bot.
package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"

	log "github.com/sirupsen/logrus"

	"github.com/tipdai/tipdai/internal/api"
	"github.com/tipdai/tipdai/internal/runtime/queue"
	"github.com/tipdai/tipdai/internal/storage"
	"github.com/tipdai/tipdai/internal/twitter"
)

// EventHandler consumes the events the webhook unpacks.
type EventHandler interface {
	HandleTweet(ctx context.Context, t *twitter.Tweet)
	HandleDM(ctx context.Context, dm *twitter.DirectMessageEvent)
}

type Controller struct {
	service        EventHandler
	bunt           *storage.DB
	consumerSecret string
	botUserId      string
}

func NewController(service EventHandler, bunt *storage.DB, consumerSecret, botUserId string) *Controller {
	return &Controller{
		service:        service,
		bunt:           bunt,
		consumerSecret: consumerSecret,
		botUserId:      botUserId,
	}
}

func (c *Controller) Register(server *api.Server) {
	server.AppendRoute("/webhooks/twitter", c.HandleCRC, http.MethodGet)
	server.AppendRoute("/webhooks/twitter", c.HandleEvents, http.MethodPost)
}

type crcResponse struct {
	ResponseToken string `json:"response_token"`
}

// HandleCRC answers Twitter's challenge-response check: the consumer
// secret signs the challenge token with HMAC-SHA256.
func (c *Controller) HandleCRC(w http.ResponseWriter, r *http.Request) {
	crcToken := r.URL.Query().Get("crc_token")
	if crcToken == "" {
		http.Error(w, "missing crc_token", http.StatusBadRequest)
		return
	}
	mac := hmac.New(sha256.New, []byte(c.consumerSecret))
	mac.Write([]byte(crcToken))
	responseToken := "sha256=" + base64.StdEncoding.EncodeToString(mac.Sum(nil))
	log.Infof("[Webhooks] got CRC, responding with %s", responseToken)
	if err := api.WriteResponse(w, crcResponse{ResponseToken: responseToken}); err != nil {
		log.Errorf("[Webhooks] could not write crc response: %s", err.Error())
	}
}

type eventsPayload struct {
	ForUserId           string                        `json:"for_user_id"`
	TweetCreateEvents   []*twitter.Tweet              `json:"tweet_create_events"`
	DirectMessageEvents []*twitter.DirectMessageEvent `json:"direct_message_events"`
}

// HandleEvents fans inbound events out to per-sender serial queues.
// Twitter redelivers events it thinks got lost, so each channel keeps a
// persisted high-water mark and anything at or below it is dropped.
func (c *Controller) HandleEvents(w http.ResponseWriter, r *http.Request) {
	var payload eventsPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	for _, t := range payload.TweetCreateEvents {
		if t.User.IdStr == c.botUserId {
			continue
		}
		if !c.advanceMark("twitter:tweets:"+t.User.IdStr, t.Id) {
			log.Debugf("[Webhooks] dropping already seen tweet %s", t.IdStr)
			continue
		}
		t := t
		queue.Serial("twitter:" + t.User.IdStr).Submit(func() {
			c.service.HandleTweet(context.Background(), t)
		})
	}
	for _, dm := range payload.DirectMessageEvents {
		senderId := dm.MessageCreate.SenderId
		if senderId == c.botUserId {
			continue
		}
		ts, err := strconv.ParseInt(dm.CreatedTimestamp, 10, 64)
		if err != nil {
			log.Warnf("[Webhooks] dm %s has no usable timestamp: %s", dm.Id, dm.CreatedTimestamp)
			ts = 0
		}
		if ts > 0 && !c.advanceMark("twitter:dms:"+senderId, ts) {
			log.Debugf("[Webhooks] dropping already seen dm %s", dm.Id)
			continue
		}
		dm := dm
		queue.Serial("twitter:" + senderId).Submit(func() {
			c.service.HandleDM(context.Background(), dm)
		})
	}
	w.WriteHeader(http.StatusOK)
}

// highWaterMark remembers the newest event id seen on one channel.
type highWaterMark struct {
	*storage.Base
	Seen int64 `json:"seen"`
}

func markOf(channel string) highWaterMark {
	return highWaterMark{Base: storage.New(storage.ID("hwm:" + channel))}
}

// advanceMark reports whether id is new for the channel and persists it
// when it is.
func (c *Controller) advanceMark(channel string, id int64) bool {
	mark := markOf(channel)
	if err := c.bunt.Get(&mark); err != nil {
		mark.Seen = 0
	}
	if id <= mark.Seen {
		return false
	}
	mark.Seen = id
	if err := mark.Set(&mark, c.bunt); err != nil {
		log.Errorf("[Webhooks] could not persist high-water mark of %s: %s", channel, err.Error())
	}
	return true
}
