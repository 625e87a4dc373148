package twitter

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/tipdai/tipdai/internal/dispatch"
	"github.com/tipdai/tipdai/internal/i18n"
	"github.com/tipdai/tipdai/internal/pattern"
	"github.com/tipdai/tipdai/internal/rate"
	"github.com/tipdai/tipdai/internal/user"
)

// Api is the outbound surface of Client the service needs.
type Api interface {
	SendDM(recipientId, text string) error
	Tweet(status string, inReplyToId string) error
	TriggerCRC(env, webhookId string) error
}

// Users resolves twitter identities to ledger users.
type Users interface {
	GetByTwitterId(twitterId, screenName string) (*user.User, error)
	GetByTwitterScreenName(screenName string) (*user.User, error)
}

// Service handles tweet and DM events for the bot account.
type Service struct {
	client        Api
	dispatcher    *dispatch.Dispatcher
	users         Users
	tipPattern    *pattern.TipPattern
	botUserId     string
	botScreenName string
	webhookEnv    string
	webhookId     string
}

func NewService(client Api, dispatcher *dispatch.Dispatcher, users Users, tipPattern *pattern.TipPattern, botUserId, botScreenName, webhookEnv, webhookId string) *Service {
	return &Service{
		client:        client,
		dispatcher:    dispatcher,
		users:         users,
		tipPattern:    tipPattern,
		botUserId:     botUserId,
		botScreenName: botScreenName,
		webhookEnv:    webhookEnv,
		webhookId:     webhookId,
	}
}

// HandleTweet parses a mention tweet for a tip and replies in-thread
// with the settlement outcome. Tweets that don't encode a tip are
// dropped silently.
func (s *Service) HandleTweet(ctx context.Context, t *Tweet) {
	if t.User.IdStr == s.botUserId {
		return
	}
	req, ok := s.tipPattern.Extract(t.FullText())
	if !ok {
		log.Tracef("[Twitter] tweet %s from %s is not a tip", t.IdStr, t.User.ScreenName)
		return
	}
	sender, err := s.users.GetByTwitterId(t.User.IdStr, t.User.ScreenName)
	if err != nil {
		log.Errorf("[Twitter] could not load sender %s: %s", t.User.IdStr, err.Error())
		return
	}
	recipient, err := s.resolveRecipient(t, req.RecipientHandle)
	if err != nil {
		log.Infof("[Twitter] unknown tip recipient @%s in tweet %s", req.RecipientHandle, t.IdStr)
		s.reply(t, fmt.Sprintf(i18n.Translate("unknownRecipientMessage"), req.RecipientHandle))
		return
	}
	outcome := s.dispatcher.HandlePublicMessage(ctx, sender, recipient, req)
	s.reply(t, outcome.Text)
}

// resolveRecipient prefers the mention entity matching the extracted
// handle since it carries the stable user id; a plain-text handle with
// no entity falls back to a name lookup of already-known users.
func (s *Service) resolveRecipient(t *Tweet, handle string) (*user.User, error) {
	for _, m := range t.Entities.UserMentions {
		if m.IdStr == s.botUserId {
			continue
		}
		if strings.EqualFold(m.ScreenName, handle) {
			return s.users.GetByTwitterId(m.IdStr, m.ScreenName)
		}
	}
	return s.users.GetByTwitterScreenName(handle)
}

func (s *Service) reply(t *Tweet, text string) {
	rate.CheckLimit("twitter:" + t.User.IdStr)
	status := fmt.Sprintf("@%s %s", t.User.ScreenName, text)
	if err := s.client.Tweet(status, t.IdStr); err != nil {
		log.Errorf("[Twitter] could not reply to tweet %s: %s", t.IdStr, err.Error())
	}
}

// HandleDM runs the private command surface over direct messages. Link
// payments usually arrive as a shortened t.co url, so the expanded urls
// are appended to the text before parsing.
func (s *Service) HandleDM(ctx context.Context, dm *DirectMessageEvent) {
	senderId := dm.MessageCreate.SenderId
	if senderId == s.botUserId {
		return
	}
	text := dm.MessageCreate.MessageData.Text
	for _, u := range dm.MessageCreate.MessageData.Entities.Urls {
		text += " " + u.ExpandedUrl
	}

	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(text)), "crc") {
		s.sendDM(senderId, s.handleCRC())
		return
	}

	sender, err := s.users.GetByTwitterId(senderId, "")
	if err != nil {
		log.Errorf("[Twitter] could not load dm sender %s: %s", senderId, err.Error())
		return
	}
	for _, reply := range s.dispatcher.HandlePrivateMessage(ctx, sender, text) {
		s.sendDM(senderId, reply.Text)
	}
}

func (s *Service) handleCRC() string {
	if err := s.client.TriggerCRC(s.webhookEnv, s.webhookId); err != nil {
		log.Errorf("[Twitter] crc trigger failed: %s", err.Error())
		return "CRC didn't go so well.."
	}
	return "Successfully triggered CRC!"
}

func (s *Service) sendDM(recipientId, text string) {
	rate.CheckLimit("twitter:" + recipientId)
	if err := s.client.SendDM(recipientId, text); err != nil {
		log.Errorf("[Twitter] could not send dm to %s: %s", recipientId, err.Error())
	}
}
