// Package telegram runs the Telegram side of the bot on a long poller:
// tip-by-mention in group chats and the private command surface in DMs.
package telegram

import (
	"bytes"
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	tb "gopkg.in/lightningtipbot/telebot.v3"

	"github.com/tipdai/tipdai/internal"
	"github.com/tipdai/tipdai/internal/dispatch"
	"github.com/tipdai/tipdai/internal/i18n"
	"github.com/tipdai/tipdai/internal/pattern"
	"github.com/tipdai/tipdai/internal/rate"
	"github.com/tipdai/tipdai/internal/user"
)

// Users resolves telegram identities to ledger users.
type Users interface {
	GetByTelegramId(telegramId int64, username string) (*user.User, error)
	GetByTelegramUsername(username string) (*user.User, error)
}

type Bot struct {
	Telegram   *tb.Bot
	dispatcher *dispatch.Dispatcher
	users      Users
	tipPattern *pattern.TipPattern
}

// NewBot creates the telegram bot on a long poller.
func NewBot(dispatcher *dispatch.Dispatcher, users Users) *Bot {
	tgb, err := tb.NewBot(tb.Settings{
		Token:  internal.Configuration.Telegram.ApiKey,
		Poller: &tb.LongPoller{Timeout: 60 * time.Second},
	})
	if err != nil {
		panic(err)
	}
	engine := pattern.NewEngine(internal.Configuration.Bot.CurrencyCode)
	return &Bot{
		Telegram:   tgb,
		dispatcher: dispatcher,
		users:      users,
		tipPattern: engine.TelegramQuery(internal.Configuration.Telegram.BotUsername),
	}
}

// Start registers the handlers and blocks on the poller.
func (bot *Bot) Start() {
	bot.Telegram.Handle(tb.OnText, bot.handleText)
	log.Infof("[Telegram] bot %s started", internal.Configuration.Telegram.BotUsername)
	bot.Telegram.Start()
}

func (bot *Bot) handleText(c tb.Context) error {
	if c.Message() == nil || c.Sender() == nil {
		return nil
	}
	if c.Message().Private() {
		return bot.handlePrivate(c)
	}
	return bot.handleGroup(c)
}

// handleGroup settles tips sent as "@BotName @recipient GZE5" messages
// in group chats. Non-tip messages are ignored.
func (bot *Bot) handleGroup(c tb.Context) error {
	req, ok := bot.tipPattern.Extract(c.Message().Text)
	if !ok {
		return nil
	}
	sender, err := bot.users.GetByTelegramId(c.Sender().ID, c.Sender().Username)
	if err != nil {
		log.Errorf("[Telegram] could not load sender %d: %s", c.Sender().ID, err.Error())
		return nil
	}
	recipient, err := bot.users.GetByTelegramUsername(req.RecipientHandle)
	if err != nil {
		log.Infof("[Telegram] unknown tip recipient @%s", req.RecipientHandle)
		bot.tryReplyMessage(c.Message(), fmt.Sprintf(i18n.Translate("unknownRecipientMessage"), req.RecipientHandle))
		return nil
	}
	outcome := bot.dispatcher.HandlePublicMessage(context.Background(), sender, recipient, req)
	bot.tryReplyMessage(c.Message(), outcome.Text)
	return nil
}

func (bot *Bot) handlePrivate(c tb.Context) error {
	sender, err := bot.users.GetByTelegramId(c.Sender().ID, c.Sender().Username)
	if err != nil {
		log.Errorf("[Telegram] could not load sender %d: %s", c.Sender().ID, err.Error())
		return nil
	}
	for _, reply := range bot.dispatcher.HandlePrivateMessage(context.Background(), sender, c.Message().Text) {
		if reply.Image != nil {
			photo := &tb.Photo{File: tb.FromReader(bytes.NewReader(reply.Image)), Caption: reply.Text}
			bot.trySendMessage(c.Sender(), photo)
			continue
		}
		bot.trySendMessage(c.Sender(), reply.Text)
	}
	return nil
}

func (bot *Bot) trySendMessage(to tb.Recipient, what interface{}, options ...interface{}) (msg *tb.Message) {
	rate.CheckLimit("telegram:" + to.Recipient())
	msg, err := bot.Telegram.Send(to, what, options...)
	if err != nil {
		log.Warnln(err.Error())
	}
	return
}

func (bot *Bot) tryReplyMessage(to *tb.Message, what interface{}, options ...interface{}) (msg *tb.Message) {
	rate.CheckLimit("telegram:" + to.Sender.Recipient())
	msg, err := bot.Telegram.Reply(to, what, options...)
	if err != nil {
		log.Warnln(err.Error())
	}
	return
}
