package main

import (
	"net/http"
	_ "net/http/pprof"
	"runtime/debug"

	log "github.com/sirupsen/logrus"

	"github.com/tipdai/tipdai/internal"
	"github.com/tipdai/tipdai/internal/api"
	"github.com/tipdai/tipdai/internal/database"
	"github.com/tipdai/tipdai/internal/dispatch"
	"github.com/tipdai/tipdai/internal/pattern"
	"github.com/tipdai/tipdai/internal/payment"
	"github.com/tipdai/tipdai/internal/rate"
	"github.com/tipdai/tipdai/internal/storage"
	"github.com/tipdai/tipdai/internal/telegram"
	"github.com/tipdai/tipdai/internal/tip"
	"github.com/tipdai/tipdai/internal/twitter"
	"github.com/tipdai/tipdai/internal/user"
	"github.com/tipdai/tipdai/internal/webhooks"
)

// setLogger will initialize the log format
func setLogger() {
	log.SetLevel(log.DebugLevel)
	customFormatter := new(log.TextFormatter)
	customFormatter.TimestampFormat = "2006-01-02 15:04:05"
	customFormatter.FullTimestamp = true
	log.SetFormatter(customFormatter)
}

func main() {
	// set logger
	setLogger()

	defer withRecovery()
	internal.Load()
	conf := internal.Configuration

	ledger, transactions := database.AutoMigration(conf.Database.DbPath, conf.Database.TransactionsPath)
	bunt := storage.NewBunt(conf.Database.BuntDbPath)
	rate.Start()

	hub := payment.NewHubClient(conf.Hub.ApiKey, conf.Hub.Url)
	users := user.NewRepository(ledger)
	engine := tip.NewEngine(users, tip.NewGormStore(transactions), hub, conf.Bot.CurrencyCode, conf.Bot.Maintainer)
	dispatcher := dispatch.NewDispatcher(engine, hub, users, bunt, conf.Bot.LinkBaseUrl, conf.Bot.CurrencyCode, conf.Bot.Maintainer)

	startApiServer(dispatcher, users, bunt)

	bot := telegram.NewBot(dispatcher, users)
	bot.Start()
}

func startApiServer(dispatcher *dispatch.Dispatcher, users *user.Repository, bunt *storage.DB) {
	conf := internal.Configuration
	patterns := pattern.NewEngine(conf.Bot.CurrencyCode)

	client := twitter.NewClient(conf.Twitter.BearerToken)
	service := twitter.NewService(client, dispatcher, users,
		patterns.Twitter(conf.Twitter.BotScreenName),
		conf.Twitter.BotUserId, conf.Twitter.BotScreenName,
		conf.Twitter.WebhookEnv, conf.Twitter.WebhookId)

	server := api.NewServer(conf.Bot.ListenAddr)
	webhooks.NewController(service, bunt, conf.Twitter.ConsumerSecret, conf.Twitter.BotUserId).Register(server)
	server.PathPrefix("/debug/pprof/", http.DefaultServeMux)

	if conf.Twitter.WebhookEnv != "" {
		if subs, err := client.GetSubscriptions(conf.Twitter.WebhookEnv); err != nil {
			log.Warnf("[main] could not list twitter subscriptions: %s", err.Error())
		} else {
			log.Infof("[main] twitter subscriptions: %s", subs)
		}
		if err := client.Subscribe(conf.Twitter.WebhookEnv); err != nil {
			log.Warnf("[main] could not subscribe to twitter events: %s", err.Error())
		}
	}
}

func withRecovery() {
	if r := recover(); r != nil {
		log.Errorln("Recovered panic: ", r)
		debug.PrintStack()
	}
}
