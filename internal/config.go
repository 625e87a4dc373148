package internal

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/jinzhu/configor"
	log "github.com/sirupsen/logrus"
)

var Configuration = struct {
	Bot      BotConfiguration      `yaml:"bot"`
	Twitter  TwitterConfiguration  `yaml:"twitter"`
	Telegram TelegramConfiguration `yaml:"telegram"`
	Database DatabaseConfiguration `yaml:"database"`
	Hub      HubConfiguration      `yaml:"hub"`
}{}

type BotConfiguration struct {
	Name         string   `yaml:"name" default:"TipDai"`
	Maintainer   string   `yaml:"maintainer"`
	CurrencyCode string   `yaml:"currency_code" default:"GZE"`
	LinkBaseUrl  string   `yaml:"link_base_url"`
	LinkBase     *url.URL `yaml:"-"`
	ListenAddr   string   `yaml:"listen_addr" default:"0.0.0.0:3000"`
}

type TwitterConfiguration struct {
	BotUserId      string `yaml:"bot_user_id"`
	BotScreenName  string `yaml:"bot_screen_name"`
	BearerToken    string `yaml:"bearer_token"`
	ConsumerSecret string `yaml:"consumer_secret"`
	WebhookEnv     string `yaml:"webhook_env" default:"test"`
	WebhookId      string `yaml:"webhook_id"`
}

type TelegramConfiguration struct {
	ApiKey      string `yaml:"api_key"`
	BotUsername string `yaml:"bot_username"`
	WebhookPath string `yaml:"webhook_path"`
}

type DatabaseConfiguration struct {
	DbPath           string `yaml:"db_path" default:"data/tipdai.db"`
	TransactionsPath string `yaml:"transactions_path" default:"data/transactions.db"`
	BuntDbPath       string `yaml:"buntdb_path" default:"data/tipdai.bunt.db"`
}

type HubConfiguration struct {
	Url       string `yaml:"url"`
	ApiKey    string `yaml:"api_key"`
	PublicUrl string `yaml:"public_url"`
}

// Load reads config.yaml into Configuration. Called once from main.
func Load() {
	err := configor.Load(&Configuration, "config.yaml")
	if err != nil {
		panic(err)
	}
	linkBase, err := url.Parse(Configuration.Bot.LinkBaseUrl)
	if err != nil {
		panic(err)
	}
	Configuration.Bot.LinkBase = linkBase
	checkHubConfiguration()
}

func checkHubConfiguration() {
	if Configuration.Hub.Url == "" {
		panic(fmt.Errorf("please configure a payment hub url"))
	}
	if Configuration.Bot.LinkBaseUrl == "" {
		log.Warnf("Please specify a link base url otherwise users won't get cashout links")
	}
	if Configuration.Hub.PublicUrl != "" && !strings.HasSuffix(Configuration.Hub.PublicUrl, "/") {
		Configuration.Hub.PublicUrl = Configuration.Hub.PublicUrl + "/"
	}
}
