// Package pattern builds the per-platform matchers that recognize tip
// messages like "@TipDai send @alice $5 please." and extracts who gets
// tipped and how much.
//
// Every compiled pattern carries exactly three capture groups in fixed
// order: recipient handle, full amount token (currency prefix included)
// and bare numeric amount. Callers never touch group indices directly,
// they go through Extract.
package pattern

import (
	"regexp"
)

const (
	handleToken    = `[a-zA-Z0-9_-]+`
	discordIdToken = `[0-9]{17,19}`
)

// TipRequest is the parsed form of a tip message. It is ephemeral and
// never persisted; the Tip audit record is written by the settlement
// engine.
type TipRequest struct {
	RecipientHandle string
	AmountToken     string
	Amount          string
	RawMessage      string
}

type Platform string

const (
	PlatformTwitter  Platform = "twitter"
	PlatformTelegram Platform = "telegram"
	PlatformDiscord  Platform = "discord"
)

// Engine builds tip patterns for a given currency code. An empty code
// leaves only the dollar sign as recognized amount prefix.
type Engine struct {
	CurrencyCode string
}

func NewEngine(currencyCode string) *Engine {
	return &Engine{CurrencyCode: currencyCode}
}

// TipPattern matches one platform's tip message dialect.
type TipPattern struct {
	Platform Platform
	re       *regexp.Regexp
}

// amountToken recognizes "$5", "GZE5", "$GZE 0.10" or plain "0.10".
// Only up to two fractional digits are part of the match, longer
// fractions are cut off, not rounded.
func (e *Engine) amountToken() string {
	code := ``
	if e.CurrencyCode != "" {
		code = `(?:` + regexp.QuoteMeta(e.CurrencyCode) + `\s?)?`
	}
	return `([$]?` + code + `([0-9]+\.?[0-9]{0,2}))`
}

// twitterMention yields an "@handle" token. A named mention anchors on
// the bot itself and does not capture; the recipient mention captures.
func twitterMention(username string, capture bool) string {
	if username != "" {
		return `@(?:` + regexp.QuoteMeta(username) + `)`
	}
	if capture {
		return `@(` + handleToken + `)`
	}
	return `@(?:` + handleToken + `)`
}

// discordMention yields a "<@!id>" or "<@id>" token.
func discordMention(userId string, capture bool) string {
	if userId != "" {
		return `<@!?(?:` + regexp.QuoteMeta(userId) + `)>`
	}
	if capture {
		return `<@!?(` + discordIdToken + `)>`
	}
	return `<@!?(?:` + discordIdToken + `)>`
}

// Twitter matches tweets mentioning the bot, then a recipient, then an
// amount. The greedy prefix swallows the duplicate bot mention that
// reply-to tweets carry, so the recipient group never binds to the bot.
func (e *Engine) Twitter(botName string) *TipPattern {
	return compile(PlatformTwitter,
		`.*`+twitterMention(botName, false)+`.*?`+twitterMention("", true)+`.*?`+e.amountToken()+`.*?`)
}

// TelegramQuery matches group chat messages addressed to the bot.
func (e *Engine) TelegramQuery(botUsername string) *TipPattern {
	return compile(PlatformTelegram,
		`.*`+twitterMention(botUsername, false)+`.*?`+twitterMention("", true)+`.*?`+e.amountToken()+`.*?`)
}

// Telegram matches inline query mode where the bot mention is implicit.
// The amount token is optional in the pattern itself; Extract rejects
// matches without one.
func (e *Engine) Telegram() *TipPattern {
	return compile(PlatformTelegram,
		`.*`+twitterMention("", true)+`\s+(?:`+e.amountToken()+`)?.*`)
}

// Discord matches messages with numeric-id mentions wrapped as <@!id>.
func (e *Engine) Discord(botId string) *TipPattern {
	return compile(PlatformDiscord,
		`.*`+discordMention(botId, false)+`.*?`+discordMention("", true)+`.*?`+e.amountToken()+`.*?`)
}

func compile(platform Platform, expr string) *TipPattern {
	re := regexp.MustCompile(`(?i)` + expr)
	// group layout is a contract: 1 recipient, 2 amount token, 3 amount
	if re.NumSubexp() != 3 {
		panic("tip pattern must have exactly three capture groups: " + expr)
	}
	return &TipPattern{Platform: platform, re: re}
}

// Extract applies the pattern to raw message text. The second return is
// false when the message does not encode a tip; that outcome is expected
// and silent, never an error.
func (p *TipPattern) Extract(text string) (*TipRequest, bool) {
	m := p.re.FindStringSubmatch(text)
	if m == nil {
		return nil, false
	}
	if m[1] == "" || m[3] == "" {
		return nil, false
	}
	return &TipRequest{
		RecipientHandle: m[1],
		AmountToken:     m[2],
		Amount:          m[3],
		RawMessage:      text,
	}, true
}

// String returns the underlying expression, handy for trace logs.
func (p *TipPattern) String() string {
	return p.re.String()
}
