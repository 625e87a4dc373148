package i18n

import (
	_ "embed"

	"github.com/BurntSushi/toml"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	log "github.com/sirupsen/logrus"
	"golang.org/x/text/language"
)

//go:embed translations/en.toml
var enToml []byte

var localizer *i18n.Localizer

func init() {
	bundle := i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("toml", toml.Unmarshal)
	bundle.MustParseMessageFileBytes(enToml, "en.toml")
	localizer = i18n.NewLocalizer(bundle, "en")
}

// Translate returns the reply text registered under key. Texts carry fmt
// verbs, callers fill them in with fmt.Sprintf.
func Translate(key string) string {
	s, err := localizer.LocalizeMessage(&i18n.Message{ID: key})
	if err != nil {
		log.Warnf("[i18n] missing message %s: %v", key, err)
		return key
	}
	return s
}
