package user

import (
	"errors"
	"fmt"
	"time"

	"github.com/eko/gocache/store"
	gocache "github.com/patrickmn/go-cache"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	tiperrors "github.com/tipdai/tipdai/internal/errors"
)

// Repository resolves platform identities to ledger users with
// get-or-create semantics and caches reads.
type Repository struct {
	db    *gorm.DB
	cache *store.GoCacheStore
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{
		db:    db,
		cache: store.NewGoCache(gocache.New(1*time.Minute, 5*time.Minute), nil),
	}
}

// GetByTwitterId looks a user up by twitter id, creating the record on
// first sight. Safe under concurrent first-sight calls: the unique index
// on twitter_id makes the loser of the race fetch the winner's row.
func (r *Repository) GetByTwitterId(twitterId, screenName string) (*User, error) {
	cacheKey := cacheKey(PlatformTwitter, twitterId)
	if u, err := r.cache.Get(cacheKey); err == nil {
		return u.(*User), nil
	}
	u := &User{}
	tx := r.db.Preload("Cashout").Where("twitter_id = ?", twitterId).First(u)
	if errors.Is(tx.Error, gorm.ErrRecordNotFound) {
		u = &User{TwitterId: &twitterId}
		if screenName != "" {
			u.TwitterName = &screenName
		}
		if err := r.db.Create(u).Error; err != nil {
			tx = r.db.Preload("Cashout").Where("twitter_id = ?", twitterId).First(u)
			if tx.Error != nil {
				return nil, tx.Error
			}
		}
		r.updateCache(cacheKey, u)
		return u, nil
	}
	if tx.Error != nil {
		return nil, tx.Error
	}
	if screenName != "" && (u.TwitterName == nil || *u.TwitterName != screenName) {
		u.TwitterName = &screenName
		if err := r.Save(u); err != nil {
			log.Warnf("[UserRepository] could not update twitter name of %s: %s", twitterId, err.Error())
		}
	}
	r.updateCache(cacheKey, u)
	return u, nil
}

// GetByTelegramId looks a user up by telegram id, creating the record on
// first sight.
func (r *Repository) GetByTelegramId(telegramId int64, username string) (*User, error) {
	cacheKey := cacheKey(PlatformTelegram, fmt.Sprint(telegramId))
	if u, err := r.cache.Get(cacheKey); err == nil {
		return u.(*User), nil
	}
	u := &User{}
	tx := r.db.Preload("Cashout").Where("telegram_id = ?", telegramId).First(u)
	if errors.Is(tx.Error, gorm.ErrRecordNotFound) {
		u = &User{TelegramId: &telegramId}
		if username != "" {
			u.TelegramUsername = &username
		}
		if err := r.db.Create(u).Error; err != nil {
			tx = r.db.Preload("Cashout").Where("telegram_id = ?", telegramId).First(u)
			if tx.Error != nil {
				return nil, tx.Error
			}
		}
		r.updateCache(cacheKey, u)
		return u, nil
	}
	if tx.Error != nil {
		return nil, tx.Error
	}
	if username != "" && (u.TelegramUsername == nil || *u.TelegramUsername != username) {
		u.TelegramUsername = &username
		if err := r.Save(u); err != nil {
			log.Warnf("[UserRepository] could not update telegram username of %d: %s", telegramId, err.Error())
		}
	}
	r.updateCache(cacheKey, u)
	return u, nil
}

// GetByDiscordId looks a user up by discord id, creating the record on
// first sight.
func (r *Repository) GetByDiscordId(discordId string) (*User, error) {
	cacheKey := cacheKey(PlatformDiscord, discordId)
	if u, err := r.cache.Get(cacheKey); err == nil {
		return u.(*User), nil
	}
	u := &User{}
	tx := r.db.Preload("Cashout").Where("discord_id = ?", discordId).First(u)
	if errors.Is(tx.Error, gorm.ErrRecordNotFound) {
		u = &User{DiscordId: &discordId}
		if err := r.db.Create(u).Error; err != nil {
			tx = r.db.Preload("Cashout").Where("discord_id = ?", discordId).First(u)
			if tx.Error != nil {
				return nil, tx.Error
			}
		}
		r.updateCache(cacheKey, u)
		return u, nil
	}
	if tx.Error != nil {
		return nil, tx.Error
	}
	r.updateCache(cacheKey, u)
	return u, nil
}

// GetByTwitterScreenName is a lookup without create, used when a tip
// names a recipient the bot has never seen outside this message.
func (r *Repository) GetByTwitterScreenName(screenName string) (*User, error) {
	u := &User{}
	tx := r.db.Preload("Cashout").Where("twitter_name = ? COLLATE NOCASE", screenName).First(u)
	if errors.Is(tx.Error, gorm.ErrRecordNotFound) {
		return nil, tiperrors.New(tiperrors.UserNotFoundError, tx.Error)
	}
	if tx.Error != nil {
		return nil, tx.Error
	}
	return u, nil
}

// GetByTelegramUsername is a lookup without create.
func (r *Repository) GetByTelegramUsername(username string) (*User, error) {
	if len(username) > 100 {
		return nil, fmt.Errorf("[UserRepository] telegram username is too long: %s..", username[:100])
	}
	u := &User{}
	tx := r.db.Preload("Cashout").Where("telegram_username = ? COLLATE NOCASE", username).First(u)
	if errors.Is(tx.Error, gorm.ErrRecordNotFound) {
		return nil, tiperrors.New(tiperrors.UserNotFoundError, tx.Error)
	}
	if tx.Error != nil {
		return nil, tx.Error
	}
	return u, nil
}

// Save persists the user and its cashout association.
func (r *Repository) Save(u *User) error {
	tx := r.db.Save(u)
	if tx.Error != nil {
		log.Errorf("[UserRepository] Error: couldn't update user %s: %s", u.Username(), tx.Error.Error())
		return tx.Error
	}
	r.invalidate(u)
	log.Tracef("[UserRepository] records of user %s updated", u.Username())
	return nil
}

func cacheKey(platform Platform, id string) string {
	return fmt.Sprintf("user:%s:%s", platform, id)
}

func (r *Repository) updateCache(key string, u *User) {
	r.cache.Set(key, u, &store.Options{Expiration: 1 * time.Minute})
}

func (r *Repository) invalidate(u *User) {
	if u.TwitterId != nil {
		r.cache.Delete(cacheKey(PlatformTwitter, *u.TwitterId))
	}
	if u.TelegramId != nil {
		r.cache.Delete(cacheKey(PlatformTelegram, fmt.Sprint(*u.TelegramId)))
	}
	if u.DiscordId != nil {
		r.cache.Delete(cacheKey(PlatformDiscord, *u.DiscordId))
	}
}
