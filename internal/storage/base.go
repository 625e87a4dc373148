package storage

import (
	"time"

	log "github.com/sirupsen/logrus"
)

// Base carries the bookkeeping fields shared by bunt-stored objects.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created"`
	UpdatedAt time.Time `json:"updated"`
}

type Option func(b *Base)

func ID(id string) Option {
	return func(b *Base) {
		b.ID = id
	}
}

func New(opts ...Option) *Base {
	b := &Base{
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b Base) Key() string {
	return b.ID
}

func (b *Base) Set(s Storable, db *DB) error {
	b.UpdatedAt = time.Now()
	err := db.Set(s)
	if err != nil {
		log.Errorf("[Bunt] could not set object: %v", err)
		return err
	}
	log.Tracef("[Bunt] set object %s", s.Key())
	return nil
}
