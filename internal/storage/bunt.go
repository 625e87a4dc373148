package storage

import (
	"encoding/json"
	"time"

	"github.com/tidwall/buntdb"
)

// Storable is anything that can be kept in the bunt key/value store.
type Storable interface {
	Key() string
}

type DB struct {
	*buntdb.DB
}

func NewBunt(path string) *DB {
	db, err := buntdb.Open(path)
	if err != nil {
		panic(err)
	}
	return &DB{DB: db}
}

func (db *DB) Get(s Storable) error {
	return db.View(func(tx *buntdb.Tx) error {
		val, err := tx.Get(s.Key())
		if err != nil {
			return err
		}
		return json.Unmarshal([]byte(val), s)
	})
}

func (db *DB) Set(s Storable) error {
	return db.set(s, nil)
}

// SetWithTTL stores an object that expires after d.
func (db *DB) SetWithTTL(s Storable, d time.Duration) error {
	return db.set(s, &buntdb.SetOptions{Expires: true, TTL: d})
}

func (db *DB) set(s Storable, opts *buntdb.SetOptions) error {
	val, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(s.Key(), string(val), opts)
		return err
	})
}

func (db *DB) Delete(key string) error {
	return db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(key)
		return err
	})
}
