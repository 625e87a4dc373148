package mutex

import (
	"sync"

	cmap "github.com/orcaman/concurrent-map"
	log "github.com/sirupsen/logrus"
)

var mutexMap cmap.ConcurrentMap

func init() {
	mutexMap = cmap.New()
}

// Lock locks the mutex registered under s, creating it on first use.
// Mutexes stay registered once created so that concurrent lockers always
// contend on the same mutex.
func Lock(s string) {
	log.Tracef("[Mutex] Attempt Lock %s", s)
	m := mutexMap.Upsert(s, nil, func(exists bool, valueInMap interface{}, _ interface{}) interface{} {
		if exists {
			return valueInMap
		}
		return &sync.Mutex{}
	})
	m.(*sync.Mutex).Lock()
	log.Tracef("[Mutex] Lock %s", s)
}

// Unlock unlocks the mutex registered under s.
func Unlock(s string) {
	if m, ok := mutexMap.Get(s); ok {
		log.Tracef("[Mutex] Unlock %s", s)
		m.(*sync.Mutex).Unlock()
	} else {
		log.Errorf("[Mutex] ⚠️ Unlock %s not in mutexMap. Skip.", s)
	}
}
