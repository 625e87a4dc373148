// Package queue provides named serial work queues. Work submitted to the
// same queue runs strictly in submission order, one function at a time;
// different queues run independently.
package queue

import (
	cmap "github.com/orcaman/concurrent-map"
	log "github.com/sirupsen/logrus"
)

var queues = cmap.New()

type Queue struct {
	name string
	work chan func()
}

// Serial returns the queue with the given name, starting its worker on
// first use. Queues live for the lifetime of the process.
func Serial(name string) *Queue {
	res := queues.Upsert(name, nil, func(exists bool, old interface{}, _ interface{}) interface{} {
		if exists {
			return old
		}
		q := &Queue{name: name, work: make(chan func(), 256)}
		go q.run()
		return q
	})
	return res.(*Queue)
}

// Submit enqueues f. It blocks only when the queue's buffer is full.
func (q *Queue) Submit(f func()) {
	q.work <- f
}

func (q *Queue) run() {
	for f := range q.work {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Errorf("[Queue] recovered from panic on queue %s: %v", q.name, r)
				}
			}()
			f()
		}()
	}
}
