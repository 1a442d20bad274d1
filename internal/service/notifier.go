package service

import "procurement/internal/domain"

// Notifier accepts notification jobs for out-of-band delivery. Enqueue must not block.
type Notifier interface {
	Enqueue(job domain.Job)
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(job domain.Job)

func (f NotifierFunc) Enqueue(job domain.Job) { f(job) }
