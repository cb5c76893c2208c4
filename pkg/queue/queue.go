// Package queue holds delayed jobs until they are due.
package queue

import (
	"sync"
	"time"
)

type Job struct {
	ID          string
	Name        string
	RunAt       time.Time
	Attempt     int
	MaxAttempts int
}

// Exhausted reports whether the job has used all of its attempts.
func (j *Job) Exhausted() bool {
	return j.MaxAttempts > 0 && j.Attempt >= j.MaxAttempts
}

type Queue struct {
	items []*Job
	mu    sync.Mutex
}

func NewQueue() *Queue {
	return &Queue{
		items: make([]*Job, 0),
	}
}

func (q *Queue) Enqueue(job *Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, job)
}

// Dequeue removes and returns the earliest job due at now, or nil.
func (q *Queue) Dequeue(now time.Time) *Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	idx := q.due(now)
	if idx < 0 {
		return nil
	}
	job := q.items[idx]
	q.items = append(q.items[:idx], q.items[idx+1:]...)
	return job
}

func (q *Queue) Peek(now time.Time) *Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	idx := q.due(now)
	if idx < 0 {
		return nil
	}
	return q.items[idx]
}

// HasPending reports whether a job with the given name is waiting.
func (q *Queue) HasPending(name string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, job := range q.items {
		if job.Name == name {
			return true
		}
	}
	return false
}

func (q *Queue) due(now time.Time) int {
	idx := -1
	for i, job := range q.items {
		if job.RunAt.After(now) {
			continue
		}
		if idx < 0 || job.RunAt.Before(q.items[idx].RunAt) {
			idx = i
		}
	}
	return idx
}

func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) GetAll() []*Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	result := make([]*Job, len(q.items))
	copy(result, q.items)
	return result
}
