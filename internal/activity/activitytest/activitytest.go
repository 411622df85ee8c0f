// Package activitytest provides an in-memory Recorder for tests.
package activitytest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/zulandar/qualitygate/internal/activity"
	"github.com/zulandar/qualitygate/internal/models"
)

// Entry is one captured Record call.
type Entry struct {
	ActorID     string
	Action      activity.Action
	Description string
	Metadata    map[string]interface{}
}

// Recorder captures entries. When Fail is set every call returns an error.
type Recorder struct {
	mu      sync.Mutex
	Fail    bool
	entries []Entry
}

// Record implements activity.Recorder.
func (r *Recorder) Record(_ context.Context, actorID string, action activity.Action, description string, metadata map[string]interface{}) (*models.Activity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Fail {
		return nil, errors.New("activitytest: forced failure")
	}
	r.entries = append(r.entries, Entry{ActorID: actorID, Action: action, Description: description, Metadata: metadata})
	return &models.Activity{ID: uint(len(r.entries)), ActorID: actorID, Action: string(action), Description: description, CreatedAt: time.Now()}, nil
}

// Entries returns a copy of the captured entries.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), r.entries...)
}

// Actions returns the captured action tags in order.
func (r *Recorder) Actions() []activity.Action {
	var out []activity.Action
	for _, e := range r.Entries() {
		out = append(out, e.Action)
	}
	return out
}
