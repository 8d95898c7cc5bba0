package docstore

import (
	"context"
	"fmt"
	"reflect"
	"time"
)

// FetchFunc runs a query once against a backend.
type FetchFunc func(ctx context.Context, q Query) ([]Document, error)

// Subscription is a live query. Snapshots are delivered on the channel
// returned by Snapshots until the subscription ends.
type Subscription struct {
	snapshots chan Snapshot
	cancel    context.CancelFunc
	done      chan struct{}
	err       error
}

// Watch runs a live query on top of a one-shot fetch and a change Hub. Every
// backend in this module builds its Listen method on it.
func Watch(ctx context.Context, hub *Hub, q Query, fetch FetchFunc) (*Subscription, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)

	// Register before the first fetch so no write between the two is missed.
	notify, unsubscribe := hub.Subscribe(q.Collection)

	s := &Subscription{
		snapshots: make(chan Snapshot),
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	go func() {
		defer close(s.done)
		defer close(s.snapshots)
		defer unsubscribe()
		s.err = s.run(ctx, q, fetch, notify)
	}()

	return s, nil
}

// Snapshots returns the channel of query results. It is closed when the
// subscription ends.
func (s *Subscription) Snapshots() <-chan Snapshot {
	return s.snapshots
}

// Err reports why the subscription ended. It returns nil when it was closed or
// its context was cancelled. Err blocks until the subscription has ended.
func (s *Subscription) Err() error {
	<-s.done
	return s.err
}

// Close stops the subscription and waits for its goroutine to exit. No
// snapshot is delivered after Close returns.
func (s *Subscription) Close() {
	s.cancel()
	<-s.done
}

func (s *Subscription) run(ctx context.Context, q Query, fetch FetchFunc, notify <-chan struct{}) error {
	var prev map[string]Document

	for {
		docs, err := fetch(ctx, q)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("listen %s: %w", q.Collection, err)
		}

		changes, next := diff(prev, docs)
		if prev == nil || len(changes) > 0 {
			snap := Snapshot{
				Documents: docs,
				Changes:   changes,
				ReadTime:  time.Now().UTC(),
			}
			select {
			case s.snapshots <- snap:
			case <-ctx.Done():
				return nil
			}
		}
		prev = next

		select {
		case <-notify:
		case <-ctx.Done():
			return nil
		}
	}
}

// diff compares a new result with the previous one. A nil prev marks the
// first snapshot, in which every document is Added.
func diff(prev map[string]Document, docs []Document) ([]Change, map[string]Document) {
	next := make(map[string]Document, len(docs))
	var changes []Change

	for _, d := range docs {
		next[d.ID] = d
		old, ok := prev[d.ID]
		switch {
		case !ok:
			changes = append(changes, Change{Kind: Added, Document: d})
		case !old.UpdateTime.Equal(d.UpdateTime) || !reflect.DeepEqual(old.Fields, d.Fields):
			changes = append(changes, Change{Kind: Modified, Document: d})
		}
	}

	for id, d := range prev {
		if _, ok := next[id]; !ok {
			changes = append(changes, Change{Kind: Removed, Document: d})
		}
	}

	return changes, next
}
