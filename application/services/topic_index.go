package services

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/VadimShubkin/ii/application/ports"
	"github.com/VadimShubkin/ii/domain/core/entities"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// TopicIndex is the process-wide name -> URI cache of existing topics.
// It is rebuilt lazily from the entity store after Invalidate, and readers
// always see a complete snapshot.
type TopicIndex struct {
	store   ports.EntityStore
	logger  *zap.Logger
	current atomic.Pointer[map[string]string]
	gen     atomic.Uint64
	group   singleflight.Group
}

// NewTopicIndex creates an empty index; the first read builds it
func NewTopicIndex(store ports.EntityStore, logger *zap.Logger) *TopicIndex {
	return &TopicIndex{store: store, logger: logger}
}

// Contains reports whether a topic with this exact name exists
func (i *TopicIndex) Contains(ctx context.Context, name string) (bool, error) {
	snap, err := i.snapshot(ctx)
	if err != nil {
		return false, err
	}
	_, ok := snap[name]
	return ok, nil
}

// Len returns the number of indexed topics
func (i *TopicIndex) Len(ctx context.Context) (int, error) {
	snap, err := i.snapshot(ctx)
	if err != nil {
		return 0, err
	}
	return len(snap), nil
}

// Invalidate drops the snapshot; the next read rebuilds it
func (i *TopicIndex) Invalidate() {
	i.gen.Add(1)
	i.current.Store(nil)
	i.logger.Debug("Topic index invalidated")
}

// Put records a newly created topic in the current snapshot
func (i *TopicIndex) Put(name, uri string) {
	i.update(func(m map[string]string) { m[name] = uri })
}

// Delete removes a retired topic from the current snapshot
func (i *TopicIndex) Delete(name string) {
	i.update(func(m map[string]string) { delete(m, name) })
}

// update applies fn to a copy of the snapshot and swaps it in.
// A missing snapshot is left missing. Bumping gen makes a rebuild that
// scanned before this write discard its result.
func (i *TopicIndex) update(fn func(map[string]string)) {
	i.gen.Add(1)
	for {
		old := i.current.Load()
		if old == nil {
			return
		}
		next := make(map[string]string, len(*old)+1)
		for k, v := range *old {
			next[k] = v
		}
		fn(next)
		if i.current.CompareAndSwap(old, &next) {
			return
		}
	}
}

func (i *TopicIndex) snapshot(ctx context.Context) (map[string]string, error) {
	if snap := i.current.Load(); snap != nil {
		return *snap, nil
	}

	// one caller cancelling must not fail the others sharing this rebuild
	ctx = context.WithoutCancel(ctx)
	v, err, _ := i.group.Do("rebuild", func() (interface{}, error) {
		if snap := i.current.Load(); snap != nil {
			return snap, nil
		}
		gen := i.gen.Load()
		topics, err := i.store.GetLike(ctx, entities.KindTopic, "name", "%", 0)
		if err != nil {
			return nil, fmt.Errorf("failed to rebuild topic index: %w", err)
		}
		m := make(map[string]string, len(topics))
		for _, t := range topics {
			m[t.Title()] = t.URI()
		}
		// a write or Invalidate during the scan wins over this result
		if i.gen.Load() == gen {
			i.current.CompareAndSwap(nil, &m)
		}
		i.logger.Info("Topic index rebuilt", zap.Int("topics", len(m)))
		return &m, nil
	})
	if err != nil {
		return nil, err
	}
	return *v.(*map[string]string), nil
}
