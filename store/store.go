// Copyright 2026 The Livetrack Authors
// SPDX-License-Identifier: Apache-2.0

// Package store is the single source of truth for all jobs the SDK
// knows about. The poll loop writes complete snapshots into it;
// consumers observe it through watch channels.
//
// The job map is copy-on-write: every mutation builds a new map and
// swaps the reference, so every map handed to an observer is a
// consistent, immutable snapshot: no torn reads and no locking on
// the read path beyond the reference swap. Callers must treat
// received maps as read-only.
package store

import (
	"sync"

	"github.com/livetrack-foundation/livetrack/job"
)

// watchBufferSize is the channel capacity for watch subscriptions.
// Map watchers are conflated (a newer snapshot replaces an unread
// older one), so capacity mostly covers consumer scheduling jitter.
const watchBufferSize = 16

// Store holds the job-id → Job mapping and fans out changes to
// watchers. The zero value is not usable; call New.
//
// All methods are safe for concurrent use and never panic. Reads of
// unknown ids report absence rather than returning a zero Job.
type Store struct {
	mu sync.Mutex

	jobs   map[string]job.Job
	closed bool

	nextWatcherID uint64
	mapWatchers   map[uint64]chan map[string]job.Job
	jobWatchers   map[uint64]*jobWatcher
	changeFeeds   map[uint64]*changeFeed
}

// jobWatcher is a single-job subscription with value-equality dedup.
type jobWatcher struct {
	jobID    string
	channel  chan job.Job
	last     job.Job
	hasValue bool
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		jobs:        make(map[string]job.Job),
		mapWatchers: make(map[uint64]chan map[string]job.Job),
		jobWatchers: make(map[uint64]*jobWatcher),
		changeFeeds: make(map[uint64]*changeFeed),
	}
}

// UpdateJob replaces the stored value for update.JobID and notifies
// the full-map watchers, the matching single-job watchers, and the
// change feeds. A write with an empty JobID is ignored. After Close,
// UpdateJob is a no-op so a straggling poll response cannot resurrect
// state.
func (s *Store) UpdateJob(update job.Job) {
	if update.JobID == "" {
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	next := cloneMap(s.jobs)
	next[update.JobID] = update
	s.jobs = next

	s.notifyMapWatchersLocked(next)
	for _, watcher := range s.jobWatchers {
		if watcher.jobID != update.JobID {
			continue
		}
		if watcher.hasValue && jobEqual(watcher.last, update) {
			continue
		}
		watcher.last = update
		watcher.hasValue = true
		sendConflated(watcher.channel, update)
	}
	for _, feed := range s.changeFeeds {
		feed.offer(update)
	}
	s.mu.Unlock()
}

// RemoveJob deletes the entry for id and notifies only the full-map
// watchers. Removing an unknown id is a no-op.
func (s *Store) RemoveJob(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if _, exists := s.jobs[id]; !exists {
		return
	}
	next := cloneMap(s.jobs)
	delete(next, id)
	s.jobs = next
	s.notifyMapWatchersLocked(next)
}

// Clear empties the store and notifies the full-map watchers.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || len(s.jobs) == 0 {
		return
	}
	s.jobs = make(map[string]job.Job)
	s.notifyMapWatchersLocked(s.jobs)
}

// Get returns the last known snapshot for id, reporting absence for
// unknown ids.
func (s *Store) Get(id string) (job.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.jobs[id]
	return value, ok
}

// Snapshot returns the current job map. The map is immutable; callers
// must not modify it.
func (s *Store) Snapshot() map[string]job.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs
}

// Len returns the number of stored jobs.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Watch subscribes to the full job map. The channel immediately
// carries the current snapshot, then a snapshot per change. Snapshots
// are conflated: a slow consumer sees the latest state, not every
// intermediate one. The cancel func detaches the watcher and closes
// the channel.
func (s *Store) Watch() (<-chan map[string]job.Job, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	channel := make(chan map[string]job.Job, watchBufferSize)
	if s.closed {
		close(channel)
		return channel, func() {}
	}
	id := s.nextWatcherID
	s.nextWatcherID++
	s.mapWatchers[id] = channel
	channel <- s.jobs

	return channel, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if watcher, ok := s.mapWatchers[id]; ok {
			delete(s.mapWatchers, id)
			close(watcher)
		}
	}
}

// WatchJob subscribes to a single job id. The channel immediately
// carries the current value when the job is known. Updates are
// deduplicated on value equality, so rewrites of an identical
// snapshot do not wake the consumer.
func (s *Store) WatchJob(jobID string) (<-chan job.Job, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	channel := make(chan job.Job, watchBufferSize)
	if s.closed {
		close(channel)
		return channel, func() {}
	}
	id := s.nextWatcherID
	s.nextWatcherID++
	watcher := &jobWatcher{jobID: jobID, channel: channel}
	if current, ok := s.jobs[jobID]; ok {
		watcher.last = current
		watcher.hasValue = true
		channel <- current
	}
	s.jobWatchers[id] = watcher

	return channel, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if watcher, ok := s.jobWatchers[id]; ok {
			delete(s.jobWatchers, id)
			close(watcher.channel)
		}
	}
}

// Changes subscribes to the "single job changed" event stream: every
// UpdateJob emits the written job. This is the feed that drives
// lifecycle sync, independent of which derived view a consumer
// watches.
//
// Conflation is per job id: when the consumer lags, a newer unread
// snapshot for a job replaces the older unread one, but events for
// distinct jobs are never dropped. A job's last state change (its
// terminal snapshot in particular) always reaches the consumer.
func (s *Store) Changes() (<-chan job.Job, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	channel := make(chan job.Job, watchBufferSize)
	if s.closed {
		close(channel)
		return channel, func() {}
	}
	id := s.nextWatcherID
	s.nextWatcherID++
	feed := newChangeFeed()
	s.changeFeeds[id] = feed
	go feed.pump(channel)

	return channel, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if feed, ok := s.changeFeeds[id]; ok {
			delete(s.changeFeeds, id)
			feed.stop()
		}
	}
}

// Close marks the store disposed: all watcher channels are closed and
// every subsequent write becomes a no-op. Close is idempotent.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for id, watcher := range s.mapWatchers {
		delete(s.mapWatchers, id)
		close(watcher)
	}
	for id, watcher := range s.jobWatchers {
		delete(s.jobWatchers, id)
		close(watcher.channel)
	}
	for id, feed := range s.changeFeeds {
		delete(s.changeFeeds, id)
		feed.stop()
	}
}

// notifyMapWatchersLocked fans the snapshot out to every full-map
// watcher. Must be called with s.mu held.
func (s *Store) notifyMapWatchersLocked(snapshot map[string]job.Job) {
	for _, watcher := range s.mapWatchers {
		sendConflated(watcher, snapshot)
	}
}

// sendConflated delivers v without ever blocking the writer: when the
// buffer is full, the oldest unread value is dropped to make room.
// Observers always converge on the latest state.
func sendConflated[T any](channel chan T, v T) {
	for {
		select {
		case channel <- v:
			return
		default:
		}
		select {
		case <-channel:
		default:
		}
	}
}

func cloneMap(jobs map[string]job.Job) map[string]job.Job {
	next := make(map[string]job.Job, len(jobs)+1)
	for id, value := range jobs {
		next[id] = value
	}
	return next
}

// changeFeed is one Changes subscription. Unlike the map watchers,
// where the latest snapshot carries the full state and may simply
// replace an unread one, the change stream carries per-job events: an
// event for job A is not superseded by an event for job B. The feed
// therefore keeps an unread queue keyed by job id. An unread event is
// replaced in place by a newer event for the same job and never
// evicted by another job's traffic, so a job's final state change
// cannot be lost to unrelated chatter. Writers never block; the queue
// holds at most one entry per job.
type changeFeed struct {
	mu    sync.Mutex
	queue []job.Job
	index map[string]int

	wake chan struct{}
	done chan struct{}
}

func newChangeFeed() *changeFeed {
	return &changeFeed{
		index: make(map[string]int),
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// offer enqueues update, replacing an unread event for the same job
// in place. The original queue position is kept so jobs are delivered
// in first-unread order.
func (f *changeFeed) offer(update job.Job) {
	f.mu.Lock()
	if i, ok := f.index[update.JobID]; ok {
		f.queue[i] = update
	} else {
		f.index[update.JobID] = len(f.queue)
		f.queue = append(f.queue, update)
	}
	f.mu.Unlock()

	select {
	case f.wake <- struct{}{}:
	default:
	}
}

// take pops the oldest unread event, reporting false on an empty
// queue.
func (f *changeFeed) take() (job.Job, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queue) == 0 {
		return job.Job{}, false
	}
	head := f.queue[0]
	f.queue = f.queue[1:]
	delete(f.index, head.JobID)
	for id := range f.index {
		f.index[id]--
	}
	return head, true
}

// pump delivers queued events to out in order until the feed stops,
// then closes out.
func (f *changeFeed) pump(out chan job.Job) {
	defer close(out)
	for {
		next, ok := f.take()
		if !ok {
			select {
			case <-f.wake:
				continue
			case <-f.done:
				return
			}
		}
		select {
		case out <- next:
		case <-f.done:
			return
		}
	}
}

// stop ends the pump. Unread events are discarded; the subscription
// is gone either way.
func (f *changeFeed) stop() {
	close(f.done)
}
