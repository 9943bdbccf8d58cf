// Copyright 2026 The Livetrack Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"reflect"
	"sort"

	"github.com/livetrack-foundation/livetrack/job"
)

// Derived views are pure functions over a snapshot. The package-level
// forms work on any snapshot, including those arriving on a Watch
// stream, so a reactive derived view is just the watch stream mapped
// through one of these. They never maintain state of their own and
// therefore cannot diverge from the store.

// FilterActive returns the non-terminal jobs in snapshot, sorted by
// job id.
func FilterActive(snapshot map[string]job.Job) []job.Job {
	return filter(snapshot, func(j job.Job) bool { return !j.IsTerminal() })
}

// FilterByStatus returns the jobs with the given status, sorted by
// job id.
func FilterByStatus(snapshot map[string]job.Job, status job.Status) []job.Job {
	return filter(snapshot, func(j job.Job) bool { return j.Status == status })
}

// FilterParents returns the jobs that aggregate children, sorted by
// job id.
func FilterParents(snapshot map[string]job.Job) []job.Job {
	return filter(snapshot, job.Job.IsParent)
}

// FilterChildrenOf returns the jobs whose parent is parentID, sorted
// by child index.
func FilterChildrenOf(snapshot map[string]job.Job, parentID string) []job.Job {
	children := filter(snapshot, func(j job.Job) bool {
		return j.Parent != nil && j.Parent.ParentJobID == parentID
	})
	sort.Slice(children, func(i, k int) bool {
		return children[i].Parent.ChildIndex < children[k].Parent.ChildIndex
	})
	return children
}

// Active returns the non-terminal jobs in the current snapshot.
func (s *Store) Active() []job.Job { return FilterActive(s.Snapshot()) }

// ByStatus returns the current jobs with the given status.
func (s *Store) ByStatus(status job.Status) []job.Job {
	return FilterByStatus(s.Snapshot(), status)
}

// Parents returns the current parent jobs.
func (s *Store) Parents() []job.Job { return FilterParents(s.Snapshot()) }

// ChildrenOf returns the current children of parentID in child-index
// order.
func (s *Store) ChildrenOf(parentID string) []job.Job {
	return FilterChildrenOf(s.Snapshot(), parentID)
}

func filter(snapshot map[string]job.Job, keep func(job.Job) bool) []job.Job {
	var kept []job.Job
	for _, value := range snapshot {
		if keep(value) {
			kept = append(kept, value)
		}
	}
	sort.Slice(kept, func(i, k int) bool { return kept[i].JobID < kept[k].JobID })
	return kept
}

// jobEqual compares two snapshots by value. Job carries maps, so this
// needs DeepEqual rather than ==.
func jobEqual(a, b job.Job) bool {
	return reflect.DeepEqual(a, b)
}
