package annotate

import "planner/api/internal/catalog"

// BookmarkIndex owns the per-instance bookmark flags. counts[topicID] is the
// number of instances of that topic with the flag set and is updated on every
// flag change, so "bookmarked elsewhere" never walks the dataset.
type BookmarkIndex struct {
	flags  map[catalog.Target]bool
	counts map[string]int
}

func NewBookmarkIndex() *BookmarkIndex {
	return &BookmarkIndex{
		flags:  map[catalog.Target]bool{},
		counts: map[string]int{},
	}
}

func (b *BookmarkIndex) IsBookmarked(target catalog.Target) bool {
	if !catalog.Valid(target) {
		return false
	}
	return b.flags[target]
}

// Set forces the flag to value.
func (b *BookmarkIndex) Set(target catalog.Target, value bool) {
	if !catalog.Valid(target) {
		return
	}
	if b.flags[target] == value {
		return
	}
	if value {
		b.flags[target] = true
	} else {
		delete(b.flags, target)
	}

	topicID := target.SharedID()
	if topicID == "" {
		return
	}
	if value {
		b.counts[topicID]++
		return
	}
	b.counts[topicID]--
	if b.counts[topicID] <= 0 {
		delete(b.counts, topicID)
	}
}

func (b *BookmarkIndex) Toggle(target catalog.Target) {
	b.Set(target, !b.IsBookmarked(target))
}

// BookmarkedElsewhere reports whether another instance sharing the target's
// topic id is bookmarked. The target's own flag is excluded.
func (b *BookmarkIndex) BookmarkedElsewhere(target catalog.Target) bool {
	if !catalog.Valid(target) {
		return false
	}
	topicID := target.SharedID()
	if topicID == "" {
		return false
	}
	count := b.counts[topicID]
	if b.flags[target] {
		count--
	}
	return count > 0
}

// ApplyFromElsewhere adopts a bookmark seen on a sibling instance. Siblings
// are neither consulted nor changed.
func (b *BookmarkIndex) ApplyFromElsewhere(target catalog.Target) {
	b.Set(target, true)
}

// ToggleAllForGroup sets every flag in group to the same value: all set when
// at least one was clear, all clear when every one was set. The direction is
// decided before any flag changes.
func (b *BookmarkIndex) ToggleAllForGroup(group []catalog.Target) {
	live := make([]catalog.Target, 0, len(group))
	allSet := true
	for _, target := range group {
		if !catalog.Valid(target) {
			continue
		}
		live = append(live, target)
		if !b.flags[target] {
			allSet = false
		}
	}
	if len(live) == 0 {
		return
	}
	value := !allSet
	for _, target := range live {
		b.Set(target, value)
	}
}

func (b *BookmarkIndex) ClearAll(targets []catalog.Target) {
	for _, target := range targets {
		b.Set(target, false)
	}
}

// Bookmarked returns every flagged instance key.
func (b *BookmarkIndex) Bookmarked() []string {
	out := make([]string, 0, len(b.flags))
	for target := range b.flags {
		out = append(out, target.InstanceKey())
	}
	return out
}
