// Package annotate keeps the per-instance annotation state of a planner:
// planning tags, bookmarks and notes. Registries are not safe for concurrent
// use; a single goroutine owns them, mirroring the UI thread that mutates
// them.
//
// Every operation tolerates stale or nil targets and unknown tag ids by doing
// nothing, since annotations must survive a dataset reload where some stored
// identities no longer exist.
package annotate

import (
	"sort"

	"planner/api/internal/catalog"
)

// TagRegistry owns the plan layer of every instance and the cross-instance
// tag memory of each shared identity.
type TagRegistry struct {
	catalog *catalog.Catalog
	plan    map[catalog.Target][]catalog.TagOption
	// refs[topicID][tagID] counts live instances holding tagID. A key exists
	// only while its count is positive, so refs doubles as the tag memory.
	refs   map[string]map[string]int
	ghosts map[string]map[string]struct{}
}

func NewTagRegistry(c *catalog.Catalog) *TagRegistry {
	if c == nil {
		c = catalog.DefaultCatalog()
	}
	return &TagRegistry{
		catalog: c,
		plan:    map[catalog.Target][]catalog.TagOption{},
		refs:    map[string]map[string]int{},
		ghosts:  map[string]map[string]struct{}{},
	}
}

func (r *TagRegistry) Catalog() *catalog.Catalog { return r.catalog }

// Assign appends a snapshot of the catalog entry to the instance's plan layer.
func (r *TagRegistry) Assign(target catalog.Target, tagID string) {
	if !catalog.Valid(target) {
		return
	}
	option, ok := r.catalog.Lookup(tagID)
	if !ok || r.Has(target, tagID) {
		return
	}
	r.plan[target] = append(r.plan[target], option)

	topicID := target.SharedID()
	if topicID == "" {
		return
	}
	counts := r.refs[topicID]
	if counts == nil {
		counts = map[string]int{}
		r.refs[topicID] = counts
	}
	counts[tagID]++
	if counts[tagID] == 1 {
		r.dropGhost(topicID, tagID)
	}
}

// ApplyGlobalTag adopts a remembered tag on this instance. It only accepts
// catalog ids and is idempotent.
func (r *TagRegistry) ApplyGlobalTag(target catalog.Target, tagID string) {
	r.Assign(target, tagID)
}

// Remove drops tagID from the instance's plan layer. When the last holder of
// a shared identity releases a tag it leaves the memory immediately.
func (r *TagRegistry) Remove(target catalog.Target, tagID string) {
	if !catalog.Valid(target) {
		return
	}
	tags := r.plan[target]
	idx := -1
	for i, option := range tags {
		if option.ID == tagID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	tags = append(tags[:idx:idx], tags[idx+1:]...)
	if len(tags) == 0 {
		delete(r.plan, target)
	} else {
		r.plan[target] = tags
	}

	topicID := target.SharedID()
	if topicID == "" {
		return
	}
	counts := r.refs[topicID]
	if counts == nil {
		return
	}
	counts[tagID]--
	if counts[tagID] <= 0 {
		delete(counts, tagID)
	}
	if len(counts) == 0 {
		delete(r.refs, topicID)
	}
}

// Toggle assigns tagID when absent and removes it otherwise.
func (r *TagRegistry) Toggle(target catalog.Target, tagID string) {
	if r.Has(target, tagID) {
		r.Remove(target, tagID)
		return
	}
	r.Assign(target, tagID)
}

func (r *TagRegistry) Has(target catalog.Target, tagID string) bool {
	if !catalog.Valid(target) {
		return false
	}
	for _, option := range r.plan[target] {
		if option.ID == tagID {
			return true
		}
	}
	return false
}

// Tags returns a copy of the instance's plan layer in assignment order.
func (r *TagRegistry) Tags(target catalog.Target) []catalog.TagOption {
	if !catalog.Valid(target) {
		return nil
	}
	tags := r.plan[target]
	if len(tags) == 0 {
		return nil
	}
	out := make([]catalog.TagOption, len(tags))
	copy(out, tags)
	return out
}

// Memory returns the tag ids currently held by at least one live instance of
// topicID, in catalog order.
func (r *TagRegistry) Memory(topicID string) []string {
	counts := r.refs[topicID]
	ids := make([]string, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	r.sortByCatalog(ids)
	return ids
}

// Ghosts returns remembered tag ids of topicID that no live instance holds.
func (r *TagRegistry) Ghosts(topicID string) []string {
	set := r.ghosts[topicID]
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	r.sortByCatalog(ids)
	return ids
}

// MissingGlobalTags lists every id remembered for the instance's shared
// identity, live or ghost, that the instance itself does not hold. Only
// catalog ids are offered.
func (r *TagRegistry) MissingGlobalTags(target catalog.Target) []string {
	if !catalog.Valid(target) {
		return nil
	}
	topicID := target.SharedID()
	if topicID == "" {
		return nil
	}
	seen := map[string]struct{}{}
	var out []string
	add := func(id string) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		if !r.catalog.Has(id) || r.Has(target, id) {
			return
		}
		out = append(out, id)
	}
	for id := range r.refs[topicID] {
		add(id)
	}
	for id := range r.ghosts[topicID] {
		add(id)
	}
	r.sortByCatalog(out)
	return out
}

// RememberGhost records tagID as previously used for topicID. It is ignored
// while a live instance holds the tag.
func (r *TagRegistry) RememberGhost(topicID, tagID string) {
	if topicID == "" || tagID == "" {
		return
	}
	if r.refs[topicID][tagID] > 0 {
		return
	}
	set := r.ghosts[topicID]
	if set == nil {
		set = map[string]struct{}{}
		r.ghosts[topicID] = set
	}
	set[tagID] = struct{}{}
}

// DismissGhost forgets a suggestion without applying it anywhere. It
// reports whether the suggestion was remembered.
func (r *TagRegistry) DismissGhost(topicID, tagID string) bool {
	return r.dropGhost(topicID, tagID)
}

// SharedIDs lists every topic id with live or ghost memory.
func (r *TagRegistry) SharedIDs() []string {
	seen := map[string]struct{}{}
	for id := range r.refs {
		seen[id] = struct{}{}
	}
	for id := range r.ghosts {
		seen[id] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (r *TagRegistry) dropGhost(topicID, tagID string) bool {
	set := r.ghosts[topicID]
	if _, ok := set[tagID]; !ok {
		return false
	}
	delete(set, tagID)
	if len(set) == 0 {
		delete(r.ghosts, topicID)
	}
	return true
}

func (r *TagRegistry) sortByCatalog(ids []string) {
	sort.SliceStable(ids, func(i, j int) bool {
		pi, pj := r.catalog.Position(ids[i]), r.catalog.Position(ids[j])
		if pi != pj {
			if pi < 0 {
				return false
			}
			if pj < 0 {
				return true
			}
			return pi < pj
		}
		return ids[i] < ids[j]
	})
}
