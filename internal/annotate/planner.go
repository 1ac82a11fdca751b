package annotate

import (
	"encoding/json"
	"fmt"
	"sort"

	"planner/api/internal/catalog"
)

// SectionName is the planner document section annotations persist under.
const SectionName = "planner"

const stateVersion = 1

// InstanceState is the persisted annotation of one instance.
type InstanceState struct {
	Tags       []string `json:"tags,omitempty"`
	Bookmarked bool     `json:"bookmarked,omitempty"`
}

// State is the section payload written by Planner.Snapshot.
type State struct {
	Version     int                      `json:"version"`
	Rotation    string                   `json:"rotation,omitempty"`
	Instances   map[string]InstanceState `json:"instances,omitempty"`
	TopicNotes  map[string]string        `json:"topicNotes,omitempty"`
	CourseNotes map[string]string        `json:"courseNotes,omitempty"`
	// TagMemory holds every remembered tag per topic id, live or ghost.
	TagMemory map[string][]string `json:"tagMemory,omitempty"`
	Roster    json.RawMessage     `json:"roster,omitempty"`
}

// Planner bundles the three registries bound to one loaded dataset.
type Planner struct {
	Tags      *TagRegistry
	Bookmarks *BookmarkIndex
	Notes     *NoteStore

	dataset *catalog.Dataset
	// Annotations of instances missing from the current dataset are carried
	// through unchanged so a partial reload does not erase them remotely.
	orphanInstances map[string]InstanceState
	orphanNotes     map[string]string
	roster          json.RawMessage
}

func NewPlanner(c *catalog.Catalog, dataset *catalog.Dataset) *Planner {
	if dataset == nil {
		dataset = &catalog.Dataset{}
	}
	return &Planner{
		Tags:            NewTagRegistry(c),
		Bookmarks:       NewBookmarkIndex(),
		Notes:           NewNoteStore(),
		dataset:         dataset,
		orphanInstances: map[string]InstanceState{},
		orphanNotes:     map[string]string{},
	}
}

func (p *Planner) Dataset() *catalog.Dataset { return p.dataset }

// Find resolves an instance key against the loaded dataset.
func (p *Planner) Find(key string) catalog.Target {
	return p.dataset.Find(key)
}

// Roster returns the roster carried in the last restored state.
func (p *Planner) Roster() json.RawMessage { return p.roster }

// SetRoster replaces the roster written with the next snapshot.
func (p *Planner) SetRoster(raw json.RawMessage) { p.roster = raw }

// Restore rebuilds the registries from state, re-attaching annotations to the
// freshly loaded instances that match by key. Unknown tag ids are dropped;
// remembered tags no live instance holds become ghost suggestions.
func (p *Planner) Restore(state State) {
	c := p.Tags.Catalog()
	p.Tags = NewTagRegistry(c)
	p.Bookmarks = NewBookmarkIndex()
	p.Notes = NewNoteStore()
	p.orphanInstances = map[string]InstanceState{}
	p.orphanNotes = map[string]string{}
	p.roster = state.Roster

	byKey := map[string]catalog.Target{}
	for _, target := range p.dataset.Instances() {
		byKey[target.InstanceKey()] = target
	}

	for key, inst := range state.Instances {
		target, ok := byKey[key]
		if !ok {
			p.orphanInstances[key] = inst
			continue
		}
		for _, tagID := range inst.Tags {
			p.Tags.Assign(target, tagID)
		}
		if inst.Bookmarked {
			p.Bookmarks.Set(target, true)
		}
	}

	for topicID, text := range state.TopicNotes {
		p.Notes.SetTopicNote(topicID, text)
	}
	for key, text := range state.CourseNotes {
		if course, ok := byKey[key].(*catalog.LeafCourse); ok {
			p.Notes.SetNote(course, text)
			continue
		}
		p.orphanNotes[key] = text
	}

	for topicID, ids := range state.TagMemory {
		for _, tagID := range ids {
			p.Tags.RememberGhost(topicID, tagID)
		}
	}
}

// Snapshot captures the registries as a section payload.
func (p *Planner) Snapshot() State {
	state := State{
		Version:     stateVersion,
		Rotation:    p.dataset.Rotation,
		Instances:   map[string]InstanceState{},
		TopicNotes:  map[string]string{},
		CourseNotes: map[string]string{},
		TagMemory:   map[string][]string{},
		Roster:      p.roster,
	}
	for key, inst := range p.orphanInstances {
		state.Instances[key] = inst
	}
	for key, text := range p.orphanNotes {
		state.CourseNotes[key] = text
	}

	for _, target := range p.dataset.Instances() {
		var inst InstanceState
		for _, option := range p.Tags.Tags(target) {
			inst.Tags = append(inst.Tags, option.ID)
		}
		inst.Bookmarked = p.Bookmarks.IsBookmarked(target)
		if len(inst.Tags) > 0 || inst.Bookmarked {
			state.Instances[target.InstanceKey()] = inst
		}
		if course, ok := target.(*catalog.LeafCourse); ok {
			if text := p.Notes.Note(course); text != "" {
				state.CourseNotes[course.InstanceKey()] = text
			}
		}
	}
	for topicID, text := range p.Notes.topics {
		state.TopicNotes[topicID] = text
	}
	for _, topicID := range p.Tags.SharedIDs() {
		ids := append(p.Tags.Memory(topicID), p.Tags.Ghosts(topicID)...)
		if len(ids) > 0 {
			state.TagMemory[topicID] = ids
		}
	}
	return state
}

// MarshalSection encodes the current snapshot.
func (p *Planner) MarshalSection() (json.RawMessage, error) {
	raw, err := json.Marshal(p.Snapshot())
	if err != nil {
		return nil, fmt.Errorf("marshal planner section: %w", err)
	}
	return raw, nil
}

// DecodeState parses a planner section. Absent input yields an empty state.
func DecodeState(raw json.RawMessage) (State, error) {
	if len(raw) == 0 {
		return State{Version: stateVersion}, nil
	}
	var state State
	if err := json.Unmarshal(raw, &state); err != nil {
		return State{}, fmt.Errorf("decode planner section: %w", err)
	}
	if state.Version == 0 {
		state.Version = stateVersion
	}
	return state, nil
}

// BookmarkedKeys lists bookmarked instance keys in sorted order.
func (p *Planner) BookmarkedKeys() []string {
	keys := p.Bookmarks.Bookmarked()
	sort.Strings(keys)
	return keys
}
