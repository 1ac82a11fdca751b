package annotate

import (
	"strings"

	"planner/api/internal/catalog"
)

// NoteStore keeps free-text notes. Topic notes are keyed by topic id and so
// are shared by every placement of the topic; leaf course notes belong to the
// course instance alone.
type NoteStore struct {
	topics  map[string]string
	courses map[*catalog.LeafCourse]string
}

func NewNoteStore() *NoteStore {
	return &NoteStore{
		topics:  map[string]string{},
		courses: map[*catalog.LeafCourse]string{},
	}
}

func (n *NoteStore) Note(target catalog.Target) string {
	if !catalog.Valid(target) {
		return ""
	}
	switch v := target.(type) {
	case *catalog.Topic:
		return n.topics[v.SharedID()]
	case *catalog.LeafCourse:
		return n.courses[v]
	}
	return ""
}

// SetNote stores text for the target's note identity. Whitespace-only text
// deletes the note.
func (n *NoteStore) SetNote(target catalog.Target, text string) {
	if !catalog.Valid(target) {
		return
	}
	switch v := target.(type) {
	case *catalog.Topic:
		n.SetTopicNote(v.SharedID(), text)
	case *catalog.LeafCourse:
		if strings.TrimSpace(text) == "" {
			delete(n.courses, v)
			return
		}
		n.courses[v] = text
	}
}

func (n *NoteStore) HasNote(target catalog.Target) bool {
	return strings.TrimSpace(n.Note(target)) != ""
}

func (n *NoteStore) TopicNote(topicID string) string {
	return n.topics[topicID]
}

func (n *NoteStore) SetTopicNote(topicID, text string) {
	if topicID == "" {
		return
	}
	if strings.TrimSpace(text) == "" {
		delete(n.topics, topicID)
		return
	}
	n.topics[topicID] = text
}
