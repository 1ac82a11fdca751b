package catalog

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
)

// Target is anything an annotation can attach to: a topic instance or a
// course that has no topics. Courses that carry topics are not targets; their
// annotations live on the topics.
type Target interface {
	// InstanceKey is stable across dataset reloads and unique per instance.
	InstanceKey() string
	// SharedID is the topicId shared by every instance of the same topic, or
	// "" for courses.
	SharedID() string
	valid() bool
}

// Item is a top-level curriculum entry: *LeafCourse or *TopicCourse.
type Item interface {
	CourseCode() string
	CourseTitle() string
	item()
}

// LeafCourse is a course without topics. It owns its own note and bookmark.
type LeafCourse struct {
	Code  string
	Title string
}

func (c *LeafCourse) CourseCode() string  { return c.Code }
func (c *LeafCourse) CourseTitle() string { return c.Title }
func (c *LeafCourse) InstanceKey() string { return c.Code }
func (c *LeafCourse) SharedID() string    { return "" }
func (c *LeafCourse) valid() bool         { return c != nil }
func (*LeafCourse) item()                 {}

// TopicCourse is a course grouping topics. The same topic may appear under
// several TopicCourses.
type TopicCourse struct {
	Code   string
	Title  string
	Topics []*Topic
}

func (c *TopicCourse) CourseCode() string  { return c.Code }
func (c *TopicCourse) CourseTitle() string { return c.Title }
func (*TopicCourse) item()                 {}

// AddTopic appends a topic instance placed under this course.
func (c *TopicCourse) AddTopic(topicID, title string) *Topic {
	topic := &Topic{ID: strings.TrimSpace(topicID), Title: title, course: c}
	c.Topics = append(c.Topics, topic)
	return topic
}

// Topic is one placement of a topic under a course.
type Topic struct {
	ID     string
	Title  string
	course *TopicCourse
}

func (t *Topic) Course() *TopicCourse { return t.course }
func (t *Topic) SharedID() string     { return t.ID }
func (t *Topic) valid() bool          { return t != nil }

func (t *Topic) InstanceKey() string {
	if t.course == nil {
		return "#" + t.ID
	}
	return t.course.Code + "#" + t.ID
}

// Valid reports whether target refers to a live instance. It guards against
// nil interfaces and typed nil pointers alike.
func Valid(target Target) bool {
	return target != nil && target.valid()
}

// Dataset is one loaded curriculum tree. Instances are recreated on every
// reload; only instance keys and topic ids are stable.
type Dataset struct {
	Rotation string
	Items    []Item
}

// Instances returns every annotation target in dataset order.
func (d *Dataset) Instances() []Target {
	if d == nil {
		return nil
	}
	var out []Target
	for _, item := range d.Items {
		switch v := item.(type) {
		case *LeafCourse:
			out = append(out, v)
		case *TopicCourse:
			for _, topic := range v.Topics {
				out = append(out, topic)
			}
		}
	}
	return out
}

// Find resolves an instance key. It returns nil for unknown keys.
func (d *Dataset) Find(key string) Target {
	for _, target := range d.Instances() {
		if target.InstanceKey() == key {
			return target
		}
	}
	return nil
}

// TopicInstances returns every placement of topicID.
func (d *Dataset) TopicInstances(topicID string) []*Topic {
	var out []*Topic
	for _, target := range d.Instances() {
		if topic, ok := target.(*Topic); ok && topic.ID == topicID {
			out = append(out, topic)
		}
	}
	return out
}

// CourseCodes lists course codes sorted, used as the roster other features
// consume.
func (d *Dataset) CourseCodes() []string {
	if d == nil {
		return nil
	}
	codes := make([]string, 0, len(d.Items))
	for _, item := range d.Items {
		codes = append(codes, item.CourseCode())
	}
	sort.Strings(codes)
	return codes
}

// Roster implements the roster provider capability used by section
// hydration.
func (d *Dataset) Roster() (json.RawMessage, bool) {
	codes := d.CourseCodes()
	if len(codes) == 0 {
		return nil, false
	}
	raw, err := json.Marshal(codes)
	if err != nil {
		return nil, false
	}
	return raw, true
}

type datasetWire struct {
	Rotation string `json:"rotation"`
	Courses  []struct {
		Code   string `json:"code"`
		Title  string `json:"title"`
		Topics []struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"topics"`
	} `json:"courses"`
}

// DecodeDataset reads the JSON dataset export. Courses without topics become
// *LeafCourse, the others *TopicCourse.
func DecodeDataset(r io.Reader) (*Dataset, error) {
	var wire datasetWire
	if err := json.NewDecoder(r).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decode dataset: %w", err)
	}
	ds := &Dataset{Rotation: wire.Rotation}
	seen := map[string]bool{}
	for _, course := range wire.Courses {
		code := strings.TrimSpace(course.Code)
		if code == "" {
			return nil, fmt.Errorf("decode dataset: course without code")
		}
		if seen[code] {
			return nil, fmt.Errorf("decode dataset: duplicate course %q", code)
		}
		seen[code] = true
		if len(course.Topics) == 0 {
			ds.Items = append(ds.Items, &LeafCourse{Code: code, Title: course.Title})
			continue
		}
		tc := &TopicCourse{Code: code, Title: course.Title}
		for _, topic := range course.Topics {
			if strings.TrimSpace(topic.ID) == "" {
				continue
			}
			tc.AddTopic(topic.ID, topic.Title)
		}
		ds.Items = append(ds.Items, tc)
	}
	return ds, nil
}
