// Package plandoc defines the sectioned planner document shared by the sync
// client and the planner service, together with the wire types of the remote
// state protocol.
package plandoc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// DocumentVersion is the only document version the protocol accepts.
const DocumentVersion = 1

// Section is one independently owned slice of the planner document. State is
// kept as raw JSON so sections never get re-shaped by code that does not own
// them.
type Section struct {
	Source string          `json:"source"`
	State  json.RawMessage `json:"state"`

	// raw is the section object exactly as it was decoded. While Source and
	// State still match it, it is written back verbatim, extra keys and
	// formatting included.
	raw []byte
}

func (s *Section) UnmarshalJSON(data []byte) error {
	var fields struct {
		Source string          `json:"source"`
		State  json.RawMessage `json:"state"`
	}
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	s.Source = fields.Source
	s.State = cloneRaw(fields.State)
	s.raw = bytes.Clone(data)
	return nil
}

func (s Section) MarshalJSON() ([]byte, error) {
	return s.appendJSON(nil)
}

// verbatim returns the decoded bytes when the section was not modified since.
func (s Section) verbatim() ([]byte, bool) {
	if s.raw == nil {
		return nil, false
	}
	var fields struct {
		Source string          `json:"source"`
		State  json.RawMessage `json:"state"`
	}
	if err := json.Unmarshal(s.raw, &fields); err != nil {
		return nil, false
	}
	if fields.Source != s.Source || !bytes.Equal(fields.State, s.State) {
		return nil, false
	}
	return s.raw, true
}

func (s Section) appendJSON(buf []byte) ([]byte, error) {
	if raw, ok := s.verbatim(); ok {
		return append(buf, raw...), nil
	}
	state := s.State
	if len(bytes.TrimSpace(state)) == 0 {
		state = json.RawMessage("null")
	}
	if !json.Valid(state) {
		return nil, fmt.Errorf("section %q state is not valid JSON", s.Source)
	}
	buf = append(buf, `{"source":`...)
	buf = appendString(buf, s.Source)
	buf = append(buf, `,"state":`...)
	buf = append(buf, state...)
	return append(buf, '}'), nil
}

// Document is the full persisted planner state.
type Document struct {
	Version  int                `json:"version"`
	Sections map[string]Section `json:"sections"`
}

func NewDocument() *Document {
	return &Document{
		Version:  DocumentVersion,
		Sections: map[string]Section{},
	}
}

// Decode parses a document. A nil, empty or JSON null input yields an empty
// document. Invalid JSON is reported as a *ParseError.
func Decode(raw []byte) (*Document, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return NewDocument(), nil
	}
	var doc Document
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, &ParseError{Err: err}
	}
	doc.normalize()
	return &doc, nil
}

func (d *Document) normalize() {
	if d.Version == 0 {
		d.Version = DocumentVersion
	}
	if d.Sections == nil {
		d.Sections = map[string]Section{}
	}
}

// Clone returns a deep copy. Section states are copied byte for byte.
func (d *Document) Clone() *Document {
	if d == nil {
		return NewDocument()
	}
	out := &Document{
		Version:  d.Version,
		Sections: make(map[string]Section, len(d.Sections)),
	}
	if out.Version == 0 {
		out.Version = DocumentVersion
	}
	for name, section := range d.Sections {
		out.Sections[name] = Section{
			Source: section.Source,
			State:  cloneRaw(section.State),
			raw:    bytes.Clone(section.raw),
		}
	}
	return out
}

// WithSection returns a copy of d where exactly sections[name] is replaced by
// {source: name, state: state}. Every other section is carried over
// unchanged.
func (d *Document) WithSection(name string, state json.RawMessage) *Document {
	out := d.Clone()
	if len(bytes.TrimSpace(state)) == 0 {
		state = json.RawMessage("null")
	}
	out.Sections[name] = Section{Source: name, State: cloneRaw(state)}
	return out
}

// SectionState returns the raw state stored under name. A section whose state
// is JSON null counts as absent.
func (d *Document) SectionState(name string) (json.RawMessage, bool) {
	if d == nil {
		return nil, false
	}
	section, ok := d.Sections[name]
	if !ok {
		return nil, false
	}
	trimmed := bytes.TrimSpace(section.State)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, false
	}
	return cloneRaw(section.State), true
}

// SectionNames lists section keys in sorted order.
func (d *Document) SectionNames() []string {
	if d == nil {
		return nil
	}
	names := make([]string, 0, len(d.Sections))
	for name := range d.Sections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks the invariants the planner service enforces before
// accepting a write.
func (d *Document) Validate() error {
	if d == nil {
		return fmt.Errorf("document is required")
	}
	if d.Version != DocumentVersion {
		return fmt.Errorf("unsupported document version %d", d.Version)
	}
	for name, section := range d.Sections {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("section name must not be blank")
		}
		if section.Source != name {
			return fmt.Errorf("section %q has source %q", name, section.Source)
		}
		if len(section.State) > 0 && !json.Valid(section.State) {
			return fmt.Errorf("section %q state is not valid JSON", name)
		}
	}
	return nil
}

// Marshal encodes the document without HTML escaping or compaction, so
// sections nobody replaced keep their original bytes.
func (d *Document) Marshal() ([]byte, error) {
	if d == nil {
		d = NewDocument()
	}
	version := d.Version
	if version == 0 {
		version = DocumentVersion
	}
	buf := make([]byte, 0, 256)
	buf = append(buf, `{"version":`...)
	buf = strconv.AppendInt(buf, int64(version), 10)
	buf = append(buf, `,"sections":{`...)
	for i, name := range d.SectionNames() {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = appendString(buf, name)
		buf = append(buf, ':')
		var err error
		if buf, err = d.Sections[name].appendJSON(buf); err != nil {
			return nil, err
		}
	}
	return append(buf, '}', '}'), nil
}

// MarshalJSON lets a document nest inside other values. encoding/json
// compacts nested output; wire bodies use the Encode helpers instead.
func (d *Document) MarshalJSON() ([]byte, error) {
	return d.Marshal()
}

func appendString(buf []byte, s string) []byte {
	var out bytes.Buffer
	enc := json.NewEncoder(&out)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	return append(buf, bytes.TrimSuffix(out.Bytes(), []byte("\n"))...)
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	out := make(json.RawMessage, len(raw))
	copy(out, raw)
	return out
}
