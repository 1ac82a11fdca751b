package plandoc

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// Identity is the opaque {id, email} pair produced by the login provider.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

func (i Identity) Valid() bool {
	return strings.TrimSpace(i.ID) != ""
}

// GetRequest is the body of POST /api/planner/get.
type GetRequest struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// GetResponse is the reply to GetRequest. State is nil when the identity has
// never saved a planner.
type GetResponse struct {
	OK          bool       `json:"ok"`
	Reason      string     `json:"reason,omitempty"`
	Code        string     `json:"code,omitempty"`
	State       *Document  `json:"state,omitempty"`
	PlannerID   string     `json:"plannerId,omitempty"`
	LastUpdated *time.Time `json:"lastUpdated,omitempty"`
}

// Encode renders the response with State written by Document.Marshal, so
// stored sections reach the client byte for byte.
func (r GetResponse) Encode() ([]byte, error) {
	state := r.State
	r.State = nil
	return spliceState(r, state)
}

// SetRequest is the body of POST /api/planner/set.
type SetRequest struct {
	ID    string    `json:"id"`
	Email string    `json:"email"`
	State *Document `json:"state"`
}

// Encode renders the request with State written by Document.Marshal.
func (r SetRequest) Encode() ([]byte, error) {
	return spliceState(struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	}{r.ID, r.Email}, r.State)
}

type SetResponse struct {
	OK        bool       `json:"ok"`
	Reason    string     `json:"reason,omitempty"`
	Code      string     `json:"code,omitempty"`
	PlannerID string     `json:"plannerId,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// HistoryEntry is one accepted write of a planner document.
type HistoryEntry struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

// RevisionRequest is the body of POST /api/planner/history/show. The reply
// is a GetResponse holding the document recorded at Hash.
type RevisionRequest struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Hash  string `json:"hash"`
}

type HistoryResponse struct {
	OK      bool           `json:"ok"`
	Reason  string         `json:"reason,omitempty"`
	Code    string         `json:"code,omitempty"`
	Entries []HistoryEntry `json:"entries,omitempty"`
}

// RemoteState is what a successful GET yields to the client.
type RemoteState struct {
	Document    *Document
	PlannerID   string
	LastUpdated time.Time
}

// SetResult is what a successful SET yields to the client.
type SetResult struct {
	PlannerID string
	UpdatedAt time.Time
}

// spliceState encodes fields, which must render as a non-empty object, and
// appends a "state" member holding doc's own encoding.
func spliceState(fields any, doc *Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(fields); err != nil {
		return nil, err
	}
	out := bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
	if doc == nil {
		return out, nil
	}
	state, err := doc.Marshal()
	if err != nil {
		return nil, err
	}
	out = append(out[:len(out)-1], `,"state":`...)
	out = append(out, state...)
	return append(out, '}'), nil
}
