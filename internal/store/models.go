package store

import "time"

// Planner is the persisted sectioned document of one identity. State holds
// the document JSON exactly as the client sent it.
type Planner struct {
	ID        string
	UserID    string
	Email     string
	State     []byte
	Revision  int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

type CommitInfo struct {
	Hash      string
	Message   string
	Author    string
	CreatedAt time.Time
}
