package model

import "time"

// Session is the in-memory record behind a bearer token.  It carries a
// denormalized snapshot of the account at login time, so later profile
// edits do not change what an existing session sees.  Sessions are never
// persisted; a process restart invalidates all of them.
type Session struct {
	Token     string     `json:"-"`
	UserID    string     `json:"userId"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Role      string     `json:"role"`
	Plant     string     `json:"plant"`
	LoginTime time.Time  `json:"loginTime"`
	ExpiresAt *time.Time `json:"-"`
}
