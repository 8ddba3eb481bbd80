package model

import "time"

// Roles a user account may hold.  Role names are stored verbatim in the
// users collection and in session snapshots, so they are lower case to
// match what the frontend sends and displays.
const (
	RoleAdmin    = "admin"
	RoleApprover = "approver"
	RoleUser     = "user"
)

// PlantAll marks an account that may act on orders from every plant.
const PlantAll = "ALL"

// UserAccount is a single record in the users collection file.  The
// password hash is serialized under the "password" key so that users.json
// files written by earlier deployments of this service keep working; it
// must never contain a plaintext value.
//
// Fields:
//  UserID       – unique login identifier, immutable after creation.
//  PasswordHash – bcrypt hash of the password.
//  Name, Email  – profile data.
//  Role         – admin | approver | user.
//  Plant        – plant code the account is scoped to, or "ALL".
//  Active       – inactive accounts cannot authenticate.
//  CreatedAt    – set once at creation.
//  LastLogin    – updated on every successful authentication; nil before
//                 the first login.
type UserAccount struct {
	UserID       string     `json:"userId"`
	PasswordHash string     `json:"password"`
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	Role         string     `json:"role"`
	Plant        string     `json:"plant"`
	Active       bool       `json:"active"`
	CreatedAt    time.Time  `json:"createdAt"`
	LastLogin    *time.Time `json:"lastLogin"`
}

// View returns the caller-facing shape of the account with the password
// hash stripped.
func (u UserAccount) View() UserView {
	return UserView{
		UserID:    u.UserID,
		Name:      u.Name,
		Email:     u.Email,
		Role:      u.Role,
		Plant:     u.Plant,
		Active:    u.Active,
		CreatedAt: u.CreatedAt,
		LastLogin: u.LastLogin,
	}
}

// UserView is UserAccount without credential material.  Handlers return
// this type; the hash never leaves the repository layer.
type UserView struct {
	UserID    string     `json:"userId"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Role      string     `json:"role"`
	Plant     string     `json:"plant"`
	Active    bool       `json:"active"`
	CreatedAt time.Time  `json:"createdAt"`
	LastLogin *time.Time `json:"lastLogin"`
}

// UserCollection is the persisted collection document: the ordered list
// of accounts plus a collection-level modification timestamp.  The whole
// document is rewritten on every mutation.
type UserCollection struct {
	Users       []UserAccount `json:"users"`
	LastUpdated time.Time     `json:"lastUpdated"`
}
