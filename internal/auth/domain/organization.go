package domain

import "time"

type Organization struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Domains   map[string]string `json:"domains"` // label -> domain
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// NewOrganization describes an organization to create, optionally with the
// administrator that will own it.
type NewOrganization struct {
	Name    string
	Domains map[string]string
	Admin   *NewUser
}

// NewUser carries the fields needed to create an account. Password is
// plaintext and hashed before it reaches the store.
type NewUser struct {
	Email      string
	Name       string
	Password   string
	Role       Role
	Access     []string
	MFAEnabled bool
}
