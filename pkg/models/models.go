// Package models defines the entities stored by inkbase and their
// typed identifiers. The same structs are persisted by every store
// backend: GORM tags drive the relational schema, CBOR marshaling on
// the id types drives the SurrealDB record format, and JSON tags
// drive the HTTP API representation.
package models

import (
	"database/sql/driver"
	"encoding/json"
	"strings"
	"time"

	"gorm.io/gorm"
)

// DefaultCategory is assigned to posts created without a category.
const DefaultCategory = "general"

// StringList stores a list of strings as a JSON column in relational
// backends while remaining a plain array in SurrealDB and over HTTP.
type StringList []string

// Value implements driver.Valuer for database storage.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return json.Marshal([]string{})
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner for database retrieval.
func (l *StringList) Scan(value any) error {
	if value == nil {
		*l = StringList{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		bytes = []byte(value.(string))
	}
	return json.Unmarshal(bytes, l)
}

// User is an account that can author posts. PasswordHash holds a
// bcrypt digest and is never serialized to JSON.
type User struct {
	ID           UserID    `gorm:"type:uuid;primary_key" json:"id"`
	Name         string    `gorm:"not null" json:"name"`
	Username     string    `gorm:"uniqueIndex;not null" json:"username"`
	Email        string    `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"not null" json:"-" cbor:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// BeforeCreate generates an id when none is set.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID.IsZero() {
		u.ID = NewUserID()
	}
	return nil
}

// Profile returns the public projection of the user that is embedded
// in post responses.
func (u *User) Profile() *AuthorProfile {
	return &AuthorProfile{ID: u.ID, Name: u.Name, Username: u.Username}
}

// AuthorProfile is the public slice of a user joined onto every post
// returned by the API.
type AuthorProfile struct {
	ID       UserID `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
}

// BlogPost is a single blog entry. AuthorID is set once at creation
// from the authenticated identity and never changes afterwards; the
// Author projection is filled in by the store on reads and is not
// persisted as a column of its own.
type BlogPost struct {
	ID        PostID         `gorm:"type:uuid;primary_key" json:"id"`
	Title     string         `gorm:"not null" json:"title"`
	Content   string         `gorm:"type:text;not null" json:"content"`
	AuthorID  UserID         `gorm:"type:uuid;not null;index" json:"-" cbor:"author"`
	Author    *AuthorProfile `gorm:"-" json:"author,omitempty" cbor:"-"`
	Tags      StringList     `gorm:"type:jsonb" json:"tags"`
	Category  string         `gorm:"not null;default:general" json:"category"`
	Published bool           `gorm:"not null;default:false;index" json:"published"`

	// Revision increases by one on every successful update. Clients
	// may present it in If-Match to detect concurrent modification.
	Revision int64 `gorm:"not null;default:1" json:"revision"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate generates an id when none is set.
func (p *BlogPost) BeforeCreate(tx *gorm.DB) error {
	if p.ID.IsZero() {
		p.ID = NewPostID()
	}
	return nil
}

// IsAuthoredBy reports whether the given identity owns the post. The
// ownership rule for update and delete lives here so both paths share
// one predicate.
func (p *BlogPost) IsAuthoredBy(id UserID) bool {
	return p.AuthorID == id
}

// TrimTags returns tags with surrounding whitespace removed and empty
// entries dropped, preserving order.
func TrimTags(tags []string) StringList {
	trimmed := make(StringList, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t != "" {
			trimmed = append(trimmed, t)
		}
	}
	return trimmed
}
