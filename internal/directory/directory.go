// Package directory models the personnel directory: people, their access
// credentials, and their group memberships. The import pipeline only ever
// talks to the Repository interface; the backing store is either the
// in-memory implementation or the PostgreSQL one.
package directory

import (
	"context"
	"time"
)

// CredentialType identifies the kind of access credential.
type CredentialType string

const (
	CredentialCard      CredentialType = "CARD"
	CredentialBluetooth CredentialType = "BLUETOOTH"
	CredentialMobile    CredentialType = "MOBILE"
)

// Person is a directory entity. ID may be supplied by the caller (external
// identifiers from an upstream HR system) or generated on create.
type Person struct {
	ID         string
	First      string
	Last       string
	Email      string
	Enabled    bool
	Pin        string
	PinDuress  string
	ActiveDate time.Time
	ExpireDate time.Time

	// Metadata is a free-form map of caller-defined keys. Merges are
	// non-destructive: keys absent from an update survive it.
	Metadata map[string]string

	Credentials []Credential
	Memberships []GroupMembership
}

// CredentialsOfType returns the person's credentials of the given type.
func (p *Person) CredentialsOfType(t CredentialType) []Credential {
	var out []Credential
	for _, c := range p.Credentials {
		if c.Type == t {
			out = append(out, c)
		}
	}
	return out
}

// HasCard reports whether the person already holds a CARD credential with
// the given value. Card credentials are keyed by (person, value).
func (p *Person) HasCard(value string) bool {
	for _, c := range p.Credentials {
		if c.Type == CredentialCard && c.Value == value {
			return true
		}
	}
	return false
}

// Credential links a provable means of access to one person. Value is set
// for CARD credentials only; bluetooth and mobile enrollments have no
// natural key beyond their count.
type Credential struct {
	ID       string
	Type     CredentialType
	Value    string
	PersonID string
}

// Group is identified by its unique name.
type Group struct {
	ID   string
	Name string
}

// GroupMembership links a person to a group.
type GroupMembership struct {
	GroupID  string
	PersonID string
}

// Repository is the directory store contract consumed by the import
// pipeline. Implementations must be safe for concurrent use: row workers
// from one file mutate the store in parallel.
type Repository interface {
	// FindPerson looks up a person by id or email, first match wins.
	// Returns (nil, nil) when no person matches. The returned person
	// includes credentials and group memberships.
	FindPerson(ctx context.Context, id, email string) (*Person, error)

	// CreatePerson stores a new person. When p.ID is empty an id is
	// generated. Returns the stored person including its id.
	CreatePerson(ctx context.Context, p *Person) (*Person, error)

	// UpdatePerson overwrites the person's scalar fields and metadata.
	UpdatePerson(ctx context.Context, p *Person) error

	// FindPersonsByName returns every person with the exact (first, last)
	// name pair.
	FindPersonsByName(ctx context.Context, first, last string) ([]*Person, error)

	// CreateCredential stores a new credential for a person. value is
	// empty for bluetooth and mobile credentials.
	CreateCredential(ctx context.Context, personID string, t CredentialType, value string) (*Credential, error)

	// DeleteCredentials removes the credentials with the given ids.
	// Unknown ids are ignored.
	DeleteCredentials(ctx context.Context, ids []string) error

	// FindGroupsByName returns the groups whose names appear in names.
	FindGroupsByName(ctx context.Context, names []string) ([]*Group, error)

	// CreateGroup stores a new group with the given name.
	CreateGroup(ctx context.Context, name string) (*Group, error)

	// CreateMembership links a person to a group.
	CreateMembership(ctx context.Context, groupID, personID string) error
}
