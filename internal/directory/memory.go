package directory

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// MemoryRepository is an in-memory Repository implementation. It backs the
// service when no database URL is configured and is the store the test
// suite runs against. All operations copy on the way in and out so callers
// never share memory with the store.
type MemoryRepository struct {
	mu          sync.RWMutex
	persons     map[string]*Person // by id
	credentials map[string]*Credential
	groups      map[string]*Group // by id
	memberships []GroupMembership
}

// NewMemoryRepository creates an empty in-memory directory store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		persons:     make(map[string]*Person),
		credentials: make(map[string]*Credential),
		groups:      make(map[string]*Group),
	}
}

func (r *MemoryRepository) FindPerson(_ context.Context, id, email string) (*Person, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if id != "" {
		if p, ok := r.persons[id]; ok {
			return r.hydrateLocked(p), nil
		}
	}
	if email != "" {
		for _, p := range r.persons {
			if p.Email == email {
				return r.hydrateLocked(p), nil
			}
		}
	}
	return nil, nil
}

func (r *MemoryRepository) CreatePerson(_ context.Context, p *Person) (*Person, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := clonePerson(p)
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.Metadata == nil {
		stored.Metadata = make(map[string]string)
	}
	stored.Credentials = nil
	stored.Memberships = nil
	r.persons[stored.ID] = stored

	return r.hydrateLocked(stored), nil
}

func (r *MemoryRepository) UpdatePerson(_ context.Context, p *Person) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.persons[p.ID]
	if !ok {
		return nil
	}
	existing.First = p.First
	existing.Last = p.Last
	existing.Email = p.Email
	existing.Enabled = p.Enabled
	existing.Pin = p.Pin
	existing.PinDuress = p.PinDuress
	existing.ActiveDate = p.ActiveDate
	existing.ExpireDate = p.ExpireDate
	existing.Metadata = copyMap(p.Metadata)
	return nil
}

func (r *MemoryRepository) FindPersonsByName(_ context.Context, first, last string) ([]*Person, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Person
	for _, p := range r.persons {
		if p.First == first && p.Last == last {
			out = append(out, r.hydrateLocked(p))
		}
	}
	return out, nil
}

func (r *MemoryRepository) CreateCredential(_ context.Context, personID string, t CredentialType, value string) (*Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := &Credential{
		ID:       uuid.NewString(),
		Type:     t,
		Value:    value,
		PersonID: personID,
	}
	r.credentials[c.ID] = c

	out := *c
	return &out, nil
}

func (r *MemoryRepository) DeleteCredentials(_ context.Context, ids []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range ids {
		delete(r.credentials, id)
	}
	return nil
}

func (r *MemoryRepository) FindGroupsByName(_ context.Context, names []string) ([]*Group, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Group
	for _, g := range r.groups {
		for _, name := range names {
			if g.Name == name {
				gc := *g
				out = append(out, &gc)
				break
			}
		}
	}
	return out, nil
}

func (r *MemoryRepository) CreateGroup(_ context.Context, name string) (*Group, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	g := &Group{ID: uuid.NewString(), Name: name}
	r.groups[g.ID] = g

	out := *g
	return &out, nil
}

func (r *MemoryRepository) CreateMembership(_ context.Context, groupID, personID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.memberships = append(r.memberships, GroupMembership{GroupID: groupID, PersonID: personID})
	return nil
}

// hydrateLocked returns a copy of p with its credentials and memberships
// attached. Callers must hold at least the read lock.
func (r *MemoryRepository) hydrateLocked(p *Person) *Person {
	out := clonePerson(p)
	for _, c := range r.credentials {
		if c.PersonID == p.ID {
			out.Credentials = append(out.Credentials, *c)
		}
	}
	for _, m := range r.memberships {
		if m.PersonID == p.ID {
			out.Memberships = append(out.Memberships, m)
		}
	}
	return out
}

func clonePerson(p *Person) *Person {
	out := *p
	out.Metadata = copyMap(p.Metadata)
	out.Credentials = append([]Credential(nil), p.Credentials...)
	out.Memberships = append([]GroupMembership(nil), p.Memberships...)
	return &out
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// NormalizeEmail lowercases an email address for use as a coordination key.
// Stored emails keep their original casing.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
