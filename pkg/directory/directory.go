// Package directory resolves user ids to display profiles. Identity is
// owned by the surrounding platform; this service only needs usernames
// for derived conversation names and message attribution, so the
// directory is a read-only lookup seeded from configuration.
package directory

import (
	"sort"
	"sync"

	"parley/pkg/config"
)

// SystemUserID is the reserved actor for service-generated messages and
// announcements. It is always resolvable and never a real participant
// peer in the membership sense.
const SystemUserID = "system"

// User is a resolvable profile.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
}

// Directory looks up user profiles.
type Directory interface {
	// Lookup returns the profile for an id. Unknown ids resolve to a
	// placeholder profile whose username is the id itself, so callers
	// never fail on a stale or foreign id.
	Lookup(id string) User
	// List returns all known users sorted by username.
	List() []User
}

// Static is a config-seeded in-memory directory.
type Static struct {
	mu    sync.RWMutex
	users map[string]User
}

// NewStatic builds a directory from configured users. The system user is
// always present.
func NewStatic(seed []config.DirectoryUser) *Static {
	d := &Static{users: make(map[string]User, len(seed)+1)}
	d.users[SystemUserID] = User{ID: SystemUserID, Username: "System"}
	for _, u := range seed {
		if u.ID == "" {
			continue
		}
		d.users[u.ID] = User{ID: u.ID, Username: u.Username, Avatar: u.Avatar}
	}
	return d
}

func (d *Static) Lookup(id string) User {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if u, ok := d.users[id]; ok {
		return u
	}
	return User{ID: id, Username: id}
}

func (d *Static) List() []User {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]User, 0, len(d.users))
	for _, u := range d.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}

// Add registers or replaces a profile at runtime.
func (d *Static) Add(u User) {
	if u.ID == "" {
		return
	}
	d.mu.Lock()
	d.users[u.ID] = u
	d.mu.Unlock()
}
