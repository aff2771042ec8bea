// Package session implements the user registry (C5): a table of users keyed
// by stable id with a secondary index by name, join/part presence
// bookkeeping, and the color-uniqueness and privilege lookups the protocol
// dispatcher and document coordinator depend on.
package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/goatee-collab/goatee/content"
)

// Flags is a presence/status bitset for a User.
type Flags uint32

// Connected marks a user as currently holding a live transport connection.
const Connected Flags = 1 << 0

// Color is an RGB triple.
type Color struct {
	R, G, B uint8
}

// User is one row of the registry.
type User struct {
	ID           content.UserID
	Name         string
	Color        Color
	Token        string
	PasswordHash string
	Flags        Flags
}

// Connected reports whether CONNECTED is set.
func (u *User) Connected() bool { return u.Flags&Connected != 0 }

// ErrColorInUse is returned by Login when the requested color belongs to
// another currently-connected user.
var ErrColorInUse = errors.New("session: color already in use")

// ErrUnknownUser is returned by lookups for an id or name with no row.
var ErrUnknownUser = errors.New("session: unknown user")

// Registry is the user table. The zero value is not usable; construct with
// New. Registry is safe for concurrent use, though the buffer's
// single-threaded event loop (§5) means callers rarely need the locking.
type Registry struct {
	mu       sync.Mutex
	byID     map[content.UserID]*User
	byName   map[string]content.UserID
	nextID   content.UserID
	defaults Priv
	privs    map[content.UserID]Priv
}

// New returns an empty Registry. id 0 (content.ServerUserID) is pre-reserved
// and never handed out by Login.
func New() *Registry {
	return &Registry{
		byID:     make(map[content.UserID]*User),
		byName:   make(map[string]content.UserID),
		nextID:   1,
		defaults: PrivDefault,
		privs:    make(map[content.UserID]Priv),
	}
}

// ColorInUse reports whether color belongs to a currently-CONNECTED user
// other than exceptID.
func (r *Registry) ColorInUse(color Color, exceptID content.UserID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, u := range r.byID {
		if id == exceptID {
			continue
		}
		if u.Connected() && u.Color == color {
			return true
		}
	}
	return false
}

// Login finds or creates the user row for name, marks it CONNECTED, and
// updates its color and token. A returning user (matched by name) rebinds
// to its existing row, preserving id, privileges, and password hash;
// otherwise a new row is allocated with the next stable id.
func (r *Registry) Login(name string, color Color, token, passwordHash string) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.byName[name]; ok {
		u := r.byID[id]
		u.Color = color
		u.Token = token
		u.Flags |= Connected
		return u, nil
	}

	id := r.nextID
	r.nextID++
	u := &User{
		ID:           id,
		Name:         name,
		Color:        color,
		Token:        token,
		PasswordHash: passwordHash,
		Flags:        Connected,
	}
	r.byID[id] = u
	r.byName[name] = id
	return u, nil
}

// Rebind installs an existing persisted row (e.g. loaded at process start
// from the store, §4.8) into the registry without marking it connected,
// preserving its stable id for later logins to bind to by name.
func (r *Registry) Rebind(u User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u.Flags &^= Connected
	stored := u
	r.byID[u.ID] = &stored
	r.byName[u.Name] = u.ID
	if u.ID >= r.nextID {
		r.nextID = u.ID + 1
	}
}

// Disconnect clears CONNECTED but retains the row for the session's
// lifetime, per the transport-failure error policy (§7).
func (r *Registry) Disconnect(id content.UserID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("%w: id %d", ErrUnknownUser, id)
	}
	u.Flags &^= Connected
	return nil
}

// SetColor updates a connected user's color, e.g. in response to a
// user_colour request; callers must check ColorInUse first.
func (r *Registry) SetColor(id content.UserID, color Color) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("%w: id %d", ErrUnknownUser, id)
	}
	u.Color = color
	return nil
}

// SetPasswordHash updates a user's stored password hash, in response to a
// user_password change (§4.6's RSA-protected password-change step).
func (r *Registry) SetPasswordHash(id content.UserID, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("%w: id %d", ErrUnknownUser, id)
	}
	u.PasswordHash = hash
	return nil
}

// ByID returns a copy of the user row for id.
func (r *Registry) ByID(id content.UserID) (User, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return User{}, false
	}
	return *u, true
}

// ByName returns a copy of the user row for name.
func (r *Registry) ByName(name string) (User, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byName[name]
	if !ok {
		return User{}, false
	}
	return *r.byID[id], true
}

// NotConnected returns every row currently missing CONNECTED, for session
// sync's sync_usertable_user stream (§6).
func (r *Registry) NotConnected() []User {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []User
	for _, u := range r.byID {
		if !u.Connected() {
			out = append(out, *u)
		}
	}
	return out
}

// All returns every row in the registry, for persistence snapshots.
func (r *Registry) All() []User {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]User, 0, len(r.byID))
	for _, u := range r.byID {
		out = append(out, *u)
	}
	return out
}

// Privileges returns the effective privilege bitset for id, falling back to
// the registry's default for users with no explicit grant.
func (r *Registry) Privileges(id content.UserID) Priv {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.privs[id]; ok {
		return p
	}
	return r.defaults
}

// Grant sets id's explicit privilege bitset.
func (r *Registry) Grant(id content.UserID, p Priv) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.privs == nil {
		r.privs = make(map[content.UserID]Priv)
	}
	r.privs[id] = p
}
