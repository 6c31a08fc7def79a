package collab

import (
	"sync"

	"github.com/weiawesome/wes-canvas-live/pkg/protocol"
)

// Roster mirrors the server's participant list for one room. A PresenceList
// replaces it wholesale; UserJoined and UserLeft patch it. Patches that
// arrive before the first snapshot are dropped, since the snapshot that
// follows a join already includes them.
type Roster struct {
	mu       sync.Mutex
	seeded   bool
	users    []protocol.Participant
	onLeave  []func(userID string)
	onChange []func([]protocol.Participant)
}

// NewRoster returns an empty, unseeded roster.
func NewRoster() *Roster {
	return &Roster{}
}

// OnLeave registers a callback fired for every user removed from the roster,
// by UserLeft or by a snapshot that no longer lists them.
func (r *Roster) OnLeave(f func(userID string)) {
	r.mu.Lock()
	r.onLeave = append(r.onLeave, f)
	r.mu.Unlock()
}

// OnChange registers a callback fired with the new roster after any change.
func (r *Roster) OnChange(f func([]protocol.Participant)) {
	r.mu.Lock()
	r.onChange = append(r.onChange, f)
	r.mu.Unlock()
}

// ApplyList replaces the roster with a full snapshot.
func (r *Roster) ApplyList(users []protocol.Participant) {
	next := make([]protocol.Participant, 0, len(users))
	seen := make(map[string]bool, len(users))
	for _, u := range users {
		if u.UserID == "" || seen[u.UserID] {
			continue
		}
		seen[u.UserID] = true
		next = append(next, u)
	}

	r.mu.Lock()
	var removed []string
	for _, u := range r.users {
		if !seen[u.UserID] {
			removed = append(removed, u.UserID)
		}
	}
	r.users = next
	r.seeded = true
	leave, change, snap := r.observers()
	r.mu.Unlock()

	for _, id := range removed {
		for _, f := range leave {
			f(id)
		}
	}
	for _, f := range change {
		f(snap)
	}
}

// ApplyJoined adds a participant. Joining twice is a no-op apart from a
// display name refresh. It reports whether the roster changed.
func (r *Roster) ApplyJoined(p protocol.Participant) bool {
	if p.UserID == "" {
		return false
	}

	r.mu.Lock()
	if !r.seeded {
		r.mu.Unlock()
		return false
	}

	changed := true
	found := false
	for i, u := range r.users {
		if u.UserID == p.UserID {
			found = true
			changed = u.DisplayName != p.DisplayName
			r.users[i] = p
			break
		}
	}
	if !found {
		r.users = append(r.users, p)
	}
	if !changed {
		r.mu.Unlock()
		return false
	}
	_, change, snap := r.observers()
	r.mu.Unlock()

	for _, f := range change {
		f(snap)
	}
	return true
}

// ApplyLeft removes a participant and fires the leave callbacks. Leave
// callbacks fire even when the user was not listed so stale signal state is
// always purged.
func (r *Roster) ApplyLeft(userID string) bool {
	if userID == "" {
		return false
	}

	r.mu.Lock()
	if !r.seeded {
		r.mu.Unlock()
		return false
	}

	kept := r.users[:0]
	removed := false
	for _, u := range r.users {
		if u.UserID == userID {
			removed = true
			continue
		}
		kept = append(kept, u)
	}
	r.users = kept
	leave, change, snap := r.observers()
	r.mu.Unlock()

	for _, f := range leave {
		f(userID)
	}
	if removed {
		for _, f := range change {
			f(snap)
		}
	}
	return removed
}

// Participants returns a copy of the roster in arrival order.
func (r *Roster) Participants() []protocol.Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]protocol.Participant(nil), r.users...)
}

// Contains reports whether userID is listed.
func (r *Roster) Contains(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.UserID == userID {
			return true
		}
	}
	return false
}

// Len returns the number of participants.
func (r *Roster) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users)
}

// Seeded reports whether a snapshot has been applied.
func (r *Roster) Seeded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seeded
}

// observers must be called with r.mu held.
func (r *Roster) observers() ([]func(string), []func([]protocol.Participant), []protocol.Participant) {
	leave := append([]func(string){}, r.onLeave...)
	change := append([]func([]protocol.Participant){}, r.onChange...)
	snap := append([]protocol.Participant(nil), r.users...)
	return leave, change, snap
}
