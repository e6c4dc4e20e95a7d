package session

import "sort"

// PresenceSet is the set of actors currently holding a live connection.
// Mutated only by presence events on the session loop; consumers get copies.
type PresenceSet struct {
	online map[string]struct{}
}

// NewPresenceSet constructs an empty presence set.
func NewPresenceSet() *PresenceSet {
	return &PresenceSet{online: make(map[string]struct{})}
}

// ReplaceAll swaps in a full snapshot, discarding prior state.
func (p *PresenceSet) ReplaceAll(users []string) {
	p.online = make(map[string]struct{}, len(users))
	for _, u := range users {
		p.online[u] = struct{}{}
	}
}

// Add marks a user online. Adding a present user is a no-op.
func (p *PresenceSet) Add(userID string) {
	p.online[userID] = struct{}{}
}

// Remove marks a user offline. Removing an absent user is a no-op.
func (p *PresenceSet) Remove(userID string) {
	delete(p.online, userID)
}

// IsOnline reports whether the user holds a live connection.
func (p *PresenceSet) IsOnline(userID string) bool {
	_, ok := p.online[userID]
	return ok
}

// Online returns the online user ids, sorted for stable display.
func (p *PresenceSet) Online() []string {
	out := make([]string, 0, len(p.online))
	for u := range p.online {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// Reset empties the set. Used on logout only.
func (p *PresenceSet) Reset() {
	p.online = make(map[string]struct{})
}
