package realtime

import "sync"

// Registry tracks live connections by user id and by chat room. Every access
// goes through the registry lock.
type Registry struct {
	mu    sync.RWMutex
	users map[uint]map[*Client]struct{}
	rooms map[string]map[*Client]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		users: make(map[uint]map[*Client]struct{}),
		rooms: make(map[string]map[*Client]struct{}),
	}
}

// Bind attaches an authenticated client to its user id.
func (r *Registry) Bind(c *Client, userID uint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.users[userID]
	if !ok {
		set = make(map[*Client]struct{})
		r.users[userID] = set
	}
	set[c] = struct{}{}
}

func (r *Registry) Join(c *Client, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.rooms[room]
	if !ok {
		set = make(map[*Client]struct{})
		r.rooms[room] = set
	}
	set[c] = struct{}{}
}

// Remove drops c from its user and from every room. Empty sets are deleted.
func (r *Registry) Remove(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, set := range r.users {
		if _, ok := set[c]; ok {
			delete(set, c)
			if len(set) == 0 {
				delete(r.users, id)
			}
		}
	}
	for room, set := range r.rooms {
		if _, ok := set[c]; ok {
			delete(set, c)
			if len(set) == 0 {
				delete(r.rooms, room)
			}
		}
	}
}

// UserClients returns a snapshot of the user's connections.
func (r *Registry) UserClients(userID uint) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return snapshot(r.users[userID])
}

func (r *Registry) RoomClients(room string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return snapshot(r.rooms[room])
}

// Online reports how many distinct users have at least one connection.
func (r *Registry) Online() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}

func snapshot(set map[*Client]struct{}) []*Client {
	out := make([]*Client, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	return out
}
