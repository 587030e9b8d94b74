package game

import "github.com/paint-and-guess/internal/domain"

// Registry holds the players joined to one room, in join order
type Registry struct {
	players map[string]*domain.Player
	order   []string
}

func NewRegistry() *Registry {
	return &Registry{players: make(map[string]*domain.Player)}
}

// Add inserts or replaces a player
func (r *Registry) Add(p domain.Player) {
	if _, ok := r.players[p.ID]; !ok {
		r.order = append(r.order, p.ID)
	}
	r.players[p.ID] = &p
}

// Remove deletes a player and returns its last known state
func (r *Registry) Remove(id string) (domain.Player, bool) {
	p, ok := r.players[id]
	if !ok {
		return domain.Player{}, false
	}
	delete(r.players, id)
	for i, pid := range r.order {
		if pid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return *p, true
}

func (r *Registry) Get(id string) (domain.Player, bool) {
	p, ok := r.players[id]
	if !ok {
		return domain.Player{}, false
	}
	return *p, true
}

func (r *Registry) Has(id string) bool {
	_, ok := r.players[id]
	return ok
}

// Credit adds points to a player's live score. Non-positive deltas are ignored.
func (r *Registry) Credit(id string, points int64) {
	if points <= 0 {
		return
	}
	if p, ok := r.players[id]; ok {
		p.Score += points
	}
}

func (r *Registry) Len() int {
	return len(r.order)
}

// Snapshot copies the players in join order
func (r *Registry) Snapshot() []domain.Player {
	out := make([]domain.Player, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.players[id])
	}
	return out
}

// IDsExcept lists every player identity other than skip, in join order
func (r *Registry) IDsExcept(skip string) []string {
	out := make([]string, 0, len(r.order))
	for _, id := range r.order {
		if id != skip {
			out = append(out, id)
		}
	}
	return out
}
