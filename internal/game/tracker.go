package game

// Tracker remembers who guessed the word in the current round. Membership
// only grows within a round and is cleared in place when the next one starts.
type Tracker struct {
	guessed map[string]struct{}
}

func NewTracker() *Tracker {
	return &Tracker{guessed: make(map[string]struct{})}
}

// RecordIfFirst inserts id and returns true only the first time it is seen
// this round.
func (t *Tracker) RecordIfFirst(id string) bool {
	if _, ok := t.guessed[id]; ok {
		return false
	}
	t.guessed[id] = struct{}{}
	return true
}

func (t *Tracker) Has(id string) bool {
	_, ok := t.guessed[id]
	return ok
}

func (t *Tracker) Count() int {
	return len(t.guessed)
}

// IsRoundComplete reports whether every one of the given non-drawing
// players has guessed. An empty list is never complete.
func (t *Tracker) IsRoundComplete(nonDrawers []string) bool {
	if len(nonDrawers) == 0 {
		return false
	}
	for _, id := range nonDrawers {
		if _, ok := t.guessed[id]; !ok {
			return false
		}
	}
	return true
}

func (t *Tracker) Reset() {
	clear(t.guessed)
}
