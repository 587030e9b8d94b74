package game

import (
	"strings"
	"time"
	"unicode"

	"github.com/paint-and-guess/internal/domain"
)

// Phase is the lifecycle position of a room's round
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseRunning
)

const maskRune = '_'

// StateMachine owns the round lifecycle of one room: Idle -> Running -> Idle.
// It is not safe for concurrent use; the owning Room serializes access.
type StateMachine struct {
	phase     Phase
	round     uint64
	word      string
	drawerID  string
	mask      []rune
	elapsed   int
	duration  int
	startedAt time.Time
}

// NewStateMachine creates an idle machine whose rounds last roundDuration
func NewStateMachine(roundDuration time.Duration) *StateMachine {
	seconds := int(roundDuration / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	return &StateMachine{duration: seconds}
}

// Start begins a new round, superseding any round in progress. Letters are
// masked; any other character (spaces, hyphens) is visible from the start.
// It returns the new round number.
func (s *StateMachine) Start(word, drawerID string, now time.Time) uint64 {
	s.round++
	s.phase = PhaseRunning
	s.word = word
	s.drawerID = drawerID
	s.elapsed = 0
	s.startedAt = now

	runes := []rune(word)
	s.mask = make([]rune, len(runes))
	for i, r := range runes {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			s.mask[i] = maskRune
		} else {
			s.mask[i] = r
		}
	}
	return s.round
}

// Tick advances the elapsed counter by one second. It reports whether the
// round has reached its duration. Ticks while idle are ignored.
func (s *StateMachine) Tick() bool {
	if s.phase != PhaseRunning {
		return false
	}
	s.elapsed++
	return s.elapsed >= s.duration
}

// Stop ends the round and clears the drawer. It reports whether a round was
// actually running.
func (s *StateMachine) Stop() bool {
	if s.phase != PhaseRunning {
		return false
	}
	s.phase = PhaseIdle
	s.drawerID = ""
	return true
}

// Matches compares a guess against the secret word, ignoring case and
// surrounding whitespace.
func (s *StateMachine) Matches(text string) bool {
	if s.phase != PhaseRunning || s.word == "" {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(text), strings.TrimSpace(s.word))
}

// Reveal discloses one more hidden letter, chosen by pick(n) among the n
// hidden positions. At most half of the letters are ever revealed this way.
func (s *StateMachine) Reveal(pick func(n int) int) bool {
	if s.phase != PhaseRunning {
		return false
	}

	runes := []rune(s.word)
	hidden := make([]int, 0, len(runes))
	letters := 0
	for i, r := range runes {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			letters++
			if s.mask[i] == maskRune {
				hidden = append(hidden, i)
			}
		}
	}

	revealed := letters - len(hidden)
	if len(hidden) == 0 || revealed+1 > letters/2 {
		return false
	}

	i := hidden[pick(len(hidden))]
	s.mask[i] = runes[i]
	return true
}

// Mask renders the reveal mask with a space between positions, e.g. "_ _ m _ _".
func (s *StateMachine) Mask() string {
	if len(s.mask) == 0 {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s.mask) * 2)
	for i, r := range s.mask {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// MaskLen is the number of positions in the reveal mask
func (s *StateMachine) MaskLen() int { return len(s.mask) }

func (s *StateMachine) Running() bool        { return s.phase == PhaseRunning }
func (s *StateMachine) Round() uint64        { return s.round }
func (s *StateMachine) Word() string         { return s.word }
func (s *StateMachine) DrawerID() string     { return s.drawerID }
func (s *StateMachine) Elapsed() int         { return s.elapsed }
func (s *StateMachine) StartedAt() time.Time { return s.startedAt }

// Duration is the round length in seconds
func (s *StateMachine) Duration() int { return s.duration }

// Remaining is the number of seconds left in the running round
func (s *StateMachine) Remaining() int {
	if s.phase != PhaseRunning {
		return 0
	}
	if left := s.duration - s.elapsed; left > 0 {
		return left
	}
	return 0
}

// Snapshot is the public state; it never carries the secret word.
func (s *StateMachine) Snapshot() domain.GameState {
	state := domain.GameState{
		Running:     s.phase == PhaseRunning,
		DrawerID:    s.drawerID,
		ElapsedTime: s.elapsed,
	}
	if state.Running {
		state.RevealedWord = s.Mask()
	}
	return state
}
