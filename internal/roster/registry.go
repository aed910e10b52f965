package roster

import (
	"fmt"
	"time"
)

// Registry is the roster of a single session. It does no locking of its own;
// the owning session serializes every call.
type Registry struct {
	maxParticipants int
	active          map[string]*Participant
	order           []string
	history         []Participant
	historyIndex    map[string]int
	peak            int
}

func NewRegistry(maxParticipants int) *Registry {
	return &Registry{
		maxParticipants: maxParticipants,
		active:          make(map[string]*Participant),
		historyIndex:    make(map[string]int),
	}
}

// CanAdmit reports why Add would reject id without changing anything.
func (r *Registry) CanAdmit(id string) error {
	if _, ok := r.active[id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateParticipant, id)
	}
	if len(r.active) >= r.maxParticipants {
		return fmt.Errorf("%w: roster is full (%d)", ErrCapacityExceeded, r.maxParticipants)
	}
	return nil
}

func (r *Registry) Add(p Participant, at time.Time) (Participant, error) {
	if err := p.Validate(); err != nil {
		return Participant{}, err
	}
	if err := r.CanAdmit(p.ID); err != nil {
		return Participant{}, err
	}
	if p.DisplayName == "" {
		p.DisplayName = p.ID
	}
	p.Connection = Connected
	p.JoinedAt = at
	p.LeftAt = nil

	stored := p
	r.active[p.ID] = &stored
	r.order = append(r.order, p.ID)
	r.history = append(r.history, p)
	r.historyIndex[p.ID] = len(r.history) - 1
	if len(r.active) > r.peak {
		r.peak = len(r.active)
	}
	return p, nil
}

// Remove is a no-op when id is not on the active roster, so duplicate leave
// signals from the transport are harmless.
func (r *Registry) Remove(id string, at time.Time) (Participant, bool) {
	p, ok := r.active[id]
	if !ok {
		return Participant{}, false
	}
	left := at
	p.LeftAt = &left
	p.Connection = Disconnected
	delete(r.active, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	if idx, ok := r.historyIndex[id]; ok {
		r.history[idx] = *p
	}
	return *p, true
}

// SetConnection updates the sub-state of an active participant. changed is false
// when the participant was already in the requested state.
func (r *Registry) SetConnection(id string, state ConnectionState) (p Participant, changed bool, err error) {
	current, ok := r.active[id]
	if !ok {
		return Participant{}, false, fmt.Errorf("%w: %s", ErrParticipantNotFound, id)
	}
	if current.Connection == state {
		return *current, false, nil
	}
	current.Connection = state
	if idx, ok := r.historyIndex[id]; ok {
		r.history[idx] = *current
	}
	return *current, true, nil
}

func (r *Registry) Get(id string) (Participant, bool) {
	p, ok := r.active[id]
	if !ok {
		return Participant{}, false
	}
	return *p, true
}

// Active returns the active roster in admission order, connected or not.
func (r *Registry) Active() []Participant {
	out := make([]Participant, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.active[id])
	}
	return out
}

func (r *Registry) Connected() []Participant {
	out := make([]Participant, 0, len(r.order))
	for _, id := range r.order {
		if p := r.active[id]; p.Connection == Connected {
			out = append(out, *p)
		}
	}
	return out
}

// History includes every admission, with LeftAt set for those who have left.
func (r *Registry) History() []Participant {
	out := make([]Participant, len(r.history))
	copy(out, r.history)
	return out
}

func (r *Registry) Count() int {
	return len(r.active)
}

func (r *Registry) Peak() int {
	return r.peak
}

func (r *Registry) Capacity() int {
	return r.maxParticipants
}
