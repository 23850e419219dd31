package swarm

import (
	"fmt"

	"FieldPulse/internal/domain/models"
)

// AgentFunc is one independent scoring heuristic: a pure function of the
// state vector and geometry snapshot. Returning an error is an abstention
// for that bucket; it never blocks other agents.
type AgentFunc func(models.StateVector, models.GeometrySnapshot) (models.AgentVote, error)

// Roster is the closed, explicitly registered set of agents. Registration
// order fixes iteration order, so aggregation is deterministic.
type Roster struct {
	names []string
	fns   map[string]AgentFunc
}

func NewRoster() *Roster {
	return &Roster{fns: make(map[string]AgentFunc)}
}

// Register adds a named agent. Names must be unique.
func (r *Roster) Register(name string, fn AgentFunc) error {
	if name == "" || fn == nil {
		return fmt.Errorf("register agent: name and func are required")
	}
	if _, dup := r.fns[name]; dup {
		return fmt.Errorf("register agent: duplicate name %q", name)
	}
	r.names = append(r.names, name)
	r.fns[name] = fn
	return nil
}

// Names returns agent ids in registration order.
func (r *Roster) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Len returns the roster size.
func (r *Roster) Len() int { return len(r.names) }

func (r *Roster) fn(name string) AgentFunc { return r.fns[name] }
