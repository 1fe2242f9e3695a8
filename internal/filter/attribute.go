// Package filter implements the attribute/limit constraint matcher for a
// candidate (task config, host) pair. The state manager exposes it through
// Core.MatchesConstraints; Core.AssignTask does not call it.
package filter

import (
	"fmt"

	"github.com/voidshard/igor/pkg/structs"
)

// ActiveTaskLister returns every currently-active task for a job, used to
// evaluate limit constraints against the tasks already placed.
type ActiveTaskLister func(key structs.JobKey) ([]*structs.ScheduledTask, error)

// Matcher evaluates a task's constraints against a candidate host.
type Matcher struct {
	attrs  structs.AttributeLoader
	active ActiveTaskLister

	// cache memoizes attribute lookups for the lifetime of one Matcher so
	// a single scheduling pass over many candidate hosts doesn't refetch
	// the same host's attributes per constraint.
	cache map[string][]structs.Attribute
}

// NewMatcher builds a Matcher. attrs and active are required collaborators:
// a nil Matcher is never valid to call Matches on.
func NewMatcher(attrs structs.AttributeLoader, active ActiveTaskLister) *Matcher {
	return &Matcher{attrs: attrs, active: active, cache: map[string][]structs.Attribute{}}
}

// Matches reports whether cfg may be placed on host. The error is set only
// when an attribute or task lookup fails or a constraint is malformed; a
// failed constraint returns false with no reason attached.
func (m *Matcher) Matches(cfg *structs.TaskConfig, host string) (bool, error) {
	hostAttrs, err := m.attributesFor(host)
	if err != nil {
		return false, err
	}
	for _, c := range cfg.Constraints {
		ok, err := m.satisfies(cfg, c, host, hostAttrs)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (m *Matcher) attributesFor(host string) ([]structs.Attribute, error) {
	if a, ok := m.cache[host]; ok {
		return a, nil
	}
	a, err := m.attrs(host)
	if err != nil {
		return nil, err
	}
	m.cache[host] = a
	return a, nil
}

func (m *Matcher) satisfies(cfg *structs.TaskConfig, c structs.Constraint, host string, hostAttrs []structs.Attribute) (bool, error) {
	switch {
	case c.Value != nil:
		return valueConstraintMatches(c.Name, c.Value, hostAttrs), nil
	case c.Limit != nil:
		return m.limitConstraintMatches(cfg, c.Name, c.Limit, host, hostAttrs)
	default:
		return false, fmt.Errorf("constraint %q has neither a value nor a limit", c.Name)
	}
}

// valueConstraintMatches implements: negated XOR any(values ∩ hostValues).
func valueConstraintMatches(name string, vc *structs.ValueConstraint, hostAttrs []structs.Attribute) bool {
	hostValues := valuesFor(name, hostAttrs)
	any := false
	for _, want := range vc.Values {
		for _, have := range hostValues {
			if want == have {
				any = true
				break
			}
		}
		if any {
			break
		}
	}
	return vc.Negated != any
}

// limitConstraintMatches implements: limit > count(active tasks of the
// same job whose assigned host shares a value for this attribute with
// the candidate host).
func (m *Matcher) limitConstraintMatches(cfg *structs.TaskConfig, name string, lc *structs.LimitConstraint, host string, hostAttrs []structs.Attribute) (bool, error) {
	hostValues := valuesFor(name, hostAttrs)
	if len(hostValues) == 0 {
		// a host with no value for the attribute can never collide with
		// another host on it.
		return true, nil
	}

	active, err := m.active(cfg.JobKey)
	if err != nil {
		return false, err
	}

	count := 0
	for _, t := range active {
		if t.AssignedTask.ShardId == cfg.ShardId {
			continue
		}
		otherHost := t.AssignedTask.SlaveHost
		if otherHost == "" {
			continue
		}
		otherAttrs, err := m.attributesFor(otherHost)
		if err != nil {
			return false, err
		}
		if sharesValue(hostValues, valuesFor(name, otherAttrs)) {
			count++
		}
	}
	return lc.Limit > count, nil
}

func valuesFor(name string, attrs []structs.Attribute) []string {
	for _, a := range attrs {
		if a.Name == name {
			return a.Values
		}
	}
	return nil
}

func sharesValue(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}
