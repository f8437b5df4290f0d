package engine

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/san-kum/remdrive/internal/session"
)

type property func(e *Engine, r *replica) float64

// Values are in reduced units with k_B = 1. A bare name averages over
// replicas; name(i) reads replica i.
var properties = map[string]property{
	"potential": func(_ *Engine, r *replica) float64 { return r.sys.Potential(r.state) },
	"kinetic_md": func(_ *Engine, r *replica) float64 {
		return r.sys.Kinetic(r.state)
	},
	"conserved": func(_ *Engine, r *replica) float64 {
		return r.sys.Potential(r.state) + r.sys.Kinetic(r.state) + r.heat()
	},
	"temperature": func(_ *Engine, r *replica) float64 { return r.sys.Temperature(r.state) },
	"ensemble_temperature": func(_ *Engine, r *replica) float64 {
		return r.temperature
	},
	"step":      func(e *Engine, _ *replica) float64 { return float64(e.step) },
	"time":      func(_ *Engine, r *replica) float64 { return float64(r.step) * r.dt },
	"natoms":    func(_ *Engine, r *replica) float64 { return float64(r.sys.NAtoms()) },
	"nreplicas": func(e *Engine, _ *replica) float64 { return float64(len(e.replicas)) },
}

func (e *Engine) PropertyNames() []string {
	names := make([]string, 0, len(properties))
	for name := range properties {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (e *Engine) Property(name string) (float64, error) {
	base, idx, err := parsePropertyName(name)
	if err != nil {
		return 0, err
	}
	fn, ok := properties[base]
	if !ok {
		return 0, fmt.Errorf("%w: %q", session.ErrUnknownProperty, name)
	}

	if idx >= 0 {
		if idx >= len(e.replicas) {
			return 0, fmt.Errorf("%w: %q: replica index out of range [0, %d)",
				session.ErrUnknownProperty, name, len(e.replicas))
		}
		return fn(e, e.replicas[idx]), nil
	}

	sum := 0.0
	for _, r := range e.replicas {
		sum += fn(e, r)
	}
	return sum / float64(len(e.replicas)), nil
}

// parsePropertyName splits "potential(2)" into ("potential", 2). A name
// without an index returns -1.
func parsePropertyName(name string) (string, int, error) {
	name = strings.TrimSpace(name)
	open := strings.IndexByte(name, '(')
	if open < 0 {
		return name, -1, nil
	}
	if !strings.HasSuffix(name, ")") {
		return "", 0, fmt.Errorf("%w: %q: unbalanced parenthesis", session.ErrUnknownProperty, name)
	}
	idx, err := strconv.Atoi(strings.TrimSpace(name[open+1 : len(name)-1]))
	if err != nil || idx < 0 {
		return "", 0, fmt.Errorf("%w: %q: bad replica index", session.ErrUnknownProperty, name)
	}
	return name[:open], idx, nil
}
