// Package engine is the in-process reference implementation of
// session.Session: a set of independent replicas, one per configured
// <system>, each integrated with its own thermostat and noise stream.
package engine

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"github.com/sirupsen/logrus"

	"github.com/san-kum/remdrive/internal/config"
	"github.com/san-kum/remdrive/internal/dynamo"
	"github.com/san-kum/remdrive/internal/forcefield"
	"github.com/san-kum/remdrive/internal/integrators"
	"github.com/san-kum/remdrive/internal/permute"
	"github.com/san-kum/remdrive/internal/session"
	"github.com/san-kum/remdrive/internal/structure"
)

type Option func(*options)

type options struct {
	baseDir string
	seed    *int64
}

// WithBaseDir resolves structure files relative to dir.
func WithBaseDir(dir string) Option {
	return func(o *options) { o.baseDir = dir }
}

// WithSeed overrides the <prng> seed of the configuration.
func WithSeed(seed int64) Option {
	return func(o *options) { o.seed = &seed }
}

// Engine implements session.Session.
type Engine struct {
	seed     int64
	replicas []*replica
	step     int
}

var _ session.Session = (*Engine)(nil)

// New builds an engine from XML configuration text.
func New(configText string, opts ...Option) (*Engine, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	cfg, err := config.Parse(configText)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", session.ErrInvalidConfig, err)
	}

	seed := cfg.PRNG.Seed
	if o.seed != nil {
		seed = *o.seed
	}

	fields := make(map[string]forcefield.Field, len(cfg.Forcefields))
	for _, ff := range cfg.Forcefields {
		p := ff.Parameters
		f, err := forcefield.New(ff.PES, forcefield.Params{
			Epsilon: p.Epsilon, Sigma: p.Sigma, Cutoff: p.Cutoff,
			K: p.K, A: p.A, B: p.B,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: forcefield %q: %w", session.ErrInvalidConfig, ff.Name, err)
		}
		fields[ff.Name] = f
	}

	e := &Engine{seed: seed, replicas: make([]*replica, 0, len(cfg.Systems))}
	for i := range cfg.Systems {
		r, err := newReplica(&cfg.Systems[i], i, fields, seed, o.baseDir)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", session.ErrInvalidConfig, err)
		}
		e.replicas = append(e.replicas, r)
	}

	logrus.Debugf("engine: %d replicas, seed %d", len(e.replicas), seed)
	return e, nil
}

// Constructor adapts New to session.Constructor.
func Constructor(opts ...Option) session.Constructor {
	return func(configText string) (session.Session, error) {
		return New(configText, opts...)
	}
}

func (e *Engine) Seed() int64    { return e.seed }
func (e *Engine) Step() int      { return e.step }
func (e *Engine) NReplicas() int { return len(e.replicas) }
func (e *Engine) Close() error   { return nil }

func (e *Engine) Advance(ctx context.Context, steps int) error {
	if steps <= 0 {
		return fmt.Errorf("%w: %d", session.ErrInvalidSteps, steps)
	}

	err := dynamo.ForEach(ctx, len(e.replicas), func(ctx context.Context, i int) error {
		return e.replicas[i].advance(ctx, steps)
	})
	if err != nil {
		return err
	}

	e.step += steps
	logrus.Debugf("engine: advanced %d steps (total %d)", steps, e.step)
	return nil
}

func (e *Engine) Structures() ([]structure.Structure, error) {
	out := make([]structure.Structure, len(e.replicas))
	for i, r := range e.replicas {
		out[i] = r.snapshot()
	}
	return out, nil
}

func (e *Engine) SetStructures(structures []structure.Structure) error {
	if len(structures) != len(e.replicas) {
		return fmt.Errorf("%w: got %d structures for %d replicas",
			session.ErrShapeMismatch, len(structures), len(e.replicas))
	}
	for i, st := range structures {
		if err := st.Validate(); err != nil {
			return fmt.Errorf("%w: structure %d: %w", session.ErrShapeMismatch, i, err)
		}
		if n := e.replicas[i].sys.NAtoms(); st.NAtoms() != n {
			return fmt.Errorf("%w: %w: structure %d has %d atoms, replica %q holds %d",
				session.ErrShapeMismatch, dynamo.ErrDimensionMismatch, i, st.NAtoms(), e.replicas[i].prefix, n)
		}
	}

	for i, st := range structures {
		e.replicas[i].load(st.Clone())
	}
	return nil
}

type replica struct {
	prefix      string
	label       string
	species     []string
	sys         *forcefield.System
	integ       dynamo.Integrator
	state       dynamo.State
	dt          float64
	temperature float64
	step        int
}

func newReplica(sys *config.System, idx int, fields map[string]forcefield.Field, seed int64, baseDir string) (*replica, error) {
	st, err := sys.LoadStructure(baseDir)
	if err != nil {
		return nil, err
	}

	terms := make(forcefield.Sum, 0, len(sys.Forces.Force))
	for _, f := range sys.Forces.Force {
		terms = append(terms, forcefield.Weighted{Field: fields[f.Forcefield], Weight: f.Weight})
	}

	dyn := sys.Motion.Dynamics
	noise := rand.New(rand.NewSource(permute.Derive(seed, fmt.Sprintf("replica_%d", idx))))
	integ, err := integrators.New(dyn.Mode, integrators.Options{
		Temperature: sys.Ensemble.Temperature,
		Tau:         dyn.Thermostat.Tau,
		Rand:        noise,
	})
	if err != nil {
		return nil, fmt.Errorf("system %q: %w", sys.Prefix, err)
	}

	r := &replica{
		prefix:      sys.Prefix,
		sys:         forcefield.NewSystem(terms, st.Masses, st.Cell),
		integ:       integ,
		dt:          dyn.Timestep,
		temperature: sys.Ensemble.Temperature,
	}
	r.load(st)

	if sys.Initialize.Velocities.Mode == "thermal" {
		initRand := rand.New(rand.NewSource(permute.Derive(seed, fmt.Sprintf("init_%d", idx))))
		thermalVelocities(r.state.Velocities(), r.masses(), sys.InitialTemperature(), initRand)
	}
	return r, nil
}

func (r *replica) load(st structure.Structure) {
	r.label = st.Label
	r.species = st.Species
	r.sys.Cell = st.Cell
	masses := st.Masses
	if len(masses) == 0 {
		masses = make([]float64, st.NAtoms())
		for i := range masses {
			masses[i] = config.DefaultMass
		}
	}
	r.sys.SetMasses(masses)

	vel := st.Velocities
	if len(vel) == 0 && r.state != nil && len(r.state) == 2*len(st.Positions) {
		vel = r.state.Velocities()
	}
	r.state = dynamo.Pack(st.Positions, vel)

	if rs, ok := r.integ.(dynamo.Resetter); ok {
		rs.Reset()
	}
}

func (r *replica) snapshot() structure.Structure {
	return structure.Structure{
		Label:      r.label,
		Species:    append([]string(nil), r.species...),
		Positions:  append([]float64(nil), r.state.Positions()...),
		Velocities: append([]float64(nil), r.state.Velocities()...),
		Masses:     r.masses(),
		Cell:       r.sys.Cell,
	}
}

func (r *replica) masses() []float64 {
	cm := r.sys.CoordinateMasses()
	m := make([]float64, len(cm)/3)
	for i := range m {
		m[i] = cm[3*i]
	}
	return m
}

func (r *replica) advance(ctx context.Context, steps int) error {
	x := r.state
	if err := r.sys.CheckState(x); err != nil {
		return fmt.Errorf("%w: replica %q: %w", session.ErrIntegration, r.prefix, err)
	}
	for i := 0; i < steps; i++ {
		select {
		case <-ctx.Done():
			return fmt.Errorf("replica %q: %w: %w", r.prefix, dynamo.ErrContextCanceled, ctx.Err())
		default:
		}

		t := float64(r.step) * r.dt
		next := r.integ.Step(r.sys, x, t, r.dt)
		if !next.IsValid() {
			return fmt.Errorf("%w: replica %q: %w", session.ErrIntegration, r.prefix,
				&dynamo.SimulationError{Step: r.step, Time: t, Wrapped: dynamo.ErrInvalidState})
		}
		x = next
		r.state = x
		r.step++
	}
	return nil
}

// heat is the energy the thermostat has exchanged with the replica.
func (r *replica) heat() float64 {
	if l, ok := r.integ.(*integrators.Langevin); ok {
		return l.Heat
	}
	return 0
}

// thermalVelocities draws Maxwell-Boltzmann velocities and removes the
// centre-of-mass drift when there is more than one atom.
func thermalVelocities(vel, masses []float64, temperature float64, rng *rand.Rand) {
	if temperature <= 0 {
		return
	}
	var p [3]float64
	total := 0.0
	for i, m := range masses {
		s := math.Sqrt(temperature / m)
		for k := 0; k < 3; k++ {
			vel[3*i+k] = s * rng.NormFloat64()
			p[k] += m * vel[3*i+k]
		}
		total += m
	}
	if len(masses) < 2 {
		return
	}
	for i := range masses {
		for k := 0; k < 3; k++ {
			vel[3*i+k] -= p[k] / total
		}
	}
}
