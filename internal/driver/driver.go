// Package driver runs the scripted session sequence: load the XML input,
// construct a session, then alternate advance/query rounds with a random
// reordering of the replica structures in between.
package driver

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/san-kum/remdrive/internal/config"
	"github.com/san-kum/remdrive/internal/metrics"
	"github.com/san-kum/remdrive/internal/permute"
	"github.com/san-kum/remdrive/internal/session"
	"github.com/san-kum/remdrive/internal/structure"
)

type Options struct {
	ConfigPath string
	Steps      int
	Rounds     int
	Property   string
	Quiet      bool
	Shuffler   permute.Source
	Observer   metrics.Observer
	Metrics    []metrics.Metric
	Out        io.Writer
}

func DefaultOptions() Options {
	return Options{
		ConfigPath: config.DefaultInput,
		Steps:      config.DefaultSteps,
		Rounds:     config.DefaultRounds,
		Property:   config.DefaultProperty,
		Out:        os.Stdout,
	}
}

type Result struct {
	Config       string
	Checkpoints  []metrics.Checkpoint
	Permutations [][]int
	Structures   []structure.Structure
	Metrics      map[string]float64
	Session      session.Session
}

type Driver struct {
	opts      Options
	construct session.Constructor
}

func New(construct session.Constructor, opts Options) *Driver {
	def := DefaultOptions()
	if opts.Steps == 0 {
		opts.Steps = def.Steps
	}
	if opts.Rounds == 0 {
		opts.Rounds = def.Rounds
	}
	if opts.Property == "" {
		opts.Property = def.Property
	}
	if opts.ConfigPath == "" {
		opts.ConfigPath = def.ConfigPath
	}
	if opts.Out == nil {
		opts.Out = def.Out
	}
	if opts.Shuffler == nil {
		opts.Shuffler = permute.NewRandom()
	}
	return &Driver{opts: opts, construct: construct}
}

// Load reads the configured input file.
func (d *Driver) Load() (string, error) {
	return ReadConfig(d.opts.ConfigPath)
}

// ReadConfig reads the whole file at path as UTF-8 text.
func ReadConfig(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", &StageError{Stage: StageLoad, Err: err}
	}
	if !utf8.Valid(data) {
		return "", &StageError{Stage: StageLoad, Err: fmt.Errorf("%s: not valid UTF-8", path)}
	}
	return string(data), nil
}

// Run executes the whole sequence. Output is written as it happens, so a
// failure leaves everything printed up to that point and nothing after.
func (d *Driver) Run(ctx context.Context) (*Result, error) {
	text, err := d.Load()
	if err != nil {
		return nil, err
	}

	if !d.opts.Quiet {
		fmt.Fprintln(d.opts.Out, "Running with XML input:\n\n", text)
	}

	logrus.Debugf("driver: constructing session from %s", d.opts.ConfigPath)
	sess, err := d.construct(text)
	if err != nil {
		return nil, &StageError{Stage: StageConstruct, Err: err}
	}

	res := &Result{Config: text, Session: sess, Metrics: make(map[string]float64)}
	for _, m := range d.opts.Metrics {
		m.Reset()
	}

	total := 0
	for round := 0; round < d.opts.Rounds; round++ {
		if round > 0 {
			perm, err := Reorder(sess, d.opts.Shuffler)
			if err != nil {
				return res, err
			}
			logrus.Debugf("driver: round %d reordered structures %v", round, perm)
			res.Permutations = append(res.Permutations, perm)
			if d.opts.Observer != nil {
				d.opts.Observer.OnReorder(round, perm)
			}
		}

		if err := sess.Advance(ctx, d.opts.Steps); err != nil {
			return res, &StageError{Stage: StageAdvance, Round: round, Err: err}
		}
		total += d.opts.Steps

		value, err := sess.Property(d.opts.Property)
		if err != nil {
			return res, &StageError{Stage: StageQuery, Round: round, Err: err}
		}

		fmt.Fprintf(d.opts.Out, "%s now %s\n", d.opts.Property, FormatValue(value))

		cp := metrics.Checkpoint{Round: round, Step: total, Property: d.opts.Property, Value: value}
		res.Checkpoints = append(res.Checkpoints, cp)
		for _, m := range d.opts.Metrics {
			m.Observe(cp)
		}
		if d.opts.Observer != nil {
			d.opts.Observer.OnCheckpoint(cp)
		}
	}

	for _, m := range d.opts.Metrics {
		res.Metrics[m.Name()] = m.Value()
	}

	// Both lines are out; a failed final snapshot leaves Structures nil.
	final, err := sess.Structures()
	if err != nil {
		logrus.Debugf("driver: final structures unavailable: %v", err)
		return res, nil
	}
	res.Structures = final
	return res, nil
}

// Reorder snapshots the session's structures, permutes them with src and
// writes them back. It returns the permutation applied: slot i now holds the
// structure that was in slot perm[i].
func Reorder(sess session.Session, src permute.Source) ([]int, error) {
	structures, err := sess.Structures()
	if err != nil {
		return nil, &StageError{Stage: StageGet, Err: err}
	}
	perm := permute.Shuffle(src, structures)
	if err := sess.SetStructures(structures); err != nil {
		return nil, &StageError{Stage: StageSet, Err: err}
	}
	return perm, nil
}

// FormatValue prints a float the way an interactive interpreter echoes it:
// shortest round-trip digits, a trailing ".0" for integral values, and
// exponent form outside [1e-4, 1e16).
func FormatValue(v float64) string {
	switch {
	case math.IsNaN(v):
		return "nan"
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}

	abs := math.Abs(v)
	if v != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(v, 'e', -1, 64)
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsRune(s, '.') {
		s += ".0"
	}
	return s
}
