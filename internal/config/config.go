// Package config parses the XML session configuration and the YAML driver
// settings.
package config

import (
	"encoding/xml"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/san-kum/remdrive/internal/integrators"
	"github.com/san-kum/remdrive/internal/structure"
)

const (
	DefaultTimestep    = 0.005
	DefaultTau         = 1.0
	DefaultTemperature = 1.0
	DefaultMass        = 1.0
	DefaultSeed        = 31415
)

var ErrInvalid = errors.New("config: invalid")

type Simulation struct {
	XMLName     xml.Name         `xml:"simulation"`
	Verbosity   string           `xml:"verbosity,attr,omitempty"`
	PRNG        PRNG             `xml:"prng"`
	Forcefields []Forcefield     `xml:"ffdirect"`
	Systems     []System         `xml:"system"`
	Templates   []SystemTemplate `xml:"system_template"`
}

type PRNG struct {
	Seed int64 `xml:"seed"`
}

type Forcefield struct {
	Name       string     `xml:"name,attr"`
	PES        string     `xml:"pes"`
	Parameters Parameters `xml:"parameters"`
}

type Parameters struct {
	Epsilon float64 `xml:"epsilon,attr,omitempty"`
	Sigma   float64 `xml:"sigma,attr,omitempty"`
	Cutoff  float64 `xml:"cutoff,attr,omitempty"`
	K       float64 `xml:"k,attr,omitempty"`
	A       float64 `xml:"a,attr,omitempty"`
	B       float64 `xml:"b,attr,omitempty"`
}

type System struct {
	Prefix     string     `xml:"prefix,attr"`
	Initialize Initialize `xml:"initialize"`
	Cell       Cell       `xml:"cell"`
	Forces     Forces     `xml:"forces"`
	Ensemble   Ensemble   `xml:"ensemble"`
	Motion     Motion     `xml:"motion"`
}

type Initialize struct {
	Structure  StructureSource `xml:"structure"`
	Velocities Velocities      `xml:"velocities"`
	Masses     []Mass          `xml:"mass"`
}

type StructureSource struct {
	Mode string `xml:"mode,attr"`
	File string `xml:"file,attr,omitempty"`
	Text string `xml:",chardata"`
}

type Velocities struct {
	Mode  string  `xml:"mode,attr"`
	Value float64 `xml:",chardata"`
}

type Mass struct {
	Species string  `xml:"species,attr"`
	Value   float64 `xml:",chardata"`
}

type Cell struct {
	A float64 `xml:"a,attr"`
	B float64 `xml:"b,attr"`
	C float64 `xml:"c,attr"`
}

type Forces struct {
	Force []ForceRef `xml:"force"`
}

type ForceRef struct {
	Forcefield string  `xml:"forcefield,attr"`
	Weight     float64 `xml:"weight,attr,omitempty"`
}

type Ensemble struct {
	Temperature float64 `xml:"temperature"`
}

type Motion struct {
	Mode     string   `xml:"mode,attr"`
	Dynamics Dynamics `xml:"dynamics"`
}

type Dynamics struct {
	Mode       string     `xml:"mode,attr"`
	Timestep   float64    `xml:"timestep"`
	Thermostat Thermostat `xml:"thermostat"`
}

// Thermostatted reports whether the mode couples the system to a heat bath.
func (d Dynamics) Thermostatted() bool {
	return d.Mode == "nvt" || d.Mode == "langevin"
}

type Thermostat struct {
	Mode string  `xml:"mode,attr"`
	Tau  float64 `xml:"tau"`
}

// Parse decodes, expands, defaults and validates a configuration.
func Parse(text string) (*Simulation, error) {
	var sim Simulation
	if err := xml.Unmarshal([]byte(text), &sim); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := sim.expandTemplates(); err != nil {
		return nil, err
	}
	sim.applyDefaults()
	if err := sim.Validate(); err != nil {
		return nil, err
	}
	return &sim, nil
}

// Load reads and parses the configuration at path.
func Load(path string) (*Simulation, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	sim, err := Parse(string(data))
	if err != nil {
		return nil, "", err
	}
	return sim, string(data), nil
}

func (s *Simulation) applyDefaults() {
	if s.PRNG.Seed == 0 {
		s.PRNG.Seed = DefaultSeed
	}
	for i := range s.Systems {
		sys := &s.Systems[i]
		if sys.Prefix == "" {
			sys.Prefix = fmt.Sprintf("system%d", i)
		}
		if sys.Motion.Mode == "" {
			sys.Motion.Mode = "dynamics"
		}
		dyn := &sys.Motion.Dynamics
		if dyn.Mode == "" {
			dyn.Mode = "nve"
		}
		if dyn.Timestep == 0 {
			dyn.Timestep = DefaultTimestep
		}
		if dyn.Thermostatted() {
			if dyn.Thermostat.Mode == "" {
				dyn.Thermostat.Mode = "langevin"
			}
			if dyn.Thermostat.Tau == 0 {
				dyn.Thermostat.Tau = DefaultTau
			}
		}
		if sys.Ensemble.Temperature == 0 {
			sys.Ensemble.Temperature = DefaultTemperature
		}
		if sys.Initialize.Structure.Mode == "" {
			sys.Initialize.Structure.Mode = "xyz"
		}
		for j := range sys.Forces.Force {
			if sys.Forces.Force[j].Weight == 0 {
				sys.Forces.Force[j].Weight = 1
			}
		}
	}
}

// Validate checks cross references and value ranges.
func (s *Simulation) Validate() error {
	if len(s.Systems) == 0 {
		return fmt.Errorf("%w: no <system> defined", ErrInvalid)
	}

	fields := make(map[string]bool, len(s.Forcefields))
	for _, ff := range s.Forcefields {
		if ff.Name == "" {
			return fmt.Errorf("%w: <ffdirect> without name", ErrInvalid)
		}
		if fields[ff.Name] {
			return fmt.Errorf("%w: duplicate forcefield %q", ErrInvalid, ff.Name)
		}
		if strings.TrimSpace(ff.PES) == "" {
			return fmt.Errorf("%w: forcefield %q has no <pes>", ErrInvalid, ff.Name)
		}
		fields[ff.Name] = true
	}

	prefixes := make(map[string]bool, len(s.Systems))
	for _, sys := range s.Systems {
		if prefixes[sys.Prefix] {
			return fmt.Errorf("%w: duplicate system prefix %q", ErrInvalid, sys.Prefix)
		}
		prefixes[sys.Prefix] = true

		if len(sys.Forces.Force) == 0 {
			return fmt.Errorf("%w: system %q has no forces", ErrInvalid, sys.Prefix)
		}
		for _, f := range sys.Forces.Force {
			if !fields[f.Forcefield] {
				return fmt.Errorf("%w: system %q references unknown forcefield %q", ErrInvalid, sys.Prefix, f.Forcefield)
			}
		}
		if sys.Motion.Mode != "dynamics" {
			return fmt.Errorf("%w: system %q: unsupported motion mode %q", ErrInvalid, sys.Prefix, sys.Motion.Mode)
		}
		dyn := sys.Motion.Dynamics
		switch {
		case !slices.Contains(integrators.Names(), dyn.Mode):
			return fmt.Errorf("%w: system %q: unsupported dynamics mode %q (available: %v)",
				ErrInvalid, sys.Prefix, dyn.Mode, integrators.Names())
		case dyn.Thermostatted():
			if dyn.Thermostat.Mode != "langevin" {
				return fmt.Errorf("%w: system %q: unsupported thermostat %q", ErrInvalid, sys.Prefix, dyn.Thermostat.Mode)
			}
			if dyn.Thermostat.Tau < 0 {
				return fmt.Errorf("%w: system %q: negative thermostat tau", ErrInvalid, sys.Prefix)
			}
		}
		if dyn.Timestep < 0 {
			return fmt.Errorf("%w: system %q: negative timestep", ErrInvalid, sys.Prefix)
		}
		if sys.Ensemble.Temperature < 0 {
			return fmt.Errorf("%w: system %q: negative temperature", ErrInvalid, sys.Prefix)
		}
		if sys.Cell.A < 0 || sys.Cell.B < 0 || sys.Cell.C < 0 {
			return fmt.Errorf("%w: system %q: negative cell length", ErrInvalid, sys.Prefix)
		}
		src := sys.Initialize.Structure
		if src.Mode != "xyz" {
			return fmt.Errorf("%w: system %q: unsupported structure mode %q", ErrInvalid, sys.Prefix, src.Mode)
		}
		if src.File == "" && strings.TrimSpace(src.Text) == "" {
			return fmt.Errorf("%w: system %q: no initial structure", ErrInvalid, sys.Prefix)
		}
		switch sys.Initialize.Velocities.Mode {
		case "", "zero", "thermal", "file":
		default:
			return fmt.Errorf("%w: system %q: unsupported velocities mode %q", ErrInvalid, sys.Prefix, sys.Initialize.Velocities.Mode)
		}
	}
	return nil
}

// LoadStructure reads the initial structure of a system. Relative file
// references resolve against baseDir.
func (sys *System) LoadStructure(baseDir string) (structure.Structure, error) {
	src := sys.Initialize.Structure

	var st structure.Structure
	var err error
	if src.File != "" {
		path := src.File
		if !filepath.IsAbs(path) && baseDir != "" {
			path = filepath.Join(baseDir, path)
		}
		f, openErr := os.Open(path)
		if openErr != nil {
			return structure.Structure{}, fmt.Errorf("%w: system %q: %v", ErrInvalid, sys.Prefix, openErr)
		}
		defer f.Close()
		st, err = structure.Decode(f)
	} else {
		st, err = structure.Decode(strings.NewReader(src.Text))
	}
	if err != nil {
		return structure.Structure{}, fmt.Errorf("%w: system %q: %v", ErrInvalid, sys.Prefix, err)
	}

	if st.Label == "" {
		st.Label = sys.Prefix
	}
	if !st.Cell.Periodic() {
		st.Cell = structure.Cell{sys.Cell.A, sys.Cell.B, sys.Cell.C}
	}
	if sys.Initialize.Velocities.Mode != "file" {
		st.Velocities = nil
	}

	st.Masses = make([]float64, st.NAtoms())
	for i, sp := range st.Species {
		st.Masses[i] = sys.massOf(sp)
	}
	if err := st.Validate(); err != nil {
		return structure.Structure{}, fmt.Errorf("%w: system %q: %v", ErrInvalid, sys.Prefix, err)
	}
	return st, nil
}

func (sys *System) massOf(species string) float64 {
	for _, m := range sys.Initialize.Masses {
		if m.Species == species && m.Value > 0 {
			return m.Value
		}
	}
	return DefaultMass
}

// InitialTemperature is the temperature thermal velocities are drawn at.
func (sys *System) InitialTemperature() float64 {
	if v := sys.Initialize.Velocities.Value; v > 0 {
		return v
	}
	return sys.Ensemble.Temperature
}
