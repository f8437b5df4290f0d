package engine

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/remdrive/internal/config"
	"github.com/san-kum/remdrive/internal/dynamo"
	"github.com/san-kum/remdrive/internal/permute"
	"github.com/san-kum/remdrive/internal/session"
	"github.com/san-kum/remdrive/internal/structure"
)

func preset(t *testing.T, name string) string {
	t.Helper()
	text, ok := config.GetPreset(name)
	require.True(t, ok, "preset %s", name)
	return text
}

func newEngine(t *testing.T, name string, opts ...Option) *Engine {
	t.Helper()
	e, err := New(preset(t, name), opts...)
	require.NoError(t, err)
	return e
}

func TestNewFromPresets(t *testing.T) {
	for _, name := range config.ListPresets() {
		t.Run(name, func(t *testing.T) {
			e := newEngine(t, name)
			assert.Positive(t, e.NReplicas())

			require.NoError(t, e.Advance(context.Background(), 10))
			require.NoError(t, e.Advance(context.Background(), 10))

			v, err := e.Property("potential")
			require.NoError(t, err)
			assert.False(t, math.IsNaN(v) || math.IsInf(v, 0), "potential %v", v)
			assert.Equal(t, 20, e.Step())
		})
	}
}

func TestNewInvalidConfig(t *testing.T) {
	_, err := New("<simulation/>")
	assert.ErrorIs(t, err, session.ErrInvalidConfig)

	text := strings.Replace(preset(t, "harmonic"), "<pes>harmonic</pes>", "<pes>dftb</pes>", 1)
	_, err = New(text)
	assert.ErrorIs(t, err, session.ErrInvalidConfig)
}

func TestAdvanceInvalidSteps(t *testing.T) {
	e := newEngine(t, "harmonic")
	for _, n := range []int{0, -3} {
		err := e.Advance(context.Background(), n)
		assert.ErrorIs(t, err, session.ErrInvalidSteps)
	}
	assert.Equal(t, 0, e.Step())
}

func TestAdvanceCanceled(t *testing.T) {
	e := newEngine(t, "remd_direct")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := e.Advance(ctx, 5)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAdvanceDiverges(t *testing.T) {
	text := strings.Replace(preset(t, "harmonic"), "<timestep>0.01</timestep>", "<timestep>1e200</timestep>", 1)
	text = strings.Replace(text, `<parameters k="1.0"/>`, `<parameters k="1e200"/>`, 1)
	e, err := New(text)
	require.NoError(t, err)
	err = e.Advance(context.Background(), 50)
	assert.ErrorIs(t, err, session.ErrIntegration)
}

func TestPropertyUnknown(t *testing.T) {
	e := newEngine(t, "harmonic")
	for _, name := range []string{"nonexistent_property", "potential(", "potential(x)", "potential(5)", "potential(-1)"} {
		_, err := e.Property(name)
		assert.ErrorIs(t, err, session.ErrUnknownProperty, name)
	}
}

func TestPropertyIndexed(t *testing.T) {
	e := newEngine(t, "double_well")
	require.NoError(t, e.Advance(context.Background(), 5))

	mean, err := e.Property("ensemble_temperature")
	require.NoError(t, err)
	cold, err := e.Property("ensemble_temperature(0)")
	require.NoError(t, err)
	hot, err := e.Property("ensemble_temperature(1)")
	require.NoError(t, err)

	assert.InDelta(t, 0.1, cold, 1e-12)
	assert.InDelta(t, 0.8, hot, 1e-12)
	assert.InDelta(t, 0.45, mean, 1e-12)

	n, err := e.Property("nreplicas")
	require.NoError(t, err)
	assert.Equal(t, 2.0, n)

	tm, err := e.Property("time")
	require.NoError(t, err)
	assert.InDelta(t, 0.05, tm, 1e-12)
}

func TestPropertyNames(t *testing.T) {
	e := newEngine(t, "harmonic")
	names := e.PropertyNames()
	assert.True(t, sort.StringsAreSorted(names))
	for _, name := range names {
		_, err := e.Property(name)
		assert.NoError(t, err, name)
	}
}

func TestNVEConservesEnergy(t *testing.T) {
	e := newEngine(t, "harmonic")
	e0, err := e.Property("conserved")
	require.NoError(t, err)

	require.NoError(t, e.Advance(context.Background(), 1000))
	e1, err := e.Property("conserved")
	require.NoError(t, err)

	assert.InDelta(t, e0, e1, 1e-3*math.Max(1, math.Abs(e0)))
}

func TestDynamicsModeAliases(t *testing.T) {
	for _, mode := range []string{"velocity_verlet", "leapfrog", "langevin"} {
		t.Run(mode, func(t *testing.T) {
			text := strings.Replace(preset(t, "harmonic"), `<dynamics mode="nve">`, `<dynamics mode="`+mode+`">`, 1)
			e, err := New(text)
			require.NoError(t, err)
			require.NoError(t, e.Advance(context.Background(), 200))

			v, err := e.Property("potential")
			require.NoError(t, err)
			assert.False(t, math.IsNaN(v) || math.IsInf(v, 0))
		})
	}
}

func TestStructuresSnapshot(t *testing.T) {
	e := newEngine(t, "remd_direct")
	require.NoError(t, e.Advance(context.Background(), 3))

	a, err := e.Structures()
	require.NoError(t, err)
	b, err := e.Structures()
	require.NoError(t, err)

	require.Len(t, a, e.NReplicas())
	for i := range a {
		assert.True(t, structure.Equal(a[i], b[i]), "replica %d", i)
	}

	a[0].Positions[0] = 1e6
	c, err := e.Structures()
	require.NoError(t, err)
	assert.NotEqual(t, 1e6, c[0].Positions[0], "snapshot must not alias engine state")
}

func TestShuffleRoundTrip(t *testing.T) {
	e := newEngine(t, "remd_direct")
	require.NoError(t, e.Advance(context.Background(), 10))

	before, err := e.Structures()
	require.NoError(t, err)

	shuffled := append([]structure.Structure(nil), before...)
	perm := permute.Shuffle(permute.New(9), shuffled)
	require.NoError(t, e.SetStructures(shuffled))

	after, err := e.Structures()
	require.NoError(t, err)
	require.Len(t, after, len(before))

	for i, p := range perm {
		assert.True(t, structure.Equal(before[p], after[i]), "slot %d should hold structure %d", i, p)
	}

	labels := func(ss []structure.Structure) []string {
		out := make([]string, len(ss))
		for i, s := range ss {
			out[i] = s.Label
		}
		sort.Strings(out)
		return out
	}
	assert.Equal(t, labels(before), labels(after))

	require.NoError(t, e.Advance(context.Background(), 10))
	v, err := e.Property("potential")
	require.NoError(t, err)
	assert.False(t, math.IsNaN(v))
}

func TestSetStructuresShapeMismatch(t *testing.T) {
	e := newEngine(t, "remd_direct")
	current, err := e.Structures()
	require.NoError(t, err)

	err = e.SetStructures(current[:2])
	assert.ErrorIs(t, err, session.ErrShapeMismatch)

	bad := append([]structure.Structure(nil), current...)
	bad[1] = structure.Structure{
		Species:   []string{"Ar"},
		Positions: []float64{0, 0, 0},
	}
	err = e.SetStructures(bad)
	assert.ErrorIs(t, err, session.ErrShapeMismatch)
	assert.ErrorIs(t, err, dynamo.ErrDimensionMismatch)

	bad[1] = current[1].Clone()
	bad[1].Positions = bad[1].Positions[:3]
	err = e.SetStructures(bad)
	assert.ErrorIs(t, err, session.ErrShapeMismatch)

	after, err := e.Structures()
	require.NoError(t, err)
	for i := range after {
		assert.True(t, structure.Equal(current[i], after[i]), "failed set must leave replica %d untouched", i)
	}
}

func TestSetStructuresWithoutVelocitiesKeepsSlotVelocities(t *testing.T) {
	e := newEngine(t, "harmonic")
	current, err := e.Structures()
	require.NoError(t, err)

	st := current[0].Clone()
	st.Velocities = nil
	st.Positions[0] = 0.25
	require.NoError(t, e.SetStructures([]structure.Structure{st}))

	after, err := e.Structures()
	require.NoError(t, err)
	assert.Equal(t, 0.25, after[0].Positions[0])
	assert.Equal(t, current[0].Velocities, after[0].Velocities)
}

func TestDeterministic(t *testing.T) {
	run := func(opts ...Option) float64 {
		e := newEngine(t, "remd_direct", opts...)
		require.NoError(t, e.Advance(context.Background(), 25))
		v, err := e.Property("potential")
		require.NoError(t, err)
		return v
	}

	assert.Equal(t, run(), run())
	assert.Equal(t, run(WithSeed(5)), run(WithSeed(5)))
	assert.NotEqual(t, run(WithSeed(5)), run(WithSeed(6)))
}

func TestThermalVelocitiesRemoveDrift(t *testing.T) {
	e := newEngine(t, "remd_direct")
	sts, err := e.Structures()
	require.NoError(t, err)

	for _, st := range sts {
		var p [3]float64
		for i, m := range st.Masses {
			for k := 0; k < 3; k++ {
				p[k] += m * st.Velocities[3*i+k]
			}
		}
		for k := 0; k < 3; k++ {
			assert.InDelta(t, 0, p[k], 1e-12)
		}
	}
}

func TestWithBaseDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "one.xyz"), []byte("1\nlabel=solo\nX 0.5 0 0\n"), 0644))

	text := `<simulation>
  <ffdirect name="h"><pes>harmonic</pes></ffdirect>
  <system prefix="a">
    <initialize><structure file="one.xyz"/></initialize>
    <forces><force forcefield="h"/></forces>
  </system>
</simulation>`

	_, err := New(text)
	assert.True(t, errors.Is(err, session.ErrInvalidConfig))

	e, err := New(text, WithBaseDir(dir))
	require.NoError(t, err)
	v, err := e.Property("potential")
	require.NoError(t, err)
	assert.InDelta(t, 0.125, v, 1e-12)

	sts, err := e.Structures()
	require.NoError(t, err)
	assert.Equal(t, "solo", sts[0].Label)
}

func TestConstructor(t *testing.T) {
	construct := Constructor(WithSeed(1))
	s, err := construct(preset(t, "harmonic"))
	require.NoError(t, err)
	require.NoError(t, s.Advance(context.Background(), 1))
	assert.NoError(t, session.Close(s))
}
