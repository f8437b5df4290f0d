package metrics

import "math"

// Drift is the largest relative change of the checkpoint value from the
// first one seen.
type Drift struct {
	initial  float64
	maxDrift float64
	samples  int
}

func NewDrift() *Drift {
	return &Drift{}
}

func (d *Drift) Name() string { return "drift" }

func (d *Drift) Observe(c Checkpoint) {
	if d.samples == 0 {
		d.initial = c.Value
	}
	d.samples++

	if d.initial != 0 {
		drift := math.Abs(c.Value-d.initial) / math.Abs(d.initial)
		d.maxDrift = math.Max(d.maxDrift, drift)
	}
}

func (d *Drift) Value() float64 {
	return d.maxDrift
}

func (d *Drift) Reset() {
	d.initial = 0
	d.maxDrift = 0
	d.samples = 0
}

// Mean is the running mean of checkpoint values.
type Mean struct {
	sum     float64
	samples int
}

func NewMean() *Mean {
	return &Mean{}
}

func (m *Mean) Name() string { return "mean" }

func (m *Mean) Observe(c Checkpoint) {
	m.sum += c.Value
	m.samples++
}

func (m *Mean) Value() float64 {
	if m.samples == 0 {
		return 0
	}
	return m.sum / float64(m.samples)
}

func (m *Mean) Reset() {
	m.sum = 0
	m.samples = 0
}

func DefaultMetrics() []Metric {
	return []Metric{NewMean(), NewDrift()}
}
