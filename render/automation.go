package render

import (
	"math"
	"sort"
)

// Interpolation says how a lane moves from the previous control point to
// this one.
type Interpolation int

const (
	// Step holds the previous value until the point's time
	Step Interpolation = iota
	// Linear ramps linearly
	Linear
	// Exponential ramps geometrically. It degrades to Linear when either
	// end is not strictly positive.
	Exponential
)

func (i Interpolation) String() string {
	switch i {
	case Step:
		return "step"
	case Linear:
		return "linear"
	case Exponential:
		return "exponential"
	default:
		return "unknown"
	}
}

// ControlPoint is one (time, value, interpolation) triple on a lane. Time is
// in timeline seconds.
type ControlPoint struct {
	Time   float64       `json:"time"`
	Value  float64       `json:"value"`
	Interp Interpolation `json:"interp"`
}

// Automation is an ordered list of control points for one parameter. It is
// plain data; the renderer evaluates it, nothing mutates it while rendering.
type Automation struct {
	Param  string         `json:"param"`
	Points []ControlPoint `json:"points"`
}

// NewAutomation creates a lane starting at value from time 0
func NewAutomation(param string, value float64) *Automation {
	return &Automation{
		Param:  param,
		Points: []ControlPoint{{Time: 0, Value: value, Interp: Step}},
	}
}

// Add inserts a point keeping the lane ordered. Points at equal times keep
// insertion order, so the later one wins from that time on.
func (a *Automation) Add(t, value float64, interp Interpolation) *Automation {
	p := ControlPoint{Time: t, Value: value, Interp: interp}
	i := sort.Search(len(a.Points), func(i int) bool { return a.Points[i].Time > t })
	a.Points = append(a.Points, ControlPoint{})
	copy(a.Points[i+1:], a.Points[i:])
	a.Points[i] = p
	return a
}

// Set is Add with Step interpolation
func (a *Automation) Set(t, value float64) *Automation {
	return a.Add(t, value, Step)
}

// RampTo is Add with Linear interpolation
func (a *Automation) RampTo(t, value float64) *Automation {
	return a.Add(t, value, Linear)
}

// Curve samples f over [start, start+dur] at n points, f taking the
// normalized position x in [0,1].
func (a *Automation) Curve(start, dur float64, n int, interp Interpolation, f func(x float64) float64) *Automation {
	n = max(2, n)
	for i := 0; i < n; i++ {
		x := float64(i) / float64(n-1)
		a.Add(start+x*dur, f(x), interp)
	}
	return a
}

// ValueAt evaluates the lane at t. Before the first point the lane holds
// the first value, after the last it holds the last.
func (a *Automation) ValueAt(t float64) float64 {
	if a == nil || len(a.Points) == 0 {
		return 0
	}
	k := sort.Search(len(a.Points), func(i int) bool { return a.Points[i].Time > t })
	if k == 0 {
		return a.Points[0].Value
	}
	prev := a.Points[k-1]
	if k == len(a.Points) {
		return prev.Value
	}
	next := a.Points[k]
	span := next.Time - prev.Time
	if span <= 0 {
		return prev.Value
	}
	frac := (t - prev.Time) / span

	switch next.Interp {
	case Step:
		return prev.Value
	case Exponential:
		if prev.Value > 0 && next.Value > 0 {
			return prev.Value * math.Pow(next.Value/prev.Value, frac)
		}
	}
	return prev.Value + frac*(next.Value-prev.Value)
}

// Range returns the smallest and largest point values
func (a *Automation) Range() (lo, hi float64) {
	if a == nil || len(a.Points) == 0 {
		return 0, 0
	}
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, p := range a.Points {
		lo = math.Min(lo, p.Value)
		hi = math.Max(hi, p.Value)
	}
	return lo, hi
}
