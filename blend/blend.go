// Package blend provides the gain curves that carry a crossfade.
package blend

import (
	"fmt"
	"math"
	"strings"
)

// Mode names a blend envelope
type Mode string

const (
	EqualPower Mode = "equal_power"
	SCurve     Mode = "s_curve"
	Log        Mode = "log"
	Ducked     Mode = "ducked"
	Cut        Mode = "cut"
)

// Depth and shape of the mid-fade dip applied to A in Ducked mode
const (
	DuckDepth  = 0.3
	DuckCenter = 0.5
	DuckWidth  = 0.12
)

// Modes lists every supported mode
func Modes() []Mode {
	return []Mode{EqualPower, SCurve, Log, Ducked, Cut}
}

// ParseMode maps a name to a Mode. Hyphens and case are ignored and an
// empty name selects EqualPower.
func ParseMode(name string) (Mode, error) {
	n := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_")
	if n == "" {
		return EqualPower, nil
	}
	for _, m := range Modes() {
		if string(m) == n {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown blend mode: %s", name)
}

// Envelope is a pair of gain curves over normalized fade position x in [0,1].
// A is the outgoing track, B the incoming one.
type Envelope struct {
	Mode Mode
	A    func(x float64) float64
	B    func(x float64) float64
}

// New returns the envelope for mode
func New(mode Mode) (Envelope, error) {
	switch mode {
	case EqualPower:
		return Envelope{Mode: mode, A: equalPowerA, B: equalPowerB}, nil
	case SCurve:
		return Envelope{
			Mode: mode,
			A:    func(x float64) float64 { return 1 - smoothstep(x) },
			B:    smoothstep,
		}, nil
	case Log:
		return Envelope{Mode: mode, A: logA, B: logB}, nil
	case Ducked:
		return Envelope{Mode: mode, A: duckedA, B: equalPowerB}, nil
	case Cut:
		return Envelope{Mode: mode, A: cutA, B: cutB}, nil
	default:
		return Envelope{}, fmt.Errorf("unknown blend mode: %s", mode)
	}
}

// Gains evaluates both curves at x, clamping x to [0,1]
func (e Envelope) Gains(x float64) (float64, float64) {
	x = clamp01(x)
	return e.A(x), e.B(x)
}

// Sample evaluates both curves at n evenly spaced positions from 0 to 1
func (e Envelope) Sample(n int) (a, b []float64) {
	if n <= 0 {
		return nil, nil
	}
	a = make([]float64, n)
	b = make([]float64, n)
	for i := 0; i < n; i++ {
		x := 1.0
		if n > 1 {
			x = float64(i) / float64(n-1)
		}
		a[i], b[i] = e.Gains(x)
	}
	return a, b
}

func equalPowerA(x float64) float64 {
	return math.Cos(x * math.Pi / 2)
}

func equalPowerB(x float64) float64 {
	return math.Sin(x * math.Pi / 2)
}

// smoothstep is the cubic 3x^2 - 2x^3
func smoothstep(x float64) float64 {
	x = clamp01(x)
	return x * x * (3 - 2*x)
}

// logA decays faster than B rises
func logA(x float64) float64 {
	return 1 - math.Log10(1+9*x)
}

func logB(x float64) float64 {
	return (math.Pow(10, x) - 1) / 9
}

func duckedA(x float64) float64 {
	d := (x - DuckCenter) / DuckWidth
	dip := DuckDepth * math.Sin(math.Pi*x) * math.Exp(-0.5*d*d)
	return math.Max(0, equalPowerA(x)-dip)
}

func cutA(x float64) float64 {
	if x < 1 {
		return 1
	}
	return 0
}

func cutB(x float64) float64 {
	if x < 1 {
		return 0
	}
	return 1
}

func clamp01(x float64) float64 {
	if math.IsNaN(x) {
		return 0
	}
	return math.Max(0, math.Min(1, x))
}
