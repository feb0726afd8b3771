// Package acquisition is the boundary to whatever produces raw readings on a
// node: a sensor API, a CLI invocation, a test fixture.
package acquisition

import (
	"context"

	"github.com/dyluth/tandem/pkg/sample"
)

// Provider returns the current raw readings. Any reading may be absent, and a
// provider may take arbitrarily long; callers bound it with ctx.
type Provider interface {
	Acquire(ctx context.Context) (sample.RawInputs, error)
}

// Func adapts a plain function to Provider.
type Func func(ctx context.Context) (sample.RawInputs, error)

// Acquire calls f.
func (f Func) Acquire(ctx context.Context) (sample.RawInputs, error) {
	return f(ctx)
}

// Fixed always returns the same readings.
type Fixed sample.RawInputs

// Acquire returns the fixed readings unless ctx is already done.
func (f Fixed) Acquire(ctx context.Context) (sample.RawInputs, error) {
	if err := ctx.Err(); err != nil {
		return sample.RawInputs{}, err
	}
	return sample.RawInputs(f), nil
}

// FromFlags builds readings from optional CLI values, where nil means absent.
func FromFlags(hrv, heartRate, sleepHours *float64) Fixed {
	return Fixed{
		HRV:        reading(hrv),
		HeartRate:  reading(heartRate),
		SleepHours: reading(sleepHours),
	}
}

func reading(v *float64) sample.Reading {
	if v == nil {
		return sample.None()
	}
	return sample.Some(*v)
}
