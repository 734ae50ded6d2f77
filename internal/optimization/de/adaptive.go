package de

// AdaptiveConfig enables self-adapting control parameters: every candidate
// carries its own F and CR, which a trial occasionally re-draws and which
// survive only when the trial is selected.
type AdaptiveConfig struct {
	FMin, FMax   float64
	CRMin, CRMax float64

	// Probability that a trial re-draws F (resp. CR) instead of inheriting
	// the target's value.
	FChangeProbability  float64
	CRChangeProbability float64
}

// DefaultAdaptiveConfig returns the commonly used jDE settings.
func DefaultAdaptiveConfig() AdaptiveConfig {
	return AdaptiveConfig{
		FMin:                0.1,
		FMax:                1.0,
		CRMin:               0.0,
		CRMax:               1.0,
		FChangeProbability:  0.1,
		CRChangeProbability: 0.1,
	}
}

func (o *Optimizer) initControls(i int) {
	if o.adaptive == nil {
		o.pop.f[i] = o.cfg.F
		o.pop.cr[i] = o.cfg.CR
		return
	}
	a := o.adaptive
	o.pop.cr[i] = a.CRMin + o.src.UniformReal()*(a.CRMax-a.CRMin)
	o.pop.f[i] = a.FMin + o.src.UniformReal()*(a.FMax-a.FMin)
}

// trialControls returns the F and CR used to build the trial for target i.
func (o *Optimizer) trialControls(i int) (f, cr float64) {
	if o.adaptive == nil {
		return o.cfg.F, o.cfg.CR
	}
	a := o.adaptive
	cr = o.pop.cr[i]
	if o.src.UniformReal() < a.CRChangeProbability {
		cr = a.CRMin + o.src.UniformReal()*(a.CRMax-a.CRMin)
	}
	f = o.pop.f[i]
	if o.src.UniformReal() < a.FChangeProbability {
		f = a.FMin + o.src.UniformReal()*(a.FMax-a.FMin)
	}
	return f, cr
}
