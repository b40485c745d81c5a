package upscale

import (
	"sort"
	"strconv"
	"time"
)

// EnvPrefix is shared by every variable a worker reads.
const EnvPrefix = "UPSCALE_"

// Environment variables understood by upscaling workers.
const (
	EnvSource        = "UPSCALE_SOURCE"
	EnvDestination   = "UPSCALE_DESTINATION"
	EnvScalingFactor = "UPSCALE_SCALING_FACTOR"
	EnvTargetWidth   = "UPSCALE_TARGET_WIDTH"
	EnvTargetHeight  = "UPSCALE_TARGET_HEIGHT"
	EnvMinWidth      = "UPSCALE_MIN_WIDTH"
	EnvMinHeight     = "UPSCALE_MIN_HEIGHT"
	EnvDenoise       = "UPSCALE_DENOISE"
	EnvTimeout       = "UPSCALE_TIMEOUT"
)

// Descriptor holds everything a worker needs to know about one job besides the
// file paths. It is passed by value into a run.
type Descriptor struct {
	// Sizing is nil when the worker should keep the original size.
	Sizing Sizing
	// Denoise level. Nil lets the worker pick its default.
	Denoise *int32
	// Timeout bounds the worker's wall-clock time. Zero means no limit.
	Timeout time.Duration
}

// SetScale switches the descriptor to the scale family, dropping any resolution.
func (d *Descriptor) SetScale(factor uint8) *Descriptor {
	d.Sizing = Scale(factor)
	return d
}

// SetTarget sets the "fit" target, dropping any scale factor.
// An existing minimum is kept.
func (d *Descriptor) SetTarget(width, height uint32) *Descriptor {
	r := d.resolution()
	r.Target = &Dimensions{Width: width, Height: height}
	d.Sizing = r
	return d
}

// SetMinimum sets the "fill" minimum, dropping any scale factor.
// An existing target is kept.
func (d *Descriptor) SetMinimum(width, height uint32) *Descriptor {
	r := d.resolution()
	r.Minimum = &Dimensions{Width: width, Height: height}
	d.Sizing = r
	return d
}

// SetDenoise sets the denoise level passed to the worker.
func (d *Descriptor) SetDenoise(level int32) *Descriptor {
	d.Denoise = &level
	return d
}

// SetTimeout sets the run deadline. Zero or negative clears it.
func (d *Descriptor) SetTimeout(timeout time.Duration) *Descriptor {
	if timeout < 0 {
		timeout = 0
	}
	d.Timeout = timeout
	return d
}

// resolution returns a copy of the current resolution, or an empty one when the
// descriptor is unset or in the scale family.
func (d *Descriptor) resolution() Resolution {
	if r, ok := d.Sizing.(Resolution); ok {
		return r
	}
	return Resolution{}
}

// Params returns the named parameters derived from the descriptor.
func (d Descriptor) Params() map[string]string {
	params := make(map[string]string)
	set := func(k, v string) { params[k] = v }

	if d.Sizing != nil {
		d.Sizing.params(set)
	}
	if d.Denoise != nil {
		set(EnvDenoise, strconv.FormatInt(int64(*d.Denoise), 10))
	}
	if d.Timeout > 0 {
		set(EnvTimeout, strconv.FormatFloat(d.Timeout.Seconds(), 'f', -1, 64))
	}
	return params
}

// Environ returns the KEY=VALUE pairs for one invocation, sorted by key.
func (d Descriptor) Environ(source, destination string) []string {
	params := d.Params()
	params[EnvSource] = source
	params[EnvDestination] = destination

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+params[k])
	}
	return env
}
