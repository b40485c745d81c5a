package upscale

import "strconv"

// Sizing describes how big the upscaled image should be. It is either a Scale or a
// Resolution; no other implementations exist.
type Sizing interface {
	params(set func(key, value string))
}

// Scale multiplies both dimensions of the image by a fixed factor.
type Scale uint8

func (s Scale) params(set func(key, value string)) {
	set(EnvScalingFactor, strconv.FormatUint(uint64(s), 10))
}

// Dimensions is a width/height pair in pixels.
type Dimensions struct {
	Width  uint32 `json:"width"`
	Height uint32 `json:"height"`
}

// Resolution asks for a target and/or minimum output size.
//
// Target uses a "fit" strategy: the result's width OR height reaches the target.
// Minimum uses a "fill" strategy: the result's width AND height reach it.
// Either may be nil. A zero component is ignored by the worker.
type Resolution struct {
	Target  *Dimensions
	Minimum *Dimensions
}

func (r Resolution) params(set func(key, value string)) {
	if r.Target != nil {
		set(EnvTargetWidth, strconv.FormatUint(uint64(r.Target.Width), 10))
		set(EnvTargetHeight, strconv.FormatUint(uint64(r.Target.Height), 10))
	}
	if r.Minimum != nil {
		set(EnvMinWidth, strconv.FormatUint(uint64(r.Minimum.Width), 10))
		set(EnvMinHeight, strconv.FormatUint(uint64(r.Minimum.Height), 10))
	}
}
