// Package v1 is the JSON contract for upscale requests, shared by the API, the
// job queue and the remote upscaler client.
//
// Byte fields travel as standard base64. Scale and Resolutions are mutually
// exclusive; a request with neither keeps the original size.
package v1

import (
	"strings"
	"time"

	"upscaled/internal/pkg/errors"
	"upscaled/internal/upscale"
)

// MaxExtLen bounds OriginalExt.
const MaxExtLen = 16

type Resolution struct {
	Width  uint32 `json:"width"`
	Height uint32 `json:"height"`
}

// Resolutions carries the fit target and the fill minimum. Either may be omitted.
type Resolutions struct {
	Target  *Resolution `json:"target,omitempty"`
	Minimum *Resolution `json:"minimum,omitempty"`
}

// Options is everything about a request except the image itself. Jobs store it
// as their params.
type Options struct {
	Scale       *uint32      `json:"scale,omitempty"`
	Resolutions *Resolutions `json:"resolutions,omitempty"`
	Denoise     *int32       `json:"denoise,omitempty"`
	// Timeout is a Go duration string such as "90s". Empty means no limit.
	Timeout string `json:"timeout,omitempty"`
}

type UpscaleRequest struct {
	OriginalFile []byte `json:"original_file"`
	OriginalExt  string `json:"original_ext"`
	Options
}

type UpscaleResponse struct {
	Res      Resolution `json:"res"`
	Upscaled []byte     `json:"upscaled"`
}

// Validate checks the request and returns the descriptor it describes.
func (r *UpscaleRequest) Validate() (upscale.Descriptor, error) {
	if len(r.OriginalFile) == 0 {
		return upscale.Descriptor{}, errors.ValidationField("original_file", "original_file is required")
	}
	if err := ValidateExt(r.OriginalExt); err != nil {
		return upscale.Descriptor{}, err
	}
	return r.Options.Descriptor()
}

// ValidateExt accepts a short alphanumeric extension, with or without a leading dot.
func ValidateExt(ext string) error {
	ext = strings.TrimPrefix(strings.TrimSpace(ext), ".")
	if ext == "" {
		return errors.ValidationField("original_ext", "original_ext is required")
	}
	if len(ext) > MaxExtLen {
		return errors.ValidationField("original_ext", "original_ext is too long")
	}
	for _, c := range ext {
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9') {
			return errors.ValidationField("original_ext", "original_ext must be alphanumeric")
		}
	}
	return nil
}

// Descriptor validates the options and converts them.
func (o Options) Descriptor() (upscale.Descriptor, error) {
	var d upscale.Descriptor

	switch {
	case o.Scale != nil && o.Resolutions != nil:
		return d, errors.ValidationField("scale", "scale and resolutions are mutually exclusive")

	case o.Scale != nil:
		if *o.Scale < 1 || *o.Scale > 255 {
			return d, errors.ValidationField("scale", "scale must be between 1 and 255")
		}
		d.SetScale(uint8(*o.Scale))

	case o.Resolutions != nil:
		d.Sizing = upscale.Resolution{}
		if t := o.Resolutions.Target; t != nil {
			d.SetTarget(t.Width, t.Height)
		}
		if m := o.Resolutions.Minimum; m != nil {
			d.SetMinimum(m.Width, m.Height)
		}
	}

	if o.Denoise != nil {
		d.SetDenoise(*o.Denoise)
	}

	if s := strings.TrimSpace(o.Timeout); s != "" {
		timeout, err := time.ParseDuration(s)
		if err != nil {
			return d, errors.ValidationField("timeout", "timeout must be a duration such as \"90s\"")
		}
		if timeout < 0 {
			return d, errors.ValidationField("timeout", "timeout cannot be negative")
		}
		d.SetTimeout(timeout)
	}

	return d, nil
}

// FromDescriptor is the inverse of Options.Descriptor.
func FromDescriptor(d upscale.Descriptor) Options {
	var o Options

	switch s := d.Sizing.(type) {
	case upscale.Scale:
		v := uint32(s)
		o.Scale = &v
	case upscale.Resolution:
		o.Resolutions = &Resolutions{}
		if s.Target != nil {
			o.Resolutions.Target = &Resolution{Width: s.Target.Width, Height: s.Target.Height}
		}
		if s.Minimum != nil {
			o.Resolutions.Minimum = &Resolution{Width: s.Minimum.Width, Height: s.Minimum.Height}
		}
	}

	if d.Denoise != nil {
		v := *d.Denoise
		o.Denoise = &v
	}
	if d.Timeout > 0 {
		o.Timeout = d.Timeout.String()
	}
	return o
}
