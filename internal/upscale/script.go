package upscale

import (
	"bytes"
	_ "embed"
)

//go:embed scripts/waifu2x.py
var defaultScript []byte

// DefaultScript returns a copy of the bundled worker script. It drives
// waifu2x-ncnn-vulkan and speaks the UPSCALE_* environment protocol.
func DefaultScript() []byte {
	return bytes.Clone(defaultScript)
}
