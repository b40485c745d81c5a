package upscale

import (
	"errors"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ParseResolution reads the "<width>x<height>" line a worker prints on success.
// The values are returned as reported; they may differ from what was requested.
func ParseResolution(stdout []byte) (Dimensions, error) {
	fail := func(msg string) (Dimensions, error) {
		return Dimensions{}, &Error{Kind: KindParse, Raw: stdout, Err: errors.New(msg)}
	}

	if !utf8.Valid(stdout) {
		return fail("output is not valid utf-8")
	}

	fields := strings.Split(strings.TrimSpace(string(stdout)), "x")
	if len(fields) != 2 {
		return fail("expected WIDTHxHEIGHT")
	}

	width, err := strconv.ParseUint(fields[0], 10, 32)
	if err != nil {
		return fail("invalid width")
	}
	height, err := strconv.ParseUint(fields[1], 10, 32)
	if err != nil {
		return fail("invalid height")
	}

	return Dimensions{Width: uint32(width), Height: uint32(height)}, nil
}
