package upscale

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

// scratchPrefix makes leftover files easy to spot in the temp directory.
const scratchPrefix = "upscaled-"

// Scratch is the pair of temporary files used by one run: the original image and
// the PNG the worker writes. Close must be called once the run is over.
type Scratch struct {
	Input  string
	Output string
}

// NewScratch creates the input and output files under dir (os.TempDir when empty)
// and writes data to the input. ext is the original file's extension, with or
// without the leading dot.
func NewScratch(dir, ext string, data []byte) (*Scratch, error) {
	ext = strings.TrimPrefix(strings.TrimSpace(ext), ".")
	if strings.ContainsAny(ext, `/\`) {
		return nil, fmt.Errorf("invalid input extension %q", ext)
	}

	pattern := scratchPrefix + "*"
	if ext != "" {
		pattern += "." + ext
	}

	in, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return nil, fmt.Errorf("create input file: %w", err)
	}
	s := &Scratch{Input: in.Name()}

	_, werr := in.Write(data)
	cerr := in.Close()
	if err := errors.Join(werr, cerr); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("write input file: %w", err)
	}

	out, err := os.CreateTemp(dir, scratchPrefix+"*.png")
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("create output file: %w", err)
	}
	s.Output = out.Name()
	if err := out.Close(); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("close output file: %w", err)
	}

	return s, nil
}

// ReadOutput returns what the worker wrote to the output file.
func (s *Scratch) ReadOutput() ([]byte, error) {
	return os.ReadFile(s.Output)
}

// Close removes both files. Files that are already gone are not an error.
func (s *Scratch) Close() error {
	if s == nil {
		return nil
	}
	return errors.Join(removeIfExists(s.Input), removeIfExists(s.Output))
}

func removeIfExists(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
