package signature

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the on-disk form of a signature extension:
//
//	modules:
//	  - invariant
//	patterns:
//	  - invariant(condition, [message])
type File struct {
	Modules  []string `yaml:"modules"`
	Patterns []string `yaml:"patterns"`
}

// LoadFile reads a signature extension from path.
func LoadFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening signature file: %w", err)
	}
	defer f.Close()

	return Decode(f)
}

// Decode reads a signature extension from r. Unknown keys are rejected.
func Decode(r io.Reader) (*File, error) {
	var file File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decoding signature file: %w", err)
	}
	return &file, nil
}

// Apply extends set with the modules and patterns of f.
func (f *File) Apply(set *Set) (*Set, error) {
	out, err := set.WithModules(f.Modules...).WithPatterns(f.Patterns...)
	if err != nil {
		return nil, err
	}
	return out, nil
}
