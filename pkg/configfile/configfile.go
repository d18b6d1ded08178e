// Package configfile loads an optional YAML file of flag-name-keyed
// string defaults, consulted below environment variables and above
// built-in defaults in the same layered-override style as the rest of
// the flag/env resolution chain.
package configfile

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// File holds the flat flag-name -> string-value mapping parsed from a
// --config document.
type File struct {
	values map[string]string
}

// Load reads path and parses it as a flat YAML mapping of flag name to
// string value. An empty path is not an error: Load returns a nil File,
// and a nil *File answers every Get as a miss, so callers never need a
// separate "was a config file given" check.
func Load(path string) (*File, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("configfile: %w", err)
	}
	var raw map[string]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("configfile: %s: %w", path, err)
	}
	return &File{values: raw}, nil
}

// Get returns the string value for flag name key, if a config file was
// loaded and names it.
func (f *File) Get(key string) (string, bool) {
	if f == nil {
		return "", false
	}
	v, ok := f.values[key]
	return v, ok
}
