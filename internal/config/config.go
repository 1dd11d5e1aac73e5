// Package config loads tape, batch and logging settings from a YAML file.
//
// Example:
//
//	tape:
//	  policy: reuse
//	  chunk_size: 4096
//	  ignore_invalid_jacobians: true
//	parameters:
//	  adjoint_size: 100000
//	  statement_size: 50000
//	batch:
//	  enabled: true
//	  num_workers: 8
//	log:
//	  level: debug
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"

	"github.com/born-ml/adtape/internal/batch"
	"github.com/born-ml/adtape/internal/logging"
	"github.com/born-ml/adtape/internal/tape"
	"gopkg.in/yaml.v3"
)

// Config is the content of a configuration file.
type Config struct {
	Tape tape.Config `yaml:"tape"`

	// Parameters presizes tape storage by parameter name, e.g.
	// "statement_size".
	Parameters map[string]int `yaml:"parameters"`

	Batch batch.Config   `yaml:"batch"`
	Log   logging.Config `yaml:"log"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Tape:  tape.DefaultConfig(),
		Batch: batch.DefaultConfig(),
	}
}

// Load reads and validates the file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML on top of Default and validates the result. Unknown
// keys are an error.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges and parameter names.
func (c Config) Validate() error {
	if c.Tape.ChunkSize < 0 {
		return fmt.Errorf("tape.chunk_size must not be negative, got %d", c.Tape.ChunkSize)
	}
	if c.Batch.NumWorkers < 0 {
		return fmt.Errorf("batch.num_workers must not be negative, got %d", c.Batch.NumWorkers)
	}
	for name, v := range c.Parameters {
		p, err := tape.ParseParameter(name)
		if err != nil {
			return err
		}
		if p == tape.LargestIdentifier {
			return fmt.Errorf("parameter %s: %w", name, tape.ErrReadOnlyParameter)
		}
		if v < 0 {
			return fmt.Errorf("parameter %s must not be negative, got %d", name, v)
		}
	}
	return nil
}

// NewTape creates a tape from the configuration and applies the parameter
// presizes in name order.
func (c Config) NewTape(opts ...tape.Option) (*tape.Tape, error) {
	tp := tape.New(c.Tape, opts...)
	for _, name := range slices.Sorted(maps.Keys(c.Parameters)) {
		p, err := tape.ParseParameter(name)
		if err != nil {
			return nil, err
		}
		if err := setParameter(tp, p, c.Parameters[name]); err != nil {
			return nil, err
		}
	}
	return tp, nil
}

func setParameter(tp *tape.Tape, p tape.Parameter, v int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			te, ok := r.(*tape.Error)
			if !ok {
				panic(r)
			}
			err = te
		}
	}()
	tp.SetParameter(p, v)
	return nil
}
