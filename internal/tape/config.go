package tape

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/born-ml/adtape/internal/chunk"
	"github.com/google/uuid"
)

// Policy selects the identifier management of a tape.
type Policy int

const (
	// Linear issues identifiers in creation order and never reuses them.
	Linear Policy = iota
	// Reuse recycles released identifiers and restores primals on rewind.
	Reuse
)

// String returns the configuration name of p.
func (p Policy) String() string {
	switch p {
	case Linear:
		return "linear"
	case Reuse:
		return "reuse"
	}
	return fmt.Sprintf("Policy(%d)", int(p))
}

// MarshalText implements encoding.TextMarshaler.
func (p Policy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Policy) UnmarshalText(text []byte) error {
	switch string(text) {
	case "linear":
		*p = Linear
	case "reuse":
		*p = Reuse
	default:
		return fmt.Errorf("unknown identifier policy %q", text)
	}
	return nil
}

// Config holds the tape flags.
type Config struct {
	Policy    Policy `yaml:"policy"`
	ChunkSize int    `yaml:"chunk_size"` // Records per store chunk

	// SkipZeroAdjoint skips statements whose output adjoint is exactly zero
	// during reverse replay.
	SkipZeroAdjoint bool `yaml:"skip_zero_adjoint"`

	// IgnoreInvalidJacobians drops non-finite local partials term by term.
	IgnoreInvalidJacobians bool `yaml:"ignore_invalid_jacobians"`

	// AssignOptimization shares identifiers on plain copies when the policy
	// allows it.
	AssignOptimization bool `yaml:"assign_optimization"`

	// SortIndicesOnReset hands out the smallest identifiers first after a
	// reset of a reuse tape.
	SortIndicesOnReset bool `yaml:"sort_indices_on_reset"`
}

// DefaultConfig returns the default flags for a linear tape.
func DefaultConfig() Config {
	return Config{
		Policy:             Linear,
		ChunkSize:          chunk.DefaultSize,
		SkipZeroAdjoint:    true,
		AssignOptimization: true,
		SortIndicesOnReset: true,
	}
}

// Option configures a Tape.
type Option func(*Tape)

// WithLogger sets the logger used for debug messages.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tape) {
		t.logger = l
	}
}

// WithID overrides the random tape identity reported in statistics.
func WithID(id uuid.UUID) Option {
	return func(t *Tape) {
		t.id = id
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
