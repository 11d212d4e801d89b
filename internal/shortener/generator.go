package shortener

import (
	"context"
	"fmt"

	"github.com/jaevor/go-nanoid"
)

const (
	// DefaultCodeLength gives 62^7 (about 3.5e12) candidate codes.
	DefaultCodeLength = 7
	// DefaultAttempts is the number of candidates tried at each length.
	DefaultAttempts = 5

	minCodeLength = 6
	maxCodeLength = 12
)

// CodeGenerator returns a random candidate code.
type CodeGenerator func() string

// Claim tries to take a candidate code, typically via Repository.PutIfAbsent.
// It returns false when the code is already taken.
type Claim func(ctx context.Context, code Code) (bool, error)

// Generator draws random base62 codes and retries on collision. After
// exhausting its attempts at the base length it widens the code by one
// character before giving up with ErrGenerationExhausted.
type Generator struct {
	length   int
	attempts int
	base     CodeGenerator
	wide     CodeGenerator
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithAttempts sets how many candidates are tried per length.
func WithAttempts(n int) GeneratorOption {
	return func(g *Generator) {
		if n > 0 {
			g.attempts = n
		}
	}
}

// WithCodeGenerators replaces the random sources for the base and widened
// lengths. Used to force collisions in tests.
func WithCodeGenerators(base, wide CodeGenerator) GeneratorOption {
	return func(g *Generator) {
		g.base = base
		g.wide = wide
	}
}

// NewGenerator creates a base62 code generator for the given code length.
func NewGenerator(length int, opts ...GeneratorOption) (*Generator, error) {
	if length < minCodeLength || length >= maxCodeLength {
		return nil, fmt.Errorf("code length must be between %d and %d, got %d", minCodeLength, maxCodeLength-1, length)
	}

	base, err := nanoid.CustomASCII(Alphabet, length)
	if err != nil {
		return nil, fmt.Errorf("create code generator: %w", err)
	}

	wide, err := nanoid.CustomASCII(Alphabet, length+1)
	if err != nil {
		return nil, fmt.Errorf("create widened code generator: %w", err)
	}

	g := &Generator{
		length:   length,
		attempts: DefaultAttempts,
		base:     base,
		wide:     wide,
	}

	for _, opt := range opts {
		opt(g)
	}

	return g, nil
}

// Length returns the base code length.
func (g *Generator) Length() int {
	return g.length
}

// Generate draws candidates until claim accepts one. Errors from claim are
// returned immediately; collisions and reserved codes are retried.
func (g *Generator) Generate(ctx context.Context, claim Claim) (Code, error) {
	for _, next := range []CodeGenerator{g.base, g.wide} {
		for range g.attempts {
			if err := ctx.Err(); err != nil {
				return "", err
			}

			code := Code(next())
			if code.Reserved() {
				continue
			}

			ok, err := claim(ctx, code)
			if err != nil {
				return "", err
			}

			if ok {
				return code, nil
			}
		}
	}

	return "", ErrGenerationExhausted
}
