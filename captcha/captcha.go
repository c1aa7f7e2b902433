// Package captcha implements the arithmetic challenge that gates login
// submission. It deters trivial automated submissions and is not a security
// boundary: the expected value lives on the client and is never sent anywhere.
package captcha

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
)

const (
	// DefaultMin is the smallest operand drawn by default.
	DefaultMin = 1
	// DefaultMax is the largest operand drawn by default.
	DefaultMax = 10
)

// ErrInvalidRange is returned when min < 1 or max < min.
var ErrInvalidRange = errors.New("invalid captcha operand range")

// Challenge is one "a + b = ?" question.
type Challenge struct {
	OperandA int
	OperandB int
	Expected int
}

// Question renders the challenge without its answer.
func (c Challenge) Question() string {
	return fmt.Sprintf("%d + %d = ?", c.OperandA, c.OperandB)
}

// IsZero reports whether c was never generated.
func (c Challenge) IsZero() bool {
	return c == Challenge{}
}

// Check reports whether answer equals the expected value.
func Check(c Challenge, answer int) bool {
	return !c.IsZero() && answer == c.Expected
}

// ParseAnswer converts user input into an answer. Surrounding whitespace is ignored.
func ParseAnswer(s string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(s))
}

// Generator draws operands uniformly in [min, max].
type Generator struct {
	min int
	max int

	mu  sync.Mutex
	rng *rand.Rand
}

// NewGenerator returns a generator over [min, max]. A nil rng uses an
// unseeded PCG source drawn from the runtime's random state.
func NewGenerator(min, max int, rng *rand.Rand) (*Generator, error) {
	if min < 1 || max < min {
		return nil, fmt.Errorf("%w: [%d, %d]", ErrInvalidRange, min, max)
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Generator{min: min, max: max, rng: rng}, nil
}

// Generate returns a fresh challenge.
func (g *Generator) Generate() Challenge {
	g.mu.Lock()
	a := g.min + g.rng.IntN(g.max-g.min+1)
	b := g.min + g.rng.IntN(g.max-g.min+1)
	g.mu.Unlock()
	return Challenge{OperandA: a, OperandB: b, Expected: a + b}
}

var defaultGenerator, _ = NewGenerator(DefaultMin, DefaultMax, nil)

// Generate draws a challenge with operands in [1, 10].
func Generate() Challenge {
	return defaultGenerator.Generate()
}
