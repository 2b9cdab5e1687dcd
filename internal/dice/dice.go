// Package dice parses and rolls dice expressions like "2d20+1d6+3".
package dice

import (
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"
)

var ErrEmptyExpression = errors.New("empty dice expression")
var ErrInvalidExpression = errors.New("invalid dice expression")
var ErrTooManyDice = errors.New("too many dice in one roll")
var ErrInvalidSides = errors.New("dice must have between 2 and 1000 sides")

// Limits keep a single roll from turning into a broadcast-sized payload.
const (
	maxDicePerRoll = 100
	maxSides       = 1000
)

// Spec describes one NdS term of an expression.
type Spec struct {
	Count int
	Sides int
}

// Pool holds the results for a single spec.
type Pool struct {
	Sides   int
	Results []int
	Total   int
}

// Roll is a fully resolved expression.
type Roll struct {
	Expression string
	Pools      []Pool
	Modifier   int
	Total      int
}

// Parse splits an expression into dice specs plus a flat modifier.
// Terms are separated by + or -; each term is NdS ("2d6"), dS ("d20",
// count 1), or a bare integer modifier. Whitespace is ignored.
func Parse(expr string) ([]Spec, int, error) {
	cleaned := strings.ReplaceAll(strings.ToLower(expr), " ", "")
	if cleaned == "" {
		return nil, 0, ErrEmptyExpression
	}

	// Normalize "a-b" to "a+-b" so a single split handles both signs.
	cleaned = strings.ReplaceAll(cleaned, "-", "+-")
	terms := strings.Split(cleaned, "+")

	var specs []Spec
	modifier := 0
	totalDice := 0

	for _, term := range terms {
		if term == "" {
			return nil, 0, fmt.Errorf("%w: %q", ErrInvalidExpression, expr)
		}

		if !strings.Contains(term, "d") {
			n, err := strconv.Atoi(term)
			if err != nil {
				return nil, 0, fmt.Errorf("%w: %q", ErrInvalidExpression, expr)
			}
			modifier += n
			continue
		}

		if strings.HasPrefix(term, "-") {
			// Negative dice pools are not a thing at the table.
			return nil, 0, fmt.Errorf("%w: %q", ErrInvalidExpression, expr)
		}

		countStr, sidesStr, ok := strings.Cut(term, "d")
		if !ok {
			return nil, 0, fmt.Errorf("%w: %q", ErrInvalidExpression, expr)
		}
		count := 1
		if countStr != "" {
			n, err := strconv.Atoi(countStr)
			if err != nil || n < 1 {
				return nil, 0, fmt.Errorf("%w: %q", ErrInvalidExpression, expr)
			}
			count = n
		}
		sides, err := strconv.Atoi(sidesStr)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %q", ErrInvalidExpression, expr)
		}
		if sides < 2 || sides > maxSides {
			return nil, 0, fmt.Errorf("%w: d%d", ErrInvalidSides, sides)
		}

		totalDice += count
		if totalDice > maxDicePerRoll {
			return nil, 0, ErrTooManyDice
		}
		specs = append(specs, Spec{Count: count, Sides: sides})
	}

	if len(specs) == 0 {
		return nil, 0, fmt.Errorf("%w: %q has no dice", ErrInvalidExpression, expr)
	}
	return specs, modifier, nil
}

// RollSeeded resolves an expression deterministically: the same seed and
// expression always produce the same pools, in spec order.
func RollSeeded(expr string, seed int64) (Roll, error) {
	specs, modifier, err := Parse(expr)
	if err != nil {
		return Roll{}, err
	}

	rng := rand.New(rand.NewSource(seed))
	pools := make([]Pool, 0, len(specs))
	total := modifier

	for _, spec := range specs {
		results := make([]int, spec.Count)
		poolTotal := 0
		for i := range results {
			v := rng.Intn(spec.Sides) + 1
			results[i] = v
			poolTotal += v
		}
		pools = append(pools, Pool{Sides: spec.Sides, Results: results, Total: poolTotal})
		total += poolTotal
	}

	return Roll{
		Expression: expr,
		Pools:      pools,
		Modifier:   modifier,
		Total:      total,
	}, nil
}

// RollExpr resolves an expression with a time-derived seed.
func RollExpr(expr string) (Roll, error) {
	return RollSeeded(expr, time.Now().UnixNano())
}
