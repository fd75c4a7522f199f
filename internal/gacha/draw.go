// Package gacha draws a prize from a weighted catalog.
package gacha

import (
	"math/rand/v2"

	"kakeibo/internal/core"
)

// RandomSource yields uniform values in [0,1).
type RandomSource interface {
	Float64() float64
}

type defaultSource struct{}

func (defaultSource) Float64() float64 { return rand.Float64() }

// Result is the drawn prize and whether the last-prize fallback chose it.
type Result struct {
	Prize    core.GachaPrize
	Index    int
	Fallback bool
}

// Engine performs weighted draws with an injectable random source.
type Engine struct {
	rng RandomSource
}

func NewEngine(rng RandomSource) *Engine {
	if rng == nil {
		rng = defaultSource{}
	}
	return &Engine{rng: rng}
}

// Draw walks prizes in order and returns the first whose cumulative weight
// exceeds the roll. Prize order settles ties. When nothing qualifies the last
// prize is returned with Fallback set. Weights <= 0 are legal and never
// selected except through the fallback. An empty catalog fails with
// core.ErrNoPrizesAvailable.
func (e *Engine) Draw(prizes []core.GachaPrize) (Result, error) {
	if len(prizes) == 0 {
		return Result{}, core.ErrNoPrizesAvailable
	}

	total := 0.0
	for _, p := range prizes {
		total += p.Weight()
	}
	r := e.rng.Float64() * total

	cumulative := 0.0
	for i, p := range prizes {
		cumulative += p.Weight()
		if r < cumulative {
			return Result{Prize: p, Index: i}, nil
		}
	}

	last := len(prizes) - 1
	return Result{Prize: prizes[last], Index: last, Fallback: true}, nil
}
