// Package scoring turns a logged chore into points.
package scoring

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

// DefaultSource is backed by math/rand/v2's global generator.
var DefaultSource RandomSource = defaultSource{}

// Tier is one jackpot level of the multiplier roll.
type Tier struct {
	Name      string
	Threshold float64 // roll must be strictly below this
	Factor    int
	Message   string
}

// Tiers are checked in order; the first match wins.
var Tiers = []Tier{
	{Name: "jackpot", Threshold: 0.01, Factor: 10, Message: "\n💎爆裂大当たり！！一生分の運を使い切ったかも！！！ポイント10倍！！！"},
	{Name: "super_lucky", Threshold: 0.03, Factor: 5, Message: "\n🌟スーパー当たりラッキー！運だけかよ！ポイント5倍！！"},
	{Name: "lucky", Threshold: 0.13, Factor: 2, Message: "\n🎊ラッキーだ！運も実力うんちだ！ポイント2倍！"},
}

// RollTier maps a roll to its tier. ok is false for the plain x1 outcome.
func RollTier(r float64) (Tier, bool) {
	for _, t := range Tiers {
		if r < t.Threshold {
			return t, true
		}
	}
	return Tier{Name: "none", Factor: 1}, false
}

// Award is the result of scoring one submission.
type Award struct {
	PerAssigneeScore  float64
	Multiplier        int
	MultiplierMessage string
	Tier              string
}

// Engine scores submissions with an injectable random source.
type Engine struct {
	rng RandomSource
}

func NewEngine(rng RandomSource) *Engine {
	if rng == nil {
		rng = DefaultSource
	}
	return &Engine{rng: rng}
}

// ComputeAward splits baseScore across assigneeCount people and rolls the
// multiplier once. clientMultiplier <= 0 counts as 1. A zero base score
// skips the roll.
func (e *Engine) ComputeAward(baseScore float64, assigneeCount, clientMultiplier int) (Award, error) {
	if assigneeCount <= 0 {
		return Award{}, core.Invalid("assignees", core.MsgAssigneesRequired)
	}
	multiplier := clientMultiplier
	if multiplier <= 0 {
		multiplier = 1
	}

	award := Award{
		PerAssigneeScore: baseScore / float64(assigneeCount),
		Multiplier:       multiplier,
		Tier:             "none",
	}
	if baseScore == 0 {
		return award, nil
	}

	if tier, ok := RollTier(e.rng.Float64()); ok {
		award.Multiplier *= tier.Factor
		award.MultiplierMessage = tier.Message
		award.Tier = tier.Name
	}
	return award, nil
}
