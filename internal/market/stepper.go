// Package market holds the price-stepping math of the simulator. Nothing in
// here touches storage; the simulation service loads instruments, steps them
// with a Stepper and persists the result.
package market

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MiaoJiyu/mini-biz-sim/internal/models"
)

const (
	minVolatilityClass = 1
	maxVolatilityClass = 10

	// randomWalkAmplitude spans [-5%, +5%] at volatility class 10.
	randomWalkAmplitude = 0.1
	// driftShockScale sizes one standard deviation of the macro shock at volatility class 10.
	driftShockScale = 0.01
	hoursPerYear    = 365 * 24
	maxShockSigmas  = 3.0
)

// Stepper computes the next price of an instrument.
type Stepper interface {
	// Name identifies the model in run results and logs.
	Name() string
	Step(current decimal.Decimal, volatilityClass int, r Rand) decimal.Decimal
}

// RandomWalk is the per-tick model: a uniform move of up to ±5% scaled by
// volatilityClass/10.
type RandomWalk struct{}

// Name implements Stepper.
func (RandomWalk) Name() string { return "tick" }

// Step implements Stepper.
func (RandomWalk) Step(current decimal.Decimal, volatilityClass int, r Rand) decimal.Decimal {
	move := (r.Float64() - 0.5) * randomWalkAmplitude * volatilityFactor(volatilityClass)
	return applyMove(current, move)
}

// MacroDrift is the slow companion model: the broad market growth rate
// pro-rated to Period, plus a gaussian shock scaled by volatility.
type MacroDrift struct {
	AnnualGrowth float64
	Period       time.Duration
}

// Name implements Stepper.
func (MacroDrift) Name() string { return "drift" }

// Step implements Stepper.
func (m MacroDrift) Step(current decimal.Decimal, volatilityClass int, r Rand) decimal.Decimal {
	drift := m.AnnualGrowth * m.Period.Hours() / hoursPerYear
	z := math.Max(-maxShockSigmas, math.Min(maxShockSigmas, r.NormFloat64()))
	shock := volatilityFactor(volatilityClass) * driftShockScale * z
	return applyMove(current, drift+shock)
}

func volatilityFactor(class int) float64 {
	if class < minVolatilityClass {
		class = minVolatilityClass
	}
	if class > maxVolatilityClass {
		class = maxVolatilityClass
	}
	return float64(class) / 10
}

// applyMove returns current*(1+move), rounded to cents and never below MinPrice.
func applyMove(current decimal.Decimal, move float64) decimal.Decimal {
	next := models.RoundMoney(current.Mul(decimal.NewFromInt(1).Add(decimal.NewFromFloat(move))))
	if next.LessThan(models.MinPrice) {
		return models.MinPrice
	}
	return next
}
