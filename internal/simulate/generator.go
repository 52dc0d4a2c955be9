package simulate

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/google/uuid"

	"github.com/okian/mosaic/internal/domain/model"
)

// Constants for random number generation.
const (
	randomFloatDivisor = 1000000
)

// Dimension bounds for synthetic resources.
const (
	minDimension   = 160
	dimensionRange = 1120
)

// getRandomFloat returns a random float64 between 0.0 and 1.0 using crypto/rand.
func getRandomFloat() float64 {
	n, _ := rand.Int(rand.Reader, big.NewInt(randomFloatDivisor))
	return float64(n.Int64()) / float64(randomFloatDivisor)
}

func randomDimension() int {
	return minDimension + int(getRandomFloat()*dimensionRange)
}

// generateResources creates synthetic resources with unique ids. Tiers are
// distributed as a page would: a few critical hero assets up front, then a
// high/normal/low mix down the scroll.
func generateResources(config *Config) []model.Resource {
	resources := make([]model.Resource, config.NumResources)
	criticalBudget := int(float64(config.NumResources) * config.CriticalShare)

	for i := range resources {
		id := uuid.New().String()
		var tier model.PriorityTier
		switch {
		case i < criticalBudget:
			tier = model.TierCritical
		case getRandomFloat() < 0.25:
			tier = model.TierHigh
		case getRandomFloat() < 0.25:
			tier = model.TierLow
		default:
			tier = model.TierNormal
		}

		resources[i] = model.Resource{
			ID:             id,
			OriginalSource: fmt.Sprintf("sim://media/%s.avif", id),
			FallbackSource: fmt.Sprintf("sim://media/%s.jpg", id),
			Tier:           tier,
			Width:          randomDimension(),
			Height:         randomDimension(),
		}
	}

	return resources
}
