package balancer

import (
	"math/rand/v2"

	"github.com/maxpert/mirrordb/node"
)

// RandomBalancer picks a member uniformly at random
type RandomBalancer struct {
	members
}

func NewRandom() *RandomBalancer {
	return &RandomBalancer{}
}

func (b *RandomBalancer) Next() (node.Node, error) {
	current := b.load()
	if len(current) == 0 {
		return nil, ErrNoSuchElement
	}
	return current[rand.IntN(len(current))], nil
}

// WeightedRandomBalancer picks a member with probability proportional to
// its weight. Zero-weight members are only chosen, via First, when every
// member has zero weight.
type WeightedRandomBalancer struct {
	members
}

func NewWeightedRandom() *WeightedRandomBalancer {
	return &WeightedRandomBalancer{}
}

func (b *WeightedRandomBalancer) Next() (node.Node, error) {
	current := b.load()
	if len(current) == 0 {
		return nil, ErrNoSuchElement
	}

	total := 0
	for _, n := range current {
		total += n.Weight()
	}
	if total <= 0 {
		return current[0], nil
	}

	r := rand.IntN(total)
	for _, n := range current {
		r -= n.Weight()
		if r < 0 {
			return n, nil
		}
	}
	return current[len(current)-1], nil
}
