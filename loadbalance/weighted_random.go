package loadbalance

import (
	"math/rand/v2"

	"liquidnet/registry"
)

// WeightedRandomBalancer picks an instance with probability proportional to
// its weight. Instances with a weight below 1 count as 1.
type WeightedRandomBalancer struct{}

func (b *WeightedRandomBalancer) Pick(_ string, instances []registry.ServiceInstance) (*registry.ServiceInstance, error) {
	if len(instances) == 0 {
		return nil, ErrNoInstances
	}

	totalWeight := 0
	for i := range instances {
		totalWeight += weight(&instances[i])
	}

	r := rand.IntN(totalWeight)
	for i := range instances {
		r -= weight(&instances[i])
		if r < 0 {
			return &instances[i], nil
		}
	}
	return &instances[len(instances)-1], nil
}

func weight(inst *registry.ServiceInstance) int {
	if inst.Weight < 1 {
		return 1
	}
	return inst.Weight
}

func (b *WeightedRandomBalancer) Name() string {
	return "WeightedRandom"
}
