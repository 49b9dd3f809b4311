package models

import (
	"sync"
	"time"

	"golang.org/x/exp/rand"
)

// NormalSource yields standard normal draws, one per simulation step.
type NormalSource interface {
	Next() float64
}

// NormalGenerator draws independent N(0,1) variates from a PCG stream.
type NormalGenerator struct {
	rng *rand.Rand
}

func NewNormalGenerator(seed uint64) *NormalGenerator {
	return &NormalGenerator{rng: rand.New(rand.NewSource(seed))}
}

// Seed restarts the stream.
func (g *NormalGenerator) Seed(seed uint64) {
	g.rng.Seed(seed)
}

func (g *NormalGenerator) Next() float64 {
	return g.rng.NormFloat64()
}

var generatorPool = sync.Pool{
	New: func() interface{} {
		return NewNormalGenerator(RandomSeed())
	},
}

// AcquireGenerator takes a pooled generator and restarts it at seed.
func AcquireGenerator(seed uint64) *NormalGenerator {
	g := generatorPool.Get().(*NormalGenerator)
	g.Seed(seed)
	return g
}

func ReleaseGenerator(g *NormalGenerator) {
	generatorPool.Put(g)
}

// StreamSeed derives the seed of sub-stream i from base with a splitmix64
// finaliser, so neighbouring streams do not share PCG state.
func StreamSeed(base uint64, i int) uint64 {
	z := base + uint64(i+1)*0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// RandomSeed returns a non-zero seed taken from the wall clock.
func RandomSeed() uint64 {
	s := StreamSeed(uint64(time.Now().UnixNano()), 0)
	if s == 0 {
		s = 1
	}
	return s
}
