package model

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
)

// Architecture names accepted by New.
const (
	ArchMLP       = "mlp"
	ArchCNN       = "cnn"
	ArchAttention = "attention"
)

// ErrUnknownArchitecture is returned by New for unregistered names.
var ErrUnknownArchitecture = errors.New("unknown architecture")

// Maker constructs a classifier for the given input and output sizes.
type Maker func(numBins, numClasses int, rng *rand.Rand) (Classifier, error)

// Architectures maps architecture names to their constructors.
var Architectures = map[string]Maker{
	ArchMLP: func(b, c int, rng *rand.Rand) (Classifier, error) {
		return NewHistogramClassifier(b, c, rng)
	},
	ArchCNN: func(b, c int, rng *rand.Rand) (Classifier, error) {
		return NewHistogramCNN(b, c, rng)
	},
	ArchAttention: func(b, c int, rng *rand.Rand) (Classifier, error) {
		return NewHistogramClassifierWithAttention(b, c, rng)
	},
}

// New constructs the named architecture with parameters initialised from seed.
func New(name string, numBins, numClasses int, seed int64) (Classifier, error) {
	mk, ok := Architectures[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %v)", ErrUnknownArchitecture, name, Names())
	}
	return mk(numBins, numClasses, NewRand(seed))
}

// Names returns the registered architecture names in sorted order.
func Names() []string {
	names := make([]string, 0, len(Architectures))
	for n := range Architectures {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
