package checkout

import (
	"fmt"

	nanoid "github.com/jaevor/go-nanoid"
)

// trackingAlphabet drops 0/O and 1/I so ids survive being read out over the phone.
const trackingAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

const trackingLength = 10

// NewTrackingIDGenerator returns an IDGenerator producing ids like FL-7QK2M9XH4D.
func NewTrackingIDGenerator(prefix string) (IDGenerator, error) {
	gen, err := nanoid.CustomASCII(trackingAlphabet, trackingLength)
	if err != nil {
		return nil, fmt.Errorf("tracking id generator: %w", err)
	}
	if prefix == "" {
		return gen, nil
	}
	return func() string { return prefix + "-" + gen() }, nil
}
