package enums

import "fmt"

// DisputeOutcome is reported by the external dispute workflow.
type DisputeOutcome string

const (
	DisputeFavorBuyer  DisputeOutcome = "favor_buyer"
	DisputeFavorSeller DisputeOutcome = "favor_seller"
)

func (d DisputeOutcome) String() string {
	return string(d)
}

func (d DisputeOutcome) IsValid() bool {
	return d == DisputeFavorBuyer || d == DisputeFavorSeller
}

func ParseDisputeOutcome(value string) (DisputeOutcome, error) {
	outcome := DisputeOutcome(value)
	if !outcome.IsValid() {
		return "", fmt.Errorf("invalid dispute outcome %q", value)
	}
	return outcome, nil
}
