package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// DeliveryAddress is stored as jsonb on master orders.
type DeliveryAddress struct {
	Recipient string   `json:"recipient" validate:"required"`
	Phone     string   `json:"phone" validate:"required"`
	Line1     string   `json:"line1" validate:"required"`
	Line2     *string  `json:"line2,omitempty"`
	Town      string   `json:"town" validate:"required"`
	County    string   `json:"county,omitempty"`
	Country   string   `json:"country,omitempty"`
	Lat       *float64 `json:"lat,omitempty"`
	Lng       *float64 `json:"lng,omitempty"`
}

// Validate checks the fields the courier needs.
func (a DeliveryAddress) Validate() error {
	missing := []string{}
	for name, value := range map[string]string{
		"recipient": a.Recipient,
		"phone":     a.Phone,
		"line1":     a.Line1,
		"town":      a.Town,
	} {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("address: missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// Value implements driver.Valuer.
func (a DeliveryAddress) Value() (driver.Value, error) {
	if a.Country == "" {
		a.Country = "KE"
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("address: marshal: %w", err)
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (a *DeliveryAddress) Scan(value any) error {
	if value == nil {
		*a = DeliveryAddress{}
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("address: unsupported scan type %T", value)
	}
	if len(raw) == 0 {
		*a = DeliveryAddress{}
		return nil
	}
	return json.Unmarshal(raw, a)
}
