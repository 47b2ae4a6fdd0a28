package types

import "testing"

func TestDeliveryAddressRoundTripThroughDriver(t *testing.T) {
	addr := DeliveryAddress{Recipient: "Wanjiru", Phone: "+254700000001", Line1: "Plot 12", Town: "Nakuru"}
	v, err := addr.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}

	var scanned DeliveryAddress
	if err := scanned.Scan([]byte(v.(string))); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if scanned.Town != "Nakuru" || scanned.Country != "KE" {
		t.Fatalf("unexpected scanned address %+v", scanned)
	}
}

func TestDeliveryAddressValidate(t *testing.T) {
	err := DeliveryAddress{Recipient: "A"}.Validate()
	if err == nil {
		t.Fatal("expected missing fields")
	}
	if got := err.Error(); got != "address: missing line1, phone, town" {
		t.Fatalf("unexpected message %q", got)
	}
}
