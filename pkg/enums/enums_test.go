package enums

import "testing"

func TestOrderStatusRank(t *testing.T) {
	if OrderStatusPending.Rank() >= OrderStatusConfirmed.Rank() {
		t.Fatalf("pending must rank before confirmed")
	}
	if OrderStatusShipped.Rank() >= OrderStatusDelivered.Rank() {
		t.Fatalf("shipped must rank before delivered")
	}
	if OrderStatusCancelled.Rank() != -1 {
		t.Fatalf("cancelled sits outside the progression")
	}
	if !OrderStatusCancelled.IsValid() || OrderStatus("lost").IsValid() {
		t.Fatalf("unexpected validity")
	}
	if _, err := ParseOrderStatus("lost"); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestTransactionTypeBalanceSign(t *testing.T) {
	cases := map[TransactionType]int64{
		TransactionCredit:         1,
		TransactionReserveRelease: 1,
		TransactionDebit:          -1,
		TransactionReserveHold:    0,
	}
	for typ, want := range cases {
		if got := typ.BalanceSign(); got != want {
			t.Fatalf("%s: expected sign %d, got %d", typ, want, got)
		}
	}
}

func TestPaymentMethodTraits(t *testing.T) {
	if PaymentMethodCashOnDelivery.HoldsFunds() {
		t.Fatalf("cash on delivery never holds")
	}
	if !PaymentMethodWallet.HoldsFunds() || PaymentMethodWallet.UsesProvider() {
		t.Fatalf("wallet holds funds without a provider")
	}
	if !PaymentMethodMobileMoney.UsesProvider() || !PaymentMethodCard.UsesProvider() {
		t.Fatalf("mobile money and card are provider-backed")
	}
	if _, err := ParsePaymentMethod("barter"); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestFailureReasonCountsAsRetry(t *testing.T) {
	for _, reason := range []PaymentFailureReason{FailureProviderDeclined, FailureProviderTimeout, FailureProviderError, FailureStale} {
		if !reason.CountsAsRetry() {
			t.Fatalf("%s should use up an attempt", reason)
		}
	}
	if FailureUserCancelled.CountsAsRetry() {
		t.Fatalf("buyer cancellation must not use up an attempt")
	}
}
