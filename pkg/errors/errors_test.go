package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed", detailsOK: true},
		{code: CodeUnauthorized, status: http.StatusUnauthorized, publicMsg: "authentication required"},
		{code: CodeForbidden, status: http.StatusForbidden, publicMsg: "access denied"},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeConflict, status: http.StatusConflict, publicMsg: "conflict detected", detailsOK: true},
		{code: CodeStateConflict, status: http.StatusUnprocessableEntity, publicMsg: "state transition disallowed", detailsOK: true},
		{code: CodeInsufficientBalance, status: http.StatusPaymentRequired, publicMsg: "insufficient wallet balance", detailsOK: true},
		{code: CodeRetriesExhausted, status: http.StatusUnprocessableEntity, publicMsg: "payment retries exhausted, contact support", detailsOK: true},
		{code: CodeProviderTimeout, status: http.StatusGatewayTimeout, publicMsg: "payment provider did not respond in time", retryable: true},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error", retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "dependency unavailable", retryable: true, detailsOK: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage != tt.publicMsg {
			t.Fatalf("code %s expected public message %q got %q", tt.code, tt.publicMsg, meta.PublicMessage)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestWrapKeepsSentinelReachable(t *testing.T) {
	sentinel := stdErrors.New("already released")
	err := fmt.Errorf("release order: %w", Wrap(CodeConflict, sentinel, "reserve already released"))

	if !stdErrors.Is(err, sentinel) {
		t.Fatalf("expected sentinel to be reachable through the chain")
	}
	typed := As(err)
	if typed == nil {
		t.Fatalf("expected typed error")
	}
	if typed.Code() != CodeConflict {
		t.Fatalf("expected conflict code, got %s", typed.Code())
	}
	if !IsCode(err, CodeConflict) {
		t.Fatalf("IsCode should match the wrapped code")
	}
}

func TestRetryable(t *testing.T) {
	if !Retryable(New(CodeProviderTimeout, "slow")) {
		t.Fatalf("provider timeout should be retryable")
	}
	if Retryable(New(CodeRetriesExhausted, "done")) {
		t.Fatalf("exhausted retries must be terminal")
	}
	if Retryable(stdErrors.New("plain")) {
		t.Fatalf("untyped errors are not retryable")
	}
}

func TestWithDetailsOnNil(t *testing.T) {
	var e *Error
	if e.WithDetails(map[string]string{"a": "b"}) != nil {
		t.Fatalf("expected nil receiver to stay nil")
	}
	if e.Code() != CodeInternal {
		t.Fatalf("nil error should report internal code")
	}
}

func TestDumpCollectsChain(t *testing.T) {
	err := Wrap(CodeDependency, stdErrors.New("connection refused"), "insert reserve")
	d := Dump(err)
	if d.Code != CodeDependency {
		t.Fatalf("expected dependency code, got %s", d.Code)
	}
	if len(d.Chain) != 2 {
		t.Fatalf("expected two chain entries, got %d", len(d.Chain))
	}
	if d.PGCode != "" {
		t.Fatalf("expected no postgres fields, got %q", d.PGCode)
	}
}
