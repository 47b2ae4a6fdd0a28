package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/farmlink-backend/pkg/errors"
)

type topUpBody struct {
	Amount   string `json:"amount" validate:"required,amount"`
	Currency string `json:"currency" validate:"required,currency"`
}

func TestDecodeJSONBody(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		wantErr bool
		field   string
	}{
		{name: "valid", body: `{"amount":"500.25","currency":"kes"}`},
		{name: "unknown field", body: `{"amount":"500","currency":"KES","extra":1}`, wantErr: true},
		{name: "zero amount", body: `{"amount":"0","currency":"KES"}`, wantErr: true, field: "amount"},
		{name: "sub-cent amount", body: `{"amount":"1.005","currency":"KES"}`, wantErr: true, field: "amount"},
		{name: "not a number", body: `{"amount":"ten","currency":"KES"}`, wantErr: true, field: "amount"},
		{name: "bad currency", body: `{"amount":"1","currency":"K3S"}`, wantErr: true, field: "currency"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))
			var dest topUpBody
			err := DecodeJSONBody(req, &dest)
			if !tc.wantErr {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if tc.field == "" {
				return
			}
			details, ok := pkgerrors.As(err).Details().(map[string]string)
			if !ok {
				t.Fatalf("expected field details, got %T", pkgerrors.As(err).Details())
			}
			if _, ok := details[tc.field]; !ok {
				t.Fatalf("expected %s in details %v", tc.field, details)
			}
		})
	}
}

func TestParseUUIDParam(t *testing.T) {
	id := uuid.New()
	withParam := func(value string) *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rc := chi.NewRouteContext()
		rc.URLParams.Add("orderId", value)
		return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
	}

	got, err := ParseUUIDParam(withParam(id.String()), "orderId")
	if err != nil || got != id {
		t.Fatalf("expected %s, got %s (%v)", id, got, err)
	}
	if _, err := ParseUUIDParam(withParam("nope"), "orderId"); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := ParseUUIDParam(withParam(""), "orderId"); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestParseQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=500", nil)
	if _, err := ParseQueryInt(req, "limit", 50, 1, 200); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected out of range error, got %v", err)
	}
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	if v, err := ParseQueryInt(req, "limit", 50, 1, 200); err != nil || v != 50 {
		t.Fatalf("expected default 50, got %d (%v)", v, err)
	}
	req = httptest.NewRequest(http.MethodGet, "/?limit=ten", nil)
	if _, err := ParseQueryInt(req, "limit", 50, 1, 200); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestParseQueryCurrency(t *testing.T) {
	cases := map[string]struct {
		query   string
		want    string
		wantErr bool
	}{
		"default":    {query: "/", want: "KES"},
		"normalized": {query: "/?currency=ugx", want: "UGX"},
		"invalid":    {query: "/?currency=shillings", wantErr: true},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := ParseQueryCurrency(httptest.NewRequest(http.MethodGet, tc.query, nil), "currency", "KES")
			if tc.wantErr {
				if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
					t.Fatalf("expected validation error, got %v", err)
				}
				return
			}
			if err != nil || got != tc.want {
				t.Fatalf("expected %s, got %s (%v)", tc.want, got, err)
			}
		})
	}
}

func TestSanitizeString(t *testing.T) {
	if got := SanitizeString("  mpesa-ref-001  ", 0); got != "mpesa-ref-001" {
		t.Fatalf("unexpected %q", got)
	}
	if got := SanitizeString("abcdef", 3); got != "abc" {
		t.Fatalf("unexpected %q", got)
	}
}
