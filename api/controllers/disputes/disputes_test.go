package disputes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	internaldisputes "github.com/angelmondragon/farmlink-backend/internal/disputes"
	"github.com/angelmondragon/farmlink-backend/pkg/db/models"
	"github.com/angelmondragon/farmlink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/farmlink-backend/pkg/errors"
)

type stubDisputes struct {
	opened   func(ctx context.Context, input internaldisputes.OpenedInput) (*models.ReserveEntry, error)
	resolved func(ctx context.Context, input internaldisputes.ResolvedInput) (*internaldisputes.Resolution, error)
}

func (s *stubDisputes) Opened(ctx context.Context, input internaldisputes.OpenedInput) (*models.ReserveEntry, error) {
	return s.opened(ctx, input)
}

func (s *stubDisputes) Resolved(ctx context.Context, input internaldisputes.ResolvedInput) (*internaldisputes.Resolution, error) {
	return s.resolved(ctx, input)
}

func TestOpenedFreezesReserve(t *testing.T) {
	t.Parallel()
	orderID := uuid.New()
	var captured internaldisputes.OpenedInput
	svc := &stubDisputes{opened: func(ctx context.Context, input internaldisputes.OpenedInput) (*models.ReserveEntry, error) {
		captured = input
		return &models.ReserveEntry{ID: uuid.New(), OrderID: input.OrderID, Status: enums.ReserveStatusFrozen, Amount: 40000, Currency: "KES"}, nil
	}}

	body := `{"order_id":"` + orderID.String() + `","dispute_id":"DSP-9","reason":"wrong produce"}`
	resp := httptest.NewRecorder()
	Opened(svc, nil).ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/disputes/opened", strings.NewReader(body)))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if captured.OrderID != orderID || captured.DisputeID != "DSP-9" || captured.Reason != "wrong produce" {
		t.Fatalf("unexpected input %+v", captured)
	}
	var envelope struct {
		Data struct {
			Frozen  bool `json:"frozen"`
			Reserve struct {
				Status string `json:"status"`
			} `json:"reserve"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !envelope.Data.Frozen || envelope.Data.Reserve.Status != "frozen" {
		t.Fatalf("expected frozen reserve, got %+v", envelope.Data)
	}
}

func TestOpenedWithoutHoldConflicts(t *testing.T) {
	t.Parallel()
	svc := &stubDisputes{opened: func(ctx context.Context, input internaldisputes.OpenedInput) (*models.ReserveEntry, error) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "no active reserve")
	}}
	body := `{"order_id":"` + uuid.NewString() + `","dispute_id":"DSP-1"}`
	resp := httptest.NewRecorder()
	Opened(svc, nil).ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", resp.Code)
	}
}

func TestResolvedValidatesOutcome(t *testing.T) {
	t.Parallel()
	svc := &stubDisputes{}
	body := `{"order_id":"` + uuid.NewString() + `","dispute_id":"DSP-1","outcome":"split"}`
	resp := httptest.NewRecorder()
	Resolved(svc, nil).ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestResolvedReportsSettlement(t *testing.T) {
	t.Parallel()
	svc := &stubDisputes{resolved: func(ctx context.Context, input internaldisputes.ResolvedInput) (*internaldisputes.Resolution, error) {
		if input.Outcome != enums.DisputeFavorSeller {
			t.Fatalf("unexpected outcome %s", input.Outcome)
		}
		return &internaldisputes.Resolution{
			Settled: internaldisputes.SettlementRelease,
			Order:   &models.MasterOrder{ID: input.OrderID, Status: enums.OrderStatusDelivered},
		}, nil
	}}
	body := `{"order_id":"` + uuid.NewString() + `","dispute_id":"DSP-1","outcome":"favor_seller"}`
	resp := httptest.NewRecorder()
	Resolved(svc, nil).ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var envelope struct {
		Data struct {
			Settled string `json:"settled"`
			Order   struct {
				Status string `json:"status"`
			} `json:"order"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Data.Settled != "release" || envelope.Data.Order.Status != "delivered" {
		t.Fatalf("unexpected response %+v", envelope.Data)
	}
}
