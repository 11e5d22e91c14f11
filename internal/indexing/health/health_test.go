package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vietddude/custody/internal/core/cursor"
	"github.com/vietddude/custody/internal/core/domain"
)

// =============================================================================
// Mocks
// =============================================================================

type mockHeights struct {
	height uint64
	err    error
}

func (m *mockHeights) CurrentHeight(ctx context.Context) (uint64, error) {
	return m.height, m.err
}

type stubWatermark struct {
	last uint64
}

func (s *stubWatermark) Last() (uint64, error) { return s.last, nil }
func (s *stubWatermark) Lag(height uint64) uint64 {
	if height <= s.last {
		return 0
	}
	return height - s.last
}
func (s *stubWatermark) GetMetrics() cursor.Metrics { return cursor.Metrics{} }

type stubStore struct {
	err error
}

func (s *stubStore) Ping(ctx context.Context) error { return s.err }

type stubDeposits struct {
	pending int
	unswept int
}

func (s *stubDeposits) ListPending(ctx context.Context) ([]*domain.DepositRecord, error) {
	return make([]*domain.DepositRecord, s.pending), nil
}

func (s *stubDeposits) ListUnsweptConfirmed(ctx context.Context) ([]*domain.DepositRecord, error) {
	return make([]*domain.DepositRecord, s.unswept), nil
}

// =============================================================================
// Tests
// =============================================================================

func TestMonitor_Status(t *testing.T) {
	tests := []struct {
		name      string
		height    uint64
		heightErr error
		last      uint64
		storeErr  error
		want      SystemStatus
		wantLag   uint64
	}{
		{name: "healthy", height: 1000, last: 983, want: StatusHealthy, wantLag: 5},
		{name: "degraded lag", height: 1000, last: 938, want: StatusDegraded, wantLag: 50},
		{name: "critical lag", height: 1000, last: 688, want: StatusCritical, wantLag: 300},
		{name: "chain unreachable", heightErr: errors.New("dial"), last: 988, want: StatusDegraded},
		{name: "store unreachable", height: 1000, last: 988, storeErr: errors.New("refused"), want: StatusCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMonitor(
				&mockHeights{height: tt.height, err: tt.heightErr},
				&stubWatermark{last: tt.last},
				&stubStore{err: tt.storeErr},
				&stubDeposits{pending: 2, unswept: 1},
				12,
			)

			report := m.CheckHealth(context.Background())
			if report.Status != tt.want {
				t.Errorf("expected %s, got %s (%+v)", tt.want, report.Status, report)
			}
			if report.BlockLag != tt.wantLag {
				t.Errorf("expected lag %d, got %d", tt.wantLag, report.BlockLag)
			}
			if tt.storeErr == nil && (report.PendingDeposits != 2 || report.UnsweptDeposits != 1) {
				t.Errorf("unexpected counts %+v", report)
			}
		})
	}
}

func TestMonitor_CachesReport(t *testing.T) {
	heights := &mockHeights{height: 1000}
	m := NewMonitor(heights, &stubWatermark{last: 988}, &stubStore{}, &stubDeposits{}, 12)

	first := m.CheckHealth(context.Background())
	heights.height = 5000
	second := m.CheckHealth(context.Background())

	if second.ChainHeight != first.ChainHeight {
		t.Errorf("expected cached height %d, got %d", first.ChainHeight, second.ChainHeight)
	}
}

func TestServer_Health(t *testing.T) {
	m := NewMonitor(&mockHeights{height: 1000}, &stubWatermark{last: 988},
		&stubStore{err: errors.New("down")}, &stubDeposits{}, 12)
	srv := httptest.NewServer(NewServer(m, 0).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != string(StatusCritical) {
		t.Errorf("unexpected body %v", body)
	}
}
