package quota

import (
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/pario-ai/costdesk/pkg/apperr"
	"github.com/pario-ai/costdesk/pkg/localstore"
	"github.com/pario-ai/costdesk/pkg/models"
)

func setup(t *testing.T) (*localstore.Store, context.Context) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "quota_test.db")
	st, err := localstore.New(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	return st, context.Background()
}

func TestLimitsPerTier(t *testing.T) {
	for _, tc := range []struct {
		tier  models.Tier
		limit int
	}{
		{models.TierFree, 6},
		{models.TierPremium, 20},
	} {
		t.Run(string(tc.tier), func(t *testing.T) {
			st, ctx := setup(t)
			s := New(st, nil, nil)
			if err := s.SetTier(ctx, tc.tier); err != nil {
				t.Fatal(err)
			}

			for i := 1; i <= tc.limit; i++ {
				g, err := s.CheckAndConsume(ctx)
				if err != nil {
					t.Fatalf("consume %d: unexpected error %v", i, err)
				}
				if g.Count != i || g.Remaining != tc.limit-i {
					t.Fatalf("consume %d: got count=%d remaining=%d", i, g.Count, g.Remaining)
				}
			}

			_, err := s.CheckAndConsume(ctx)
			if !errors.Is(err, ErrQuotaExceeded) {
				t.Fatalf("expected ErrQuotaExceeded, got %v", err)
			}
			var ex *ExceededError
			if !errors.As(err, &ex) {
				t.Fatalf("expected *ExceededError, got %T", err)
			}
			if ex.Tier != tc.tier || ex.Limit != tc.limit {
				t.Errorf("expected %s/%d, got %s/%d", tc.tier, tc.limit, ex.Tier, ex.Limit)
			}
			if !apperr.Is(err, apperr.KindQuotaExceeded) {
				t.Error("expected quota_exceeded kind")
			}

			// The counter is not advanced past the limit.
			v, _, _ := st.Get(ctx, KeyQueryCount)
			if v != strconv.Itoa(tc.limit) {
				t.Errorf("expected stored count %d, got %s", tc.limit, v)
			}
		})
	}
}

func TestLastQueryWarning(t *testing.T) {
	st, ctx := setup(t)
	s := New(st, map[models.Tier]int{models.TierFree: 2}, nil)

	g, err := s.CheckAndConsume(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if g.LastQuery || g.Warning() != "" {
		t.Errorf("first query should not warn, got %q", g.Warning())
	}

	g, err = s.CheckAndConsume(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !g.LastQuery {
		t.Fatal("expected last query flag")
	}
	want := "⚠️ This is your last query in your free tier limit of 2 queries."
	if g.Warning() != want {
		t.Errorf("expected %q, got %q", want, g.Warning())
	}

	_, err = s.CheckAndConsume(ctx)
	if err == nil || err.Error() != "⚠️ You've reached your free tier limit of 2 queries." {
		t.Errorf("unexpected exceeded message: %v", err)
	}
}

func TestTierChangeResetsOnce(t *testing.T) {
	st, ctx := setup(t)
	s := New(st, nil, nil)

	for range 3 {
		if _, err := s.CheckAndConsume(ctx); err != nil {
			t.Fatal(err)
		}
	}

	if err := s.SetTier(ctx, models.TierPremium); err != nil {
		t.Fatal(err)
	}

	g, err := s.CheckAndConsume(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if g.Tier != models.TierPremium || g.Count != 1 {
		t.Errorf("expected reset then count 1 on premium, got %s/%d", g.Tier, g.Count)
	}

	// Unchanged tier: no further resets.
	g, err = s.CheckAndConsume(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if g.Count != 2 {
		t.Errorf("expected count 2, got %d", g.Count)
	}

	state, err := s.Observe(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if state.Count != 2 {
		t.Errorf("observe should not reset an unchanged tier, got %d", state.Count)
	}
}

func TestFirstLoadRecordsBaseline(t *testing.T) {
	st, ctx := setup(t)
	_ = st.Set(ctx, KeySubscribed, "true")
	_ = st.Set(ctx, KeyQueryCount, "5")

	s := New(st, nil, nil)
	state, err := s.Observe(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if state.Count != 5 || state.Tier != models.TierPremium || state.Limit != 20 {
		t.Errorf("unexpected state %+v", state)
	}
	last, ok, _ := st.Get(ctx, KeyLastSubscriptionStatus)
	if !ok || last != "true" {
		t.Errorf("expected baseline recorded, got %q ok=%v", last, ok)
	}
}

func TestFreshStoreInitialisesCounter(t *testing.T) {
	st, ctx := setup(t)
	s := New(st, nil, nil)

	state, err := s.Observe(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if state.Count != 0 || state.Tier != models.TierFree || state.Limit != 6 {
		t.Errorf("unexpected state %+v", state)
	}
	v, ok, _ := st.Get(ctx, KeyQueryCount)
	if !ok || v != "0" {
		t.Errorf("expected queryCount initialised to 0, got %q", v)
	}
}

func TestUnparsableCountTreatedAsZero(t *testing.T) {
	st, ctx := setup(t)
	_ = st.Set(ctx, KeyQueryCount, "lots")

	s := New(st, nil, nil)
	g, err := s.CheckAndConsume(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if g.Count != 1 {
		t.Errorf("expected count 1, got %d", g.Count)
	}
}

func TestReset(t *testing.T) {
	st, ctx := setup(t)
	s := New(st, nil, nil)
	_, _ = s.CheckAndConsume(ctx)
	_, _ = s.CheckAndConsume(ctx)

	if err := s.Reset(ctx); err != nil {
		t.Fatal(err)
	}
	state, _ := s.Observe(ctx)
	if state.Count != 0 {
		t.Errorf("expected 0 after reset, got %d", state.Count)
	}
}
