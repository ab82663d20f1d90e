package quota

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/pario-ai/costdesk/pkg/apperr"
	"github.com/pario-ai/costdesk/pkg/logging"
	"github.com/pario-ai/costdesk/pkg/models"
)

// Keys written to the local store. The names match what the web page kept in
// localStorage so existing exports stay readable.
const (
	KeyQueryCount             = "queryCount"
	KeySubscribed             = "subscribed"
	KeyLastSubscriptionStatus = "lastSubscriptionStatus"
)

// ErrQuotaExceeded is matched by every *ExceededError.
var ErrQuotaExceeded = errors.New("query quota exceeded")

// ExceededError is returned when the tier limit has already been reached.
type ExceededError struct {
	Tier  models.Tier
	Limit int
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("⚠️ You've reached your %s tier limit of %d queries.", e.Tier, e.Limit)
}

// Is makes errors.Is(err, ErrQuotaExceeded) work.
func (e *ExceededError) Is(target error) bool {
	return target == ErrQuotaExceeded
}

// ErrorKind classifies the error for adapters.
func (e *ExceededError) ErrorKind() apperr.Kind {
	return apperr.KindQuotaExceeded
}

// Store is the persisted flag storage the session reads and writes.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// DefaultLimits are the per-tier query limits.
func DefaultLimits() map[models.Tier]int {
	return map[models.Tier]int{
		models.TierFree:    6,
		models.TierPremium: 20,
	}
}

// Session gates chat requests behind the per-installation query quota.
type Session struct {
	mu     sync.Mutex
	store  Store
	limits map[models.Tier]int
	log    *zap.Logger
}

// New creates a Session. Missing tiers in limits fall back to DefaultLimits.
func New(store Store, limits map[models.Tier]int, log *zap.Logger) *Session {
	merged := DefaultLimits()
	for tier, limit := range limits {
		if limit > 0 {
			merged[tier] = limit
		}
	}
	return &Session{store: store, limits: merged, log: logging.OrNop(log)}
}

// CheckAndConsume admits and counts one query, or returns *ExceededError
// without touching the counter when the limit is already reached.
func (s *Session) CheckAndConsume(ctx context.Context) (models.QuotaGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.observe(ctx)
	if err != nil {
		return models.QuotaGrant{}, err
	}

	if state.Count >= state.Limit {
		s.log.Info("quota exhausted", zap.String("tier", string(state.Tier)), zap.Int("limit", state.Limit))
		return models.QuotaGrant{}, &ExceededError{Tier: state.Tier, Limit: state.Limit}
	}

	state.Count++
	if err := s.store.Set(ctx, KeyQueryCount, strconv.Itoa(state.Count)); err != nil {
		return models.QuotaGrant{}, fmt.Errorf("quota consume: %w", err)
	}

	return models.QuotaGrant{
		Tier:      state.Tier,
		Limit:     state.Limit,
		Count:     state.Count,
		Remaining: state.Remaining(),
		LastQuery: state.Count == state.Limit,
	}, nil
}

// Observe runs the load-time subscription check and returns the current state.
func (s *Session) Observe(ctx context.Context) (models.QuotaState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.observe(ctx)
}

// Status reads the current state without writing anything.
func (s *Session) Status(ctx context.Context) (models.QuotaState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	subscribed, _, err := s.store.Get(ctx, KeySubscribed)
	if err != nil {
		return models.QuotaState{}, fmt.Errorf("quota read tier: %w", err)
	}
	tier := models.TierFree
	if subscribed == "true" {
		tier = models.TierPremium
	}
	raw, _, err := s.store.Get(ctx, KeyQueryCount)
	if err != nil {
		return models.QuotaState{}, fmt.Errorf("quota read count: %w", err)
	}
	count, err := strconv.Atoi(raw)
	if err != nil || count < 0 {
		count = 0
	}
	return models.QuotaState{Tier: tier, Count: count, Limit: s.limits[tier]}, nil
}

// SetTier records the subscription flag. The counter is reset on the next
// observation, not here.
func (s *Session) SetTier(ctx context.Context, tier models.Tier) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Set(ctx, KeySubscribed, strconv.FormatBool(tier == models.TierPremium)); err != nil {
		return fmt.Errorf("set tier: %w", err)
	}
	return nil
}

// Reset zeroes the query counter.
func (s *Session) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Set(ctx, KeyQueryCount, "0"); err != nil {
		return fmt.Errorf("reset quota: %w", err)
	}
	return nil
}

// observe must be called with mu held.
func (s *Session) observe(ctx context.Context) (models.QuotaState, error) {
	subscribed, _, err := s.store.Get(ctx, KeySubscribed)
	if err != nil {
		return models.QuotaState{}, fmt.Errorf("quota read tier: %w", err)
	}
	premium := subscribed == "true"
	tier := models.TierFree
	if premium {
		tier = models.TierPremium
	}

	raw, ok, err := s.store.Get(ctx, KeyQueryCount)
	if err != nil {
		return models.QuotaState{}, fmt.Errorf("quota read count: %w", err)
	}
	if !ok {
		raw = "0"
		if err := s.store.Set(ctx, KeyQueryCount, raw); err != nil {
			return models.QuotaState{}, fmt.Errorf("quota init count: %w", err)
		}
	}
	count, err := strconv.Atoi(raw)
	if err != nil || count < 0 {
		count = 0
	}

	last, seen, err := s.store.Get(ctx, KeyLastSubscriptionStatus)
	if err != nil {
		return models.QuotaState{}, fmt.Errorf("quota read last tier: %w", err)
	}
	// No baseline on the very first load: record it without resetting.
	if seen && (last == "true") != premium {
		s.log.Info("subscription changed, resetting query count",
			zap.String("tier", string(tier)), zap.Int("previous_count", count))
		count = 0
		if err := s.store.Set(ctx, KeyQueryCount, "0"); err != nil {
			return models.QuotaState{}, fmt.Errorf("quota reset count: %w", err)
		}
	}
	if !seen || last != strconv.FormatBool(premium) {
		if err := s.store.Set(ctx, KeyLastSubscriptionStatus, strconv.FormatBool(premium)); err != nil {
			return models.QuotaState{}, fmt.Errorf("quota record tier: %w", err)
		}
	}

	return models.QuotaState{Tier: tier, Count: count, Limit: s.limits[tier]}, nil
}
