// Package usage enforces the spend budget embedded in a credential. Counters
// live in Redis keyed by subject and expire at the end of the accounting
// window, so a "day" budget resets itself at UTC midnight.
package usage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/visaform/checkout-billing/internal/credential"
)

const (
	aiKeyPrefix      = "usage:ai:"
	computeKeyPrefix = "usage:compute:"
)

// ErrBudgetExhausted means the requested spend would exceed the credential's
// budget. Nothing is recorded in that case.
var ErrBudgetExhausted = errors.New("budget exhausted")

// Snapshot is the budget state reported to the bearer.
type Snapshot struct {
	Window          string `json:"window"`
	WindowStart     string `json:"windowStart"`
	ResetsAt        string `json:"resetsAt"`
	AIUnitsLimit    int64  `json:"aiUnitsLimit"`
	AIUnitsUsed     int64  `json:"aiUnitsUsed"`
	AIUnitsLeft     int64  `json:"aiUnitsRemaining"`
	ComputeSecLimit int64  `json:"computeSecondsLimit"`
	ComputeSecUsed  int64  `json:"computeSecondsUsed"`
	ComputeSecLeft  int64  `json:"computeSecondsRemaining"`
}

// Tracker records consumption against a credential's budget.
type Tracker struct {
	rdb *redis.Client
	now func() time.Time
}

func NewTracker(rdb *redis.Client) *Tracker {
	return &Tracker{rdb: rdb, now: time.Now}
}

// Spend records aiUnits and computeSeconds against the subject's counters.
// The whole request is refused if either dimension would go over budget.
func (t *Tracker) Spend(ctx context.Context, claims *credential.Claims, aiUnits, computeSeconds int64) error {
	if aiUnits < 0 || computeSeconds < 0 {
		return fmt.Errorf("negative spend (ai %d, compute %d)", aiUnits, computeSeconds)
	}
	sub := claims.Subject
	aiKey := aiKeyPrefix + sub
	computeKey := computeKeyPrefix + sub

	newAI, err := t.rdb.IncrBy(ctx, aiKey, aiUnits).Result()
	if err != nil {
		return fmt.Errorf("record ai spend: %w", err)
	}
	if newAI > claims.Budget.AIUnits {
		t.rdb.DecrBy(ctx, aiKey, aiUnits) //nolint:errcheck
		return fmt.Errorf("%w: ai units", ErrBudgetExhausted)
	}

	newCompute, err := t.rdb.IncrBy(ctx, computeKey, computeSeconds).Result()
	if err != nil {
		t.rdb.DecrBy(ctx, aiKey, aiUnits) //nolint:errcheck
		return fmt.Errorf("record compute spend: %w", err)
	}
	if newCompute > claims.Budget.ComputeSeconds {
		t.rdb.DecrBy(ctx, aiKey, aiUnits)             //nolint:errcheck
		t.rdb.DecrBy(ctx, computeKey, computeSeconds) //nolint:errcheck
		return fmt.Errorf("%w: compute seconds", ErrBudgetExhausted)
	}

	// Counters die with the window; the same absolute deadline is written on
	// every spend, so this is idempotent.
	deadline := t.windowEnd(claims)
	t.rdb.ExpireAt(ctx, aiKey, deadline)      //nolint:errcheck
	t.rdb.ExpireAt(ctx, computeKey, deadline) //nolint:errcheck
	return nil
}

// Snapshot reads the subject's counters without mutating them.
func (t *Tracker) Snapshot(ctx context.Context, claims *credential.Claims) (*Snapshot, error) {
	sub := claims.Subject
	aiUsed, err := t.counter(ctx, aiKeyPrefix+sub)
	if err != nil {
		return nil, err
	}
	computeUsed, err := t.counter(ctx, computeKeyPrefix+sub)
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		Window:          claims.Budget.Window,
		WindowStart:     claims.Budget.WindowStart,
		ResetsAt:        t.windowEnd(claims).UTC().Format(time.RFC3339),
		AIUnitsLimit:    claims.Budget.AIUnits,
		AIUnitsUsed:     aiUsed,
		AIUnitsLeft:     claims.Budget.AIUnits - aiUsed,
		ComputeSecLimit: claims.Budget.ComputeSeconds,
		ComputeSecUsed:  computeUsed,
		ComputeSecLeft:  claims.Budget.ComputeSeconds - computeUsed,
	}, nil
}

func (t *Tracker) counter(ctx context.Context, key string) (int64, error) {
	n, err := t.rdb.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read counter %s: %w", key, err)
	}
	return n, nil
}

// windowEnd is when the subject's counters reset: the next UTC midnight for a
// "day" window, the credential expiry for "lifetime".
func (t *Tracker) windowEnd(claims *credential.Claims) time.Time {
	if claims.Budget.Window == credential.WindowDay {
		y, m, d := t.now().UTC().Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)
	}
	return claims.ExpiresAt.Time
}
