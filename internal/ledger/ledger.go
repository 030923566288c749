// Package ledger guarantees that a settled payment is exchanged for a
// credential at most once. Records live in Redis under a TTL equal to the
// credential validity window; an exclusive-create write (SET NX) arbitrates
// concurrent redemptions so all callers converge on a single credential.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redeemKeyPrefix = "redeem:payment:"

// ErrVerifyUnavailable signals a transient provider failure: nothing is
// stored and the caller may retry.
var ErrVerifyUnavailable = errors.New("payment verification unavailable")

// NotSettledError is returned when the provider reports the payment as not
// completed. Nothing is stored; a later retry re-runs the full flow.
type NotSettledError struct {
	Status string
}

func (e *NotSettledError) Error() string {
	return fmt.Sprintf("payment not completed (status %q)", e.Status)
}

// Settlement is the provider's answer for a payment.
type Settlement struct {
	Settled bool
	Status  string
}

// VerifyFunc asks the payment provider whether a payment has settled.
type VerifyFunc func(ctx context.Context, paymentID string) (Settlement, error)

// IssueFunc mints a fresh credential. Pure under contract; a failure here is
// unexpected and treated as fatal for the request.
type IssueFunc func() (string, error)

// Ledger maps payment IDs to issued credentials.
type Ledger struct {
	rdb *redis.Client
	ttl time.Duration
	log *zap.Logger
}

func New(rdb *redis.Client, ttl time.Duration, log *zap.Logger) *Ledger {
	return &Ledger{rdb: rdb, ttl: ttl, log: log}
}

func redeemKey(paymentID string) string {
	return redeemKeyPrefix + paymentID
}

// Redeem exchanges a settled payment for a credential, idempotently.
//
// First call for a payment: verify settlement, mint, store with TTL. Every
// later call returns the stored credential without touching the verifier or
// the issuer again. Two racing first calls may both mint, but SET NX lets
// only one store; the loser discards its mint and returns the winner's
// credential.
func (l *Ledger) Redeem(ctx context.Context, paymentID string, verify VerifyFunc, issue IssueFunc) (string, error) {
	key := redeemKey(paymentID)

	existing, err := l.rdb.Get(ctx, key).Result()
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("ledger read %s: %w", paymentID, err)
	}

	settlement, err := verify(ctx, paymentID)
	if err != nil {
		l.log.Warn("payment verification failed",
			zap.String("payment", paymentID),
			zap.Error(err),
		)
		return "", fmt.Errorf("%w: %s", ErrVerifyUnavailable, paymentID)
	}
	if !settlement.Settled {
		return "", &NotSettledError{Status: settlement.Status}
	}

	token, err := issue()
	if err != nil {
		return "", fmt.Errorf("issue credential for %s: %w", paymentID, err)
	}

	stored, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return "", fmt.Errorf("ledger store %s: %w", paymentID, err)
	}
	if !stored {
		// Lost the race: another request stored first. Return its credential.
		winner, err := l.rdb.Get(ctx, key).Result()
		if err != nil {
			return "", fmt.Errorf("ledger read after lost race %s: %w", paymentID, err)
		}
		return winner, nil
	}

	l.log.Info("payment redeemed",
		zap.String("payment", paymentID),
		zap.Duration("ttl", l.ttl),
	)
	return token, nil
}
