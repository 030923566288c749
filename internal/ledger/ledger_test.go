package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func newTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return rdb, mr
}

func alwaysSettled(context.Context, string) (Settlement, error) {
	return Settlement{Settled: true, Status: "succeeded"}, nil
}

func fixedIssue(token string) IssueFunc {
	return func() (string, error) { return token, nil }
}

// ── Idempotent redemption ─────────────────────────────────────────────────────

func TestRedeem_FirstCall_MintsAndStores(t *testing.T) {
	rdb, mr := newTestRedis(t)
	l := New(rdb, 7*24*time.Hour, zap.NewNop())

	got, err := l.Redeem(context.Background(), "pay_A", alwaysSettled, fixedIssue("tok1"))
	if err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	if got != "tok1" {
		t.Errorf("token: got %q want tok1", got)
	}

	stored, err := mr.Get("redeem:payment:pay_A")
	if err != nil {
		t.Fatalf("stored record: %v", err)
	}
	if stored != "tok1" {
		t.Errorf("stored: got %q want tok1", stored)
	}
}

func TestRedeem_SecondCall_ReturnsStored_WithoutVerifyOrIssue(t *testing.T) {
	rdb, _ := newTestRedis(t)
	l := New(rdb, 7*24*time.Hour, zap.NewNop())
	ctx := context.Background()

	var verifyCalls, issueCalls int32
	verify := func(context.Context, string) (Settlement, error) {
		atomic.AddInt32(&verifyCalls, 1)
		return Settlement{Settled: true, Status: "succeeded"}, nil
	}
	issue := func() (string, error) {
		n := atomic.AddInt32(&issueCalls, 1)
		return fmt.Sprintf("tok%d", n), nil
	}

	first, err := l.Redeem(ctx, "pay_A", verify, issue)
	if err != nil {
		t.Fatal(err)
	}
	second, err := l.Redeem(ctx, "pay_A", verify, issue)
	if err != nil {
		t.Fatal(err)
	}

	if first != "tok1" || second != "tok1" {
		t.Errorf("expected tok1 both times, got %q then %q", first, second)
	}
	if n := atomic.LoadInt32(&verifyCalls); n != 1 {
		t.Errorf("verifyFn calls: got %d want 1", n)
	}
	if n := atomic.LoadInt32(&issueCalls); n != 1 {
		t.Errorf("issueFn calls: got %d want 1", n)
	}
}

func TestRedeem_RecordHasTTL(t *testing.T) {
	rdb, mr := newTestRedis(t)
	ttl := 7 * 24 * time.Hour
	l := New(rdb, ttl, zap.NewNop())

	if _, err := l.Redeem(context.Background(), "pay_ttl", alwaysSettled, fixedIssue("tok")); err != nil {
		t.Fatal(err)
	}
	if got := mr.TTL("redeem:payment:pay_ttl"); got != ttl {
		t.Errorf("TTL: got %v want %v", got, ttl)
	}
}

func TestRedeem_RecordExpires(t *testing.T) {
	rdb, mr := newTestRedis(t)
	l := New(rdb, time.Minute, zap.NewNop())
	ctx := context.Background()

	if _, err := l.Redeem(ctx, "pay_exp", alwaysSettled, fixedIssue("tok-old")); err != nil {
		t.Fatal(err)
	}

	mr.FastForward(2 * time.Minute)

	// Record purged: the full flow runs again and a new credential is minted.
	got, err := l.Redeem(ctx, "pay_exp", alwaysSettled, fixedIssue("tok-new"))
	if err != nil {
		t.Fatal(err)
	}
	if got != "tok-new" {
		t.Errorf("token after expiry: got %q want tok-new", got)
	}
}

// ── Unsettled / failing verification ─────────────────────────────────────────

func TestRedeem_NotSettled_NothingStored_Retryable(t *testing.T) {
	rdb, mr := newTestRedis(t)
	l := New(rdb, time.Hour, zap.NewNop())
	ctx := context.Background()

	var verifyCalls int32
	notSettled := func(context.Context, string) (Settlement, error) {
		atomic.AddInt32(&verifyCalls, 1)
		return Settlement{Settled: false, Status: "requires_payment_method"}, nil
	}

	_, err := l.Redeem(ctx, "pay_B", notSettled, fixedIssue("never"))
	var nse *NotSettledError
	if !errors.As(err, &nse) {
		t.Fatalf("expected NotSettledError, got %v", err)
	}
	if nse.Status != "requires_payment_method" {
		t.Errorf("status: got %q", nse.Status)
	}
	if mr.Exists("redeem:payment:pay_B") {
		t.Error("negative result must not be stored")
	}

	// Retry re-invokes the verifier (no caching of negative results), and a
	// now-settled payment redeems normally.
	if _, err := l.Redeem(ctx, "pay_B", notSettled, fixedIssue("never")); err == nil {
		t.Fatal("expected second not-settled failure")
	}
	if n := atomic.LoadInt32(&verifyCalls); n != 2 {
		t.Errorf("verifyFn calls: got %d want 2", n)
	}

	got, err := l.Redeem(ctx, "pay_B", alwaysSettled, fixedIssue("tok3"))
	if err != nil {
		t.Fatalf("redeem after settlement: %v", err)
	}
	if got != "tok3" {
		t.Errorf("token: got %q want tok3", got)
	}
}

func TestRedeem_VerifierError_Transient_NothingStored(t *testing.T) {
	rdb, mr := newTestRedis(t)
	l := New(rdb, time.Hour, zap.NewNop())

	failing := func(context.Context, string) (Settlement, error) {
		return Settlement{}, errors.New("connection refused")
	}
	_, err := l.Redeem(context.Background(), "pay_C", failing, fixedIssue("never"))
	if !errors.Is(err, ErrVerifyUnavailable) {
		t.Fatalf("expected ErrVerifyUnavailable, got %v", err)
	}
	if mr.Exists("redeem:payment:pay_C") {
		t.Error("transient failure must not be stored")
	}
}

func TestRedeem_IssueError_Fatal_NothingStored(t *testing.T) {
	rdb, mr := newTestRedis(t)
	l := New(rdb, time.Hour, zap.NewNop())

	broken := func() (string, error) { return "", errors.New("boom") }
	_, err := l.Redeem(context.Background(), "pay_D", alwaysSettled, broken)
	if err == nil {
		t.Fatal("expected issue failure")
	}
	if mr.Exists("redeem:payment:pay_D") {
		t.Error("failed mint must not be stored")
	}
}

// ── Concurrency ───────────────────────────────────────────────────────────────

func TestRedeem_Concurrent_SingleCredentialWins(t *testing.T) {
	rdb, mr := newTestRedis(t)
	l := New(rdb, time.Hour, zap.NewNop())
	ctx := context.Background()

	const n = 10
	var seq int32
	uniqueIssue := func() (string, error) {
		return fmt.Sprintf("tok-%d", atomic.AddInt32(&seq, 1)), nil
	}

	var wg sync.WaitGroup
	results := make([]string, n)
	errs := make([]error, n)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i], errs[i] = l.Redeem(ctx, "pay_race", alwaysSettled, uniqueIssue)
		}(i)
	}
	close(start)
	wg.Wait()

	stored, err := mr.Get("redeem:payment:pay_race")
	if err != nil {
		t.Fatalf("stored record: %v", err)
	}
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if results[i] != stored {
			t.Errorf("caller %d observed %q, stored is %q", i, results[i], stored)
		}
	}
}

func TestRedeem_ReadDoesNotRefreshTTL(t *testing.T) {
	rdb, mr := newTestRedis(t)
	l := New(rdb, time.Hour, zap.NewNop())
	ctx := context.Background()

	if _, err := l.Redeem(ctx, "pay_ro", alwaysSettled, fixedIssue("tok")); err != nil {
		t.Fatal(err)
	}
	mr.FastForward(30 * time.Minute)
	if _, err := l.Redeem(ctx, "pay_ro", alwaysSettled, fixedIssue("tok2")); err != nil {
		t.Fatal(err)
	}
	if got := mr.TTL("redeem:payment:pay_ro"); got != 30*time.Minute {
		t.Errorf("TTL after replay read: got %v want 30m (reads must not mutate)", got)
	}
}
