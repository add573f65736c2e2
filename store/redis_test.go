package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func redisStore(t *testing.T) *Redis {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return NewRedis(rdb)
}

func TestRedisRefreshLifecycle(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	s := redisStore(t)

	if err := s.Create(ctx, refreshFixture("d1", "u1", now)); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	row, err := s.Validate(ctx, "d1", now)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if row.UserID != "u1" {
		t.Fatalf("unexpected user %q", row.UserID)
	}
	if row.Digest != "d1" {
		t.Fatalf("unexpected digest %q", row.Digest)
	}

	if _, err := s.Validate(ctx, "missing", now); err != ErrTokenNotFound {
		t.Fatalf("expected ErrTokenNotFound, got %v", err)
	}
}

func TestRedisRotateRevokesRow(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	s := redisStore(t)

	if err := s.Create(ctx, refreshFixture("d1", "u1", now)); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	row, err := s.Rotate(ctx, "d1", now)
	if err != nil {
		t.Fatalf("rotate failed: %v", err)
	}
	if row.UserID != "u1" {
		t.Fatalf("unexpected user %q", row.UserID)
	}

	if _, err := s.Rotate(ctx, "d1", now); err != ErrTokenNotFound {
		t.Fatalf("second rotate expected ErrTokenNotFound, got %v", err)
	}
	if _, err := s.Validate(ctx, "d1", now); err != ErrTokenNotFound {
		t.Fatalf("validate after rotate expected ErrTokenNotFound, got %v", err)
	}
}

func TestRedisRotateSingleWinner(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	s := redisStore(t)

	if err := s.Create(ctx, refreshFixture("d1", "u1", now)); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	const workers = 16

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0

	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			if _, err := s.Rotate(ctx, "d1", now); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected exactly 1 winning rotate, got %d", wins)
	}
}

func TestRedisExpiredRotateBurnsRow(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	s := redisStore(t)

	if err := s.Create(ctx, refreshFixture("d1", "u1", now)); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	// The row outlives its Redis TTL only in the logical sense; a rotate
	// with a clock past ExpiresAt must refuse and burn it.
	late := now.Add(31 * 24 * time.Hour)
	if _, err := s.Rotate(ctx, "d1", late); err != ErrTokenNotFound {
		t.Fatalf("expired rotate expected ErrTokenNotFound, got %v", err)
	}
	if _, err := s.Rotate(ctx, "d1", now); err != ErrTokenNotFound {
		t.Fatalf("rotate after burn expected ErrTokenNotFound, got %v", err)
	}
}

func TestRedisExpiryBoundaryIsInclusive(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	s := redisStore(t)

	refresh := refreshFixture("d1", "u1", now)
	if err := s.Create(ctx, refresh); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	// expires_at == now counts as expired.
	if _, err := s.Validate(ctx, "d1", refresh.ExpiresAt); err != ErrTokenNotFound {
		t.Fatalf("row at its expiry instant should be dead: %v", err)
	}
	if _, err := s.Rotate(ctx, "d1", refresh.ExpiresAt); err != ErrTokenNotFound {
		t.Fatalf("rotate at the expiry instant should fail: %v", err)
	}

	oneTime := oneTimeFixture("o1", "u1", PurposeEmailVerify, now)
	if err := s.Issue(ctx, oneTime); err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if _, err := s.Consume(ctx, "o1", PurposeEmailVerify, oneTime.ExpiresAt); err != ErrTokenNotFound {
		t.Fatalf("one-time row at its expiry instant should be dead: %v", err)
	}
}

func TestRedisRevokeAllForUser(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	s := redisStore(t)

	for _, digest := range []string{"d1", "d2"} {
		if err := s.Create(ctx, refreshFixture(digest, "u1", now)); err != nil {
			t.Fatalf("create failed: %v", err)
		}
	}
	if err := s.Create(ctx, refreshFixture("other", "u2", now)); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if err := s.RevokeAllForUser(ctx, "u1"); err != nil {
		t.Fatalf("revoke all failed: %v", err)
	}

	for _, digest := range []string{"d1", "d2"} {
		if _, err := s.Validate(ctx, digest, now); err != ErrTokenNotFound {
			t.Fatalf("digest %s survived revoke all: %v", digest, err)
		}
	}
	if _, err := s.Validate(ctx, "other", now); err != nil {
		t.Fatalf("other user's row should survive: %v", err)
	}
}

func TestRedisConsumeExactlyOnce(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	s := redisStore(t)

	if err := s.Issue(ctx, oneTimeFixture("o1", "u1", PurposeEmailVerify, now)); err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	row, err := s.Consume(ctx, "o1", PurposeEmailVerify, now)
	if err != nil {
		t.Fatalf("consume failed: %v", err)
	}
	if row.UserID != "u1" {
		t.Fatalf("unexpected user %q", row.UserID)
	}

	if _, err := s.Consume(ctx, "o1", PurposeEmailVerify, now); err != ErrTokenNotFound {
		t.Fatalf("second consume expected ErrTokenNotFound, got %v", err)
	}
}

func TestRedisConsumeConcurrentSingleWinner(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	s := redisStore(t)

	if err := s.Issue(ctx, oneTimeFixture("o1", "u1", PurposePasswordReset, now)); err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	const workers = 16

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0

	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			if _, err := s.Consume(ctx, "o1", PurposePasswordReset, now); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected exactly 1 winning consume, got %d", wins)
	}
}

func TestRedisConsumePurposeMismatch(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	s := redisStore(t)

	if err := s.Issue(ctx, oneTimeFixture("o1", "u1", PurposeEmailVerify, now)); err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	if _, err := s.Consume(ctx, "o1", PurposePasswordReset, now); err != ErrTokenNotFound {
		t.Fatalf("cross-purpose consume expected ErrTokenNotFound, got %v", err)
	}
	if _, err := s.Consume(ctx, "o1", PurposeEmailVerify, now); err != nil {
		t.Fatalf("consume after mismatch failed: %v", err)
	}
}

func TestRedisConsumeExpiredBurnsRow(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	s := redisStore(t)

	if err := s.Issue(ctx, oneTimeFixture("o1", "u1", PurposeEmailVerify, now)); err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	late := now.Add(2 * time.Hour)
	if _, err := s.Consume(ctx, "o1", PurposeEmailVerify, late); err != ErrTokenNotFound {
		t.Fatalf("expired consume expected ErrTokenNotFound, got %v", err)
	}
	if _, err := s.Consume(ctx, "o1", PurposeEmailVerify, now); err != ErrTokenNotFound {
		t.Fatalf("retry after burn expected ErrTokenNotFound, got %v", err)
	}
}

func TestRedisIssueInvalidatesPriorPair(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	s := redisStore(t)

	if err := s.Issue(ctx, oneTimeFixture("o1", "u1", PurposeEmailVerify, now)); err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if err := s.Issue(ctx, oneTimeFixture("o2", "u1", PurposeEmailVerify, now)); err != nil {
		t.Fatalf("reissue failed: %v", err)
	}

	if _, err := s.Consume(ctx, "o1", PurposeEmailVerify, now); err != ErrTokenNotFound {
		t.Fatalf("superseded token should be dead, got %v", err)
	}
	if _, err := s.Consume(ctx, "o2", PurposeEmailVerify, now); err != nil {
		t.Fatalf("latest token failed to consume: %v", err)
	}
}

func TestRedisRecordRoundTrip(t *testing.T) {
	now := time.Unix(time.Now().Unix(), 0)

	refresh := RefreshToken{
		UserID:    "u1",
		ExpiresAt: now.Add(time.Hour),
		Revoked:   true,
		CreatedAt: now,
	}
	data, err := encodeRefreshRecord(&refresh)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	decoded, err := decodeRefreshRecord(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded.UserID != refresh.UserID || !decoded.Revoked || !decoded.ExpiresAt.Equal(refresh.ExpiresAt) {
		t.Fatalf("refresh record mismatch: %+v", decoded)
	}

	oneTime := OneTimeToken{
		UserID:    "u2",
		Purpose:   PurposePasswordReset,
		ExpiresAt: now.Add(time.Hour),
		CreatedAt: now,
	}
	data, err = encodeOneTimeRecord(&oneTime)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	decodedOT, err := decodeOneTimeRecord(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decodedOT.UserID != oneTime.UserID || decodedOT.Purpose != PurposePasswordReset || decodedOT.Used {
		t.Fatalf("one-time record mismatch: %+v", decodedOT)
	}

	if _, err := decodeRefreshRecord([]byte{99}); err == nil {
		t.Fatalf("bad version accepted")
	}
}
