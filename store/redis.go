package store

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix  = "ga"
	recordVersionV1 = 1
	casMaxRetries   = 4
)

// Redis implements [RefreshStore] and [OneTimeStore] on a Redis backend.
// Rotate, Consume, and Issue run under WATCH so the validate-and-mutate step
// is a compare-and-set; concurrent callers retry on conflict and at most one
// wins.
type Redis struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedis describes the newredis operation and its observable behavior.
//
// NewRedis may return an error when input validation, dependency calls, or security checks fail.
// NewRedis does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{
		redis:  client,
		prefix: redisKeyPrefix,
	}
}

func (s *Redis) refreshKey(digest string) string {
	return s.prefix + ":rt:" + digest
}

func (s *Redis) refreshUserKey(userID string) string {
	return s.prefix + ":rtu:" + userID
}

func (s *Redis) oneTimeKey(digest string) string {
	return s.prefix + ":ot:" + digest
}

func (s *Redis) pairKey(userID string, purpose Purpose) string {
	return s.prefix + ":otp:" + userID + ":" + string(purpose)
}

// Create describes the create operation and its observable behavior.
//
// Create may return an error when input validation, dependency calls, or security checks fail.
// Create does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Redis) Create(ctx context.Context, token RefreshToken) error {
	encoded, err := encodeRefreshRecord(&token)
	if err != nil {
		return err
	}

	ttl := time.Until(token.ExpiresAt)
	if ttl <= 0 {
		return ErrTokenNotFound
	}

	pipe := s.redis.TxPipeline()
	pipe.Set(ctx, s.refreshKey(token.Digest), encoded, ttl)
	pipe.SAdd(ctx, s.refreshUserKey(token.UserID), token.Digest)
	pipe.Expire(ctx, s.refreshUserKey(token.UserID), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return nil
}

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
// Validate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Redis) Validate(ctx context.Context, digest string, now time.Time) (RefreshToken, error) {
	data, err := s.redis.Get(ctx, s.refreshKey(digest)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return RefreshToken{}, ErrTokenNotFound
		}
		return RefreshToken{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	record, err := decodeRefreshRecord(data)
	if err != nil {
		return RefreshToken{}, err
	}
	record.Digest = digest
	if record.Revoked || !now.Before(record.ExpiresAt) {
		return RefreshToken{}, ErrTokenNotFound
	}

	return *record, nil
}

// Rotate describes the rotate operation and its observable behavior.
//
// Rotate may return an error when input validation, dependency calls, or security checks fail.
// Rotate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Redis) Rotate(ctx context.Context, digest string, now time.Time) (RefreshToken, error) {
	key := s.refreshKey(digest)

	for i := 0; i < casMaxRetries; i++ {
		var matched *RefreshToken

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodeRefreshRecord(data)
			if err != nil {
				return err
			}
			record.Digest = digest

			if record.Revoked {
				return ErrTokenNotFound
			}

			if !now.Before(record.ExpiresAt) {
				record.Revoked = true
				if err := s.writeRefreshLocked(ctx, tx, key, record); err != nil {
					return err
				}
				return ErrTokenNotFound
			}

			record.Revoked = true
			if err := s.writeRefreshLocked(ctx, tx, key, record); err != nil {
				return err
			}

			matched = record
			return nil
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, redis.Nil), errors.Is(err, ErrTokenNotFound):
				return RefreshToken{}, ErrTokenNotFound
			default:
				return RefreshToken{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
			}
		}

		return *matched, nil
	}

	return RefreshToken{}, ErrTokenNotFound
}

// Revoke describes the revoke operation and its observable behavior.
//
// Revoke may return an error when input validation, dependency calls, or security checks fail.
// Revoke does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Redis) Revoke(ctx context.Context, userID, digest string) error {
	key := s.refreshKey(digest)

	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	record, err := decodeRefreshRecord(data)
	if err != nil {
		return err
	}
	if record.UserID != userID || record.Revoked {
		return nil
	}
	record.Digest = digest
	record.Revoked = true

	ttl := time.Until(record.ExpiresAt)
	if ttl <= 0 {
		if err := s.redis.Del(ctx, key).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return nil
	}

	encoded, err := encodeRefreshRecord(record)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, key, encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return nil
}

// RevokeAllForUser describes the revokeallforuser operation and its observable behavior.
//
// RevokeAllForUser may return an error when input validation, dependency calls, or security checks fail.
// RevokeAllForUser does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Redis) RevokeAllForUser(ctx context.Context, userID string) error {
	digests, err := s.redis.SMembers(ctx, s.refreshUserKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	for _, digest := range digests {
		if err := s.Revoke(ctx, userID, digest); err != nil {
			return err
		}
	}

	if err := s.redis.Del(ctx, s.refreshUserKey(userID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return nil
}

// Issue describes the issue operation and its observable behavior.
//
// Issue may return an error when input validation, dependency calls, or security checks fail.
// Issue does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Redis) Issue(ctx context.Context, token OneTimeToken) error {
	encoded, err := encodeOneTimeRecord(&token)
	if err != nil {
		return err
	}

	ttl := time.Until(token.ExpiresAt)
	if ttl <= 0 {
		return ErrTokenNotFound
	}

	pair := s.pairKey(token.UserID, token.Purpose)

	for i := 0; i < casMaxRetries; i++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			prior, err := tx.Get(ctx, pair).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				if prior != "" {
					pipe.Del(ctx, s.oneTimeKey(prior))
				}
				pipe.Set(ctx, s.oneTimeKey(token.Digest), encoded, ttl)
				pipe.Set(ctx, pair, token.Digest, ttl)
				return nil
			})
			return err
		}, pair)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}

		return nil
	}

	return fmt.Errorf("%w: issue contention not resolved", ErrUnavailable)
}

// Consume describes the consume operation and its observable behavior.
//
// Consume may return an error when input validation, dependency calls, or security checks fail.
// Consume does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Redis) Consume(ctx context.Context, digest string, purpose Purpose, now time.Time) (OneTimeToken, error) {
	key := s.oneTimeKey(digest)

	for i := 0; i < casMaxRetries; i++ {
		var matched *OneTimeToken

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodeOneTimeRecord(data)
			if err != nil {
				return err
			}
			record.Digest = digest

			if record.Used || record.Purpose != purpose {
				return ErrTokenNotFound
			}

			// Burn the row whether valid or expired; a digest never
			// consumes twice.
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				pipe.Del(ctx, s.pairKey(record.UserID, record.Purpose))
				return nil
			})
			if err != nil {
				return err
			}

			if !now.Before(record.ExpiresAt) {
				return ErrTokenNotFound
			}

			matched = record
			return nil
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, redis.Nil), errors.Is(err, ErrTokenNotFound):
				return OneTimeToken{}, ErrTokenNotFound
			default:
				return OneTimeToken{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
			}
		}

		return *matched, nil
	}

	return OneTimeToken{}, ErrTokenNotFound
}

func (s *Redis) writeRefreshLocked(ctx context.Context, tx *redis.Tx, key string, record *RefreshToken) error {
	ttl := time.Until(record.ExpiresAt)
	if ttl <= 0 {
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			return nil
		})
		return err
	}

	encoded, err := encodeRefreshRecord(record)
	if err != nil {
		return err
	}

	_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, encoded, ttl)
		return nil
	})
	return err
}

/*
====================================
RECORD CODECS
====================================
*/

func encodeRefreshRecord(record *RefreshToken) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(recordVersionV1)
	buf.WriteByte(boolByte(record.Revoked))

	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt.Unix()); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.CreatedAt.Unix()); err != nil {
		return nil, err
	}

	if err := writeString(&buf, record.UserID); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func decodeRefreshRecord(data []byte) (*RefreshToken, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != recordVersionV1 {
		return nil, errors.New("invalid refresh record version")
	}

	revoked, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}

	record := &RefreshToken{Revoked: revoked != 0}

	var expiresAt, createdAt int64
	if err := binary.Read(reader, binary.BigEndian, &expiresAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &createdAt); err != nil {
		return nil, err
	}
	record.ExpiresAt = time.Unix(expiresAt, 0)
	record.CreatedAt = time.Unix(createdAt, 0)

	record.UserID, err = readString(reader)
	if err != nil {
		return nil, err
	}

	return record, nil
}

func encodeOneTimeRecord(record *OneTimeToken) ([]byte, error) {
	purpose, err := purposeByte(record.Purpose)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer

	buf.WriteByte(recordVersionV1)
	buf.WriteByte(boolByte(record.Used))
	buf.WriteByte(purpose)

	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt.Unix()); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.CreatedAt.Unix()); err != nil {
		return nil, err
	}

	if err := writeString(&buf, record.UserID); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func decodeOneTimeRecord(data []byte) (*OneTimeToken, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != recordVersionV1 {
		return nil, errors.New("invalid one-time record version")
	}

	used, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	purposeRaw, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	purpose, err := bytePurpose(purposeRaw)
	if err != nil {
		return nil, err
	}

	record := &OneTimeToken{Used: used != 0, Purpose: purpose}

	var expiresAt, createdAt int64
	if err := binary.Read(reader, binary.BigEndian, &expiresAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &createdAt); err != nil {
		return nil, err
	}
	record.ExpiresAt = time.Unix(expiresAt, 0)
	record.CreatedAt = time.Unix(createdAt, 0)

	record.UserID, err = readString(reader)
	if err != nil {
		return nil, err
	}

	return record, nil
}

func writeString(buf *bytes.Buffer, s string) error {
	if len(s) > 65535 {
		return errors.New("record string too long")
	}
	if err := binary.Write(buf, binary.BigEndian, uint16(len(s))); err != nil {
		return err
	}
	buf.WriteString(s)
	return nil
}

func readString(reader *bytes.Reader) (string, error) {
	var length uint16
	if err := binary.Read(reader, binary.BigEndian, &length); err != nil {
		return "", err
	}

	raw := make([]byte, length)
	if _, err := io.ReadFull(reader, raw); err != nil {
		return "", err
	}
	return string(raw), nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func purposeByte(p Purpose) (byte, error) {
	switch p {
	case PurposeEmailVerify:
		return 1, nil
	case PurposePasswordReset:
		return 2, nil
	default:
		return 0, errors.New("unknown token purpose")
	}
}

func bytePurpose(b byte) (Purpose, error) {
	switch b {
	case 1:
		return PurposeEmailVerify, nil
	case 2:
		return PurposePasswordReset, nil
	default:
		return "", errors.New("unknown token purpose")
	}
}
