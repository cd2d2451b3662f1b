package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	idempotencyKeyPrefix  = "careplus:dispatch:idem:"
	idempotencyInFlight   = "in_flight"
	defaultIdempotencyTTL = 24 * time.Hour
	// A reservation only has to outlive one provider call.
	defaultInFlightTTL   = 2 * time.Minute
	maxIdempotencyKeyLen = 200
)

var (
	// ErrInFlight means another request holding the same key has not finished.
	ErrInFlight = errors.New("dispatch: request with this idempotency key is in progress")
	// ErrInvalidIdempotencyKey is returned for keys that are empty or too long.
	ErrInvalidIdempotencyKey = errors.New("dispatch: invalid idempotency key")
	// ErrIdempotencyMismatch means the key was first used with a different request.
	ErrIdempotencyMismatch = errors.New("dispatch: idempotency key was used with a different request")
)

// StoredResponse is the envelope replayed for a repeated Idempotency-Key.
type StoredResponse struct {
	Status      int             `json:"status"`
	Body        json.RawMessage `json:"body"`
	Fingerprint string          `json:"fingerprint,omitempty"`
}

// IdempotencyGuard reserves Idempotency-Key values in Redis so a retried call does not send twice.
type IdempotencyGuard struct {
	client      redis.Cmdable
	ttl         time.Duration
	inFlightTTL time.Duration
}

func NewIdempotencyGuard(client redis.Cmdable, ttl time.Duration) *IdempotencyGuard {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}
	inFlight := defaultInFlightTTL
	if ttl < inFlight {
		inFlight = ttl
	}
	return &IdempotencyGuard{client: client, ttl: ttl, inFlightTTL: inFlight}
}

func redisKey(key string) string {
	return idempotencyKeyPrefix + key
}

func normalizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" || len(key) > maxIdempotencyKeyLen {
		return "", ErrInvalidIdempotencyKey
	}
	return key, nil
}

// Begin reserves key for the request identified by fingerprint. It returns the stored
// response when the key already completed, ErrInFlight when it is still reserved,
// ErrIdempotencyMismatch when the key belongs to another request, and (nil, nil)
// when the caller now owns it.
func (g *IdempotencyGuard) Begin(ctx context.Context, key, fingerprint string) (*StoredResponse, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return nil, err
	}
	marker := inFlightMarker(fingerprint)
	ok, err := g.client.SetNX(ctx, redisKey(key), marker, g.inFlightTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("dispatch: reserve idempotency key: %w", err)
	}
	if ok {
		return nil, nil
	}

	raw, err := g.client.Get(ctx, redisKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET
		if ok, err := g.client.SetNX(ctx, redisKey(key), marker, g.inFlightTTL).Result(); err == nil && ok {
			return nil, nil
		}
		return nil, ErrInFlight
	}
	if err != nil {
		return nil, fmt.Errorf("dispatch: read idempotency key: %w", err)
	}
	if owner, reserved := parseInFlight(raw); reserved {
		if !sameFingerprint(owner, fingerprint) {
			return nil, ErrIdempotencyMismatch
		}
		return nil, ErrInFlight
	}
	var stored StoredResponse
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return nil, fmt.Errorf("dispatch: decode stored response: %w", err)
	}
	if !sameFingerprint(stored.Fingerprint, fingerprint) {
		return nil, ErrIdempotencyMismatch
	}
	return &stored, nil
}

func inFlightMarker(fingerprint string) string {
	if fingerprint == "" {
		return idempotencyInFlight
	}
	return idempotencyInFlight + ":" + fingerprint
}

func parseInFlight(raw string) (string, bool) {
	if raw == idempotencyInFlight {
		return "", true
	}
	if fp, ok := strings.CutPrefix(raw, idempotencyInFlight+":"); ok {
		return fp, true
	}
	return "", false
}

// sameFingerprint treats a missing fingerprint on either side as a match.
func sameFingerprint(stored, current string) bool {
	return stored == "" || current == "" || stored == current
}

// Complete stores the final response under key.
func (g *IdempotencyGuard) Complete(ctx context.Context, key string, resp StoredResponse) error {
	key, err := normalizeKey(key)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("dispatch: encode stored response: %w", err)
	}
	if err := g.client.Set(ctx, redisKey(key), payload, g.ttl).Err(); err != nil {
		return fmt.Errorf("dispatch: store idempotency key: %w", err)
	}
	return nil
}

// Release drops a reservation so the caller can retry.
func (g *IdempotencyGuard) Release(ctx context.Context, key string) error {
	key, err := normalizeKey(key)
	if err != nil {
		return err
	}
	if err := g.client.Del(ctx, redisKey(key)).Err(); err != nil {
		return fmt.Errorf("dispatch: release idempotency key: %w", err)
	}
	return nil
}
