package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	apperrors "bikeshare/pkg/errors"
	httputil "bikeshare/pkg/http"
	"bikeshare/pkg/logger"

	"github.com/redis/go-redis/v9"
)

const (
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderReplayed       = "Idempotent-Replayed"

	idempotencyPrefix = "idempotency:"
	inFlightTTL       = 30 * time.Second
)

type CachedResponse struct {
	StatusCode int         `json:"status_code"`
	Headers    http.Header `json:"headers"`
	Body       []byte      `json:"body"`
	CreatedAt  time.Time   `json:"created_at"`
}

// RedisIdempotencyStore keeps successful responses in Redis for ttl and
// marks keys whose first request is still running.
type RedisIdempotencyStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisIdempotencyStore(client *redis.Client, ttl time.Duration) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{client: client, ttl: ttl}
}

func (s *RedisIdempotencyStore) Get(ctx context.Context, key string) (*CachedResponse, bool, error) {
	data, err := s.client.Get(ctx, idempotencyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read idempotency key: %w", err)
	}

	var cached CachedResponse
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached response: %w", err)
	}
	return &cached, true, nil
}

func (s *RedisIdempotencyStore) Set(ctx context.Context, key string, response *CachedResponse) error {
	response.CreatedAt = time.Now().UTC()
	data, err := json.Marshal(response)
	if err != nil {
		return fmt.Errorf("failed to encode cached response: %w", err)
	}
	return s.client.Set(ctx, idempotencyPrefix+key, data, s.ttl).Err()
}

// Begin claims key for a running request. It reports false when another
// request with the same key is still in flight.
func (s *RedisIdempotencyStore) Begin(ctx context.Context, key string) (bool, error) {
	ok, err := s.client.SetNX(ctx, idempotencyPrefix+key+":lock", "1", inFlightTTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim idempotency key: %w", err)
	}
	return ok, nil
}

func (s *RedisIdempotencyStore) End(ctx context.Context, key string) error {
	return s.client.Del(ctx, idempotencyPrefix+key+":lock").Err()
}

type responseCapture struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
}

func (rc *responseCapture) WriteHeader(statusCode int) {
	rc.statusCode = statusCode
	rc.ResponseWriter.WriteHeader(statusCode)
}

func (rc *responseCapture) Write(b []byte) (int, error) {
	rc.body.Write(b)
	return rc.ResponseWriter.Write(b)
}

// Idempotency replays the stored 2xx response of a POST that repeats an
// Idempotency-Key of the same requester. Keys are scoped per requester and
// path. Store failures fall through to the handler.
func Idempotency(store *RedisIdempotencyStore, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get(HeaderIdempotencyKey)
			if header == "" || r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			key := r.Header.Get(HeaderUserID) + ":" + r.URL.Path + ":" + header
			log := log.With("request_id", RequestID(ctx), "idempotency_key", header)

			cached, found, err := store.Get(ctx, key)
			if err != nil {
				log.Warn("Idempotency lookup failed", "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if found {
				log.Info("Replaying idempotent response", "status", cached.StatusCode)
				replay(w, cached)
				return
			}

			claimed, err := store.Begin(ctx, key)
			if err != nil {
				log.Warn("Idempotency claim failed", "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if !claimed {
				_ = httputil.WriteError(w, apperrors.Conflict("A request with this Idempotency-Key is in progress"))
				return
			}
			defer func() {
				if err := store.End(context.WithoutCancel(ctx), key); err != nil {
					log.Warn("Failed to release idempotency key", "error", err)
				}
			}()

			capture := &responseCapture{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(capture, r)

			if capture.statusCode < 200 || capture.statusCode >= 300 {
				return
			}
			err = store.Set(context.WithoutCancel(ctx), key, &CachedResponse{
				StatusCode: capture.statusCode,
				Headers:    w.Header().Clone(),
				Body:       capture.body.Bytes(),
			})
			if err != nil {
				log.Warn("Failed to store idempotent response", "error", err)
			}
		})
	}
}

func replay(w http.ResponseWriter, cached *CachedResponse) {
	for key, values := range cached.Headers {
		if key == HeaderRequestID {
			continue
		}
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}
	w.Header().Set(HeaderReplayed, "true")
	w.WriteHeader(cached.StatusCode)
	_, _ = w.Write(cached.Body)
}
