package extindex

import (
	"context"
	"errors"
	"fmt"
	neturl "net/url"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisHash is the hash holding FieldKey -> load key.
const DefaultRedisHash = "assetcat:index"

// RedisOptions configures a Redis-backed index.
type RedisOptions struct {
	// URL is the connection string, e.g. "redis://localhost:6379/0".
	URL string
	// Hash overrides DefaultRedisHash. Also settable with ?hash= on the URL.
	Hash string

	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

// Redis resolves keys with HGET on a single hash.
type Redis struct {
	client *redis.Client
	hash   string
}

func openRedis(dsn string) (Lookup, error) {
	l, err := NewRedis(RedisOptions{URL: dsn})
	if err != nil {
		return nil, err
	}
	return l, nil
}

// NewRedis connects and pings the server.
func NewRedis(opts RedisOptions) (*Redis, error) {
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 2 * time.Second
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = time.Second
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = time.Second
	}

	url, hash := splitHashParam(opts.URL)
	if opts.Hash == "" {
		opts.Hash = hash
	}
	if opts.Hash == "" {
		opts.Hash = DefaultRedisHash
	}

	redisOpts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	redisOpts.DialTimeout = opts.ConnectTimeout
	redisOpts.ReadTimeout = opts.ReadTimeout
	redisOpts.WriteTimeout = opts.WriteTimeout

	client := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: failed to connect to Redis: %w", ErrUnavailable, err)
	}

	return &Redis{client: client, hash: opts.Hash}, nil
}

func (r *Redis) Key(ctx context.Context, container uuid.UUID, sub int64) (string, bool, error) {
	v, err := r.client.HGet(ctx, r.hash, FieldKey(container, sub)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return v, true, nil
}

// Put writes a key. Used by tooling that publishes the index.
func (r *Redis) Put(ctx context.Context, container uuid.UUID, sub int64, key string) error {
	if err := r.client.HSet(ctx, r.hash, FieldKey(container, sub), key).Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}

// splitHashParam removes the "hash" query parameter, which go-redis would
// reject as unknown.
func splitHashParam(raw string) (string, string) {
	u, err := neturl.Parse(raw)
	if err != nil {
		return raw, ""
	}
	q := u.Query()
	hash := q.Get("hash")
	if hash == "" {
		return raw, ""
	}
	q.Del("hash")
	u.RawQuery = q.Encode()
	return u.String(), hash
}
