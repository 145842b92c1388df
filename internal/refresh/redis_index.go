package refresh

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisIndex guarda cada entrada en "<prefix>:rt:<jti>" con TTL nativo y un set
// por subject en "<prefix>:rt:sub:<subject>". GETDEL es el gate de Take.
type RedisIndex struct {
	rdb    *redis.Client
	prefix string
	now    func() time.Time
}

func NewRedisIndex(rdb *redis.Client, prefix string) *RedisIndex {
	return &RedisIndex{rdb: rdb, prefix: prefix, now: time.Now}
}

func (r *RedisIndex) entryKey(jti string) string {
	if r.prefix == "" {
		return "rt:" + jti
	}
	return r.prefix + ":rt:" + jti
}

func (r *RedisIndex) subjectKey(sub string) string {
	if r.prefix == "" {
		return "rt:sub:" + sub
	}
	return r.prefix + ":rt:sub:" + sub
}

func (r *RedisIndex) Record(ctx context.Context, jti, subject string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(r.now())
	if ttl <= 0 {
		return nil
	}
	b, err := json.Marshal(Entry{ID: jti, Subject: subject, ExpiresAt: expiresAt})
	if err != nil {
		return err
	}
	sk := r.subjectKey(subject)
	_, err = r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, r.entryKey(jti), b, ttl)
		p.SAdd(ctx, sk, jti)
		// El set vive al menos tanto como su token más nuevo.
		p.Expire(ctx, sk, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("refresh: redis record: %w", err)
	}
	return nil
}

func (r *RedisIndex) Lookup(ctx context.Context, jti string) (Entry, error) {
	raw, err := r.rdb.Get(ctx, r.entryKey(jti)).Bytes()
	return decodeEntry(raw, err)
}

func (r *RedisIndex) Take(ctx context.Context, jti string) (Entry, error) {
	raw, err := r.rdb.GetDel(ctx, r.entryKey(jti)).Bytes()
	e, err := decodeEntry(raw, err)
	if err != nil {
		return Entry{}, err
	}
	// El set es sólo un índice secundario: si falla el SREM, ListBySubject lo
	// limpia en la próxima pasada.
	_ = r.rdb.SRem(ctx, r.subjectKey(e.Subject), jti).Err()
	return e, nil
}

func (r *RedisIndex) ListBySubject(ctx context.Context, subject string) ([]Entry, error) {
	sk := r.subjectKey(subject)
	ids, err := r.rdb.SMembers(ctx, sk).Result()
	if err != nil {
		return nil, fmt.Errorf("refresh: redis smembers: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.entryKey(id)
	}
	vals, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("refresh: redis mget: %w", err)
	}
	out := make([]Entry, 0, len(ids))
	var stale []any
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(s), &e); err != nil {
			stale = append(stale, ids[i])
			continue
		}
		out = append(out, e)
	}
	if len(stale) > 0 {
		_ = r.rdb.SRem(ctx, sk, stale...).Err()
	}
	return out, nil
}

func decodeEntry(raw []byte, err error) (Entry, error) {
	if errors.Is(err, redis.Nil) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("refresh: redis: %w", err)
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return Entry{}, fmt.Errorf("refresh: decode entry: %w", err)
	}
	return e, nil
}
