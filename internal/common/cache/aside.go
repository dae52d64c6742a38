package cache

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"

	"golang.org/x/sync/singleflight"
)

// NullCacheValue is stored for keys the source reported absent.
const NullCacheValue = "$NULL$"

// sharedFetchTimeout bounds a fetch that no single caller owns.
const sharedFetchTimeout = 10 * time.Second

// Codec converts values to and from their cached string form.
type Codec[T any] struct {
	Encode func(T) (string, error)
	Decode func(string) (T, error)
}

// FetchFunc loads a value from the source of truth. found=false caches a tombstone.
type FetchFunc[T any] func(ctx context.Context) (value T, found bool, err error)

// Aside is a read-through loader over Cache. Concurrent misses on one key share a single fetch.
type Aside[T any] struct {
	store    Cache
	codec    Codec[T]
	ttl      time.Duration
	emptyTTL time.Duration
	flights  singleflight.Group
}

func NewAside[T any](store Cache, codec Codec[T], ttl, emptyTTL time.Duration) *Aside[T] {
	return &Aside[T]{store: store, codec: codec, ttl: ttl, emptyTTL: emptyTTL}
}

type loaded[T any] struct {
	value T
	found bool
}

// Load returns the cached value for key or calls fetch and writes the result back.
// Callers sharing a fetch each decode their own copy of the value.
// The shared fetch runs detached from any one caller's cancellation, bounded by sharedFetchTimeout;
// each caller stops waiting when its own ctx ends.
// Cache read errors and undecodable entries fall through to fetch; write-back errors are dropped.
func (a *Aside[T]) Load(ctx context.Context, key string, fetch FetchFunc[T]) (T, bool, error) {
	var zero T
	if hit, ok := a.lookup(ctx, key); ok {
		return hit.value, hit.found, nil
	}

	ch := a.flights.DoChan(key, func() (interface{}, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedFetchTimeout)
		defer cancel()
		value, found, err := fetch(fctx)
		if err != nil {
			return nil, err
		}
		return a.writeBack(fctx, key, value, found), nil
	})
	var r singleflight.Result
	select {
	case r = <-ch:
	case <-ctx.Done():
		return zero, false, ctx.Err()
	}
	if r.Err != nil {
		return zero, false, r.Err
	}
	res, shared := r.Val.(flight[T]), r.Shared
	if !res.found {
		return zero, false, nil
	}
	if shared && res.raw != "" {
		if value, err := a.codec.Decode(res.raw); err == nil {
			return value, true, nil
		}
	}
	return res.value, true, nil
}

type flight[T any] struct {
	loaded[T]
	raw string
}

func (a *Aside[T]) lookup(ctx context.Context, key string) (loaded[T], bool) {
	raw, err := a.store.Get(ctx, key)
	if err != nil || raw == "" {
		return loaded[T]{}, false
	}
	if raw == NullCacheValue {
		return loaded[T]{}, true
	}
	value, err := a.codec.Decode(raw)
	if err != nil {
		return loaded[T]{}, false
	}
	return loaded[T]{value: value, found: true}, true
}

func (a *Aside[T]) writeBack(ctx context.Context, key string, value T, found bool) flight[T] {
	res := flight[T]{loaded: loaded[T]{value: value, found: found}}
	if !found {
		_ = a.store.Set(ctx, key, NullCacheValue, a.emptyTTL)
		return res
	}
	raw, err := a.codec.Encode(value)
	if err != nil {
		return res
	}
	res.raw = raw
	_ = a.store.Set(ctx, key, raw, JitterTTL(a.ttl))
	return res
}

// JitterTTL subtracts a random amount of up to a tenth of ttl.
func JitterTTL(ttl time.Duration) time.Duration {
	spread := int64(ttl / 10)
	if spread <= 0 {
		return ttl
	}
	n, err := rand.Int(rand.Reader, big.NewInt(spread+1))
	if err != nil {
		return ttl
	}
	return ttl - time.Duration(n.Int64())
}
