// Copyright 2026 TravelGuard Authors. All rights reserved.
// Use of this source code is governed by an MIT license that can be
// found in the LICENSE file.

/*
Package cache provides Redis-backed cache management: connection
pooling, health checking, JSON (de)serialization, and statistics.

# Overview

Manager wraps the go-redis client to give callers a uniform cache
read/write interface. It owns the connection lifecycle — init, health
checking, graceful shutdown. The connection is plain TCP; no TLS option
is exposed.

# Core types

  - Manager: the cache manager; holds the Redis client and pool
    config, exposing Get/Set/Delete/Exists/Expire plus the
    GetJSON/SetJSON convenience wrappers used by vectorsearch's
    result cache.
  - Config: cache configuration — address, password, DB index, retries,
    pool size, default TTL, and health check interval.
  - Stats: cache statistics — hit rate, key count, memory usage,
    connection count.

# Capabilities

  - Key-value read/write in both raw-string and JSON modes.
  - Connection pooling via PoolSize/MinIdleConns.
  - Health checking: a background Ping loop logs through zap on
    failure.
  - Graceful shutdown: Close releases the underlying Redis connection.
  - Error semantics: ErrCacheMiss sentinel and IsCacheMiss helper.
*/
package cache
