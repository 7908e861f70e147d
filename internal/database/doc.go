// Copyright 2026 TravelGuard Authors. All rights reserved.
// Use of this source code is governed by an MIT license that can be
// found in the LICENSE file.

/*
Package database provides GORM-based database connection pool
management, with health checking, statistics, and transaction retry.

# Overview

PoolManager wraps GORM's and database/sql's pool configuration,
unifying connection lifecycle, idle reclamation, and max-connection
limits. A background health check probes the pool on an interval and
logs diagnostics through zap on failure.

# Core types

  - PoolManager: the pool manager; holds the GORM DB instance and the
    underlying sql.DB, exposing DB()/Ping()/Stats()/Close().
  - PoolConfig: pool configuration — max idle connections, max open
    connections, connection max lifetime, idle timeout, and health
    check interval. DefaultPoolConfig suits the general payment store;
    SandboxPoolConfig is the narrower bound the claims SQL sandbox
    uses against the historical claims warehouse.
  - PoolStats: a friendly snapshot of pool statistics.
  - TransactionFunc: the transaction callback type.

# Capabilities

  - Pool tuning via MaxIdleConns/MaxOpenConns/ConnMaxLifetime.
  - Health checking: a background PingContext loop reports connection
    and idle counts.
  - Transaction management: WithTransaction runs a single transaction;
    WithTransactionRetry adds exponential backoff retry for deadlocks
    and serialization failures.
  - Statistics: GetStats returns structured pool metrics.
*/
package database
