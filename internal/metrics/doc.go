// Copyright 2026 TravelGuard Authors. All rights reserved.
// Use of this source code is governed by an MIT license that can be
// found in the LICENSE file.

/*
Package metrics provides Prometheus-based metrics collection spanning
HTTP, the LLM gateway, the payment state machine, the claims
orchestrator, caching, and the database pools.

# Overview

Collector registers and records Prometheus metrics through promauto's
automatic registration, avoiding manual Registry bookkeeping. Every
metric is isolated by namespace and supports multi-dimensional labels
for Grafana-style visualization and alerting.

# Core types

  - Collector: holds the Counter/Histogram/Gauge vectors, grouped by
    business domain.

# Capabilities

  - HTTP: request count, request duration, request/response sizes,
    grouped by method/path/status, with status bucketed into 2xx/3xx/4xx/5xx.
  - LLM gateway: request count, request duration, token usage
    (prompt/completion), cost, grouped by provider/model.
  - Payment state machine: state-transition counts grouped by
    from_state/to_state/source (orchestrator vs webhook).
  - Claims orchestrator: per-phase duration histogram.
  - Cache: hit/miss counts grouped by cache_type.
  - Database: open/idle connection gauges, query duration histogram,
    grouped by database/operation.
*/
package metrics
