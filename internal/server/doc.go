// Copyright 2026 TravelGuard Authors. All rights reserved.
// Use of this source code is governed by an MIT license that can be
// found in the LICENSE file.

/*
Package server provides HTTP/HTTPS server lifecycle management:
non-blocking startup, graceful shutdown, and OS signal handling.

# Overview

Manager wraps net/http.Server, unifying listen/serve/shutdown and
error propagation. It supports both plain HTTP and TLS startup, with
built-in SIGINT/SIGTERM handling for production-grade graceful
shutdown.

# Core types

  - Manager: the HTTP server manager; holds the http.Server,
    net.Listener, and an asynchronous error channel, exposing
    Start/StartTLS/Shutdown/WaitForShutdown lifecycle methods.
  - Config: server configuration — listen address, read/write
    timeouts, idle timeout, max header size, and shutdown timeout.

# Capabilities

  - Non-blocking startup: Start/StartTLS run the server in a
    background goroutine; the caller is never blocked.
  - Graceful shutdown: Shutdown drains in-flight requests and releases
    connections within the configured timeout.
  - Signal handling: WaitForShutdown listens for SIGINT/SIGTERM and
    triggers graceful shutdown automatically.
  - Error propagation: Errors() returns an async error channel for the
    caller to monitor server failures.
  - TLS support: StartTLS accepts a certificate and key file.
  - Status queries: IsRunning/Addr report current state.
*/
package server
