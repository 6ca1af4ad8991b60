// Package main is the entry point for kestreld, the hosted kernel daemon.
//
// kestreld boots one kernel instance and exposes its debug syscall surface
// over HTTP: process and thread lifecycle, console I/O, memory inspection,
// thread state access, and kernel trace control.
//
// The daemon provides:
//   - REST API for the debug syscall surface (under /v1)
//   - WebSocket streaming of trace records
//   - Prometheus metrics (/metrics)
//   - Rate limiting and CORS for browser tooling
//
// Configuration:
//   - KESTREL_-prefixed environment variables (12-factor)
//   - CLI flags (override env vars)
//   - Defaults for development
//
// Usage:
//
//	./kestreld -port 9600
//
// Signals:
//   - SIGINT, SIGTERM: graceful shutdown
package main
