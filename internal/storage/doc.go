// Package storage provides the small persistence layer behind the daemon.
//
// It stores:
//   - Named records (the scheduled reminder mirror lives under one key)
//   - Notification delivery history (append-only)
//   - Optional notifier dedup state (to survive restarts)
//
// Drivers: "file", "sqlite" and "memory".
package storage
