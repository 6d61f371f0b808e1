// Package storage persists the state a campaign needs to survive restarts:
//
//   - Campaign progress (position + counters), namespaced per job source
//   - Quota counters (daily/hourly send counts)
//   - An append-only log of per-message outcomes
package storage
