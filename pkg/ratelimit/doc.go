// Package ratelimit provides request pacing for the Gumroad scraper.
//
// Gumroad is scraped with an ordinary user session, so the client keeps
// its request pattern close to a human browsing the library: a minimum
// gap between consecutive requests, and optionally a hard cap on
// requests per time window.
//
// Available Implementations:
//
// Polite Delay:
//   - Enforces a minimum gap between consecutive requests
//   - Default implementation used by the scraper
//
// Sliding Window:
//   - Tracks requests within a moving time window
//   - Used when a requests-per-minute cap is configured
//
// All limiters implement the Limiter interface; Wait blocks until the
// next request may proceed or the context is cancelled.
package ratelimit
