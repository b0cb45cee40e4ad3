// Command politefetch runs the fetch service: an HTTP API in front of the
// caching, deduplicating, origin-limited fetch engine.
package main
