// Package session holds the persisted session model and the Store that reads
// and writes it through a small KV abstraction. A Redis-backed KV is provided
// for shared deployments and an in-memory KV for embedding and tests.
//
// The persistence medium is treated as unreliable: an absent, unreadable, or
// corrupt blob always reads as "no session" and never as an error. Only
// writes can fail.
package session
