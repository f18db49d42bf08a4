// Package narratorfakes provides in-memory seams for narrator tests.
//
// The package centralizes reusable fake implementations so service tests can
// focus on behavior setup and assertions rather than local fake definitions.
package narratorfakes
