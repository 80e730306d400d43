// Package sync extracts tabular GA4 analytics reports on a recurring,
// resumable basis and emits them as newline-delimited, uniquely-keyed
// messages with incremental bookmarking.
//
// A sync pass walks the selected streams of a catalog one at a time. For
// each stream the requested date span is resolved from the configured
// start date, any prior bookmark, and a 90 day conversion window (GA4
// attribution data may still change inside the window, so a resumed sync
// never starts later than now minus the window). The span is split into
// inclusive date chunks of a configured number of days, each chunk is
// queried as a single report, and large results are paginated by fixed
// 100,000 row offset windows.
//
// Every result row becomes one flat record keyed by _sdc_record_hash, a
// SHA 256 digest of the property id, the sorted dimension name/value
// pairs, and the chunk's start and end dates. The hash depends only on
// those inputs, so re-running an interrupted chunk re-emits identical
// keys and replays are idempotent. After every completed chunk the
// stream's bookmark advances to the chunk's end date and a full state
// snapshot is written.
//
// Requests are strictly sequential: GA4 meters an hourly quota shared
// across all requests for a property, so concurrency buys nothing.
// Transient server errors and generic rate limiting retry with
// exponential backoff; an exhausted hourly quota instead blocks the sync
// until just past the top of the next UTC hour, without consuming any of
// the retry budget.
//
// Discovery of available dimensions and metrics, OAuth credential
// refresh, durable state storage and CLI wiring are all collaborators
// outside this package: it consumes a Catalog, a TokenProvider and a
// MessageWriter, and drives everything in between.
package sync
