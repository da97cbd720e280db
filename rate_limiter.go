// rate_limiter.go
// ----------------
// This file defines the RateLimitTracker, which stores the most recently
// observed GitHub quota for each rate limit category.
//
// Responsibilities:
// - Parsing X-RateLimit-* and Date headers into RateLimitRecords.
// - Parsing the GET /rate_limit payload into a RateLimitSnapshot.
// - Ordering records so out-of-order responses never regress the quota.
// - Serving the last known record to the RateLimitChecker.
package ghbridge

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/opengovern/ghbridge/internal"
)

// RateLimitCategory selects which GitHub quota a request is charged to.
type RateLimitCategory int

const (
	// CategoryNone requests are never checked or tracked (e.g. /rate_limit).
	CategoryNone RateLimitCategory = iota
	CategoryCore
	CategorySearch
	CategoryGraphQL
	CategoryIntegrationManifest
)

// String returns the resource name GitHub uses for the category.
func (c RateLimitCategory) String() string {
	switch c {
	case CategoryNone:
		return "none"
	case CategoryCore:
		return "core"
	case CategorySearch:
		return "search"
	case CategoryGraphQL:
		return "graphql"
	case CategoryIntegrationManifest:
		return "integration_manifest"
	default:
		return "category(" + strconv.Itoa(int(c)) + ")"
	}
}

// categoryForPath maps an API path to the quota it consumes.
func categoryForPath(path string) RateLimitCategory {
	switch {
	case path == "/rate_limit":
		return CategoryNone
	case strings.HasPrefix(path, "/search/"):
		return CategorySearch
	case path == "/graphql":
		return CategoryGraphQL
	case strings.HasPrefix(path, "/app-manifests/"):
		return CategoryIntegrationManifest
	default:
		return CategoryCore
	}
}

const (
	unknownRecordLimit        = 1_000_000
	unknownRecordResetSeconds = 30
)

// RateLimitRecord is one quota observation.
type RateLimitRecord struct {
	// Limit is the maximum number of requests per window.
	Limit int
	// Remaining is the number of requests left in the window.
	Remaining int
	// ResetEpochSeconds is when the window resets, in UNIX seconds.
	ResetEpochSeconds int64
	// ObservedAt is the local time the record was received.
	ObservedAt time.Time
	// ServerDate is the response Date header, zero when absent.
	ServerDate time.Time

	unknown bool
}

// UnknownRateLimitRecord returns the placeholder used when the server does
// not report limits (rate limiting disabled on GitHub Enterprise). It
// expires quickly so the real limits are fetched again.
func UnknownRateLimitRecord(now time.Time) RateLimitRecord {
	return RateLimitRecord{
		Limit:             unknownRecordLimit,
		Remaining:         unknownRecordLimit,
		ResetEpochSeconds: now.Add(unknownRecordResetSeconds * time.Second).Unix(),
		ObservedAt:        now,
		unknown:           true,
	}
}

// IsUnknown reports whether r is the placeholder record.
func (r RateLimitRecord) IsUnknown() bool { return r.unknown }

// Used returns the number of requests consumed in the current window.
func (r RateLimitRecord) Used() int { return r.Limit - r.Remaining }

// ResetDate returns the local time at which the window resets. The reset
// header is only second-accurate and based on the server clock, so when
// the Date header is known the offset is applied to the local receipt time.
func (r RateLimitRecord) ResetDate() time.Time {
	if !r.ServerDate.IsZero() && !r.ObservedAt.IsZero() {
		offset := time.Duration(r.ResetEpochSeconds-r.ServerDate.Unix()) * time.Second
		return r.ObservedAt.Add(offset)
	}
	return time.Unix(r.ResetEpochSeconds, 0)
}

// IsExpired reports whether the window has reset at now.
func (r RateLimitRecord) IsExpired(now time.Time) bool {
	return !now.Before(r.ResetDate())
}

func (r RateLimitRecord) String() string {
	if r.unknown {
		return "unknown"
	}
	return fmt.Sprintf("%d/%d reset=%d", r.Remaining, r.Limit, r.ResetEpochSeconds)
}

// shouldReplace reports whether candidate is more recent than current.
// Later resets win; at equal reset the lower remaining count wins because
// it was observed after more consumption. The unknown placeholder never
// replaces a real record and is always replaced by one.
func shouldReplace(candidate RateLimitRecord, current *RateLimitRecord) bool {
	if current == nil {
		return true
	}
	if candidate.unknown != current.unknown {
		return !candidate.unknown
	}
	if candidate.ResetEpochSeconds != current.ResetEpochSeconds {
		return candidate.ResetEpochSeconds > current.ResetEpochSeconds
	}
	return candidate.Remaining < current.Remaining
}

// parseRateLimitHeaders builds a record from response headers. The second
// result is false when any of the three quota headers is missing or
// malformed.
func parseRateLimitHeaders(header http.Header, observedAt time.Time) (RateLimitRecord, bool) {
	limit, err := strconv.Atoi(header.Get("X-RateLimit-Limit"))
	if err != nil {
		return RateLimitRecord{}, false
	}
	remaining, err := strconv.Atoi(header.Get("X-RateLimit-Remaining"))
	if err != nil {
		return RateLimitRecord{}, false
	}
	reset, ok := internal.ParseEpochSeconds(header.Get("X-RateLimit-Reset"))
	if !ok {
		return RateLimitRecord{}, false
	}

	record := RateLimitRecord{
		Limit:             limit,
		Remaining:         remaining,
		ResetEpochSeconds: reset,
		ObservedAt:        observedAt,
	}
	if date, ok := internal.ParseServerDate(header.Get("Date")); ok {
		record.ServerDate = date
	}
	return record, true
}

// RateLimitSnapshot is the full payload of GET /rate_limit.
type RateLimitSnapshot struct {
	Core                RateLimitRecord
	Search              RateLimitRecord
	GraphQL             RateLimitRecord
	IntegrationManifest RateLimitRecord
}

// Record returns the record for a category. CategoryNone maps to Core.
func (s *RateLimitSnapshot) Record(category RateLimitCategory) RateLimitRecord {
	switch category {
	case CategorySearch:
		return s.Search
	case CategoryGraphQL:
		return s.GraphQL
	case CategoryIntegrationManifest:
		return s.IntegrationManifest
	default:
		return s.Core
	}
}

func unknownSnapshot(now time.Time) *RateLimitSnapshot {
	unknown := UnknownRateLimitRecord(now)
	return &RateLimitSnapshot{Core: unknown, Search: unknown, GraphQL: unknown, IntegrationManifest: unknown}
}

type rateLimitResource struct {
	Limit     int   `json:"limit"`
	Remaining int   `json:"remaining"`
	Reset     int64 `json:"reset"`
	Used      int   `json:"used"`
}

type rateLimitPayload struct {
	Resources struct {
		Core                *rateLimitResource `json:"core"`
		Search              *rateLimitResource `json:"search"`
		GraphQL             *rateLimitResource `json:"graphql"`
		IntegrationManifest *rateLimitResource `json:"integration_manifest"`
	} `json:"resources"`
	Rate *rateLimitResource `json:"rate"`
}

// parseRateLimitSnapshot decodes a /rate_limit body. Resources the server
// omits become unknown records.
func parseRateLimitSnapshot(data []byte, header http.Header, observedAt time.Time) (*RateLimitSnapshot, error) {
	var payload rateLimitPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}

	var serverDate time.Time
	if date, ok := internal.ParseServerDate(header.Get("Date")); ok {
		serverDate = date
	}
	toRecord := func(resource *rateLimitResource) RateLimitRecord {
		if resource == nil {
			return UnknownRateLimitRecord(observedAt)
		}
		return RateLimitRecord{
			Limit:             resource.Limit,
			Remaining:         resource.Remaining,
			ResetEpochSeconds: resource.Reset,
			ObservedAt:        observedAt,
			ServerDate:        serverDate,
		}
	}

	core := payload.Resources.Core
	if core == nil {
		core = payload.Rate
	}
	return &RateLimitSnapshot{
		Core:                toRecord(core),
		Search:              toRecord(payload.Resources.Search),
		GraphQL:             toRecord(payload.Resources.GraphQL),
		IntegrationManifest: toRecord(payload.Resources.IntegrationManifest),
	}, nil
}

// RateLimitTracker holds the latest record per category. Updates are
// serialized under one lock and ordered by shouldReplace, so a response
// that completes late cannot overwrite a fresher observation.
type RateLimitTracker struct {
	mu      sync.Mutex
	records map[RateLimitCategory]RateLimitRecord
}

// NewRateLimitTracker returns an empty tracker.
func NewRateLimitTracker() *RateLimitTracker {
	return &RateLimitTracker{
		records: make(map[RateLimitCategory]RateLimitRecord),
	}
}

// Update stores record for category if it is more recent than the current
// one. It reports whether the record was stored.
func (t *RateLimitTracker) Update(category RateLimitCategory, record RateLimitRecord) bool {
	if category == CategoryNone {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	var current *RateLimitRecord
	if existing, ok := t.records[category]; ok {
		current = &existing
	}
	if !shouldReplace(record, current) {
		return false
	}
	t.records[category] = record
	observeRateLimit(category, record)
	return true
}

// UpdateFromHeaders records the quota headers of a response. Missing or
// malformed headers are ignored.
func (t *RateLimitTracker) UpdateFromHeaders(category RateLimitCategory, header http.Header, observedAt time.Time) bool {
	record, ok := parseRateLimitHeaders(header, observedAt)
	if !ok {
		return false
	}
	return t.Update(category, record)
}

// UpdateFromSnapshot records every category of a /rate_limit payload.
func (t *RateLimitTracker) UpdateFromSnapshot(snapshot *RateLimitSnapshot) {
	for _, category := range []RateLimitCategory{CategoryCore, CategorySearch, CategoryGraphQL, CategoryIntegrationManifest} {
		t.Update(category, snapshot.Record(category))
	}
}

// Record returns a copy of the last known record for category.
func (t *RateLimitTracker) Record(category RateLimitCategory) (RateLimitRecord, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	record, ok := t.records[category]
	return record, ok
}
