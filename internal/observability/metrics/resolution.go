package metrics

import (
	"time"

	obserrors "github.com/culturemaker/cmk-api/internal/observability/errors"
	"github.com/culturemaker/cmk-api/internal/observability/statsd"
)

// Resolution outcomes used as the "outcome" tag.
const (
	OutcomeSession         = "session"
	OutcomeUnauthenticated = "unauthenticated"
	OutcomeOrphan          = "orphan"
	OutcomeError           = "error"
	OutcomeStale           = "stale"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// ResolutionMetric captures one identity resolution for metric emission.
type ResolutionMetric struct {
	Outcome  string
	Role     string
	Status   string
	Duration time.Duration
	Err      error
}

// EmitResolution emits standardised identity-resolution metrics.
func EmitResolution(sink statsd.Sink, in ResolutionMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{"outcome": in.Outcome}
	if in.Role != "" {
		tags["role"] = in.Role
	}
	if in.Status != "" {
		tags["status"] = in.Status
	}
	if in.Err != nil && in.Outcome == OutcomeError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("session.resolution", 1, tags)

	if in.Duration > 0 {
		sink.Timing("session.resolution_duration", in.Duration, CloneTags(tags))
	}
}

// GuardMetric captures one route guard evaluation.
type GuardMetric struct {
	Area   string
	Result string
}

// EmitGuard counts route guard decisions by area and result ("allow" or "redirect").
func EmitGuard(sink statsd.Sink, in GuardMetric) {
	if sink == nil {
		return
	}
	sink.Count("session.guard", 1, map[string]string{"area": in.Area, "result": in.Result})
}

// CloneTags creates a shallow copy of a tag map, filtering out empty keys.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		if k == "" {
			continue
		}
		out[k] = v
	}
	return out
}
