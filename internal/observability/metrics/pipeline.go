package metrics

import (
	"time"

	obserrors "github.com/target/sealbox/internal/observability/errors"
	"github.com/target/sealbox/internal/observability/statsd"
)

// Metric names, relative to the client prefix (sealbox by default).
const (
	metricUploadAccepted = "upload.accepted"
	metricUploadRejected = "upload.rejected"
	metricJobCompleted   = "job.completed"
	metricJobFailed      = "job.failed"
	metricJobProcessMs   = "job.process_ms"
	metricPolicyDecision = "policy.decision"
	metricQueueDepth     = "queue.depth"
)

// EmitUploadAccepted counts a submission that passed the gateway.
func EmitUploadAccepted(sink statsd.Sink) {
	if sink == nil {
		return
	}
	sink.Count(metricUploadAccepted, 1, nil)
}

// EmitUploadRejected counts a rejected submission, tagged by rejection code.
func EmitUploadRejected(sink statsd.Sink, code string) {
	if sink == nil {
		return
	}
	sink.Count(metricUploadRejected, 1, map[string]string{"code": code})
}

// JobOutcome captures one finished job for metric emission.
type JobOutcome struct {
	Completed bool
	Reason    string
	Duration  time.Duration
	Err       error
}

// EmitJobOutcome emits the terminal counter and the processing timer for one
// job.
func EmitJobOutcome(sink statsd.Sink, out JobOutcome) {
	if sink == nil {
		return
	}

	if out.Completed {
		sink.Count(metricJobCompleted, 1, nil)
	} else {
		tags := map[string]string{"reason": out.Reason}
		if out.Err != nil {
			if class := obserrors.Classify(out.Err); class != "" {
				tags["error_class"] = class
			}
		}
		sink.Count(metricJobFailed, 1, tags)
	}

	if out.Duration > 0 {
		sink.Timing(metricJobProcessMs, out.Duration, nil)
	}
}

// EmitPolicyDecision counts one egress guard evaluation.
func EmitPolicyDecision(sink statsd.Sink, point, effect string) {
	if sink == nil {
		return
	}
	sink.Count(metricPolicyDecision, 1, map[string]string{
		"point":  point,
		"effect": effect,
	})
}

// EmitQueueDepth gauges the pending list length.
func EmitQueueDepth(sink statsd.Sink, depth int64) {
	if sink == nil {
		return
	}
	sink.Gauge(metricQueueDepth, float64(depth), nil)
}
