package domain

import "errors"

// ErrBrokerUnreachable indicates the broker could not be reached before the
// connect loop was cancelled. Connect attempts themselves retry forever.
var ErrBrokerUnreachable = errors.New("broker unreachable")

// ErrDownloadFailed indicates a non-200 status or transport error while
// fetching a WARC from the archive host. The job is nack-requeued.
var ErrDownloadFailed = errors.New("warc download failed")

// ErrPublishExhausted indicates a publish did not go through after all
// connection rebuild attempts.
var ErrPublishExhausted = errors.New("publish retries exhausted")

// ErrSeedUnreadable indicates the seed file could not be opened or read.
var ErrSeedUnreadable = errors.New("seed file unreadable")

// ErrInvalidTelemetry indicates a telemetry payload that is not JSON or
// carries an unknown step. The collector logs and drops it.
var ErrInvalidTelemetry = errors.New("invalid telemetry payload")
