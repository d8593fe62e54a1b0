package acmecore

import (
	"io"

	"github.com/jmhodges/clock"
)

// Clock is the injected time capability spec.md §1 requires the core
// consume rather than call time.Now() directly; it is jmhodges/clock's
// interface, the same one the teacher injects into metrics/measured_http
// and its RA/CA components for testability.
type Clock = clock.Clock

// RandReader is the injected randomness capability spec.md §1 requires;
// io.Reader is sufficient since the only consumer is key/salt generation
// performed by callers, not the core itself.
type RandReader = io.Reader
