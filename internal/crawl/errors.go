package crawl

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced through the job control interface. All other
// failures (fetch, scoring, store, robots) are absorbed per-entry and never
// fail a job.
var (
	// ErrInvalidConfig means the job config is outside its documented bounds;
	// the job is never created.
	ErrInvalidConfig = errors.New("invalid crawl config")

	// ErrNoPendingSteering means a steer call arrived with no outstanding
	// steering request for the given link.
	ErrNoPendingSteering = errors.New("no pending steering request")

	// ErrJobNotFound means the job id is unknown to the registry.
	ErrJobNotFound = errors.New("job not found")
)

// errRobotsDenied marks pages skipped by the robots gate; absorbed per-entry
// like any other fetch failure.
var errRobotsDenied = errors.New("disallowed by robots.txt")

func invalidConfigf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
