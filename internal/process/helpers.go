package process

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotStarted is returned by operations that need a spawned process.
var ErrNotStarted = errors.New("process not started")

var errExitedEarly = errors.New("process exited before start duration")

func errBeforeStart(d time.Duration) error {
	return fmt.Errorf("%w %s", errExitedEarly, d)
}

// IsBeforeStartErr reports whether err came from EnforceStartDuration.
func IsBeforeStartErr(err error) bool { return errors.Is(err, errExitedEarly) }
