package engine

import (
	"fmt"
	"sync"

	"github.com/jfet97/perform/pkg/api"
)

// request is the directive collected from one handler call. Higher values
// win over lower ones regardless of call order.
type request int

const (
	requestNone request = iota
	requestRetry
	requestRecover
	requestRestart
)

// controls is the api.Controls handed to a single handler invocation.
type controls struct {
	mu          sync.Mutex
	recoverable bool
	sealed      bool

	request  request
	value    any
	attempts int
}

var _ api.Controls = (*controls)(nil)

func newControls(recoverable bool) *controls {
	return &controls{recoverable: recoverable}
}

func (c *controls) raise(r request) {
	if r > c.request {
		c.request = r
	}
}

func (c *controls) Recover(value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sealed || !c.recoverable {
		return
	}
	c.raise(requestRecover)
	c.value = value
}

func (c *controls) Retry(maxAttempts ...int) error {
	attempts := 1
	switch len(maxAttempts) {
	case 0:
	case 1:
		attempts = maxAttempts[0]
		if attempts < 0 {
			return fmt.Errorf("%w: negative attempt count %d", api.ErrInvalidRetryArgument, attempts)
		}
	default:
		return fmt.Errorf("%w: expected at most one attempt count, got %d", api.ErrInvalidRetryArgument, len(maxAttempts))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sealed || !c.recoverable {
		return nil
	}
	c.raise(requestRetry)
	c.attempts = attempts
	return nil
}

func (c *controls) Restart() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sealed {
		return
	}
	c.raise(requestRestart)
}

// seal freezes the directive. Calls made after seal are ignored.
func (c *controls) seal() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sealed = true
}

// discard drops whatever was requested so far.
func (c *controls) discard() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.request = requestNone
	c.value = nil
	c.attempts = 0
}
