package testutil

import (
	"fmt"
	"testing"
)

// requireContainer skips t when a shared container could not be started,
// typically because no Docker daemon is reachable.
func requireContainer(t *testing.T, kind string, err error) {
	t.Helper()
	if err != nil {
		t.Skipf("skipping %s tests: %v", kind, err)
	}
}

// guardStart converts a panic raised while starting a container into an error.
func guardStart(kind string, errp *error) {
	if r := recover(); r != nil {
		*errp = fmt.Errorf("starting %s testcontainer panicked: %v", kind, r)
	}
}
