/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import "fmt"

// MockT records a failure instead of stopping the test, so helpers can be checked for failing.
type MockT struct {
	Failed  bool
	Message string
}

func (t *MockT) FailNow() {
	t.Failed = true
}

func (t *MockT) Errorf(format string, args ...interface{}) {
	t.Message = fmt.Sprintf(format, args...)
}

func (t *MockT) Helper() {}
