/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"errors"
	"strings"
	"sync"

	"go.uber.org/atomic"
)

// CompositeUnit runs several units as one, e.g. the HTTP server with the rate-limit janitor.
type CompositeUnit struct {
	Units []Unit

	stopping atomic.Bool
}

var _ Unit = (*CompositeUnit)(nil)
var _ MetricsRegisterer = (*CompositeUnit)(nil)

// NewCompositeUnit creates a new composite unit.
func NewCompositeUnit(units ...Unit) *CompositeUnit {
	return &CompositeUnit{Units: units}
}

// Start starts all units concurrently. It returns when every unit's Start has returned,
// or right after the first unit failure. On failure the other units are stopped non-gracefully
// and a CompositeUnitError with the start and stop errors is sent to fatalErr.
func (cu *CompositeUnit) Start(fatalErr chan<- error) {
	if len(cu.Units) == 0 {
		return
	}

	startErrs := make(chan error, len(cu.Units))
	var wg sync.WaitGroup
	for _, u := range cu.Units {
		wg.Add(1)
		go func(u Unit) {
			defer wg.Done()
			unitErr := make(chan error, 1)
			u.Start(unitErr)
			select {
			case err := <-unitErr:
				startErrs <- err
			default:
			}
		}(u)
	}
	allReturned := make(chan struct{})
	go func() {
		wg.Wait()
		close(allReturned)
	}()

	var firstErr error
	select {
	case firstErr = <-startErrs:
	case <-allReturned:
		select {
		case firstErr = <-startErrs:
		default:
			return
		}
	}

	errs := []error{firstErr}
	if stopErr := cu.Stop(false); stopErr != nil {
		var cuErr *CompositeUnitError
		if errors.As(stopErr, &cuErr) {
			errs = append(errs, cuErr.UnitErrors...)
		}
	}
	for drained := false; !drained; {
		select {
		case err := <-startErrs:
			errs = append(errs, err)
		default:
			drained = true
		}
	}
	fatalErr <- &CompositeUnitError{UnitErrors: errs}
}

// Stop stops all units concurrently. Only the first call does the work, later calls return nil.
func (cu *CompositeUnit) Stop(gracefully bool) error {
	if !cu.stopping.CompareAndSwap(false, true) {
		return nil
	}

	stopErrs := make([]error, len(cu.Units))
	var wg sync.WaitGroup
	for i, u := range cu.Units {
		wg.Add(1)
		go func(i int, u Unit) {
			defer wg.Done()
			stopErrs[i] = u.Stop(gracefully)
		}(i, u)
	}
	wg.Wait()

	var errs []error
	for _, err := range stopErrs {
		if err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return &CompositeUnitError{UnitErrors: errs}
}

func (cu *CompositeUnit) MustRegisterMetrics() {
	for _, u := range cu.Units {
		if mr, ok := u.(MetricsRegisterer); ok {
			mr.MustRegisterMetrics()
		}
	}
}

func (cu *CompositeUnit) UnregisterMetrics() {
	for _, u := range cu.Units {
		if mr, ok := u.(MetricsRegisterer); ok {
			mr.UnregisterMetrics()
		}
	}
}

// CompositeUnitError holds errors of several units. errors.Is and errors.As look into each of them.
type CompositeUnitError struct {
	UnitErrors []error
}

func (cue *CompositeUnitError) Error() string {
	msgs := make([]string, len(cue.UnitErrors))
	for i, err := range cue.UnitErrors {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

func (cue *CompositeUnitError) Unwrap() []error {
	return cue.UnitErrors
}
