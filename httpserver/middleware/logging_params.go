/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"sync"
	"time"

	"github.com/ssgreg/logf"

	"github.com/acronis/task-gateway/log"
)

// LoggingParams collects fields that handlers add to the "response completed" entry
// (authenticated user, upstream latency and the like).
// It is safe for concurrent use, since upstream round trippers may run in other goroutines.
type LoggingParams struct {
	mu        sync.Mutex
	fields    []log.Field
	timeSlots timeSlots
}

// ExtendFields adds fields to the entry.
func (lp *LoggingParams) ExtendFields(fields ...log.Field) {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	lp.fields = append(lp.fields, fields...)
}

// AddTimeSlotDurationInMs adds dur to the named slot of the "time_slots" object.
// Repeated calls with the same name accumulate.
func (lp *LoggingParams) AddTimeSlotDurationInMs(name string, dur time.Duration) {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	for i := range lp.timeSlots {
		if lp.timeSlots[i].name == name {
			lp.timeSlots[i].ms += dur.Milliseconds()
			return
		}
	}
	lp.timeSlots = append(lp.timeSlots, timeSlot{name: name, ms: dur.Milliseconds()})
}

func (lp *LoggingParams) fieldsToLog() []log.Field {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	fields := make([]log.Field, 0, len(lp.fields)+1)
	fields = append(fields, lp.fields...)
	if len(lp.timeSlots) != 0 {
		slots := append(timeSlots(nil), lp.timeSlots...)
		fields = append(fields, log.Field{Key: "time_slots", Type: logf.FieldTypeObject, Any: slots})
	}
	return fields
}

type timeSlot struct {
	name string
	ms   int64
}

// timeSlots is encoded as a JSON object in the order slots were added.
type timeSlots []timeSlot

func (ts timeSlots) EncodeLogfObject(e logf.FieldEncoder) error {
	for _, slot := range ts {
		e.EncodeFieldInt64(slot.name, slot.ms)
	}
	return nil
}
