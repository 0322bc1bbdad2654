package monitor

import (
	"github.com/rs/zerolog"
)

// LogObserver is the built-in result consumer: it logs newly appearing
// slots so an operator tailing the log sees availability changes without
// any external dispatcher attached.
type LogObserver struct {
	Log zerolog.Logger
}

func (o LogObserver) OnResult(sessionID string, slots []AppointmentSlot) {
	log := o.Log.With().Str("session", sessionID).Logger()
	for _, slot := range slots {
		log.Info().
			Str("office", slot.LocationName).
			Str("date", slot.Date).
			Str("time", slot.Time).
			Msg("slot available")
	}
	if len(slots) == 0 {
		log.Debug().Msg("no slots available")
	}
}
