package apperr

import (
	"github.com/rs/zerolog"
)

// Reporter writes failures to the operator log. Production entries carry only the label.
type Reporter struct {
	log        zerolog.Logger
	production bool
}

func NewReporter(log zerolog.Logger, production bool) *Reporter {
	return &Reporter{log: log, production: production}
}

func (r *Reporter) LogError(label string, v any) {
	event := r.log.Error().Str("context", label)
	if r.production {
		event.Msg("an error occurred")
		return
	}

	switch val := v.(type) {
	case error:
		event = event.Err(val)
	case nil:
	default:
		event = event.Interface("error", val)
	}
	event.Msg("request failed")
}
