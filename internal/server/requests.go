package server

import (
	"net/url"
	"strconv"

	"github.com/oszuidwest/zwfm-speakerswitch/internal/eventlog"
	"github.com/oszuidwest/zwfm-speakerswitch/internal/types"
)

// DefaultEventsLimit is used when /api/events has no limit parameter.
const DefaultEventsLimit = 50

// EventsQuery holds the query parameters of GET /api/events.
type EventsQuery struct {
	Limit  int    `json:"limit" validate:"gte=1,lte=500"`
	Offset int    `json:"offset" validate:"gte=0"`
	Filter string `json:"filter" validate:"omitempty,oneof=switch confirm health"`
}

// TypeFilter returns the parsed event filter.
func (q EventsQuery) TypeFilter() eventlog.TypeFilter {
	f, _ := eventlog.ParseFilter(q.Filter)
	return f
}

// ParseEventsQuery reads and validates the /api/events query string.
// A non-nil error is a *types.ValidationError.
func ParseEventsQuery(values url.Values) (EventsQuery, error) {
	q := EventsQuery{Limit: DefaultEventsLimit, Filter: values.Get("filter")}
	verr := types.NewValidationError()

	parseInt := func(name string, dst *int) {
		raw := values.Get(name)
		if raw == "" {
			return
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			verr.Add(name, "must be an integer", raw)
			return
		}
		*dst = n
	}
	parseInt("limit", &q.Limit)
	parseInt("offset", &q.Offset)
	if verr.HasErrors() {
		return q, verr
	}

	if err := Validate(&q); err != nil {
		return q, err
	}
	return q, nil
}
