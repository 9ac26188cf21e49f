package campaign

import "errors"

// ErrMissingQuery is returned when a request has neither a query nor an analysis.
var ErrMissingQuery = errors.New("query or analysis is required")
