package sync

import "time"

// HTTPRequestTimeout is the default timeout for all HTTP requests to the
// Analytics Data API.
const HTTPRequestTimeout = 60 * time.Second
