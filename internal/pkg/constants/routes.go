package constants

// Static route and header constants
const (
	APIRoute   = "/api"
	APIv1Route = "/api/v1"

	// Response header carrying the remaining pack credits after a consumption
	HeaderDocumentsRemaining = "X-Documents-Remaining"
)
