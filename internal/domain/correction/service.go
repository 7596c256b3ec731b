package correction

import "context"

// CorrectionService files and reviews missing check-in/check-out requests
type CorrectionService interface {
	// Create files a pending request for a day that is missing a punch
	Create(ctx context.Context, req CreateRequest) (RequestResponse, error)

	// Review approves or rejects a pending request; approval ingests the correction punch
	Review(ctx context.Context, req ReviewRequest) (RequestResponse, error)

	// List retrieves requests
	List(ctx context.Context, filter Filter) ([]RequestResponse, error)
}
