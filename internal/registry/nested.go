package registry

import (
	"context"

	"github.com/bgbm/dnastore/internal/scope"
)

// RequesterRequests lists the requests of a visible requester.
func (s *Service) RequesterRequests(ctx context.Context, caller scope.Caller, requesterID uint64) ([]map[string]any, error) {
	if _, errGet := s.requesters.Get(ctx, caller, requesterID); errGet != nil {
		return nil, errGet
	}
	return s.requests.listBy(ctx, caller, "requester_id", requesterID)
}

// RequestMetadata lists the metadata of a visible request.
func (s *Service) RequestMetadata(ctx context.Context, caller scope.Caller, requestID uint64) ([]map[string]any, error) {
	if _, errGet := s.requests.Get(ctx, caller, requestID); errGet != nil {
		return nil, errGet
	}
	return s.metadata.listBy(ctx, caller, "request_id", requestID)
}

// RequestShipments lists the shipments of a visible request.
func (s *Service) RequestShipments(ctx context.Context, caller scope.Caller, requestID uint64) ([]map[string]any, error) {
	if _, errGet := s.requests.Get(ctx, caller, requestID); errGet != nil {
		return nil, errGet
	}
	return s.shipments.listBy(ctx, caller, "request_id", requestID)
}
