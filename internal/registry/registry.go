// Package registry implements the role-scoped CRUD contract over the sample
// tracking entities: requesters, requests, metadata, shipments, tissues and
// DNA aliquots.
package registry

import (
	"context"

	"github.com/bgbm/dnastore/internal/models"
	"github.com/bgbm/dnastore/internal/scope"
	"github.com/bgbm/dnastore/internal/storage"
	"gorm.io/gorm"
)

// Paging bounds for list queries.
const (
	defaultLimit = 20
	maxLimit     = 100
	// maxPage keeps (page-1)*limit far from integer overflow.
	maxPage = 100000
)

// ListQuery carries the list parameters accepted by every entity.
type ListQuery struct {
	Page     int
	Limit    int
	Search   string
	Ordering string
	Filters  map[string]string
}

// normalize clamps paging to the accepted range.
func (q ListQuery) normalize() ListQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Page > maxPage {
		q.Page = maxPage
	}
	if q.Limit < 1 || q.Limit > maxLimit {
		q.Limit = defaultLimit
	}
	return q
}

// Page is one page of projected rows.
type Page struct {
	Results []map[string]any `json:"results"`
	Count   int64            `json:"count"`
	Page    int              `json:"page"`
	Limit   int              `json:"limit"`
}

// Resource is the scoped CRUD surface of one entity. Bodies and results use
// the JSON field names of the entity.
type Resource interface {
	Entity() scope.Entity
	List(ctx context.Context, caller scope.Caller, q ListQuery) (*Page, error)
	Get(ctx context.Context, caller scope.Caller, id uint64) (map[string]any, error)
	Create(ctx context.Context, caller scope.Caller, body map[string]any) (map[string]any, error)
	Update(ctx context.Context, caller scope.Caller, id uint64, body map[string]any) (map[string]any, error)
	Delete(ctx context.Context, caller scope.Caller, id uint64) error
	Stats(ctx context.Context, caller scope.Caller, groupBy string) (*Stats, error)
}

// Service exposes every registry entity plus the cross-entity reads.
type Service struct {
	db   *gorm.DB
	docs storage.DocumentStore

	requesters  *resource[models.Requester]
	requests    *resource[models.Request]
	metadata    *resource[models.Metadata]
	shipments   *resource[models.Shipment]
	tissues     *resource[models.Tissue]
	dnaAliquots *resource[models.DnaAliquot]
}

// NewService constructs a Service. docs may be nil when document storage is not configured.
func NewService(db *gorm.DB, docs storage.DocumentStore) *Service {
	return &Service{
		db:          db,
		docs:        docs,
		requesters:  &resource[models.Requester]{db: db, desc: requesterDescriptor()},
		requests:    &resource[models.Request]{db: db, desc: requestDescriptor()},
		metadata:    &resource[models.Metadata]{db: db, desc: metadataDescriptor()},
		shipments:   &resource[models.Shipment]{db: db, desc: shipmentDescriptor()},
		tissues:     &resource[models.Tissue]{db: db, desc: tissueDescriptor()},
		dnaAliquots: &resource[models.DnaAliquot]{db: db, desc: dnaAliquotDescriptor()},
	}
}

// Resource returns the CRUD surface of entity.
func (s *Service) Resource(entity scope.Entity) (Resource, bool) {
	switch entity {
	case scope.Requesters:
		return s.requesters, true
	case scope.Requests:
		return s.requests, true
	case scope.Metadata:
		return s.metadata, true
	case scope.Shipments:
		return s.shipments, true
	case scope.Tissues:
		return s.tissues, true
	case scope.DnaAliquots:
		return s.dnaAliquots, true
	default:
		return nil, false
	}
}

// Requesters returns the requester resource.
func (s *Service) Requesters() Resource { return s.requesters }

// Requests returns the request resource.
func (s *Service) Requests() Resource { return s.requests }

// Metadata returns the metadata resource.
func (s *Service) Metadata() Resource { return s.metadata }

// Shipments returns the shipment resource.
func (s *Service) Shipments() Resource { return s.shipments }

// Tissues returns the tissue resource.
func (s *Service) Tissues() Resource { return s.tissues }

// DnaAliquots returns the DNA aliquot resource.
func (s *Service) DnaAliquots() Resource { return s.dnaAliquots }
