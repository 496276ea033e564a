// Package scope decides which registry rows and fields a caller may see or write.
package scope

import (
	"gorm.io/gorm"
)

// Entity identifies a registry entity by its table name.
type Entity string

// Registry entities.
const (
	Requesters  Entity = "requesters"
	Requests    Entity = "requests"
	Metadata    Entity = "sample_metadata"
	Shipments   Entity = "shipments"
	Tissues     Entity = "tissues"
	DnaAliquots Entity = "dna_aliquots"
)

// Entities lists every registry entity in dependency order.
var Entities = []Entity{Requesters, Requests, Metadata, Shipments, Tissues, DnaAliquots}

// Table returns the backing table name.
func (e Entity) Table() string { return string(e) }

// Caller is the authenticated identity a registry operation runs for.
type Caller struct {
	UserID uint64
	Staff  bool // is_staff or profile role admin
}

// Scope bundles the row filter and field projection for one caller and entity.
type Scope struct {
	Filter func(*gorm.DB) *gorm.DB
	Fields FieldSet
}

// For returns the scope of entity for caller.
func For(caller Caller, entity Entity) Scope {
	return Scope{
		Filter: rowFilter(caller, entity),
		Fields: Projection(entity, caller.Staff),
	}
}

const (
	ownedRequesters = "SELECT requesters.id FROM requesters WHERE requesters.user_id = ?"
	ownedRequests   = "SELECT requests.id FROM requests JOIN requesters ON requesters.id = requests.requester_id WHERE requesters.user_id = ?"
)

// rowFilter restricts non-staff callers to rows reachable from their own requester.
func rowFilter(caller Caller, entity Entity) func(*gorm.DB) *gorm.DB {
	if caller.Staff {
		return func(db *gorm.DB) *gorm.DB { return db }
	}
	table := entity.Table()
	return func(db *gorm.DB) *gorm.DB {
		if caller.UserID == 0 {
			return db.Where("1 = 0")
		}
		switch entity {
		case Requesters:
			return db.Where(table+".user_id = ?", caller.UserID)
		case Requests:
			return db.Where(table+".requester_id IN ("+ownedRequesters+")", caller.UserID)
		case Metadata, Shipments, Tissues, DnaAliquots:
			return db.Where(table+".request_id IN ("+ownedRequests+")", caller.UserID)
		default:
			return db.Where("1 = 0")
		}
	}
}
