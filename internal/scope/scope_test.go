package scope

import (
	"fmt"
	"testing"
	"time"

	"github.com/bgbm/dnastore/internal/models"
	"github.com/glebarez/sqlite"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func TestProjectionNonStaffHidesAdministrativeFields(t *testing.T) {
	cases := map[Entity][]string{
		Requesters:  {"user_id"},
		Requests:    {"manifest_storage_path", "mta_storage_path"},
		Tissues:     {"is_in_jacq", "tissue_sample_storage_location"},
		DnaAliquots: {"is_in_database", "dna_aliquot_storage_location"},
	}
	for entity, hidden := range cases {
		staff := Projection(entity, true)
		public := Projection(entity, false)
		for _, field := range hidden {
			if !staff.CanSee(field) {
				t.Fatalf("%s: staff must see %s", entity, field)
			}
			if public.CanSee(field) || public.CanWrite(field) {
				t.Fatalf("%s: non-staff must not see or write %s", entity, field)
			}
		}
	}
}

func TestProjectionReadOnlyForNonStaff(t *testing.T) {
	cases := map[Entity][]string{
		Requests:  {"b_mta_sent_date", "mta_signed_date", "has_manifest_file"},
		Shipments: {"accession_date", "is_collection_b_labeled"},
	}
	for entity, fields := range cases {
		staff := Projection(entity, true)
		public := Projection(entity, false)
		for _, field := range fields {
			if !public.CanSee(field) {
				t.Fatalf("%s: non-staff should see %s", entity, field)
			}
			if public.CanWrite(field) {
				t.Fatalf("%s: non-staff must not write %s", entity, field)
			}
			if !staff.CanWrite(field) {
				t.Fatalf("%s: staff should write %s", entity, field)
			}
		}
	}
}

func TestProjectionNeverWritesIdentity(t *testing.T) {
	for _, entity := range Entities {
		for _, staff := range []bool{true, false} {
			fs := Projection(entity, staff)
			for _, field := range []string{"id", "created_at", "updated_at"} {
				if !fs.CanSee(field) || fs.CanWrite(field) {
					t.Fatalf("%s staff=%v: %s must be visible and read-only", entity, staff, field)
				}
			}
		}
	}
	if Projection(Requesters, true).CanWrite("user_id") {
		t.Fatalf("requester user_id is assigned by the server")
	}
}

func TestProjectAndWritableOnly(t *testing.T) {
	fs := Projection(Tissues, false)
	rep := fs.Project(map[string]any{"id": 1, "tissue_barcode": "B1", "is_in_jacq": true})
	if _, ok := rep["is_in_jacq"]; ok {
		t.Fatalf("projected representation leaked is_in_jacq")
	}
	if rep["tissue_barcode"] != "B1" {
		t.Fatalf("projected representation lost tissue_barcode")
	}
	body := fs.WritableOnly(map[string]any{"id": 9, "tissue_barcode": "B2", "tissue_sample_storage_location": "A1"})
	if len(body) != 1 || body["tissue_barcode"] != "B2" {
		t.Fatalf("unexpected writable body %v", body)
	}
}

func TestRowFilterRestrictsNonStaff(t *testing.T) {
	dsn := fmt.Sprintf("file:scope_%d?mode=memory&cache=shared", time.Now().UnixNano())
	conn, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open sqlite: %v", errOpen)
	}
	if errMigrate := conn.AutoMigrate(&models.User{}, &models.Requester{}, &models.Request{}, &models.Metadata{}, &models.Shipment{}); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	now := time.Now().UTC()
	owners := []*models.User{
		{Username: "alice", Email: "alice@example.org", Password: "x", DateJoined: now},
		{Username: "bob", Email: "bob@example.org", Password: "x", DateJoined: now},
	}
	for _, u := range owners {
		if errCreate := conn.Create(u).Error; errCreate != nil {
			t.Fatalf("create user: %v", errCreate)
		}
		uid := u.ID
		requester := models.Requester{UserID: &uid, FirstName: u.Username, LastName: "X", ContactPersonEmail: u.Email, RequesterInstitution: "BGBM", InstitutionLocation: "Berlin"}
		if errCreate := conn.Create(&requester).Error; errCreate != nil {
			t.Fatalf("create requester: %v", errCreate)
		}
		request := models.Request{RequesterID: requester.ID, RequestDate: datatypes.Date(now)}
		if errCreate := conn.Create(&request).Error; errCreate != nil {
			t.Fatalf("create request: %v", errCreate)
		}
		if errCreate := conn.Create(&models.Shipment{RequestID: request.ID}).Error; errCreate != nil {
			t.Fatalf("create shipment: %v", errCreate)
		}
	}

	alice := Caller{UserID: owners[0].ID}
	var requests []models.Request
	if errFind := conn.Model(&models.Request{}).Scopes(For(alice, Requests).Filter).Find(&requests).Error; errFind != nil {
		t.Fatalf("find requests: %v", errFind)
	}
	if len(requests) != 1 {
		t.Fatalf("alice should see one request, got %d", len(requests))
	}
	var shipments []models.Shipment
	if errFind := conn.Model(&models.Shipment{}).Scopes(For(alice, Shipments).Filter).Find(&shipments).Error; errFind != nil {
		t.Fatalf("find shipments: %v", errFind)
	}
	if len(shipments) != 1 || shipments[0].RequestID != requests[0].ID {
		t.Fatalf("alice should see only her shipment, got %+v", shipments)
	}

	var all []models.Shipment
	conn.Model(&models.Shipment{}).Scopes(For(Caller{Staff: true}, Shipments).Filter).Find(&all)
	if len(all) != 2 {
		t.Fatalf("staff should see all shipments, got %d", len(all))
	}

	var none []models.Requester
	conn.Model(&models.Requester{}).Scopes(For(Caller{}, Requesters).Filter).Find(&none)
	if len(none) != 0 {
		t.Fatalf("anonymous caller must see nothing")
	}
}
