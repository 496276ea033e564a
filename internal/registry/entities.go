package registry

import (
	"context"
	"strings"
	"time"

	"github.com/bgbm/dnastore/internal/apperr"
	"github.com/bgbm/dnastore/internal/models"
	"github.com/bgbm/dnastore/internal/scope"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Related-table subqueries used by search.
const (
	viaRequester         = "requests.requester_id IN (SELECT requesters.id FROM requesters WHERE %s)"
	viaShipmentRequester = "shipments.request_id IN (SELECT requests.id FROM requests JOIN requesters ON requesters.id = requests.requester_id WHERE %s)"
	viaTissueMetadata    = "tissues.metadata_id IN (SELECT sample_metadata.id FROM sample_metadata WHERE %s)"
	viaAliquotMetadata   = "dna_aliquots.metadata_id IN (SELECT sample_metadata.id FROM sample_metadata WHERE %s)"
)

var (
	maxLatitude  = decimal.NewFromInt(90)
	maxLongitude = decimal.NewFromInt(180)
)

// parentAliases accepts the short relation names as body keys.
var parentAliases = map[string]string{
	"requester": "requester_id",
	"request":   "request_id",
	"metadata":  "metadata_id",
	"shipment":  "shipment_id",
}

// refFilters registers a relation filter under its short and _id names.
func refFilters(filters map[string]filterField, names ...string) map[string]filterField {
	for _, name := range names {
		f := filterField{field: name + "_id", column: name + "_id", kind: filterID}
		filters[name] = f
		filters[name+"_id"] = f
	}
	return filters
}

func requesterDescriptor() descriptor[models.Requester] {
	return descriptor[models.Requester]{
		entity: scope.Requesters,
		search: []searchField{
			{column: "first_name"},
			{column: "last_name"},
			{column: "contact_person_email"},
			{column: "requester_institution"},
		},
		filters: map[string]filterField{
			"requester_institution": {field: "requester_institution", column: "requester_institution"},
			"institution_location":  {field: "institution_location", column: "institution_location"},
		},
		ordering: []string{"id", "created_at", "updated_at", "last_name", "first_name"},
		groupBy:  []string{"requester_institution", "institution_location"},
		idOf:     func(row *models.Requester) uint64 { return row.ID },
		extras: func(row *models.Requester) map[string]any {
			return map[string]any{"full_name": row.FullName()}
		},
		prepare: func(ctx context.Context, tx *gorm.DB, caller scope.Caller, row, before *models.Requester) error {
			if before != nil {
				row.UserID = before.UserID
				return nil
			}
			userID := caller.UserID
			var existing int64
			if errCount := tx.WithContext(ctx).Model(&models.Requester{}).Where("user_id = ?", userID).Count(&existing).Error; errCount != nil {
				return errCount
			}
			if existing > 0 {
				return duplicateRequester()
			}
			row.UserID = &userID
			return nil
		},
		beforeDelete: func(ctx context.Context, tx *gorm.DB, row *models.Requester) error {
			return refuseWithDependents(ctx, tx, "requester", "requester_id", row.ID, scope.Requests)
		},
		duplicate: func(error) error { return duplicateRequester() },
	}
}

func requestDescriptor() descriptor[models.Request] {
	return descriptor[models.Request]{
		entity:  scope.Requests,
		preload: []string{"Requester"},
		search: []searchField{
			{field: "requester_name", column: "requesters.first_name", via: viaRequester},
			{field: "requester_name", column: "requesters.last_name", via: viaRequester},
			{field: "requester_institution", column: "requesters.requester_institution", via: viaRequester},
		},
		filters: refFilters(map[string]filterField{
			"request_date": {field: "request_date", column: "request_date", kind: filterDate},
		}, "requester"),
		ordering: []string{"id", "created_at", "updated_at", "request_date", "mta_signed_date"},
		groupBy:  []string{"requester_id", "has_manifest_file"},
		dates:    []string{"request_date", "b_mta_sent_date", "mta_signed_date"},
		flags:    []string{"has_manifest_file"},
		refs:     []string{"requester_id"},
		aliases:  parentAliases,
		idOf:     func(row *models.Request) uint64 { return row.ID },
		extras: func(row *models.Request) map[string]any {
			if row.Requester == nil {
				return nil
			}
			return map[string]any{
				"requester_name":        row.Requester.FullName(),
				"requester_institution": row.Requester.RequesterInstitution,
			}
		},
		check: func(row *models.Request, fields apperr.FieldErrors) {
			if time.Time(row.RequestDate).IsZero() {
				fields.Add("request_date", "this field is required")
			}
		},
		prepare: func(ctx context.Context, tx *gorm.DB, caller scope.Caller, row, before *models.Request) error {
			if before != nil && before.RequesterID == row.RequesterID {
				return nil
			}
			_, errParent := requireParent(ctx, tx, caller, scope.Requesters, row.RequesterID, "requester_id")
			return errParent
		},
		beforeDelete: func(ctx context.Context, tx *gorm.DB, row *models.Request) error {
			return refuseWithDependents(ctx, tx, "request", "request_id", row.ID,
				scope.Metadata, scope.Shipments, scope.Tissues, scope.DnaAliquots)
		},
	}
}

func metadataDescriptor() descriptor[models.Metadata] {
	return descriptor[models.Metadata]{
		entity: scope.Metadata,
		search: []searchField{
			{column: "original_sample_id"},
			{column: "scientific_name"},
			{column: "family"},
			{column: "genus"},
			{column: "collected_by"},
			{column: "collection_location"},
			{column: "collector_sample_id"},
		},
		filters: refFilters(map[string]filterField{
			"taxon_group":  {field: "taxon_group", column: "taxon_group"},
			"family":       {field: "family", column: "family"},
			"genus":        {field: "genus", column: "genus"},
			"collected_by": {field: "collected_by", column: "collected_by"},
		}, "request"),
		ordering: []string{"id", "created_at", "updated_at", "date_of_collection", "scientific_name"},
		groupBy: []string{
			"taxon_group", "family", "genus", "collected_by", "request_id",
			"sampling_permits_required", "nagoya_permits_required",
		},
		dates:    []string{"date_of_collection"},
		flags:    []string{"sampling_permits_required", "nagoya_permits_required"},
		refs:     []string{"request_id"},
		decimals: []string{"decimal_latitude", "decimal_longitude"},
		aliases:  parentAliases,
		idOf:     func(row *models.Metadata) uint64 { return row.ID },
		check: func(row *models.Metadata, fields apperr.FieldErrors) {
			if time.Time(row.DateOfCollection).IsZero() {
				fields.Add("date_of_collection", "this field is required")
			}
			if row.DecimalLatitude.Abs().GreaterThan(maxLatitude) {
				fields.Add("decimal_latitude", "ensure latitude is between -90 and 90")
			}
			if row.DecimalLongitude.Abs().GreaterThan(maxLongitude) {
				fields.Add("decimal_longitude", "ensure longitude is between -180 and 180")
			}
		},
		prepare: func(ctx context.Context, tx *gorm.DB, caller scope.Caller, row, before *models.Metadata) error {
			if before != nil && before.RequestID == row.RequestID {
				return nil
			}
			if _, errParent := requireParent(ctx, tx, caller, scope.Requests, row.RequestID, "request_id"); errParent != nil {
				return errParent
			}
			if before != nil {
				return refuseMove(ctx, tx, "metadata", "metadata_id", row.ID)
			}
			return nil
		},
		beforeDelete: func(ctx context.Context, tx *gorm.DB, row *models.Metadata) error {
			return refuseWithDependents(ctx, tx, "metadata", "metadata_id", row.ID, scope.Tissues, scope.DnaAliquots)
		},
	}
}

func shipmentDescriptor() descriptor[models.Shipment] {
	return descriptor[models.Shipment]{
		entity: scope.Shipments,
		search: []searchField{
			{column: "tracking_number"},
			{column: "requesters.first_name", via: viaShipmentRequester},
			{column: "requesters.last_name", via: viaShipmentRequester},
		},
		filters: refFilters(map[string]filterField{
			"shipment_date":           {field: "shipment_date", column: "shipment_date", kind: filterDate},
			"is_collection_b_labeled": {field: "is_collection_b_labeled", column: "is_collection_b_labeled", kind: filterBool},
		}, "request"),
		ordering: []string{"id", "created_at", "updated_at", "shipment_date", "accession_date"},
		groupBy:  []string{"request_id", "is_collection_b_labeled"},
		dates:    []string{"shipment_date", "accession_date"},
		flags:    []string{"is_collection_b_labeled"},
		refs:     []string{"request_id"},
		aliases:  parentAliases,
		idOf:     func(row *models.Shipment) uint64 { return row.ID },
		prepare: func(ctx context.Context, tx *gorm.DB, caller scope.Caller, row, before *models.Shipment) error {
			if before != nil && before.RequestID == row.RequestID {
				return nil
			}
			if _, errParent := requireParent(ctx, tx, caller, scope.Requests, row.RequestID, "request_id"); errParent != nil {
				return errParent
			}
			if before != nil {
				return refuseMove(ctx, tx, "shipment", "shipment_id", row.ID)
			}
			return nil
		},
		beforeDelete: func(ctx context.Context, tx *gorm.DB, row *models.Shipment) error {
			for _, table := range []string{scope.Tissues.Table(), scope.DnaAliquots.Table()} {
				errDetach := tx.WithContext(ctx).Table(table).
					Where("shipment_id = ?", row.ID).
					Update("shipment_id", nil).Error
				if errDetach != nil {
					return errDetach
				}
			}
			return nil
		},
	}
}

func tissueDescriptor() descriptor[models.Tissue] {
	return descriptor[models.Tissue]{
		entity:  scope.Tissues,
		preload: []string{"Metadata"},
		search: []searchField{
			{column: "tissue_barcode"},
			{field: "tissue_sample_storage_location", column: "tissue_sample_storage_location"},
			{column: "sample_metadata.scientific_name", via: viaTissueMetadata},
			{column: "sample_metadata.original_sample_id", via: viaTissueMetadata},
		},
		filters: refFilters(map[string]filterField{
			"is_in_jacq":                     {field: "is_in_jacq", column: "is_in_jacq", kind: filterBool},
			"tissue_sample_storage_location": {field: "tissue_sample_storage_location", column: "tissue_sample_storage_location"},
		}, "request", "metadata", "shipment"),
		ordering: []string{"id", "created_at", "updated_at", "tissue_barcode"},
		groupBy:  []string{"request_id", "shipment_id", "is_in_jacq", "tissue_sample_storage_location"},
		flags:    []string{"is_in_jacq"},
		refs:     []string{"request_id", "metadata_id", "shipment_id"},
		aliases:  parentAliases,
		idOf:     func(row *models.Tissue) uint64 { return row.ID },
		extras: func(row *models.Tissue) map[string]any {
			return sampleExtras(row.Metadata)
		},
		prepare: func(ctx context.Context, tx *gorm.DB, caller scope.Caller, row, _ *models.Tissue) error {
			if errParents := requireSampleParents(ctx, tx, caller, row.RequestID, row.MetadataID, row.ShipmentID); errParents != nil {
				return errParents
			}
			row.TissueBarcode = normalizeCode(row.TissueBarcode)
			return ensureCodeFree(ctx, tx, scope.Tissues, "tissue_barcode", row.TissueBarcode, row.ID)
		},
		duplicate: func(error) error { return duplicateCode("tissue_barcode") },
	}
}

func dnaAliquotDescriptor() descriptor[models.DnaAliquot] {
	return descriptor[models.DnaAliquot]{
		entity:  scope.DnaAliquots,
		preload: []string{"Metadata"},
		search: []searchField{
			{column: "dna_aliquot_qr_code"},
			{field: "dna_aliquot_storage_location", column: "dna_aliquot_storage_location"},
			{column: "sample_metadata.scientific_name", via: viaAliquotMetadata},
			{column: "sample_metadata.original_sample_id", via: viaAliquotMetadata},
		},
		filters: refFilters(map[string]filterField{
			"is_in_database":               {field: "is_in_database", column: "is_in_database", kind: filterBool},
			"dna_aliquot_storage_location": {field: "dna_aliquot_storage_location", column: "dna_aliquot_storage_location"},
		}, "request", "metadata", "shipment"),
		ordering: []string{"id", "created_at", "updated_at", "dna_aliquot_qr_code"},
		groupBy:  []string{"request_id", "shipment_id", "is_in_database", "dna_aliquot_storage_location"},
		flags:    []string{"is_in_database"},
		refs:     []string{"request_id", "metadata_id", "shipment_id"},
		aliases:  parentAliases,
		idOf:     func(row *models.DnaAliquot) uint64 { return row.ID },
		extras: func(row *models.DnaAliquot) map[string]any {
			return sampleExtras(row.Metadata)
		},
		prepare: func(ctx context.Context, tx *gorm.DB, caller scope.Caller, row, _ *models.DnaAliquot) error {
			if errParents := requireSampleParents(ctx, tx, caller, row.RequestID, row.MetadataID, row.ShipmentID); errParents != nil {
				return errParents
			}
			row.DnaAliquotQRCode = normalizeCode(row.DnaAliquotQRCode)
			return ensureCodeFree(ctx, tx, scope.DnaAliquots, "dna_aliquot_qr_code", row.DnaAliquotQRCode, row.ID)
		},
		duplicate: func(error) error { return duplicateCode("dna_aliquot_qr_code") },
	}
}

// sampleExtras exposes the identifying metadata of a tissue or aliquot.
func sampleExtras(meta *models.Metadata) map[string]any {
	if meta == nil {
		return nil
	}
	return map[string]any{
		"metadata_sample_id": meta.OriginalSampleID,
		"scientific_name":    meta.ScientificName,
	}
}

// lookupParent reads a row of entity visible to caller and returns the request it belongs to.
func lookupParent(ctx context.Context, tx *gorm.DB, caller scope.Caller, entity scope.Entity, id uint64) (uint64, bool, error) {
	table := entity.Table()
	columns := []string{table + ".id"}
	hasRequest := entity != scope.Requesters && entity != scope.Requests
	if hasRequest {
		columns = append(columns, table+".request_id")
	}
	var ref struct {
		ID        uint64
		RequestID uint64
	}
	errScan := tx.WithContext(ctx).Table(table).
		Scopes(scope.For(caller, entity).Filter).
		Select(columns).
		Where(table+".id = ?", id).
		Limit(1).
		Scan(&ref).Error
	if errScan != nil {
		return 0, false, errScan
	}
	if ref.ID == 0 {
		return 0, false, nil
	}
	if !hasRequest {
		return ref.ID, true, nil
	}
	return ref.RequestID, true, nil
}

// requireParent rejects references to rows the caller cannot see.
func requireParent(ctx context.Context, tx *gorm.DB, caller scope.Caller, entity scope.Entity, id uint64, field string) (uint64, error) {
	requestID, found, errLookup := lookupParent(ctx, tx, caller, entity, id)
	if errLookup != nil {
		return 0, errLookup
	}
	if !found {
		return 0, apperr.Field(field, invalidPK(id))
	}
	return requestID, nil
}

// requireSampleParents checks that the metadata and shipment of a sample share its request.
func requireSampleParents(ctx context.Context, tx *gorm.DB, caller scope.Caller, requestID, metadataID uint64, shipmentID *uint64) error {
	fields := apperr.FieldErrors{}

	if _, found, errLookup := lookupParent(ctx, tx, caller, scope.Requests, requestID); errLookup != nil {
		return errLookup
	} else if !found {
		fields.Add("request_id", invalidPK(requestID))
	}

	metaRequest, found, errLookup := lookupParent(ctx, tx, caller, scope.Metadata, metadataID)
	if errLookup != nil {
		return errLookup
	}
	switch {
	case !found:
		fields.Add("metadata_id", invalidPK(metadataID))
	case metaRequest != requestID:
		fields.Add("metadata_id", "metadata must belong to the same request")
	}

	if shipmentID != nil {
		shipRequest, found, errLookup := lookupParent(ctx, tx, caller, scope.Shipments, *shipmentID)
		if errLookup != nil {
			return errLookup
		}
		switch {
		case !found:
			fields.Add("shipment_id", invalidPK(*shipmentID))
		case shipRequest != requestID:
			fields.Add("shipment_id", "shipment must belong to the same request")
		}
	}
	return fields.Err()
}

// refuseWithDependents fails when any of the dependent tables still references id.
func refuseWithDependents(ctx context.Context, tx *gorm.DB, name, column string, id uint64, dependents ...scope.Entity) error {
	for _, dep := range dependents {
		var count int64
		if errCount := tx.WithContext(ctx).Table(dep.Table()).Where(column+" = ?", id).Count(&count).Error; errCount != nil {
			return errCount
		}
		if count > 0 {
			return apperr.New(apperr.KindValidation,
				"cannot delete this "+name+": it still has "+strings.ReplaceAll(dep.Table(), "_", " "))
		}
	}
	return nil
}

// refuseMove fails when a metadata or shipment with samples changes request.
func refuseMove(ctx context.Context, tx *gorm.DB, name, column string, id uint64) error {
	for _, dep := range []scope.Entity{scope.Tissues, scope.DnaAliquots} {
		var count int64
		if errCount := tx.WithContext(ctx).Table(dep.Table()).Where(column+" = ?", id).Count(&count).Error; errCount != nil {
			return errCount
		}
		if count > 0 {
			return apperr.Field("request_id", "cannot move a "+name+" that has tissues or aliquots to another request")
		}
	}
	return nil
}

// normalizeCode trims a barcode or QR code and maps blank to absent.
func normalizeCode(code *string) *string {
	if code == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*code)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// ensureCodeFree checks global uniqueness of a sample code across every owner.
func ensureCodeFree(ctx context.Context, tx *gorm.DB, entity scope.Entity, column string, code *string, selfID uint64) error {
	if code == nil {
		return nil
	}
	var count int64
	errCount := tx.WithContext(ctx).Table(entity.Table()).
		Where(column+" = ? AND id <> ?", *code, selfID).
		Count(&count).Error
	if errCount != nil {
		return errCount
	}
	if count > 0 {
		return duplicateCode(column)
	}
	return nil
}

func duplicateCode(field string) error {
	msg := strings.ReplaceAll(field, "_", " ") + " already exists"
	return &apperr.Error{Kind: apperr.KindDuplicateKey, Message: msg, Fields: map[string][]string{field: {msg}}}
}

func duplicateRequester() error {
	return apperr.New(apperr.KindDuplicateResource, "a requester profile already exists for this account")
}
