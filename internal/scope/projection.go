package scope

// FieldSet is the projection of one entity for one audience.
type FieldSet struct {
	Visible  map[string]struct{}
	Writable map[string]struct{}
}

// CanSee reports whether field appears in responses.
func (f FieldSet) CanSee(field string) bool {
	_, ok := f.Visible[field]
	return ok
}

// CanWrite reports whether field is accepted from request bodies.
func (f FieldSet) CanWrite(field string) bool {
	_, ok := f.Writable[field]
	return ok
}

// Project returns the visible subset of a full representation.
func (f FieldSet) Project(rep map[string]any) map[string]any {
	out := make(map[string]any, len(f.Visible))
	for k, v := range rep {
		if f.CanSee(k) {
			out[k] = v
		}
	}
	return out
}

// WritableOnly drops fields the audience may not write. Dropped fields are ignored, not rejected.
func (f FieldSet) WritableOnly(body map[string]any) map[string]any {
	out := make(map[string]any, len(body))
	for k, v := range body {
		if f.CanWrite(k) {
			out[k] = v
		}
	}
	return out
}

// entityFields describes the full field list of an entity and how each audience is restricted.
type entityFields struct {
	all           []string
	readOnly      []string // never writable through the API
	staffOnly     []string // hidden from non-staff
	staffWritable []string // visible to non-staff but read-only for them
}

var common = []string{"id", "created_at", "updated_at"}

var catalog = map[Entity]entityFields{
	Requesters: {
		all: []string{
			"user_id", "first_name", "last_name", "full_name", "contact_person_email",
			"requester_institution", "institution_location",
		},
		readOnly:  []string{"user_id", "full_name"},
		staffOnly: []string{"user_id"},
	},
	Requests: {
		all: []string{
			"requester_id", "requester_name", "requester_institution", "request_date",
			"tissue_sample_quantity", "aliquot_sample_quantity", "has_manifest_file",
			"manifest_storage_path", "b_mta_sent_date", "mta_signed_date", "mta_storage_path",
		},
		readOnly:      []string{"requester_name", "requester_institution"},
		staffOnly:     []string{"manifest_storage_path", "mta_storage_path"},
		staffWritable: []string{"b_mta_sent_date", "mta_signed_date", "has_manifest_file"},
	},
	Metadata: {
		all: []string{
			"request_id", "original_sample_id", "taxon_group", "family", "genus",
			"scientific_name", "interspecific_epithet", "collector_sample_id", "collected_by",
			"collector_affiliation", "date_of_collection", "collection_location",
			"decimal_latitude", "decimal_longitude", "habitat", "elevation", "identified_by",
			"voucher_id", "voucher_link", "voucher_institution", "sampling_permits_required",
			"sampling_permits_filename", "nagoya_permits_required", "nagoya_permits_filename",
		},
	},
	Shipments: {
		all: []string{
			"request_id", "shipment_date", "accession_date", "is_collection_b_labeled",
			"tracking_number",
		},
		staffWritable: []string{"accession_date", "is_collection_b_labeled"},
	},
	Tissues: {
		all: []string{
			"request_id", "metadata_id", "shipment_id", "metadata_sample_id", "scientific_name",
			"tissue_barcode", "is_in_jacq", "tissue_sample_storage_location",
		},
		readOnly:  []string{"metadata_sample_id", "scientific_name"},
		staffOnly: []string{"is_in_jacq", "tissue_sample_storage_location"},
	},
	DnaAliquots: {
		all: []string{
			"request_id", "metadata_id", "shipment_id", "metadata_sample_id", "scientific_name",
			"dna_aliquot_qr_code", "is_in_database", "dna_aliquot_storage_location",
		},
		readOnly:  []string{"metadata_sample_id", "scientific_name"},
		staffOnly: []string{"is_in_database", "dna_aliquot_storage_location"},
	},
}

// Projection returns the field set of entity for staff or non-staff callers.
func Projection(entity Entity, staff bool) FieldSet {
	def, ok := catalog[entity]
	if !ok {
		return FieldSet{Visible: map[string]struct{}{}, Writable: map[string]struct{}{}}
	}
	visible := toSet(common, def.all)
	writable := toSet(def.all)
	for _, f := range def.readOnly {
		delete(writable, f)
	}
	if staff {
		return FieldSet{Visible: visible, Writable: writable}
	}
	for _, f := range def.staffOnly {
		delete(visible, f)
		delete(writable, f)
	}
	for _, f := range def.staffWritable {
		delete(writable, f)
	}
	return FieldSet{Visible: visible, Writable: writable}
}

func toSet(lists ...[]string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, list := range lists {
		for _, f := range list {
			out[f] = struct{}{}
		}
	}
	return out
}
