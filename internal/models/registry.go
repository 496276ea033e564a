package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Requester is the person or institution on whose behalf requests are filed.
type Requester struct {
	ID     uint64  `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID *uint64 `gorm:"uniqueIndex" json:"user_id"` // At most one requester per user.
	User   *User   `gorm:"foreignKey:UserID" json:"-"`

	FirstName            string `gorm:"type:varchar(100);not null" json:"first_name" validate:"required,max=100"`
	LastName             string `gorm:"type:varchar(100);not null" json:"last_name" validate:"required,max=100"`
	ContactPersonEmail   string `gorm:"type:varchar(100);not null" json:"contact_person_email" validate:"required,email,max=100"`
	RequesterInstitution string `gorm:"type:varchar(100);not null;index" json:"requester_institution" validate:"required,max=100"`
	InstitutionLocation  string `gorm:"type:varchar(100);not null" json:"institution_location" validate:"required,max=100"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

// FullName joins first and last name.
func (r *Requester) FullName() string {
	return r.FirstName + " " + r.LastName
}

// Request is a sample donation request filed by a requester.
type Request struct {
	ID          uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	RequesterID uint64     `gorm:"not null;index" json:"requester_id" validate:"required"`
	Requester   *Requester `gorm:"foreignKey:RequesterID;constraint:OnDelete:RESTRICT" json:"-"`

	RequestDate           datatypes.Date  `gorm:"type:date;not null" json:"request_date"`
	TissueSampleQuantity  *int            `json:"tissue_sample_quantity" validate:"omitempty,min=0"`
	AliquotSampleQuantity *int            `json:"aliquot_sample_quantity" validate:"omitempty,min=0"`
	HasManifestFile       *bool           `json:"has_manifest_file"`
	ManifestStoragePath   *string         `gorm:"type:varchar(400)" json:"manifest_storage_path" validate:"omitempty,max=400"`
	BMTASentDate          *datatypes.Date `gorm:"column:b_mta_sent_date;type:date" json:"b_mta_sent_date"`
	MTASignedDate         *datatypes.Date `gorm:"column:mta_signed_date;type:date" json:"mta_signed_date"`
	MTAStoragePath        *string         `gorm:"column:mta_storage_path;type:varchar(200)" json:"mta_storage_path" validate:"omitempty,max=200"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

// Metadata is the taxonomic and collection record of one physical sample.
type Metadata struct {
	ID        uint64   `gorm:"primaryKey;autoIncrement" json:"id"`
	RequestID uint64   `gorm:"not null;index" json:"request_id" validate:"required"`
	Request   *Request `gorm:"foreignKey:RequestID;constraint:OnDelete:RESTRICT" json:"-"`

	OriginalSampleID     string          `gorm:"type:varchar(100);not null" json:"original_sample_id" validate:"required,max=100"`
	TaxonGroup           string          `gorm:"type:varchar(12);not null;index" json:"taxon_group" validate:"required,max=12"`
	Family               string          `gorm:"type:varchar(50);not null" json:"family" validate:"required,max=50"`
	Genus                string          `gorm:"type:varchar(45);not null" json:"genus" validate:"required,max=45"`
	ScientificName       string          `gorm:"type:varchar(100);not null" json:"scientific_name" validate:"required,max=100"`
	InterspecificEpithet string          `gorm:"type:varchar(50);not null" json:"interspecific_epithet" validate:"required,max=50"`
	CollectorSampleID    string          `gorm:"type:varchar(100);not null" json:"collector_sample_id" validate:"required,max=100"`
	CollectedBy          string          `gorm:"type:varchar(50);not null" json:"collected_by" validate:"required,max=50"`
	CollectorAffiliation string          `gorm:"type:varchar(50);not null" json:"collector_affiliation" validate:"required,max=50"`
	DateOfCollection     datatypes.Date  `gorm:"type:date;not null" json:"date_of_collection"`
	CollectionLocation   string          `gorm:"type:varchar(100);not null" json:"collection_location" validate:"required,max=100"`
	DecimalLatitude      decimal.Decimal `gorm:"type:decimal(10,8);not null" json:"decimal_latitude"`
	DecimalLongitude     decimal.Decimal `gorm:"type:decimal(11,8);not null" json:"decimal_longitude"`
	Habitat              string          `gorm:"type:text;not null" json:"habitat" validate:"required"`
	Elevation            int             `gorm:"not null" json:"elevation"`
	IdentifiedBy         string          `gorm:"type:varchar(50);not null" json:"identified_by" validate:"required,max=50"`
	VoucherID            string          `gorm:"type:varchar(50);not null" json:"voucher_id" validate:"required,max=50"`
	VoucherLink          *string         `gorm:"type:text" json:"voucher_link"`
	VoucherInstitution   string          `gorm:"type:varchar(100);not null" json:"voucher_institution" validate:"required,max=100"`

	SamplingPermitsRequired *bool   `json:"sampling_permits_required"`
	SamplingPermitsFilename *string `gorm:"type:varchar(100)" json:"sampling_permits_filename" validate:"omitempty,max=100"`
	NagoyaPermitsRequired   *bool   `json:"nagoya_permits_required"`
	NagoyaPermitsFilename   *string `gorm:"type:varchar(100)" json:"nagoya_permits_filename" validate:"omitempty,max=100"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

// TableName keeps the plural-free metadata name explicit.
func (Metadata) TableName() string { return "sample_metadata" }

// Shipment is a physical shipment sent for a request.
type Shipment struct {
	ID        uint64   `gorm:"primaryKey;autoIncrement" json:"id"`
	RequestID uint64   `gorm:"not null;index" json:"request_id" validate:"required"`
	Request   *Request `gorm:"foreignKey:RequestID;constraint:OnDelete:RESTRICT" json:"-"`

	ShipmentDate         *datatypes.Date `gorm:"type:date" json:"shipment_date"`
	AccessionDate        *datatypes.Date `gorm:"type:date" json:"accession_date"`
	IsCollectionBLabeled *bool           `gorm:"column:is_collection_b_labeled" json:"is_collection_b_labeled"`
	TrackingNumber       *string         `gorm:"type:varchar(45)" json:"tracking_number" validate:"omitempty,max=45"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

// Tissue is a tissue sample tracked by barcode.
type Tissue struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	RequestID  uint64    `gorm:"not null;index" json:"request_id" validate:"required"`
	Request    *Request  `gorm:"foreignKey:RequestID;constraint:OnDelete:RESTRICT" json:"-"`
	MetadataID uint64    `gorm:"not null;index" json:"metadata_id" validate:"required"`
	Metadata   *Metadata `gorm:"foreignKey:MetadataID;constraint:OnDelete:RESTRICT" json:"-"`
	ShipmentID *uint64   `gorm:"index" json:"shipment_id"` // Optional; nulled when the shipment is deleted.
	Shipment   *Shipment `gorm:"foreignKey:ShipmentID;constraint:OnDelete:SET NULL" json:"-"`

	TissueBarcode               *string `gorm:"type:varchar(15);uniqueIndex" json:"tissue_barcode" validate:"omitempty,max=15"`
	IsInJACQ                    bool    `gorm:"column:is_in_jacq;not null;default:false" json:"is_in_jacq"`
	TissueSampleStorageLocation string  `gorm:"type:varchar(45);not null;default:''" json:"tissue_sample_storage_location" validate:"max=45"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

// DnaAliquot is a DNA sub-sample tracked by QR code.
type DnaAliquot struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	RequestID  uint64    `gorm:"not null;index" json:"request_id" validate:"required"`
	Request    *Request  `gorm:"foreignKey:RequestID;constraint:OnDelete:RESTRICT" json:"-"`
	MetadataID uint64    `gorm:"not null;index" json:"metadata_id" validate:"required"`
	Metadata   *Metadata `gorm:"foreignKey:MetadataID;constraint:OnDelete:RESTRICT" json:"-"`
	ShipmentID *uint64   `gorm:"index" json:"shipment_id"` // Optional; nulled when the shipment is deleted.
	Shipment   *Shipment `gorm:"foreignKey:ShipmentID;constraint:OnDelete:SET NULL" json:"-"`

	DnaAliquotQRCode          *string `gorm:"column:dna_aliquot_qr_code;type:varchar(15);uniqueIndex" json:"dna_aliquot_qr_code" validate:"omitempty,max=15"`
	IsInDatabase              *bool   `json:"is_in_database"`
	DnaAliquotStorageLocation *string `gorm:"type:varchar(45)" json:"dna_aliquot_storage_location" validate:"omitempty,max=45"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}
