package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/bgbm/dnastore/internal/apperr"
	"github.com/bgbm/dnastore/internal/db"
	"github.com/bgbm/dnastore/internal/models"
	"github.com/bgbm/dnastore/internal/scope"
	"github.com/bgbm/dnastore/internal/storage"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeStore struct {
	uploads   []string
	downloads []string
}

func (f *fakeStore) PresignUpload(_ context.Context, key, _ string) (*storage.PresignedURL, error) {
	f.uploads = append(f.uploads, key)
	return &storage.PresignedURL{URL: "https://s3.test/" + key + "?sig=put", Method: http.MethodPut, ExpiresAt: time.Now().Add(time.Minute)}, nil
}

func (f *fakeStore) PresignDownload(_ context.Context, key string) (*storage.PresignedURL, error) {
	f.downloads = append(f.downloads, key)
	return &storage.PresignedURL{URL: "https://s3.test/" + key + "?sig=get", Method: http.MethodGet, ExpiresAt: time.Now().Add(time.Minute)}, nil
}

type fixture struct {
	svc   *Service
	db    *gorm.DB
	store *fakeStore
	alice scope.Caller
	bob   scope.Caller
	staff scope.Caller
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:registry_%d?mode=memory&cache=shared", time.Now().UnixNano())
	conn, errOpen := db.Open(dsn, db.Options{MaxOpenConns: 1})
	require.NoError(t, errOpen)
	require.NoError(t, db.Migrate(conn))

	f := &fixture{db: conn, store: &fakeStore{}}
	f.svc = NewService(conn, f.store)
	f.alice = scope.Caller{UserID: createUser(t, conn, "alice", false)}
	f.bob = scope.Caller{UserID: createUser(t, conn, "bob", false)}
	f.staff = scope.Caller{UserID: createUser(t, conn, "curator", true), Staff: true}
	return f
}

func createUser(t *testing.T, conn *gorm.DB, username string, staff bool) uint64 {
	t.Helper()
	user := models.User{
		Username:   username,
		Email:      username + "@bgbm.test",
		Password:   "unused",
		IsActive:   true,
		IsStaff:    staff,
		DateJoined: time.Now().UTC(),
	}
	require.NoError(t, conn.Create(&user).Error)
	return user.ID
}

func idOf(t *testing.T, rep map[string]any) uint64 {
	t.Helper()
	n, ok := rep["id"].(json.Number)
	require.True(t, ok, "id missing in %v", rep)
	id, err := n.Int64()
	require.NoError(t, err)
	return uint64(id)
}

func requireKind(t *testing.T, err error, kind apperr.Kind) *apperr.Error {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, apperr.KindOf(err), "unexpected error: %v", err)
	var appErr *apperr.Error
	require.True(t, errors.As(err, &appErr))
	return appErr
}

// chain is one owner's requester → request → metadata path.
type chain struct {
	requester, request, metadata uint64
}

func (f *fixture) seed(t *testing.T, caller scope.Caller, institution string) chain {
	t.Helper()
	ctx := context.Background()
	requester, err := f.svc.Requesters().Create(ctx, caller, map[string]any{
		"first_name":            "Ana",
		"last_name":             "Lopez",
		"contact_person_email":  "ana@" + institution + ".test",
		"requester_institution": institution,
		"institution_location":  "Berlin",
	})
	require.NoError(t, err)
	request, err := f.svc.Requests().Create(ctx, caller, map[string]any{
		"requester":              idOf(t, requester),
		"request_date":           "2024-03-01",
		"tissue_sample_quantity": 3,
	})
	require.NoError(t, err)
	meta, err := f.svc.Metadata().Create(ctx, caller, metadataBody(idOf(t, request), "Quercus robur", "PLANT"))
	require.NoError(t, err)
	return chain{requester: idOf(t, requester), request: idOf(t, request), metadata: idOf(t, meta)}
}

func metadataBody(requestID uint64, scientificName, taxonGroup string) map[string]any {
	parts := strings.SplitN(scientificName, " ", 2)
	return map[string]any{
		"request_id":            requestID,
		"original_sample_id":    "S-" + parts[0],
		"taxon_group":           taxonGroup,
		"family":                "Fagaceae",
		"genus":                 parts[0],
		"scientific_name":       scientificName,
		"interspecific_epithet": parts[len(parts)-1],
		"collector_sample_id":   "C-1",
		"collected_by":          "J. Smith",
		"collector_affiliation": "BGBM",
		"date_of_collection":    "2023-06-15",
		"collection_location":   "Dahlem",
		"decimal_latitude":      "52.45560000",
		"decimal_longitude":     "13.30540000",
		"habitat":               "mixed forest",
		"elevation":             45,
		"identified_by":         "J. Smith",
		"voucher_id":            "V-1",
		"voucher_institution":   "B",
	}
}

func TestRequesterOwnedByCallerAndUnique(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.seed(t, f.alice, "bgbm")

	own, err := f.svc.Requesters().Get(ctx, f.alice, c.requester)
	require.NoError(t, err)
	require.NotContains(t, own, "user_id")
	require.Equal(t, "Ana Lopez", own["full_name"])

	asStaff, err := f.svc.Requesters().Get(ctx, f.staff, c.requester)
	require.NoError(t, err)
	require.Equal(t, json.Number(fmt.Sprint(f.alice.UserID)), asStaff["user_id"])

	_, err = f.svc.Requesters().Create(ctx, f.alice, map[string]any{
		"first_name":            "Ana",
		"last_name":             "Again",
		"contact_person_email":  "ana@bgbm.test",
		"requester_institution": "bgbm",
		"institution_location":  "Berlin",
		"user_id":               f.bob.UserID,
	})
	requireKind(t, err, apperr.KindDuplicateResource)
}

func TestNonStaffListsOnlyOwnRows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.seed(t, f.alice, "bgbm")
	b := f.seed(t, f.bob, "kew")

	for _, entity := range scope.Entities {
		res, ok := f.svc.Resource(entity)
		require.True(t, ok)
		page, err := res.List(ctx, f.alice, ListQuery{})
		require.NoError(t, err)
		for _, row := range page.Results {
			require.NotEqual(t, json.Number(fmt.Sprint(b.request)), row["request_id"], "%s leaked a foreign row", entity)
		}
	}

	page, err := f.svc.Requests().List(ctx, f.alice, ListQuery{})
	require.NoError(t, err)
	require.EqualValues(t, 1, page.Count)
	require.Equal(t, a.request, idOf(t, page.Results[0]))

	page, err = f.svc.Requests().List(ctx, f.staff, ListQuery{})
	require.NoError(t, err)
	require.EqualValues(t, 2, page.Count)

	_, err = f.svc.Metadata().Get(ctx, f.alice, b.metadata)
	requireKind(t, err, apperr.KindNotFound)
	_, err = f.svc.Requests().Update(ctx, f.alice, b.request, map[string]any{"tissue_sample_quantity": 9})
	requireKind(t, err, apperr.KindNotFound)
	requireKind(t, f.svc.Requests().Delete(ctx, f.alice, b.request), apperr.KindNotFound)
}

func TestForeignParentIsInvalidPK(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, f.alice, "bgbm")
	b := f.seed(t, f.bob, "kew")

	_, err := f.svc.Requests().Create(ctx, f.alice, map[string]any{
		"requester_id": b.requester,
		"request_date": "2024-04-01",
	})
	appErr := requireKind(t, err, apperr.KindValidation)
	require.Contains(t, appErr.Fields["requester_id"][0], "invalid pk")

	_, err = f.svc.Metadata().Create(ctx, f.alice, metadataBody(9999, "Fagus sylvatica", "PLANT"))
	appErr = requireKind(t, err, apperr.KindValidation)
	require.Contains(t, appErr.Fields, "request_id")
}

func TestSampleParentsMustShareRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.seed(t, f.alice, "bgbm")

	second, err := f.svc.Requests().Create(ctx, f.alice, map[string]any{
		"requester_id": a.requester,
		"request_date": "2024-05-01",
	})
	require.NoError(t, err)

	_, err = f.svc.Tissues().Create(ctx, f.alice, map[string]any{
		"request_id":  idOf(t, second),
		"metadata_id": a.metadata,
	})
	appErr := requireKind(t, err, apperr.KindValidation)
	require.Equal(t, []string{"metadata must belong to the same request"}, appErr.Fields["metadata_id"])
}

func TestDuplicateSampleCodes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.seed(t, f.alice, "bgbm")
	b := f.seed(t, f.bob, "kew")

	_, err := f.svc.Tissues().Create(ctx, f.alice, map[string]any{
		"request": a.request, "metadata": a.metadata, "tissue_barcode": "B100",
	})
	require.NoError(t, err)

	_, err = f.svc.Tissues().Create(ctx, f.bob, map[string]any{
		"request": b.request, "metadata": b.metadata, "tissue_barcode": " B100 ",
	})
	appErr := requireKind(t, err, apperr.KindDuplicateKey)
	require.Contains(t, appErr.Fields, "tissue_barcode")

	_, err = f.svc.DnaAliquots().Create(ctx, f.alice, map[string]any{
		"request": a.request, "metadata": a.metadata, "dna_aliquot_qr_code": "QR1",
	})
	require.NoError(t, err)
	_, err = f.svc.DnaAliquots().Create(ctx, f.alice, map[string]any{
		"request": a.request, "metadata": a.metadata, "dna_aliquot_qr_code": "QR1",
	})
	requireKind(t, err, apperr.KindDuplicateKey)

	// Blank codes are absent, so several may coexist.
	for i := 0; i < 2; i++ {
		_, err = f.svc.Tissues().Create(ctx, f.alice, map[string]any{
			"request": a.request, "metadata": a.metadata, "tissue_barcode": "",
		})
		require.NoError(t, err)
	}
}

func TestShipmentDeleteDetachesSamples(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.seed(t, f.alice, "bgbm")

	shipment, err := f.svc.Shipments().Create(ctx, f.alice, map[string]any{
		"request_id": a.request, "shipment_date": "2024-03-10", "tracking_number": "DHL-1",
	})
	require.NoError(t, err)
	tissue, err := f.svc.Tissues().Create(ctx, f.alice, map[string]any{
		"request_id": a.request, "metadata_id": a.metadata, "shipment_id": idOf(t, shipment), "tissue_barcode": "T1",
	})
	require.NoError(t, err)
	aliquot, err := f.svc.DnaAliquots().Create(ctx, f.alice, map[string]any{
		"request_id": a.request, "metadata_id": a.metadata, "shipment": idOf(t, shipment),
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.Shipments().Delete(ctx, f.alice, idOf(t, shipment)))

	got, err := f.svc.Tissues().Get(ctx, f.alice, idOf(t, tissue))
	require.NoError(t, err)
	require.Nil(t, got["shipment_id"])
	got, err = f.svc.DnaAliquots().Get(ctx, f.alice, idOf(t, aliquot))
	require.NoError(t, err)
	require.Nil(t, got["shipment_id"])
}

func TestDeleteWithDependentsIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.seed(t, f.alice, "bgbm")

	requireKind(t, f.svc.Requesters().Delete(ctx, f.alice, a.requester), apperr.KindValidation)
	requireKind(t, f.svc.Requests().Delete(ctx, f.alice, a.request), apperr.KindValidation)

	tissue, err := f.svc.Tissues().Create(ctx, f.alice, map[string]any{"request": a.request, "metadata": a.metadata})
	require.NoError(t, err)
	requireKind(t, f.svc.Metadata().Delete(ctx, f.alice, a.metadata), apperr.KindValidation)

	require.NoError(t, f.svc.Tissues().Delete(ctx, f.alice, idOf(t, tissue)))
	require.NoError(t, f.svc.Metadata().Delete(ctx, f.alice, a.metadata))
	require.NoError(t, f.svc.Requests().Delete(ctx, f.alice, a.request))
	require.NoError(t, f.svc.Requesters().Delete(ctx, f.alice, a.requester))
}

func TestProjectionOnReadAndWrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.seed(t, f.alice, "bgbm")

	tissue, err := f.svc.Tissues().Create(ctx, f.alice, map[string]any{
		"request_id": a.request, "metadata_id": a.metadata,
		"is_in_jacq": true, "tissue_sample_storage_location": "Freezer 3",
	})
	require.NoError(t, err)
	require.NotContains(t, tissue, "is_in_jacq")
	require.NotContains(t, tissue, "tissue_sample_storage_location")
	require.Equal(t, "Quercus robur", tissue["scientific_name"])
	require.Equal(t, "S-Quercus", tissue["metadata_sample_id"])

	asStaff, err := f.svc.Tissues().Get(ctx, f.staff, idOf(t, tissue))
	require.NoError(t, err)
	require.Equal(t, false, asStaff["is_in_jacq"])
	require.Equal(t, "", asStaff["tissue_sample_storage_location"])

	updated, err := f.svc.Tissues().Update(ctx, f.staff, idOf(t, tissue), map[string]any{"is_in_jacq": 1})
	require.NoError(t, err)
	require.Equal(t, true, updated["is_in_jacq"])

	request, err := f.svc.Requests().Update(ctx, f.alice, a.request, map[string]any{
		"has_manifest_file":       true,
		"mta_signed_date":         "2024-04-02",
		"aliquot_sample_quantity": 2,
	})
	require.NoError(t, err)
	require.Nil(t, request["has_manifest_file"])
	require.Nil(t, request["mta_signed_date"])
	require.Equal(t, json.Number("2"), request["aliquot_sample_quantity"])
	require.Equal(t, "2024-03-01", request["request_date"])
	require.Equal(t, "Ana Lopez", request["requester_name"])
	require.NotContains(t, request, "manifest_storage_path")

	request, err = f.svc.Requests().Update(ctx, f.staff, a.request, map[string]any{"mta_signed_date": "2024-04-02"})
	require.NoError(t, err)
	require.Equal(t, "2024-04-02", request["mta_signed_date"])
	require.Contains(t, request, "manifest_storage_path")
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.seed(t, f.alice, "bgbm")

	body := metadataBody(a.request, "Quercus petraea", "PLANT")
	body["decimal_latitude"] = "95.1"
	body["date_of_collection"] = "15/06/2023"
	delete(body, "family")
	_, err := f.svc.Metadata().Create(ctx, f.alice, body)
	appErr := requireKind(t, err, apperr.KindValidation)
	require.Contains(t, appErr.Fields, "date_of_collection")

	body["date_of_collection"] = "2023-06-15"
	_, err = f.svc.Metadata().Create(ctx, f.alice, body)
	appErr = requireKind(t, err, apperr.KindValidation)
	require.Contains(t, appErr.Fields, "decimal_latitude")
	require.Equal(t, []string{"this field is required"}, appErr.Fields["family"])

	_, err = f.svc.Tissues().Create(ctx, f.alice, map[string]any{
		"request": a.request, "metadata": a.metadata, "tissue_barcode": "0123456789ABCDEF",
	})
	appErr = requireKind(t, err, apperr.KindValidation)
	require.Contains(t, appErr.Fields, "tissue_barcode")
}

func TestListFiltersSearchAndOrdering(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.seed(t, f.alice, "bgbm")
	_, err := f.svc.Metadata().Create(ctx, f.alice, metadataBody(a.request, "Apis mellifera", "ANIMAL"))
	require.NoError(t, err)

	page, err := f.svc.Metadata().List(ctx, f.alice, ListQuery{Filters: map[string]string{"taxon_group": "ANIMAL"}})
	require.NoError(t, err)
	require.EqualValues(t, 1, page.Count)
	require.Equal(t, "Apis mellifera", page.Results[0]["scientific_name"])

	page, err = f.svc.Metadata().List(ctx, f.alice, ListQuery{Search: "QUERCUS"})
	require.NoError(t, err)
	require.EqualValues(t, 1, page.Count)

	page, err = f.svc.Metadata().List(ctx, f.alice, ListQuery{Ordering: "scientific_name", Filters: map[string]string{"request": fmt.Sprint(a.request)}})
	require.NoError(t, err)
	require.Len(t, page.Results, 2)
	require.Equal(t, "Apis mellifera", page.Results[0]["scientific_name"])

	page, err = f.svc.Metadata().List(ctx, f.alice, ListQuery{Page: 2, Limit: 1})
	require.NoError(t, err)
	require.Len(t, page.Results, 1)
	require.EqualValues(t, 2, page.Count)

	page, err = f.svc.Metadata().List(ctx, f.alice, ListQuery{Page: math.MaxInt, Limit: maxLimit})
	require.NoError(t, err)
	require.Equal(t, maxPage, page.Page)
	require.Empty(t, page.Results)
	require.EqualValues(t, 2, page.Count)

	page, err = f.svc.Metadata().List(ctx, f.alice, ListQuery{Limit: 500})
	require.NoError(t, err)
	require.Equal(t, defaultLimit, page.Limit)

	_, err = f.svc.Metadata().List(ctx, f.alice, ListQuery{Ordering: "habitat"})
	requireKind(t, err, apperr.KindValidation)
	_, err = f.svc.Metadata().List(ctx, f.alice, ListQuery{Filters: map[string]string{"request": "abc"}})
	requireKind(t, err, apperr.KindValidation)

	page, err = f.svc.Requests().List(ctx, f.alice, ListQuery{Search: "lopez"})
	require.NoError(t, err)
	require.EqualValues(t, 1, page.Count)
}

func TestStatsAndSummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.seed(t, f.alice, "bgbm")
	f.seed(t, f.bob, "kew")
	_, err := f.svc.Metadata().Create(ctx, f.alice, metadataBody(a.request, "Apis mellifera", "ANIMAL"))
	require.NoError(t, err)
	_, err = f.svc.Tissues().Create(ctx, f.alice, map[string]any{"request": a.request, "metadata": a.metadata})
	require.NoError(t, err)

	stats, err := f.svc.Metadata().Stats(ctx, f.alice, "taxon_group")
	require.NoError(t, err)
	require.EqualValues(t, 2, stats.Total)
	require.Len(t, stats.Groups, 2)

	stats, err = f.svc.Metadata().Stats(ctx, f.staff, "taxon_group")
	require.NoError(t, err)
	require.EqualValues(t, 3, stats.Total)
	require.Equal(t, "PLANT", stats.Groups[0].Value)
	require.EqualValues(t, 2, stats.Groups[0].Count)

	_, err = f.svc.Tissues().Stats(ctx, f.alice, "is_in_jacq")
	requireKind(t, err, apperr.KindValidation)
	stats, err = f.svc.Tissues().Stats(ctx, f.staff, "is_in_jacq")
	require.NoError(t, err)
	require.Equal(t, false, stats.Groups[0].Value)

	summary, err := f.svc.Summary(ctx, f.alice)
	require.NoError(t, err)
	require.Equal(t, Summary{Requesters: 1, Requests: 1, Metadata: 2, Tissues: 1}, *summary)

	summary, err = f.svc.Summary(ctx, f.staff)
	require.NoError(t, err)
	require.EqualValues(t, 2, summary.Requesters)
	require.EqualValues(t, 3, summary.Metadata)
}

func TestNestedReads(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.seed(t, f.alice, "bgbm")
	b := f.seed(t, f.bob, "kew")
	_, err := f.svc.Shipments().Create(ctx, f.alice, map[string]any{"request": a.request})
	require.NoError(t, err)

	requests, err := f.svc.RequesterRequests(ctx, f.alice, a.requester)
	require.NoError(t, err)
	require.Len(t, requests, 1)

	metadata, err := f.svc.RequestMetadata(ctx, f.alice, a.request)
	require.NoError(t, err)
	require.Len(t, metadata, 1)

	shipments, err := f.svc.RequestShipments(ctx, f.alice, a.request)
	require.NoError(t, err)
	require.Len(t, shipments, 1)

	_, err = f.svc.RequesterRequests(ctx, f.alice, b.requester)
	requireKind(t, err, apperr.KindNotFound)
}

func TestRequestDocuments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.seed(t, f.alice, "bgbm")

	_, err := f.svc.RequestDocumentDownload(ctx, f.alice, a.request, DocumentManifest)
	requireKind(t, err, apperr.KindNotFound)

	up, err := f.svc.RequestDocumentUpload(ctx, f.alice, a.request, "manifest", "../Sample List (final).csv", "text/csv")
	require.NoError(t, err)
	require.Equal(t, http.MethodPut, up.Method)
	require.Len(t, f.store.uploads, 1)
	key := f.store.uploads[0]
	require.True(t, strings.HasPrefix(key, fmt.Sprintf("requests/%d/manifest/", a.request)), key)
	require.True(t, strings.HasSuffix(key, "-Sample_List_final_.csv"), key)

	request, err := f.svc.Requests().Get(ctx, f.staff, a.request)
	require.NoError(t, err)
	require.Equal(t, true, request["has_manifest_file"])
	require.Equal(t, key, request["manifest_storage_path"])

	down, err := f.svc.RequestDocumentDownload(ctx, f.alice, a.request, DocumentManifest)
	require.NoError(t, err)
	require.Equal(t, http.MethodGet, down.Method)
	require.Equal(t, []string{key}, f.store.downloads)

	_, err = f.svc.RequestDocumentUpload(ctx, f.bob, a.request, "mta", "mta.pdf", "")
	requireKind(t, err, apperr.KindNotFound)
	_, err = f.svc.RequestDocumentUpload(ctx, f.alice, a.request, "invoice", "x.pdf", "")
	requireKind(t, err, apperr.KindValidation)

	unconfigured := NewService(f.db, nil)
	_, err = unconfigured.RequestDocumentUpload(ctx, f.alice, a.request, "mta", "mta.pdf", "")
	requireKind(t, err, apperr.KindNotFound)
}
