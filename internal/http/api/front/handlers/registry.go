package handlers

import (
	"net/http"
	"strconv"
	"strings"

	apihttp "github.com/bgbm/dnastore/internal/http"
	"github.com/bgbm/dnastore/internal/registry"
	"github.com/gin-gonic/gin"
)

// listParams are the query parameters that are not entity filters.
var listParams = map[string]struct{}{
	"page":     {},
	"limit":    {},
	"search":   {},
	"ordering": {},
}

// RegistryHandler serves the CRUD endpoints of one registry entity.
type RegistryHandler struct {
	resource registry.Resource
}

// NewRegistryHandler constructs a RegistryHandler.
func NewRegistryHandler(resource registry.Resource) *RegistryHandler {
	return &RegistryHandler{resource: resource}
}

// List returns one page of rows visible to the caller.
func (h *RegistryHandler) List(c *gin.Context) {
	page, errList := h.resource.List(c.Request.Context(), apihttp.CurrentCaller(c), parseListQuery(c))
	if errList != nil {
		apihttp.RespondError(c, errList)
		return
	}
	c.JSON(http.StatusOK, page)
}

// Get returns one row.
func (h *RegistryHandler) Get(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	row, errGet := h.resource.Get(c.Request.Context(), apihttp.CurrentCaller(c), id)
	if errGet != nil {
		apihttp.RespondError(c, errGet)
		return
	}
	c.JSON(http.StatusOK, row)
}

// Create inserts a row from the request body.
func (h *RegistryHandler) Create(c *gin.Context) {
	var body map[string]any
	if !bindJSON(c, &body) {
		return
	}
	row, errCreate := h.resource.Create(c.Request.Context(), apihttp.CurrentCaller(c), body)
	if errCreate != nil {
		apihttp.RespondError(c, errCreate)
		return
	}
	c.JSON(http.StatusCreated, row)
}

// Update applies a partial update; PUT and PATCH share it.
func (h *RegistryHandler) Update(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var body map[string]any
	if !bindJSON(c, &body) {
		return
	}
	row, errUpdate := h.resource.Update(c.Request.Context(), apihttp.CurrentCaller(c), id, body)
	if errUpdate != nil {
		apihttp.RespondError(c, errUpdate)
		return
	}
	c.JSON(http.StatusOK, row)
}

// Delete removes a row.
func (h *RegistryHandler) Delete(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if errDelete := h.resource.Delete(c.Request.Context(), apihttp.CurrentCaller(c), id); errDelete != nil {
		apihttp.RespondError(c, errDelete)
		return
	}
	c.Status(http.StatusNoContent)
}

// Stats returns row counts grouped by the group_by field.
func (h *RegistryHandler) Stats(c *gin.Context) {
	stats, errStats := h.resource.Stats(c.Request.Context(), apihttp.CurrentCaller(c), strings.TrimSpace(c.Query("group_by")))
	if errStats != nil {
		apihttp.RespondError(c, errStats)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// parseListQuery reads paging, search, ordering and filters from the query string.
func parseListQuery(c *gin.Context) registry.ListQuery {
	q := registry.ListQuery{
		Search:   strings.TrimSpace(c.Query("search")),
		Ordering: strings.TrimSpace(c.Query("ordering")),
		Filters:  map[string]string{},
	}
	if page, errPage := strconv.Atoi(c.Query("page")); errPage == nil {
		q.Page = page
	}
	if limit, errLimit := strconv.Atoi(c.Query("limit")); errLimit == nil {
		q.Limit = limit
	}
	for key, values := range c.Request.URL.Query() {
		if _, reserved := listParams[key]; reserved || len(values) == 0 {
			continue
		}
		if value := strings.TrimSpace(values[0]); value != "" {
			q.Filters[key] = value
		}
	}
	return q
}

// SampleHandler serves the cross-entity registry reads.
type SampleHandler struct {
	registry *registry.Service
}

// NewSampleHandler constructs a SampleHandler.
func NewSampleHandler(svc *registry.Service) *SampleHandler {
	return &SampleHandler{registry: svc}
}

// RequesterRequests lists the requests of one requester.
func (h *SampleHandler) RequesterRequests(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	rows, errList := h.registry.RequesterRequests(c.Request.Context(), apihttp.CurrentCaller(c), id)
	respondRows(c, rows, errList)
}

// RequestMetadata lists the metadata of one request.
func (h *SampleHandler) RequestMetadata(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	rows, errList := h.registry.RequestMetadata(c.Request.Context(), apihttp.CurrentCaller(c), id)
	respondRows(c, rows, errList)
}

// RequestShipments lists the shipments of one request.
func (h *SampleHandler) RequestShipments(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	rows, errList := h.registry.RequestShipments(c.Request.Context(), apihttp.CurrentCaller(c), id)
	respondRows(c, rows, errList)
}

// Summary returns per-entity counts within the caller's scope.
func (h *SampleHandler) Summary(c *gin.Context) {
	summary, errSummary := h.registry.Summary(c.Request.Context(), apihttp.CurrentCaller(c))
	if errSummary != nil {
		apihttp.RespondError(c, errSummary)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// documentRequest defines the request body for a document upload.
type documentRequest struct {
	Kind        string `json:"kind"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
}

// UploadDocument presigns an upload URL for a request document.
func (h *SampleHandler) UploadDocument(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var body documentRequest
	if !bindJSON(c, &body) {
		return
	}
	doc, errUpload := h.registry.RequestDocumentUpload(c.Request.Context(), apihttp.CurrentCaller(c), id, body.Kind, body.Filename, body.ContentType)
	if errUpload != nil {
		apihttp.RespondError(c, errUpload)
		return
	}
	c.JSON(http.StatusCreated, doc)
}

// DownloadDocument presigns a download URL for a request document.
func (h *SampleHandler) DownloadDocument(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	doc, errDownload := h.registry.RequestDocumentDownload(c.Request.Context(), apihttp.CurrentCaller(c), id, c.Param("kind"))
	if errDownload != nil {
		apihttp.RespondError(c, errDownload)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// respondRows writes an unpaged result list.
func respondRows(c *gin.Context, rows []map[string]any, err error) {
	if err != nil {
		apihttp.RespondError(c, err)
		return
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	c.JSON(http.StatusOK, gin.H{"results": rows, "count": len(rows)})
}
