package api

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"photoflow/internal/export"
	"photoflow/internal/upload"
)

type itemResponse struct {
	ID        string           `json:"id"`
	FileName  string           `json:"file_name"`
	Status    upload.Status    `json:"status"`
	Progress  int              `json:"progress"`
	Error     string           `json:"error,omitempty"`
	Metadata  *itemMetadata    `json:"metadata,omitempty"`
	ImageURL  string           `json:"image_url,omitempty"`
	CreatedAt string           `json:"created_at"`
}

type itemMetadata struct {
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	AspectRatio float64 `json:"aspect_ratio"`
	IsPortrait  bool    `json:"is_portrait"`
	IsLandscape bool    `json:"is_landscape"`
	SizeBytes   int64   `json:"size_bytes"`
}

type collectionResponse struct {
	Items        []itemResponse `json:"items"`
	AllReady     bool           `json:"all_ready"`
	HasFailed    bool           `json:"has_failed"`
	IsProcessing bool           `json:"is_processing"`
	IsUploading  bool           `json:"is_uploading"`
	Progress     int            `json:"progress"`
}

// API exposes the upload manager over HTTP.
type API struct {
	manager *upload.Manager
	dataDir string
}

func NewAPI(manager *upload.Manager, dataDir string) *API {
	return &API{manager: manager, dataDir: dataDir}
}

// RegisterRoutes registers API routes on the provided gin engine.
func (a *API) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/v1")
	{
		api.POST("/photos", a.SubmitPhotos)
		api.GET("/photos", a.ListPhotos)
		api.GET("/photos/export", a.ExportReady)
		api.POST("/photos/cancel", a.CancelBatch)
		api.DELETE("/photos", a.ClearPhotos)
		api.GET("/photos/:id", a.GetPhoto)
		api.GET("/photos/:id/image", a.ServeImage)
		api.POST("/photos/:id/retry", a.RetryPhoto)
		api.DELETE("/photos/:id", a.RemovePhoto)
	}
}

// SubmitPhotos accepts a multipart batch under the "files" field.
func (a *API) SubmitPhotos(c *gin.Context) {
	if a.manager.IsUploading() {
		log.Warn().Msg("rejecting batch: a batch is already in flight")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "a batch is already being processed"})
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		log.Warn().Err(err).Msg("invalid multipart request")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart request"})
		return
	}
	if len(form.File["files"]) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no files provided"})
		return
	}

	registered, err := a.manager.Submit(readMultipart(form))
	switch {
	case errors.Is(err, upload.ErrBatchInFlight):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	case errors.Is(err, upload.ErrNoFiles):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	items := make([]itemResponse, 0, len(registered))
	for i := range registered {
		items = append(items, a.toItemResponse(&registered[i]))
	}
	c.JSON(http.StatusAccepted, gin.H{"items": items})
}

// ListPhotos returns the collection plus the aggregate flags the gallery and
// the editor hand-off rely on.
func (a *API) ListPhotos(c *gin.Context) {
	items := a.manager.Items()
	resp := collectionResponse{
		Items:        make([]itemResponse, 0, len(items)),
		AllReady:     a.manager.AllReady(),
		HasFailed:    a.manager.HasFailed(),
		IsProcessing: a.manager.IsProcessing(),
		IsUploading:  a.manager.IsUploading(),
		Progress:     a.manager.Progress(),
	}
	for i := range items {
		resp.Items = append(resp.Items, a.toItemResponse(&items[i]))
	}
	c.JSON(http.StatusOK, resp)
}

// GetPhoto returns one item.
func (a *API) GetPhoto(c *gin.Context) {
	id := c.Param("id")
	if it, ok := a.manager.GetItem(id); ok {
		c.JSON(http.StatusOK, a.toItemResponse(&it))
		return
	}
	log.Warn().Str("item_id", id).Msg("item not found on get")
	c.JSON(http.StatusNotFound, gin.H{"error": "item not found"})
}

// ServeImage serves the processed payload, the item's browsable handle.
func (a *API) ServeImage(c *gin.Context) {
	id := c.Param("id")
	it, ok := a.manager.GetItem(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "item not found"})
		return
	}
	if it.Status != upload.StatusReady || it.DisplayPath == "" {
		log.Warn().Str("item_id", id).Str("status", string(it.Status)).Msg("image not ready to serve")
		c.JSON(http.StatusConflict, gin.H{"error": "image not ready"})
		return
	}
	c.File(it.DisplayPath)
}

// RetryPhoto reruns the pipeline for a failed or cancelled item.
func (a *API) RetryPhoto(c *gin.Context) {
	id := c.Param("id")
	it, err := a.manager.Retry(id)
	switch {
	case errors.Is(err, upload.ErrItemNotFound):
		log.Warn().Str("item_id", id).Msg("item not found on retry")
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	case errors.Is(err, upload.ErrNotRetryable):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, a.toItemResponse(&it))
}

// RemovePhoto deletes one item and its processed payload.
func (a *API) RemovePhoto(c *gin.Context) {
	id := c.Param("id")
	if err := a.manager.Remove(id); err != nil {
		if errors.Is(err, upload.ErrItemNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// ClearPhotos empties the collection.
func (a *API) ClearPhotos(c *gin.Context) {
	if err := a.manager.Clear(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// CancelBatch requests cooperative cancellation of the in-flight batch.
func (a *API) CancelBatch(c *gin.Context) {
	a.manager.Cancel()
	c.Status(http.StatusAccepted)
}

// ExportReady bundles the ready subset into a zip for the page composer.
func (a *API) ExportReady(c *gin.Context) {
	ready := a.manager.ReadyItems()
	if len(ready) == 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "no ready photos to export"})
		return
	}
	entries := make([]export.Entry, 0, len(ready))
	for _, it := range ready {
		entries = append(entries, export.Entry{Name: it.FileName, Path: it.DisplayPath})
	}

	dest := filepath.Join(a.dataDir, "export", "photos.zip")
	results, err := export.BuildArchive(c.Request.Context(), dest, entries)
	if err != nil {
		log.Error().Err(err).Msg("export archive failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "export failed"})
		return
	}
	skipped := 0
	for _, r := range results {
		if r.Err != "" {
			skipped++
		}
	}
	log.Info().Int("exported", len(results)-skipped).Int("skipped", skipped).Msg("serving export archive")
	c.FileAttachment(dest, "photobook-"+time.Now().UTC().Format("20060102-150405")+".zip")
}

// readMultipart drains the "files" field into memory for the manager.
// Files that cannot be read are skipped with a warning.
func readMultipart(form *multipart.Form) []upload.IncomingFile {
	headers := form.File["files"]
	files := make([]upload.IncomingFile, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			log.Warn().Str("file", fh.Filename).Err(err).Msg("open multipart file failed")
			continue
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			log.Warn().Str("file", fh.Filename).Err(err).Msg("read multipart file failed")
			continue
		}
		files = append(files, upload.IncomingFile{Name: fh.Filename, Size: fh.Size, Data: data})
	}
	return files
}

func (a *API) toItemResponse(it *upload.Item) itemResponse {
	resp := itemResponse{
		ID:        it.ID,
		FileName:  it.FileName,
		Status:    it.Status,
		Progress:  it.Progress,
		Error:     it.Error,
		CreatedAt: it.CreatedAt.UTC().Format(time.RFC3339),
	}
	if it.Status == upload.StatusReady {
		resp.ImageURL = "/api/v1/photos/" + it.ID + "/image"
	}
	if it.Metadata != nil {
		resp.Metadata = &itemMetadata{
			Width:       it.Metadata.Width,
			Height:      it.Metadata.Height,
			AspectRatio: it.Metadata.AspectRatio,
			IsPortrait:  it.Metadata.IsPortrait,
			IsLandscape: it.Metadata.IsLandscape,
			SizeBytes:   it.Metadata.SizeBytes,
		}
	}
	return resp
}
