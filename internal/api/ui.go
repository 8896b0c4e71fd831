package api

import (
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"

	"photoflow/internal/upload"
)

var uiTemplate = template.Must(template.New("gallery").Parse(`<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8"/>
  <meta name="viewport" content="width=device-width, initial-scale=1"/>
  <title>Photoflow</title>
  <style>
    body{font-family:system-ui,-apple-system,Segoe UI,Roboto,sans-serif;max-width:960px;margin:32px auto;padding:0 16px;color:#0b0b0b;background:#fafafa}
    h1{font-size:22px;margin:0 0 16px}
    .card{background:#fff;border:1px solid #e9e9e9;border-radius:10px;padding:16px;margin:12px 0}
    .grid{display:grid;grid-template-columns:repeat(auto-fill,minmax(180px,1fr));gap:12px}
    .btn{display:inline-block;background:#0b63e5;color:#fff;border:none;padding:8px 12px;border-radius:8px;cursor:pointer}
    .btn.secondary{background:#444}
    .muted{color:#666;font-size:13px}
    .status{display:inline-block;padding:3px 7px;border-radius:6px;background:#efefef;font-size:12px}
    .status.ready{background:#dff5e1}
    .status.error{background:#fde2e0}
    .status.cancelled{background:#f2ecd9}
    img{width:100%;border-radius:6px;display:block}
  </style>
</head>
<body>
  <h1>Photoflow</h1>
  <div class="card">
    <form method="post" action="/ui/photos" enctype="multipart/form-data">
      <input type="file" name="files" accept="image/*,.heic,.heif" multiple required/>
      <button class="btn" type="submit"{{if .IsUploading}} disabled{{end}}>Upload</button>
    </form>
    <div class="muted">
      {{len .Items}} photo(s)
      {{if .IsUploading}} &middot; processing ({{.Progress}}%){{end}}
      {{if .AllReady}} &middot; all ready{{end}}
      {{if .HasFailed}} &middot; some failed{{end}}
    </div>
  </div>
  <div class="grid">
    {{range .Items}}
    <div class="card">
      {{if eq (print .Status) "ready"}}<img src="/api/v1/photos/{{.ID}}/image" alt="{{.FileName}}"/>{{end}}
      <div class="muted">{{.FileName}}</div>
      <span class="status {{.Status}}">{{.Status}}</span>
      {{if .Error}}<div class="muted">{{.Error}}</div>{{end}}
      {{if or (eq (print .Status) "error") (eq (print .Status) "cancelled")}}
      <form method="post" action="/ui/photos/{{.ID}}/retry"><button class="btn secondary" type="submit">Retry</button></form>
      {{end}}
    </div>
    {{end}}
  </div>
</body>
</html>
`))

// UI serves a minimal no-JS gallery page over the same manager.
type UI struct {
	manager *upload.Manager
}

func NewUI(manager *upload.Manager) *UI {
	return &UI{manager: manager}
}

// RegisterRoutes registers UI routes on the provided gin engine.
func (u *UI) RegisterRoutes(router *gin.Engine) {
	router.GET("/", func(c *gin.Context) { c.Redirect(http.StatusFound, "/ui") })
	router.GET("/ui", u.Gallery)
	router.POST("/ui/photos", u.UploadAndRedirect)
	router.POST("/ui/photos/:id/retry", u.RetryAndRedirect)
}

// Gallery renders the current collection.
func (u *UI) Gallery(c *gin.Context) {
	data := gin.H{
		"Items":       u.manager.Items(),
		"AllReady":    u.manager.AllReady(),
		"HasFailed":   u.manager.HasFailed(),
		"IsUploading": u.manager.IsUploading(),
		"Progress":    u.manager.Progress(),
	}
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(http.StatusOK)
	_ = uiTemplate.Execute(c.Writer, data)
}

// UploadAndRedirect submits the posted batch, then goes back to the page.
// Errors surface on the page through item states, not here.
func (u *UI) UploadAndRedirect(c *gin.Context) {
	if form, err := c.MultipartForm(); err == nil {
		_, _ = u.manager.Submit(readMultipart(form))
	}
	c.Redirect(http.StatusSeeOther, "/ui")
}

// RetryAndRedirect retries one item, then goes back to the page.
func (u *UI) RetryAndRedirect(c *gin.Context) {
	_, _ = u.manager.Retry(c.Param("id"))
	c.Redirect(http.StatusSeeOther, "/ui")
}
