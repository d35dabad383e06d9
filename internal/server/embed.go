package server

import (
	"fmt"
	"io/fs"
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/helyotools/dbsentinel/webui"
)

// RegisterStaticFiles mounts the embedded frontend on the Gin engine.
// API routes registered before this take precedence. Unknown GET paths fall
// back to index.html; unknown /api paths and other methods get a JSON 404.
func RegisterStaticFiles(r *gin.Engine) error {
	webRoot, err := fs.Sub(webui.FS, "web")
	if err != nil {
		return fmt.Errorf("embed: web sub-fs: %w", err)
	}
	index, err := fs.ReadFile(webRoot, "index.html")
	if err != nil {
		return fmt.Errorf("embed: index.html: %w", err)
	}
	fileServer := http.FileServer(http.FS(webRoot))

	r.NoRoute(func(c *gin.Context) {
		p := c.Request.URL.Path
		if strings.HasPrefix(p, "/api/") || (c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}

		name := strings.TrimPrefix(path.Clean(p), "/")
		if name != "" && name != "index.html" {
			if st, err := fs.Stat(webRoot, name); err == nil && !st.IsDir() {
				fileServer.ServeHTTP(c.Writer, c.Request)
				return
			}
		}
		c.Data(http.StatusOK, "text/html; charset=utf-8", index)
	})
	return nil
}
