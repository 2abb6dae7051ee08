package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aidelabs/aide/api"
)

// maxRemoteImageSize caps how much we pull from a remote image URL.
const maxRemoteImageSize = 20 << 20

// saveUpload writes uploaded media under dir with a timestamp-prefixed,
// collision-free name and returns that name. The timestamp prefix keeps a
// directory listing in arrival order; the uuid removes any need for
// cross-request coordination.
func saveUpload(dir, original string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create uploads dir: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(filepath.Base(original)))
	if ext == "" {
		ext = ".bin"
	}
	name := fmt.Sprintf("%d-%s%s", time.Now().UnixMilli(), uuid.New().String()[:8], ext)

	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("write upload: %w", err)
	}
	return name, nil
}

// fetchImage downloads an image from a remote URL with a bounded size.
func fetchImage(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("remote image returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteImageSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxRemoteImageSize {
		return nil, errors.New("remote image too large")
	}
	return data, nil
}

// UploadsHandler dispatches under /uploads: the reserved "list" name
// returns the directory listing, anything else is served as a file.
func (s *Server) UploadsHandler(c *gin.Context) {
	name := strings.TrimPrefix(c.Param("name"), "/")
	if name == "list" {
		s.ListUploadsHandler(c)
		return
	}
	s.serveUpload(c, name)
}

// serveUpload serves one stored upload. Names are flattened to their
// base to keep requests inside the uploads directory.
func (s *Server) serveUpload(c *gin.Context, raw string) {
	name := filepath.Base(raw)
	if name == "." || name == string(filepath.Separator) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid upload name"})
		return
	}

	path := filepath.Join(s.uploads, name)
	if _, err := os.Stat(path); err != nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "upload not found"})
		return
	}
	c.File(path)
}

// ListUploadsHandler returns the stored uploads, newest first.
func (s *Server) ListUploadsHandler(c *gin.Context) {
	entries, err := os.ReadDir(s.uploads)
	if err != nil {
		if os.IsNotExist(err) {
			c.JSON(http.StatusOK, api.ListUploadsResponse{Uploads: []api.UploadInfo{}})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	uploads := make([]api.UploadInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		uploads = append(uploads, api.UploadInfo{
			Name:     entry.Name(),
			Size:     fi.Size(),
			URL:      "/uploads/" + entry.Name(),
			Modified: fi.ModTime().UTC().Format(time.RFC3339),
		})
	}

	slices.SortFunc(uploads, func(a, b api.UploadInfo) int {
		return strings.Compare(b.Name, a.Name)
	})

	c.JSON(http.StatusOK, api.ListUploadsResponse{Uploads: uploads})
}
