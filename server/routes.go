// Package server exposes the loaded models over two transports: chunked
// NDJSON streaming for text generation and a websocket frame relay for
// real-time pose estimation.
package server

import (
	"net"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/semaphore"

	"github.com/aidelabs/aide/envconfig"
	"github.com/aidelabs/aide/ml"
	"github.com/aidelabs/aide/ocr"
	"github.com/aidelabs/aide/pose"
)

// Server holds the loaded model handles and per-process shared state. Model
// handles are read-mostly after initialization; tensors are always owned by
// the request that created them.
type Server struct {
	engine    ml.Runner
	pose      *pose.Model
	extractor ocr.Extractor
	uploads   string

	// gate serializes generation: the engine runs one forward pass
	// pipeline at a time. A request that cannot acquire it immediately is
	// rejected as busy instead of queueing.
	gate *semaphore.Weighted
}

func New(engine ml.Runner, poseModel *pose.Model, extractor ocr.Extractor, uploadsDir string) *Server {
	return &Server{
		engine:    engine,
		pose:      poseModel,
		extractor: extractor,
		uploads:   uploadsDir,
		gate:      semaphore.NewWeighted(1),
	}
}

// GenerateRoutes registers all HTTP and websocket routes.
func (s *Server) GenerateRoutes() http.Handler {
	config := cors.DefaultConfig()
	config.AllowWildcard = true
	config.AllowBrowserExtensions = true
	config.AllowHeaders = []string{
		"Authorization",
		"Content-Type",
		"User-Agent",
		"Accept",
		"X-Requested-With",
	}
	config.AllowOrigins = envconfig.AllowedOrigins()

	r := gin.Default()
	r.Use(cors.New(config))

	r.POST("/generate", s.GenerateHandler)
	r.POST("/ocrgenerate", s.OCRGenerateHandler)
	r.GET("/health", s.HealthHandler)
	r.GET("/model-info", s.ModelInfoHandler)
	r.GET("/uploads/*name", s.UploadsHandler)

	// The root doubles as the websocket endpoint for the pose relay and a
	// liveness banner for plain HTTP clients.
	r.GET("/", s.PoseHandler)
	r.HEAD("/", func(c *gin.Context) { c.String(http.StatusOK, "") })

	return r
}

// Serve runs the HTTP server on the listener until it fails or the
// listener closes.
func (s *Server) Serve(ln net.Listener) error {
	srv := &http.Server{Handler: s.GenerateRoutes()}
	return srv.Serve(ln)
}
