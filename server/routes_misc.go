package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aidelabs/aide/api"
	"github.com/aidelabs/aide/audio"
	"github.com/aidelabs/aide/pose"
)

// streamResponse writes channel events as newline-delimited JSON over one
// chunked response. A failed write means the client disconnected; the
// producing goroutine notices through the request context and cleans up.
func streamResponse(c *gin.Context, ch chan any) {
	c.Header("Content-Type", "application/x-ndjson")
	c.Stream(func(w io.Writer) bool {
		val, ok := <-ch
		if !ok {
			return false
		}

		bts, err := json.Marshal(val)
		if err != nil {
			slog.Error("streamResponse: marshal failed", "error", err)
			return false
		}

		bts = append(bts, '\n')
		if _, err := w.Write(bts); err != nil {
			slog.Info("streamResponse: client disconnected mid-stream", "error", err)
			return false
		}

		return true
	})
}

func (s *Server) HealthHandler(c *gin.Context) {
	var resp api.HealthResponse
	resp.Status = "ok"

	if s.engine != nil {
		info := s.engine.Info()
		resp.Models.Vision = api.ModelHealth{Loaded: true, Path: info.ModelPath}
	}
	resp.Models.Pose = api.ModelHealth{Loaded: s.pose.Ready(), Path: s.pose.Path()}

	if s.engine == nil || !s.pose.Ready() {
		resp.Status = "degraded"
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) ModelInfoHandler(c *gin.Context) {
	var info api.ModelInfoResponse
	if s.engine != nil {
		i := s.engine.Info()
		info.ModelPath = i.ModelPath
		info.VocabSize = i.VocabSize
		info.MaxNewTokens = i.MaxNewTokens
	}
	info.PoseModelPath = s.pose.Path()
	info.AudioSampleRate = audio.ModelSampleRate
	info.PoseInputSize = pose.InputSize

	c.JSON(http.StatusOK, info)
}
