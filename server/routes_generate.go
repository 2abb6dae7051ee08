package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/aidelabs/aide/api"
	"github.com/aidelabs/aide/audio"
	"github.com/aidelabs/aide/ml"
	"github.com/aidelabs/aide/prompt"
	"github.com/aidelabs/aide/vision"
)

// streamState tracks where a generation session is in its lifecycle. Before
// streaming starts errors become JSON status responses; afterwards they
// become terminal error events on the open stream.
type streamState int

const (
	stateIdle streamState = iota
	stateStreaming
	stateComplete
	stateFailed
)

func (s streamState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateStreaming:
		return "streaming"
	case stateComplete:
		return "complete"
	case stateFailed:
		return "failed"
	}
	return "unknown"
}

// generateRequest is the parsed multipart form of /generate.
type generateRequest struct {
	text       string
	imageData  []byte
	imageName  string
	audioData  []byte
	history    []api.Turn
	hasContent bool
}

func (s *Server) parseGenerateForm(c *gin.Context) (*generateRequest, error) {
	var req generateRequest
	req.text = strings.TrimSpace(c.PostForm("text"))

	if file, err := c.FormFile("image"); err == nil {
		data, err := readFormFile(file)
		if err != nil {
			return nil, fmt.Errorf("read image upload: %w", err)
		}
		req.imageData = data
		req.imageName = file.Filename
	} else if u := strings.TrimSpace(c.PostForm("imageUrl")); u != "" {
		data, err := fetchImage(c.Request.Context(), u)
		if err != nil {
			return nil, fmt.Errorf("fetch image: %w", err)
		}
		req.imageData = data
		req.imageName = u
	}

	if file, err := c.FormFile("audio"); err == nil {
		data, err := readFormFile(file)
		if err != nil {
			return nil, fmt.Errorf("read audio upload: %w", err)
		}
		req.audioData = data
	}

	if conversation := c.PostForm("conversation"); conversation != "" {
		if err := json.Unmarshal([]byte(conversation), &req.history); err != nil {
			return nil, fmt.Errorf("parse conversation: %w", err)
		}
	}

	req.hasContent = req.text != "" || len(req.imageData) > 0 || len(req.audioData) > 0
	return &req, nil
}

// GenerateHandler streams a generation for a multimodal chat turn.
func (s *Server) GenerateHandler(c *gin.Context) {
	req, err := s.parseGenerateForm(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !req.hasContent {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "request requires text, image or audio"})
		return
	}

	// Decode media before any model work so malformed input stays a
	// request error.
	var img *vision.Image
	var imageURL string
	if len(req.imageData) > 0 {
		img, err = vision.Decode(req.imageData)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		name, err := saveUpload(s.uploads, req.imageName, req.imageData)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		imageURL = "/uploads/" + name
	}

	var samples []float32
	if len(req.audioData) > 0 {
		samples, err = audio.Prepare(req.audioData)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	next := prompt.NewUserTurn(req.text, req.imageData, req.audioData)
	turns := prompt.Normalize(req.history, next)
	rendered, err := prompt.Render(turns)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var metadata *api.MetadataEvent
	if imageURL != "" {
		metadata = &api.MetadataEvent{
			Type:     api.EventMetadata,
			ImageURL: imageURL,
			Message:  "image stored",
		}
	}

	s.streamGeneration(c, rendered, img, samples, metadata, completeExtras{imageURL: imageURL})
}

// completeExtras carries request-specific fields of the terminal complete
// event.
type completeExtras struct {
	imageURL            string
	extractedText       string
	extractedTextLength int
}

// tryAcquireGate claims the single-writer inference gate. A request that
// cannot claim it immediately is rejected as busy; it never queues.
func (s *Server) tryAcquireGate(c *gin.Context) bool {
	if s.gate.TryAcquire(1) {
		return true
	}
	c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "server busy processing another generation"})
	return false
}

// streamGeneration acquires the inference gate, builds the input tensors
// and runs the session, streaming events to the client. Tensor release is
// unconditional: it happens on success, error and client disconnect alike.
func (s *Server) streamGeneration(c *gin.Context, rendered string, img *vision.Image, samples []float32, metadata *api.MetadataEvent, extras completeExtras) {
	if !s.tryAcquireGate(c) {
		return
	}
	s.streamAcquired(c, rendered, img, samples, metadata, extras)
}

// streamAcquired runs a generation session with the inference gate already
// held. The gate is released when the session ends.
func (s *Server) streamAcquired(c *gin.Context, rendered string, img *vision.Image, samples []float32, metadata *api.MetadataEvent, extras completeExtras) {
	inputs, err := s.engine.BuildInputs(rendered, img, samples)
	if err != nil {
		s.gate.Release(1)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	ch := make(chan any)
	go func() {
		defer s.gate.Release(1)
		s.runGeneration(c.Request.Context(), ch, inputs, metadata, extras)
	}()

	streamResponse(c, ch)
}

// runGeneration drives one generation session to a terminal event. The
// input set is released on every exit path; release failures are logged,
// never escalated.
func (s *Server) runGeneration(ctx context.Context, ch chan any, inputs *ml.InputSet, metadata *api.MetadataEvent, extras completeExtras) {
	state := stateIdle
	defer close(ch)
	defer func() {
		if err := inputs.Release(); err != nil {
			slog.Error("releasing generation tensors", "error", err, "state", state.String())
		}
	}()

	// send delivers an event unless the client has gone away; a false
	// return means the remaining session runs only for its cleanup.
	send := func(ev any) bool {
		select {
		case ch <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	if metadata != nil {
		if !send(*metadata) {
			state = stateFailed
			return
		}
	}

	var sb strings.Builder
	err := s.engine.Generate(ctx, inputs, func(fragment string) {
		state = stateStreaming
		sb.WriteString(fragment)
		send(api.ChunkEvent{Type: api.EventChunk, Data: fragment})
	})
	if err != nil {
		state = stateFailed
		slog.Error("generation failed", "error", err)
		send(api.ErrorEvent{Type: api.EventError, Error: err.Error()})
		return
	}

	state = stateComplete
	send(api.CompleteEvent{
		Type:                api.EventComplete,
		ImageURL:            extras.imageURL,
		FullResponse:        sb.String(),
		ExtractedText:       extras.extractedText,
		ExtractedTextLength: extras.extractedTextLength,
	})
}

// OCRGenerateHandler extracts text from the uploaded image, merges it with
// the prompt into a single user turn and runs the normal generation path.
func (s *Server) OCRGenerateHandler(c *gin.Context) {
	file, err := c.FormFile("image")
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "image is required"})
		return
	}
	userPrompt := strings.TrimSpace(c.PostForm("prompt"))
	if userPrompt == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "prompt is required"})
		return
	}

	data, err := readFormFile(file)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	img, err := vision.Decode(data)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// The extraction phase runs the generation engine too, so the gate
	// covers it: one forward-pass pipeline at a time, end to end.
	if !s.tryAcquireGate(c) {
		return
	}
	handoff := false
	defer func() {
		if !handoff {
			s.gate.Release(1)
		}
	}()

	extracted, err := s.extractor.Extract(c.Request.Context(), img)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("text extraction: %s", err)})
		return
	}

	name, err := saveUpload(s.uploads, file.Filename, data)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	imageURL := "/uploads/" + name

	// Merge the extraction into one user turn. An image with no readable
	// text still produces a valid prompt.
	content := userPrompt
	if extracted != "" {
		content = userPrompt + "\n\nExtracted text:\n" + extracted
	}
	turns := prompt.Normalize(nil, prompt.NewUserTurn(content, nil, nil))
	rendered, err := prompt.Render(turns)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	metadata := &api.MetadataEvent{
		Type:                api.EventMetadata,
		ImageURL:            imageURL,
		ExtractedText:       extracted,
		ExtractedTextLength: len(extracted),
	}
	handoff = true
	s.streamAcquired(c, rendered, nil, nil, metadata, completeExtras{
		imageURL:            imageURL,
		extractedText:       extracted,
		extractedTextLength: len(extracted),
	})
}

func readFormFile(file *multipart.FileHeader) ([]byte, error) {
	f, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
