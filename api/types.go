// Package api defines the wire types shared by the server and its clients:
// conversation turns, the streaming event protocol, and the introspection
// responses.
package api

import (
	"fmt"
)

// StatusError is an error with an HTTP status code and message.
type StatusError struct {
	StatusCode   int
	Status       string
	ErrorMessage string `json:"error"`
}

func (e StatusError) Error() string {
	switch {
	case e.Status != "" && e.ErrorMessage != "":
		return fmt.Sprintf("%s: %s", e.Status, e.ErrorMessage)
	case e.Status != "":
		return e.Status
	case e.ErrorMessage != "":
		return e.ErrorMessage
	default:
		return "something went wrong, please see the server logs for details"
	}
}

// ImageData represents the raw binary data of an image file.
type ImageData []byte

// Turn is one message in a conversation. Role is one of "system", "user" or
// "assistant". Ordering is significant: the turn sequence forms the model's
// prompt context.
type Turn struct {
	Role    string      `json:"role"`
	Content string      `json:"content"`
	Images  []ImageData `json:"images,omitempty"`
	Audio   []byte      `json:"audio,omitempty"`
}

// HasMedia reports whether the turn carries any non-text attachment.
func (t Turn) HasMedia() bool {
	return len(t.Images) > 0 || len(t.Audio) > 0
}

// ProgressResponse reports model loading progress. It is informational only
// and has no effect on control flow.
type ProgressResponse struct {
	Status    string `json:"status"`
	Total     int64  `json:"total,omitempty"`
	Completed int64  `json:"completed,omitempty"`
}

// Stream event types. A generation response is a newline-delimited sequence
// of JSON events over one chunked connection: an optional metadata event,
// zero or more chunk events in token-production order, and exactly one
// terminal complete or error event.
const (
	EventMetadata = "metadata"
	EventChunk    = "chunk"
	EventComplete = "complete"
	EventError    = "error"
)

// MetadataEvent is sent once, early, when the request carried an image or
// OCR-extracted text the client needs before chunks arrive.
type MetadataEvent struct {
	Type                string `json:"type"`
	ImageURL            string `json:"imageUrl,omitempty"`
	Message             string `json:"message,omitempty"`
	ExtractedText       string `json:"extractedText,omitempty"`
	ExtractedTextLength int    `json:"extractedTextLength,omitempty"`
}

// ChunkEvent carries one generated text fragment.
type ChunkEvent struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

// CompleteEvent terminates a successful stream with the full accumulated
// response.
type CompleteEvent struct {
	Type                string `json:"type"`
	ImageURL            string `json:"imageUrl,omitempty"`
	FullResponse        string `json:"fullResponse"`
	ExtractedText       string `json:"extractedText,omitempty"`
	ExtractedTextLength int    `json:"extractedTextLength,omitempty"`
}

// ErrorEvent terminates a stream that failed after the response had already
// started.
type ErrorEvent struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// ModelHealth describes one loaded model in a health response.
type ModelHealth struct {
	Loaded bool   `json:"loaded"`
	Path   string `json:"path"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status string `json:"status"`
	Models struct {
		Vision ModelHealth `json:"vision"`
		Pose   ModelHealth `json:"pose"`
	} `json:"models"`
}

// ModelInfoResponse is returned by GET /model-info.
type ModelInfoResponse struct {
	ModelPath       string `json:"modelPath"`
	PoseModelPath   string `json:"poseModelPath"`
	VocabSize       int    `json:"vocabSize"`
	AudioSampleRate int    `json:"audioSampleRate"`
	PoseInputSize   int    `json:"poseInputSize"`
	MaxNewTokens    int    `json:"maxNewTokens"`
}

// UploadInfo describes one stored upload in GET /uploads/list.
type UploadInfo struct {
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	URL      string `json:"url"`
	Modified string `json:"modified"`
}

// ListUploadsResponse is returned by GET /uploads/list.
type ListUploadsResponse struct {
	Uploads []UploadInfo `json:"uploads"`
}
