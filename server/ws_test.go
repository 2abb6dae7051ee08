package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOfferFrameKeepsNewest(t *testing.T) {
	frames := make(chan []byte, 1)

	offerFrame(frames, []byte("one"))
	offerFrame(frames, []byte("two"))
	offerFrame(frames, []byte("three"))

	select {
	case got := <-frames:
		if string(got) != "three" {
			t.Errorf("mailbox held %q, want the newest frame", got)
		}
	default:
		t.Fatal("mailbox empty")
	}

	select {
	case got := <-frames:
		t.Errorf("mailbox held a stale frame %q", got)
	default:
	}
}

func TestPoseEndpointNotReady(t *testing.T) {
	h := newTestServer(t, &fakeRunner{}).GenerateRoutes()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Sec-WebSocket-Version", "13")
	req.Header.Set("Sec-WebSocket-Key", "dGhlIHNhbXBsZSBub25jZQ==")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503 while pose model is not loaded", w.Code)
	}
}

func TestRootLivenessBanner(t *testing.T) {
	h := newTestServer(t, &fakeRunner{}).GenerateRoutes()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
	if w.Body.String() != "aide server is running" {
		t.Errorf("banner = %q", w.Body.String())
	}
}
