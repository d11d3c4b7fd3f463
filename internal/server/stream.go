package server

import (
	"fmt"
	"net/http"
	"time"
)

// FrameSource provides the most recent camera frame as JPEG together with a
// sequence number that changes whenever a new frame is available.
// *app.App satisfies it.
type FrameSource interface {
	LatestJPEG() ([]byte, uint64)
}

// StreamHandler serves the session's camera frames as MJPEG.
type StreamHandler struct {
	frames FrameSource
	poll   time.Duration
}

// NewStreamHandler creates a new StreamHandler reading from frames.
func NewStreamHandler(frames FrameSource) *StreamHandler {
	return &StreamHandler{frames: frames, poll: 50 * time.Millisecond}
}

// ServeHTTP streams MJPEG frames to connected clients. A frame is written
// only when the source has produced a new one.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ticker := time.NewTicker(h.poll)
	defer ticker.Stop()

	var lastSeq uint64
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}

		buf, seq := h.frames.LatestJPEG()
		if len(buf) == 0 || seq == lastSeq {
			continue
		}
		lastSeq = seq

		fmt.Fprintf(w, "--frame\r\n")
		fmt.Fprintf(w, "Content-Type: image/jpeg\r\n")
		fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(buf))
		if _, err := w.Write(buf); err != nil {
			return
		}
		fmt.Fprintf(w, "\r\n")

		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}
}
