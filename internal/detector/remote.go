package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/asana/internal/capture"
	"github.com/ayusman/asana/internal/pose"
)

// RemoteOptions configures the inference server client.
type RemoteOptions struct {
	BaseURL string
	Timeout time.Duration
	Client  *http.Client
}

// RemoteDetector posts frames to an inference server running MoveNet.
// The server answers POST /detect with normalized keypoint coordinates.
type RemoteDetector struct {
	baseURL string
	client  *http.Client
}

// NewRemoteDetector creates a client for the inference server at opts.BaseURL.
func NewRemoteDetector(opts RemoteOptions) *RemoteDetector {
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &RemoteDetector{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		client:  client,
	}
}

// Detect uploads the frame as JPEG and decodes the returned keypoints.
func (d *RemoteDetector) Detect(ctx context.Context, frame *gocv.Mat) (pose.KeypointSet, error) {
	data, err := capture.EncodeJPEG(frame, jpegQuality)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pose.ErrMalformedInput, err)
	}
	return d.DetectJPEG(ctx, data, frame.Cols(), frame.Rows())
}

// DetectJPEG uploads already encoded JPEG bytes of a width x height frame.
func (d *RemoteDetector) DetectJPEG(ctx context.Context, data []byte, width, height int) (pose.KeypointSet, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "frame.jpg")
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("write form file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/detect", &body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := d.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrSourceUnavailable, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var response wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrSourceUnavailable, err)
	}
	return response.keypointSet(width, height)
}

// Health checks that the inference server answers GET /.
func (d *RemoteDetector) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health status %d", ErrSourceUnavailable, resp.StatusCode)
	}
	return nil
}

// Close is a no-op; the HTTP client holds no dedicated resources.
func (d *RemoteDetector) Close() error {
	d.client.CloseIdleConnections()
	return nil
}
