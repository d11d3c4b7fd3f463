package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ayusman/asana/internal/pose"
)

// RemoteClassifier sends embeddings to an HTTP model server.
//
// Request:  {"embedding": [34 floats]}
// Response: {"probabilities": [8 floats in label order]} or
// {"scores": {"Tree": 0.98, ...}}.
type RemoteClassifier struct {
	url    string
	client *http.Client
}

// NewRemoteClassifier creates a classifier posting to url.
func NewRemoteClassifier(url string, timeout time.Duration) *RemoteClassifier {
	if timeout <= 0 {
		timeout = time.Second
	}
	return &RemoteClassifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

type remoteRequest struct {
	Embedding pose.Embedding `json:"embedding"`
}

type remoteResponse struct {
	Probabilities []float64          `json:"probabilities"`
	Scores        map[string]float64 `json:"scores"`
	Error         string             `json:"error"`
}

// Classify implements pose.Classifier. Every failure wraps
// pose.ErrClassifierUnavailable except a malformed embedding.
func (c *RemoteClassifier) Classify(ctx context.Context, e pose.Embedding) (pose.Classification, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}

	body, err := json.Marshal(remoteRequest{Embedding: e})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pose.ErrClassifierUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", pose.ErrClassifierUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", pose.ErrClassifierUnavailable, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out remoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", pose.ErrClassifierUnavailable, err)
	}

	switch {
	case out.Error != "":
		return nil, fmt.Errorf("%w: %s", pose.ErrClassifierUnavailable, out.Error)
	case out.Probabilities != nil:
		return pose.FromProbabilities(out.Probabilities)
	case out.Scores != nil:
		return fromScores(out.Scores)
	default:
		return nil, fmt.Errorf("%w: response carries no probabilities", pose.ErrClassifierUnavailable)
	}
}

func fromScores(scores map[string]float64) (pose.Classification, error) {
	result := make(pose.Classification, len(scores))
	for name, p := range scores {
		label, err := pose.ParseLabel(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", pose.ErrClassifierUnavailable, err)
		}
		result[label] = p
	}
	if err := result.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", pose.ErrClassifierUnavailable, err)
	}
	return result, nil
}
