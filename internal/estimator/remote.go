package estimator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/banshee-data/airquality.report/internal/httputil"
)

// RemoteEstimator calls an out-of-process regression service.
//
// Request:  POST <BaseURL>/estimate {"query": [[lat,lng,t]...], "train_x": ..., "train_y": [...], "hyperparameters": {...}}
// Response: 200 {"mean": [...], "variance": [...]}
type RemoteEstimator struct {
	baseURL    string
	httpClient httputil.Doer
}

// NewRemoteEstimator creates a client for the service at baseURL.
func NewRemoteEstimator(baseURL string) *RemoteEstimator {
	return NewRemoteEstimatorWithClient(baseURL, &http.Client{Timeout: 5 * time.Minute})
}

// NewRemoteEstimatorWithClient creates a client that sends through c.
func NewRemoteEstimatorWithClient(baseURL string, c httputil.Doer) *RemoteEstimator {
	return &RemoteEstimator{baseURL: strings.TrimRight(baseURL, "/"), httpClient: c}
}

type remoteRequest struct {
	Query  [][3]float64    `json:"query"`
	TrainX [][3]float64    `json:"train_x"`
	TrainY []float64       `json:"train_y"`
	Params Hyperparameters `json:"hyperparameters"`
}

// Estimate implements Estimator. Transport, status and decoding failures are
// all returned; there is no fallback estimate.
func (e *RemoteEstimator) Estimate(ctx context.Context, in Input) (*Output, error) {
	if err := checkInput(in); err != nil {
		return nil, err
	}

	body, err := json.Marshal(remoteRequest{Query: in.Query, TrainX: in.TrainX, TrainY: in.TrainY, Params: in.Params})
	if err != nil {
		return nil, fmt.Errorf("remote estimator: failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/estimate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("remote estimator: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remote estimator: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("remote estimator: unexpected status %d", resp.StatusCode)
	}

	var out Output
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("remote estimator: failed to decode response: %w", err)
	}
	if !in.Params.Predict {
		return &out, nil
	}
	if err := CheckOutput(in, &out); err != nil {
		return nil, fmt.Errorf("remote estimator: %w", err)
	}
	return &out, nil
}
