package estimator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/airquality.report/internal/httputil"
)

func remoteInput() Input {
	return Input{
		Query:  [][3]float64{{40.7, -111.9, 0}, {40.8, -111.8, 0}},
		TrainX: [][3]float64{{40.75, -111.85, 0}},
		TrainY: []float64{9},
		Params: DefaultHyperparameters(),
	}
}

func TestRemoteEstimator_RoundTrip(t *testing.T) {
	t.Parallel()

	var got remoteRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/estimate", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(Output{Mean: []float64{1, 2}, Variance: []float64{0.1, 0.2}})
	}))
	defer srv.Close()

	in := remoteInput()
	out, err := NewRemoteEstimator(srv.URL+"/").Estimate(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, out.Mean)
	assert.Equal(t, []float64{0.1, 0.2}, out.Variance)
	assert.Equal(t, in.Query, got.Query)
	assert.Equal(t, in.TrainY, got.TrainY)
	assert.Equal(t, in.Params, got.Params)
}

func TestRemoteEstimator_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    error
	}{
		{
			name:    "status",
			handler: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadGateway) },
		},
		{
			name:    "garbage",
			handler: func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("not json")) },
		},
		{
			name: "short",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(Output{Mean: []float64{1}, Variance: []float64{1}})
			},
			want: ErrLengthMismatch,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			out, err := NewRemoteEstimator(srv.URL).Estimate(context.Background(), remoteInput())
			assert.Nil(t, out)
			require.Error(t, err)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}

func TestRemoteEstimator_Unreachable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewRemoteEstimator(url).Estimate(context.Background(), remoteInput())
	assert.Error(t, err)
}

func TestRemoteEstimator_ScriptedClient(t *testing.T) {
	t.Parallel()

	c := httputil.NewScriptedClient().Respond(http.StatusOK, `{"mean":[3,4],"variance":[1,1]}`)
	in := remoteInput()
	out, err := NewRemoteEstimatorWithClient("http://gp.internal:8080/", c).Estimate(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 4}, out.Mean)

	req, body := c.Request(0)
	require.NotNil(t, req)
	assert.Equal(t, "http://gp.internal:8080/estimate", req.URL.String())
	var sent remoteRequest
	require.NoError(t, json.Unmarshal(body, &sent))
	assert.Equal(t, in.TrainX, sent.TrainX)
}

func TestRemoteEstimator_DoesNotCallWithoutTrainingData(t *testing.T) {
	t.Parallel()

	c := httputil.NewScriptedClient()
	in := remoteInput()
	in.TrainX, in.TrainY = nil, nil
	_, err := NewRemoteEstimatorWithClient("http://gp", c).Estimate(context.Background(), in)
	assert.ErrorIs(t, err, ErrNoTrainingData)
	assert.Zero(t, c.Requests())
}
