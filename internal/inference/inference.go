// Package inference wraps the remote model-inference RPC service (spec
// §4.2). It is the only internal touchpoint with that out-of-scope
// collaborator: request construction, raw-tensor upload, raw-tensor result
// retrieval. Modeled on the teacher's internal/chain JSON-RPC client, with
// one pooled *http.Client per inference-server address (spec §9 design
// note: "may pool clients per inference-server address; semantics must not
// change").
package inference

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rosteleset/falprs-go/internal/cache"
	"github.com/rosteleset/falprs-go/internal/errs"
	"github.com/rosteleset/falprs-go/internal/metrics"
)

// Tensor is a raw FP32 tensor in CHW layout.
type Tensor struct {
	Shape []int // [C, H, W] or [N]
	Data  []float32
}

// Adapter invokes named models against the remote inference service.
type Adapter struct {
	mu      sync.Mutex
	clients map[string]*http.Client
	timeout time.Duration
	stats   *metrics.DNNStats
}

func NewAdapter(timeout time.Duration, stats *metrics.DNNStats) *Adapter {
	return &Adapter{clients: map[string]*http.Client{}, timeout: timeout, stats: stats}
}

func (a *Adapter) clientFor(addr string) *http.Client {
	a.mu.Lock()
	defer a.mu.Unlock()
	if c, ok := a.clients[addr]; ok {
		return c
	}
	c := &http.Client{Timeout: a.timeout}
	a.clients[addr] = c
	return c
}

type inferRequest struct {
	Model       string `json:"model"`
	InputTensor string `json:"input_tensor"`
	OutputTensor string `json:"output_tensor"`
	Shape       []int  `json:"shape"`
	DataB64     string `json:"data"`
}

type inferResponse struct {
	DataB64    string `json:"data"`
	OutputSize int    `json:"output_size"`
	Error      string `json:"error,omitempty"`
}

// Invoke runs one model call. On network error, non-OK status, or a
// malformed/undersized output, it returns (Tensor{}, false, err). It does
// not log the error and does not panic; reporting is left to the caller.
// The call blocks the calling goroutine until the model answers or the
// request fails.
func (a *Adapter) Invoke(ctx context.Context, ep cache.DNNEndpoint, in Tensor) (Tensor, bool, error) {
	start := time.Now()
	out, err := a.invoke(ctx, ep, in)
	ok := err == nil
	if a.stats != nil {
		a.stats.Record(ep.ModelName, time.Since(start), ok)
	}
	if !ok {
		return Tensor{}, false, err
	}
	return out, true, nil
}

func (a *Adapter) invoke(ctx context.Context, ep cache.DNNEndpoint, in Tensor) (Tensor, error) {
	if ep.Server == "" {
		return Tensor{}, errs.Inference("no inference server configured", nil)
	}
	body := inferRequest{
		Model:        ep.ModelName,
		InputTensor:  ep.InputTensor,
		OutputTensor: ep.OutputTensor,
		Shape:        in.Shape,
		DataB64:      base64.StdEncoding.EncodeToString(cache.Float32ToBytes(in.Data)),
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return Tensor{}, errs.Internal("marshal inference request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.Server+"/infer", bytes.NewReader(payload))
	if err != nil {
		return Tensor{}, errs.Inference("build inference request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.clientFor(ep.Server).Do(req)
	if err != nil {
		return Tensor{}, errs.Inference(fmt.Sprintf("call model %s", ep.ModelName), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Tensor{}, errs.Inference(fmt.Sprintf("model %s returned status %d", ep.ModelName, resp.StatusCode), nil)
	}

	var out inferResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Tensor{}, errs.Inference("decode inference response", err)
	}
	if out.Error != "" {
		return Tensor{}, errs.Inference(fmt.Sprintf("model %s: %s", ep.ModelName, out.Error), nil)
	}

	raw, err := base64.StdEncoding.DecodeString(out.DataB64)
	if err != nil {
		return Tensor{}, errs.Inference("decode output tensor", err)
	}
	expectedBytes := ep.OutputSize * 4
	if ep.OutputSize > 0 && len(raw) < expectedBytes {
		return Tensor{}, errs.Inference(
			fmt.Sprintf("model %s returned malformed output size %d, want >= %d", ep.ModelName, len(raw), expectedBytes), nil)
	}
	size := out.OutputSize
	if size <= 0 {
		size = len(raw) / 4
	}
	return Tensor{Data: cache.BytesToFloat32(raw, size)}, nil
}
