package pipeline

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rosteleset/falprs-go/internal/errs"
)

// FetchFrame resolves a frame URL per spec §4.3: a data: URI is decoded
// in-process; anything else is an HTTP GET with retry and timeout, carrying
// optional basic auth extracted from the URL's userinfo (spec §6, LPRS
// "extracts user/password between // and @" generalized to both pipelines).
func FetchFrame(ctx context.Context, rawURL string, timeout time.Duration, maxRetries int) ([]byte, error) {
	if strings.HasPrefix(rawURL, "data:") {
		idx := strings.Index(rawURL, ",")
		if idx < 0 {
			return nil, errs.BadRequest("malformed data: URI")
		}
		data, err := base64.StdEncoding.DecodeString(rawURL[idx+1:])
		if err != nil {
			return nil, errs.BadRequest("malformed data: URI payload")
		}
		return data, nil
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errs.UpstreamFetch("parse frame url", err)
	}
	var user, pass string
	if u.User != nil {
		user = u.User.Username()
		pass, _ = u.User.Password()
		u.User = nil
	}

	client := &http.Client{Timeout: timeout}
	var lastErr error
	attempts := maxRetries
	if attempts < 1 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, errs.UpstreamFetch("build frame request", err)
		}
		if user != "" {
			req.SetBasicAuth(user, pass)
		}
		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode != http.StatusOK || len(body) == 0 {
			lastErr = errs.UpstreamFetch("non-OK or empty frame response", nil)
			continue
		}
		return body, nil
	}
	return nil, errs.UpstreamFetch("fetch frame", lastErr)
}
