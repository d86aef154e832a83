package wayback

import (
	"context"
	"errors"
	"net"
	"net/http"

	"pricing-history/models"
)

// Fetch downloads one archived snapshot. It makes exactly one request,
// bounded by the session timeout and detached from ctx's cancellation so a
// request already on the wire is allowed to finish. Failures are returned as
// data, never retried.
func (s *Session) Fetch(ctx context.Context, archiveURL string) models.FetchResult {
	target := archiveURL
	if s.opts.RawContent {
		target = RawArchiveURL(archiveURL)
	}

	reqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.Timeout)
	defer cancel()

	resp, err := s.http.R().
		SetContext(reqCtx).
		Get(target)
	if err != nil {
		return models.FetchResult{Failure: classifyTransportError(err)}
	}

	result := models.FetchResult{
		StatusCode:  resp.StatusCode(),
		ResolvedURL: target,
	}
	if raw := resp.RawResponse; raw != nil && raw.Request != nil && raw.Request.URL != nil {
		result.ResolvedURL = raw.Request.URL.String()
	}

	if resp.StatusCode() != http.StatusOK {
		result.Failure = &models.FetchFailure{
			Kind:       models.FailureHTTPError,
			StatusCode: resp.StatusCode(),
		}
		return result
	}

	body := resp.Body()
	if len(body) == 0 {
		result.Failure = &models.FetchFailure{
			Kind: models.FailureParseError,
			Err:  errors.New("empty body"),
		}
		return result
	}

	result.Content = body
	return result
}

func classifyTransportError(err error) *models.FetchFailure {
	if errors.Is(err, context.DeadlineExceeded) {
		return &models.FetchFailure{Kind: models.FailureTimeout, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &models.FetchFailure{Kind: models.FailureTimeout, Err: err}
	}
	return &models.FetchFailure{Kind: models.FailureConnectionError, Err: err}
}
