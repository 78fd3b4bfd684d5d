package download

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"git.home.luguber.info/inful/stylesync/internal/config"
	"git.home.luguber.info/inful/stylesync/internal/foundation/errors"
	"git.home.luguber.info/inful/stylesync/internal/logfields"
	"git.home.luguber.info/inful/stylesync/internal/metrics"
)

// StatusError is returned for any non-2xx response. It is never retried.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d from %s", e.StatusCode, e.URL)
}

func (m *Manager) fetch(ctx context.Context, src config.Source) ([]byte, error) {
	m.logger.Debug("Downloading", logfields.URL(src.URL))

	var body []byte
	attempt := func() error {
		b, err := m.get(ctx, src.URL)
		if err != nil {
			return err
		}
		body = b
		return nil
	}
	retryable := func(err error) bool {
		var se *StatusError
		return !stderrors.As(err, &se) && ctx.Err() == nil
	}
	onRetry := func(n int, delay time.Duration, err error) {
		m.recorder.IncRetry(metrics.StageSync)
		m.logger.Warn("Retrying download",
			logfields.URL(src.URL), slog.Int("attempt", n),
			logfields.DurationMS(float64(delay.Milliseconds())), logfields.Error(err))
	}

	if err := m.opts.Retry.Do(ctx, attempt, retryable, onRetry); err != nil {
		var se *StatusError
		if stderrors.As(err, &se) {
			m.logger.Error("Error downloading source", logfields.URL(src.URL), logfields.Status(se.StatusCode))
			return nil, errors.SyncError(fmt.Sprintf("unexpected status code %d", se.StatusCode)).
				WithCause(err).WithContext("url", src.URL).WithContext("status", se.StatusCode).Build()
		}
		m.logger.Error("Error downloading source", logfields.URL(src.URL), logfields.Error(err))
		return nil, errors.SyncError("request failed").
			WithCause(err).WithContext("url", src.URL).Build()
	}
	return body, nil
}

func (m *Manager) get(ctx context.Context, url string) ([]byte, error) {
	if m.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.opts.Timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", m.opts.UserAgent)

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}
	return io.ReadAll(resp.Body)
}
