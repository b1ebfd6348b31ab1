// internal/reaper/reaper.go
package reaper

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/puppetd/internal/config"
	"github.com/xkilldash9x/puppetd/internal/session"
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

// Reaper polls an external status API for watched executions and closes
// their sessions once the execution is reported finished or stopped.
type Reaper struct {
	logger   *zap.Logger
	registry *session.Registry
	client   *http.Client
	interval time.Duration
}

// NewReaper creates a reaper closing sessions through the given registry.
func NewReaper(cfg config.ReaperConfig, registry *session.Registry, logger *zap.Logger) *Reaper {
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = 3 * time.Second
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Reaper{
		logger:   logger.Named("reaper"),
		registry: registry,
		client:   &http.Client{Timeout: timeout},
		interval: interval,
	}
}

// Watch starts a polling goroutine for one execution. It returns once the
// goroutine is running; the goroutine exits when the execution finishes, the
// session disappears, or ctx is cancelled.
func (r *Reaper) Watch(ctx context.Context, executionID, baseURL, apiKey string) {
	statusURL := fmt.Sprintf("%s/executions/%s", strings.TrimRight(baseURL, "/"), executionID)
	logger := r.logger.With(zap.String("execution_id", executionID))

	go func() {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		logger.Debug("Watching execution", zap.String("url", statusURL))
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			if _, ok := r.registry.Lookup(executionID); !ok {
				logger.Debug("Session gone, stopping watch")
				return
			}

			done, err := r.fetchStatus(ctx, statusURL, apiKey)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Debug("Status poll failed", zap.Error(err))
				continue
			}
			if !done {
				continue
			}

			logger.Info("Execution finished, reaping session")
			r.registry.Close(ctx, executionID)
			return
		}
	}()
}

// executionStatus is the slice of the status API response the reaper needs.
// Some deployments nest it under a data envelope.
type executionStatus struct {
	Finished  *bool   `json:"finished"`
	StoppedAt *string `json:"stoppedAt"`
}

type executionReply struct {
	executionStatus
	Data *executionStatus `json:"data"`
}

// fetchStatus reports whether the execution is finished. An execution is
// considered finished unless the API explicitly says finished=false with no
// stop timestamp.
func (r *Reaper) fetchStatus(ctx context.Context, statusURL, apiKey string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, statusURL, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "application/json")
	if apiKey != "" {
		req.Header.Set("X-Api-Key", apiKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("status endpoint returned %d", resp.StatusCode)
	}

	var reply executionReply
	if err := codec.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return false, fmt.Errorf("failed to decode status response: %w", err)
	}

	st := reply.executionStatus
	if reply.Data != nil {
		st = *reply.Data
	}
	return st.Finished == nil || *st.Finished || st.StoppedAt != nil, nil
}
