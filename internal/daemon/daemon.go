// internal/daemon/daemon.go
package daemon

import (
	"context"
	"encoding/json"
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/xkilldash9x/puppetd/api/schemas"
	"github.com/xkilldash9x/puppetd/internal/browser"
	"github.com/xkilldash9x/puppetd/internal/config"
	"github.com/xkilldash9x/puppetd/internal/ipc"
	"github.com/xkilldash9x/puppetd/internal/pipeline"
	"github.com/xkilldash9x/puppetd/internal/reaper"
	"github.com/xkilldash9x/puppetd/internal/session"
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

// Daemon owns the IPC server and the components behind it: the session
// registry, the browser launcher, the pipeline executor, and the reaper.
type Daemon struct {
	logger   *zap.Logger
	cfg      *config.Config
	registry *session.Registry
	launcher *browser.Launcher
	executor *pipeline.Executor
	reaper   *reaper.Reaper
	server   *ipc.Server

	// browserCtx parents every browser process so sessions survive request
	// contexts and server shutdown until CloseAll has run.
	browserCtx    context.Context
	browserCancel context.CancelFunc

	// launches collapses concurrent launch requests for the same execution id.
	launches singleflight.Group
}

// New assembles a daemon from configuration. The IPC handlers are registered
// here; nothing listens until Run.
func New(cfg *config.Config, logger *zap.Logger) (*Daemon, error) {
	socketPath, err := cfg.SocketPath()
	if err != nil {
		return nil, err
	}

	registry := session.NewRegistry(logger)
	browserCtx, browserCancel := context.WithCancel(context.Background())

	d := &Daemon{
		logger:        logger.Named("daemon"),
		cfg:           cfg,
		registry:      registry,
		launcher:      browser.NewLauncher(cfg.Browser, logger),
		executor:      pipeline.NewExecutor(logger),
		reaper:        reaper.NewReaper(cfg.Reaper, registry, logger),
		server:        ipc.NewServer(socketPath, logger),
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}

	d.server.Handle(schemas.OpLaunch, d.handleLaunch)
	d.server.Handle(schemas.OpExec, d.handleExec)
	d.server.Handle(schemas.OpCheck, d.handleCheck)
	d.server.Handle(schemas.OpShutdown, d.handleShutdown)
	return d, nil
}

// Run serves IPC requests until ctx is cancelled, then drains connections
// and closes every live session.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.server.Start(ctx); err != nil {
		return err
	}
	d.logger.Info("Daemon running")

	<-ctx.Done()
	d.logger.Info("Shutting down")
	d.server.Stop()

	closeCtx, cancel := context.WithTimeout(context.Background(), d.cfg.Server.ShutdownTimeout)
	defer cancel()
	d.registry.CloseAll(closeCtx)
	d.browserCancel()
	return nil
}

// handleLaunch ensures a session exists for the execution id. Launching is
// idempotent: an existing session yields a positive reply without touching
// it, and concurrent launches for one id collapse into a single browser
// start. A browser that fails to start is a negative reply, not an error.
func (d *Daemon) handleLaunch(ctx context.Context, payload json.RawMessage) (any, error) {
	req, err := decode[schemas.LaunchRequest](payload)
	if err != nil {
		return nil, err
	}
	if req.ExecutionID == "" {
		return nil, fmt.Errorf("launch request missing execution id")
	}

	launched, err, _ := d.launches.Do(req.ExecutionID, func() (any, error) {
		if _, ok := d.registry.Lookup(req.ExecutionID); ok {
			return true, nil
		}
		b, err := d.launcher.Launch(d.browserCtx, &req.GlobalOptions)
		if err != nil {
			d.logger.Error("Browser launch failed",
				zap.String("execution_id", req.ExecutionID), zap.Error(err))
			return false, nil
		}
		if _, err := d.registry.Register(req.ExecutionID, b); err != nil {
			b.Close(ctx)
			return true, nil
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return schemas.LaunchReply{Launched: launched.(bool)}, nil
}

// handleExec runs a step pipeline against the execution's session. A missing
// session is a soft failure carried in the result, not a request error.
func (d *Daemon) handleExec(ctx context.Context, payload json.RawMessage) (any, error) {
	req, err := decode[schemas.ExecRequest](payload)
	if err != nil {
		return nil, err
	}

	sess, ok := d.registry.Lookup(req.ExecutionID)
	if !ok {
		d.logger.Warn("Exec for unknown execution", zap.String("execution_id", req.ExecutionID))
		return schemas.ExecReply{Result: schemas.PipelineResult{
			Error: fmt.Sprintf("no session for execution %s", req.ExecutionID),
		}}, nil
	}

	result := d.executor.Run(ctx, sess, &req.GlobalOptions, req.Steps, req.ContinueOnFail)
	return schemas.ExecReply{Result: *result}, nil
}

// handleCheck arms the reaper for the execution. The reply only acknowledges
// receipt; polling and the eventual close happen in the background. Repeated
// checks never start a second polling loop.
func (d *Daemon) handleCheck(ctx context.Context, payload json.RawMessage) (any, error) {
	req, err := decode[schemas.CheckRequest](payload)
	if err != nil {
		return nil, err
	}

	sess, ok := d.registry.Lookup(req.ExecutionID)
	if !ok {
		return schemas.CheckReply{Acknowledged: false}, nil
	}
	if sess.ArmReaper() {
		d.reaper.Watch(d.browserCtx, req.ExecutionID, req.BaseURL, req.APIKey)
	}
	return schemas.CheckReply{Acknowledged: true}, nil
}

// handleShutdown closes the execution's session synchronously.
func (d *Daemon) handleShutdown(ctx context.Context, payload json.RawMessage) (any, error) {
	req, err := decode[schemas.ShutdownRequest](payload)
	if err != nil {
		return nil, err
	}
	existed := d.registry.Close(ctx, req.ExecutionID)
	return schemas.ShutdownReply{Existed: existed}, nil
}

func decode[T any](payload json.RawMessage) (*T, error) {
	var v T
	if err := codec.Unmarshal(payload, &v); err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}
	return &v, nil
}
