package app

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kswings/kswingsd/pkg/assets"
	"github.com/kswings/kswingsd/pkg/config"
	"github.com/kswings/kswingsd/pkg/deploy"
	"github.com/kswings/kswingsd/pkg/log"
	"github.com/kswings/kswingsd/pkg/runtime"
	"github.com/kswings/kswingsd/pkg/server"
	"github.com/kswings/kswingsd/pkg/store"
	"github.com/kswings/kswingsd/pkg/utils"
)

// App struct
type App struct {
	closers []io.Closer

	Config   *config.AppConfig
	Log      *logrus.Entry
	Runtime  *runtime.Client
	Store    *store.Store
	Assets   *assets.Fetcher
	Deployer *deploy.Deployer
	Server   *server.Server
}

// NewApp bootstraps the agent: logger, runtime client, state store,
// fetcher, deployer and the control plane server, in that order.
func NewApp(config *config.AppConfig) (*App, error) {
	app := &App{
		closers: []io.Closer{},
		Config:  config,
	}
	app.Log = log.NewLogger(config)

	var err error
	app.Runtime, err = runtime.NewClient(app.Log, config.RuntimeSocket())
	if err != nil {
		return app, err
	}
	app.closers = append(app.closers, app.Runtime)

	if err := app.checkRuntime(); err != nil {
		return app, err
	}

	app.Store, err = store.New(app.Log, config.StoragePath())
	if err != nil {
		return app, err
	}
	if err := app.failAbandonedInstalls(); err != nil {
		return app, err
	}
	if err := os.MkdirAll(config.VolumesPath(), 0o755); err != nil {
		return app, err
	}

	app.Assets = assets.NewFetcher(app.Log)
	app.Deployer = deploy.NewDeployer(app.Log, app.Runtime, app.Store, app.Assets, config.VolumesPath())
	app.Server = server.NewServer(app.Log, config, app.Runtime, app.Store, app.Deployer)
	app.closers = append(app.closers, closerFunc(app.Server.Close))

	return app, nil
}

// checkRuntime makes an unreachable engine socket a startup failure
// rather than a per-request surprise.
func (app *App) checkRuntime() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return app.Runtime.Ping(ctx)
}

// failAbandonedInstalls marks instances that were mid-install when the
// previous process died. Their pipeline is gone; only a redeploy can
// revive them.
func (app *App) failAbandonedInstalls() error {
	ids, err := app.Store.IDs()
	if err != nil {
		return err
	}
	for _, id := range ids {
		record, ok, err := app.Store.Get(id)
		if err != nil {
			return err
		}
		if !ok || record.State != store.StateInstalling {
			continue
		}
		app.Log.Warnf("instance %s was mid-install at shutdown, marking it failed", id)
		if err := app.Store.SetState(id, store.StateFailed); err != nil {
			return err
		}
	}
	return nil
}

func (app *App) Run() error {
	return app.Server.ListenAndServe()
}

func (app *App) Close() error {
	return utils.CloseMany(app.closers)
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

type errorMapping struct {
	originalError string
	newError      string
}

// KnownError takes an error and tells us whether it's an error that we know about where we can print a nicely formatted version of it rather than panicking with a stack trace
func (app *App) KnownError(err error) (string, bool) {
	errorMessage := err.Error()

	mappings := []errorMapping{
		{
			originalError: "permission denied while trying to connect",
			newError:      "Cannot access the container runtime socket. Is the agent's user in the docker group?",
		},
		{
			originalError: "no access key configured",
			newError:      "No shared secret configured. Set `key` in config.yml before starting the agent.",
		},
	}

	for _, mapping := range mappings {
		if strings.Contains(errorMessage, mapping.originalError) {
			return mapping.newError, true
		}
	}

	if runtime.IsErrConnectionFailed(err) {
		return "Cannot connect to the container runtime. Is it running?", true
	}

	return "", false
}
