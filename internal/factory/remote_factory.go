package factory

import (
	"github.com/mikey/mail-triage/internal/adapters/remote"
	"github.com/mikey/mail-triage/internal/config"
	"github.com/mikey/mail-triage/internal/core"
	"go.uber.org/zap"
)

// RemoteFactory creates the remote classifier adapter
type RemoteFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewRemoteFactory creates a new remote classifier factory
func NewRemoteFactory(cfg *config.Config, logger *zap.Logger) *RemoteFactory {
	return &RemoteFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateRemoteClassifier creates the configured remote classifier, or
// nil when the remote service is disabled so every event is classified
// locally.
func (f *RemoteFactory) CreateRemoteClassifier() (core.RemoteClassifier, error) {
	remoteCfg := f.cfg.GetRemote()
	if !remoteCfg.Enabled {
		f.logger.Info("Remote classifier disabled, using rules only")
		return nil, nil
	}

	timeout, err := f.cfg.GetDuration("remote.timeout")
	if err != nil {
		return nil, err
	}

	return remote.NewHTTPClassifier(remoteCfg.Endpoint, timeout, f.logger), nil
}
