// Package submitter wires configuration, chain access, the relay client and the engine
// into one process run.
package submitter

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/allegro/bigcache/v3"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/AvaProtocol/sponsored-bundle/core/chainio"
	"github.com/AvaProtocol/sponsored-bundle/core/config"
	"github.com/AvaProtocol/sponsored-bundle/core/engine"
	"github.com/AvaProtocol/sponsored-bundle/core/plan"
	"github.com/AvaProtocol/sponsored-bundle/metrics"
	"github.com/AvaProtocol/sponsored-bundle/pkg/flashbots"
	"github.com/AvaProtocol/sponsored-bundle/pkg/logger"
	"github.com/AvaProtocol/sponsored-bundle/storage"
	"github.com/AvaProtocol/sponsored-bundle/version"
)

// Overrides come from command line flags and win over the config file and environment.
type Overrides struct {
	DryRun bool
	// Dump pretty prints the signed bundle to stdout
	Dump bool
}

type Submitter struct {
	logger logger.Logger
	config *config.Config

	chain *chainio.Client
	relay *flashbots.Client
	db    storage.Storage
	cache *bigcache.BigCache

	registry *prometheus.Registry
	engine   *engine.Engine
}

// RunWithConfig loads configPath, runs the submitter until a terminal outcome or a signal,
// and returns the process exit code.
func RunWithConfig(configPath string, o Overrides) int {
	c, err := config.NewConfig(configPath)
	if err != nil {
		err = engine.NewConfigurationError(fmt.Sprintf("cannot load %s", configPath), err)
		fmt.Fprintln(os.Stderr, err)
		return engine.Outcome{Kind: engine.OutcomeFatal, Err: err}.ExitCode()
	}
	if o.DryRun {
		c.DryRun = true
	}

	s, err := NewSubmitter(c, o)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return engine.Outcome{Kind: engine.OutcomeFatal, Err: err}.ExitCode()
	}
	defer s.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return s.Start(ctx).ExitCode()
}

func NewSubmitter(c *config.Config, o Overrides) (*Submitter, error) {
	log, err := logger.New(c.Production())
	if err != nil {
		return nil, engine.NewConfigurationError("cannot create logger", err)
	}

	chain, err := chainio.NewClient(&chainio.RpcOption{
		RpcURL:   c.EthRpcUrl,
		WsRpcURL: c.EthWsUrl,
	}, log)
	if err != nil {
		return nil, engine.NewStructuredError(engine.ErrorCodeChainRead, "cannot connect to ethereum node", err)
	}

	s := &Submitter{
		logger:   log,
		config:   c,
		chain:    chain,
		relay:    flashbots.NewClient(c.RelayUrl, c.RelaySigner, chain, log),
		registry: prometheus.NewRegistry(),
	}

	// attempts are journaled for the lifetime of the process only
	db, err := storage.NewInMemory()
	if err != nil {
		s.Close()
		return nil, engine.NewConfigurationError("cannot open attempt journal", err)
	}
	s.db = db

	cacheConfig := bigcache.DefaultConfig(30 * time.Minute)
	cacheConfig.Shards = 16
	cacheConfig.MaxEntriesInWindow = 256
	cacheConfig.Verbose = false
	s.cache, err = bigcache.New(context.Background(), cacheConfig)
	if err != nil {
		s.Close()
		return nil, engine.NewConfigurationError("cannot create token metadata cache", err)
	}

	provider, err := plan.New(c.Plan.Name, plan.Options{
		Caller:          chain.Caller(),
		Tokens:          plan.NewTokenMetadataService(chain.Caller(), s.cache, log),
		Sender:          c.Executor.Address,
		Recipient:       c.Recipient,
		Token:           c.Plan.Token,
		StakingContract: c.Plan.StakingContract,
		StakedAmount:    c.Plan.StakedAmount,
		ExpectedBalance: c.Plan.ExpectedBalance,
		NFTContracts:    c.Plan.NFTContracts,
	})
	if err != nil {
		s.Close()
		return nil, engine.NewConfigurationError(fmt.Sprintf("cannot build plan %q", c.Plan.Name), err)
	}

	var dump io.Writer
	if o.Dump {
		dump = os.Stdout
	}

	s.engine, err = engine.New(engine.Options{
		Chain:       chain,
		Relay:       s.relay,
		Plan:        provider,
		Sponsor:     c.Sponsor,
		Executor:    c.Executor,
		DryRun:      c.DryRun,
		MaxAttempts: c.MaxAttempts,
		Logger:      log,
		Metrics:     metrics.NewBundleMetrics(s.registry),
		Storage:     s.db,
		Dump:        dump,
	})
	if err != nil {
		s.Close()
		return nil, err
	}

	return s, nil
}

// Start serves metrics when configured and runs the engine to completion.
func (s *Submitter) Start(ctx context.Context) engine.Outcome {
	s.logger.Infof("Starting sponsored bundle submitter %s", version.Get())
	s.logger.Info("accounts",
		"sponsor", s.config.Sponsor.Address.Hex(),
		"executor", s.config.Executor.Address.Hex(),
		"relay_signer", s.config.RelaySigner.Address.Hex(),
		"recipient", s.config.Recipient.Hex(),
		"plan", s.config.Plan.Name,
	)

	metrics.Start(ctx, s.config.MetricsAddress, s.registry, s.logger)

	outcome := s.engine.Run(ctx)
	s.logger.Infof("Shutting down with %s", outcome)
	return outcome
}

func (s *Submitter) Close() {
	if s.db != nil {
		s.db.Close()
	}
	if s.cache != nil {
		s.cache.Close()
	}
	if s.chain != nil {
		s.chain.Close()
	}
}
