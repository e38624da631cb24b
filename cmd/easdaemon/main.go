package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/DedovMosol/IwoMailClient-sub004/internal/credential"
	"github.com/DedovMosol/IwoMailClient-sub004/internal/engine"
	"github.com/DedovMosol/IwoMailClient-sub004/internal/executor"
	"github.com/DedovMosol/IwoMailClient-sub004/internal/model"
	"github.com/DedovMosol/IwoMailClient-sub004/internal/mutation"
	"github.com/DedovMosol/IwoMailClient-sub004/internal/provision"
	"github.com/DedovMosol/IwoMailClient-sub004/internal/push"
	"github.com/DedovMosol/IwoMailClient-sub004/internal/store"
	"github.com/DedovMosol/IwoMailClient-sub004/internal/transport"
)

var (
	version     = "dev"
	configPath  = flag.String("config", model.DefaultConfigPath(), "Path to the configuration file")
	showVersion = flag.Bool("version", false, "Show version information")
)

// runner is the per-account sync driver, either a push channel or an
// interval scheduler.
type runner interface {
	Start()
	Stop()
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("easdaemon version %s\n", version)
		os.Exit(0)
	}

	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	cfg, err := model.LoadConfig(*configPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}
	if len(cfg.Accounts) == 0 {
		logger.Fatalf("No accounts configured in %s", *configPath)
	}

	st, err := store.NewSQLiteStore(cfg.StorePath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open the cache store")
	}
	defer st.Close()

	resolver := credential.KeyringResolver{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runners []runner
	for i := range cfg.Accounts {
		r, err := startAccount(ctx, st, resolver, &cfg.Accounts[i], logger)
		if err != nil {
			logger.WithError(err).WithField("account", cfg.Accounts[i].Name).Error("Failed to start account")
			continue
		}
		runners = append(runners, r)
	}
	if len(runners) == 0 {
		logger.Fatal("No account could be started")
	}

	// Surface cache changes in the log; a UI would subscribe here too.
	events, unsubscribe := st.Subscribe(64)
	defer unsubscribe()
	go func() {
		for ev := range events {
			logger.WithFields(logrus.Fields{
				"kind":    ev.Kind,
				"account": ev.AccountID,
			}).Debug("cache changed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	logger.WithField("signal", sig).Info("Shutting down")
	cancel()
	for _, r := range runners {
		r.Stop()
	}
}

// startAccount reconciles one configured account into the store, wires
// its transport stack, runs an initial sync, and starts its driver.
func startAccount(ctx context.Context, st store.Store, resolver credential.Resolver,
	ac *model.AccountConfig, logger *logrus.Logger) (runner, error) {

	account, err := reconcileAccount(ctx, st, ac)
	if err != nil {
		return nil, err
	}

	password, err := resolver.Resolve(account.CredentialKey)
	if err != nil {
		return nil, fmt.Errorf("resolving credentials for %s: %w", account.Name, err)
	}

	tcfg := transport.Config{
		Host:       account.Host,
		Port:       account.Port,
		TLSMode:    account.TLS,
		Username:   account.Username,
		Password:   password,
		DeviceID:   account.DeviceID,
		DeviceType: account.DeviceType,
	}
	if account.TLS == model.TLSPinned {
		pem, err := resolver.Resolve(account.PinnedCertKey)
		if err != nil {
			return nil, fmt.Errorf("resolving pinned certificate for %s: %w", account.Name, err)
		}
		tcfg.PinnedCertPEM = []byte(pem)
	}

	client, err := transport.NewClient(tcfg, logger)
	if err != nil {
		return nil, err
	}

	prov := provision.New(client, st, logger)
	exec := executor.New(client, prov, logger, executor.Options{})
	eng := engine.New(st, exec, logger)

	log := logger.WithField("account", account.Name)

	// First pass populates the hierarchy and folders before the driver
	// takes over.
	initCtx, initCancel := context.WithTimeout(ctx, 10*time.Minute)
	defer initCancel()
	if err := eng.SyncAll(initCtx, account); err != nil {
		log.WithError(err).Warn("Initial sync failed; the sync driver will retry")
	}

	// Redeliver intents journaled before the last shutdown.
	queue := mutation.New(st, exec, eng, logger)
	if err := queue.Flush(initCtx, account); err != nil {
		log.WithError(err).Warn("Replaying queued mutations failed; they stay queued")
	}

	var r runner
	if account.SyncMode == model.SyncModeScheduled {
		r = push.NewScheduler(eng, account, logger)
		log.WithField("interval_sec", account.IntervalSec).Info("Starting scheduled sync")
	} else {
		r = push.NewChannel(st, exec, eng, account, logger)
		log.WithField("heartbeat_sec", account.HeartbeatSec).Info("Starting push channel")
	}
	r.Start()
	return r, nil
}

// reconcileAccount matches a configured account to its stored record by
// name, creating it on first run, and refreshes the static fields the
// configuration owns.
func reconcileAccount(ctx context.Context, st store.Store, ac *model.AccountConfig) (*model.Account, error) {
	existing, err := st.GetAccounts(ctx)
	if err != nil {
		return nil, err
	}

	var account *model.Account
	for i := range existing {
		if existing[i].Name == ac.Name {
			account = &existing[i]
			break
		}
	}
	if account == nil {
		account = &model.Account{
			ID:             uuid.New().String(),
			Name:           ac.Name,
			ProvisionState: model.ProvisionNone,
		}
	}

	account.Host = ac.Host
	account.Port = ac.Port
	account.TLS = model.TLSMode(ac.TLSMode)
	account.Username = ac.Username
	account.CredentialKey = ac.CredentialKey
	account.PinnedCertKey = ac.PinnedCertKey
	// Keep the stored device identity unless the config pins one;
	// a fresh id makes the server treat this as a brand-new device.
	if ac.DeviceID != "" {
		account.DeviceID = ac.DeviceID
	}
	account.DeviceType = ac.DeviceType
	account.SyncMode = model.SyncMode(ac.SyncMode)
	account.HeartbeatSec = ac.HeartbeatSec
	account.IntervalSec = ac.IntervalSec

	// An empty device id gets a generated one in UpsertAccount.
	if err := st.UpsertAccount(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}
