package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	paho_mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/anicoll/ostrom-integration/internal/pkg/config"
	"github.com/anicoll/ostrom-integration/internal/pkg/contxt"
	"github.com/anicoll/ostrom-integration/internal/pkg/lifecycle"
	"github.com/anicoll/ostrom-integration/internal/pkg/mqtt"
	"github.com/anicoll/ostrom-integration/internal/pkg/ostrom"
	"github.com/anicoll/ostrom-integration/internal/pkg/publisher"
	"github.com/anicoll/ostrom-integration/internal/pkg/registry"
	"github.com/anicoll/ostrom-integration/internal/pkg/server"
	"github.com/anicoll/ostrom-integration/internal/pkg/setup"
)

// consumptionSourceTopic is where an external meter publishes total
// consumption readings in kWh.
const consumptionSourceTopic = "ostrom/consumption"

var errCron = errors.New("cron error")

func OstromCommand(ctx *cli.Context) error {
	var cfg *config.Config
	if ctx.Bool("from-env") {
		var err error
		if cfg, err = config.FromEnv(); err != nil {
			return err
		}
	} else {
		cfg = &config.Config{
			OstromCfg: &config.OstromConfig{
				ClientID:     ctx.String("client-id"),
				ClientSecret: ctx.String("client-secret"),
				ZipCode:      ctx.String("zip-code"),
				AuthURL:      ctx.String("auth-url"),
				APIURL:       ctx.String("api-url"),
			},
			MqttCfg: &config.MqttConfig{
				Host:     ctx.String("mqtt-host"),
				Username: ctx.String("mqtt-user"),
				Password: ctx.String("mqtt-pass"),
			},
			ServerCfg: &config.ServerConfig{
				ListenAddr:        ctx.String("listen-addr"),
				AdminPasswordHash: ctx.String("admin-password-hash"),
			},
			PollInterval: ctx.Duration("poll-interval"),
			LogLevel:     ctx.String("log-level"),
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	logger, err := buildLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync() // flushes buffer, if any.
	}()
	zap.ReplaceGlobals(logger)

	if ctx.Bool("validate-only") {
		return setup.Validate(ctx.Context, cfg.OstromCfg)
	}

	reg := registry.New()
	pub := publisher.New()
	broker := publisher.NewBroker()

	if cfg.MqttCfg.Host != "" {
		opts := paho_mqtt.NewClientOptions().
			AddBroker("tcp://" + cfg.MqttCfg.Host).
			SetUsername(cfg.MqttCfg.Username).
			SetPassword(cfg.MqttCfg.Password).
			SetClientID("ostrom-integration")
		mqttSvc := mqtt.New(paho_mqtt.NewClient(opts))
		if err := mqttSvc.Connect(); err != nil {
			return err
		}
		if err := pub.RegisterSink("mqtt", mqttSvc); err != nil {
			return err
		}
		if err := mqttSvc.SubscribeReadings(consumptionSourceTopic, lifecycle.ConsumptionTopic, broker); err != nil {
			return err
		}
	}

	manager := lifecycle.NewManager(reg, pub, broker)
	errorChan := make(chan error, 1000)

	return run(ctx.Context, cfg, manager, reg, errorChan)
}

func run(ctx context.Context, cfg *config.Config, manager LifecycleManager, reg *registry.Registry, errorChan chan error) error {
	logger := zap.L()
	eg, ctx := errgroup.WithContext(ctx)

	// first refresh is eager; an auth failure here means the supplied
	// credentials are bad and setup must not proceed.
	account, err := manager.Setup(ctx, cfg.OstromCfg)
	if err != nil {
		var authErr *ostrom.AuthError
		if errors.As(err, &authErr) {
			return fmt.Errorf("setup aborted, re-authentication required: %w", err)
		}
		return err
	}
	accountID := account.Device.ID
	defer manager.Teardown(accountID)

	eg.Go(func() error {
		return scheduleRefreshes(ctx, cfg.PollInterval, accountID, manager, errorChan)
	})

	eg.Go(func() error {
		srv := &http.Server{
			Handler:      server.New(reg, manager).Handler(cfg.ServerCfg),
			Addr:         cfg.ServerCfg.ListenAddr,
			WriteTimeout: 15 * time.Second,
			ReadTimeout:  15 * time.Second,
		}
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	eg.Go(func() error {
		// handle any async errors from the scheduler
		for {
			select {
			case err := <-errorChan:
				if errors.Is(err, errCron) {
					logger.Error("cron error", zap.Error(err))
					return err
				}
				logger.Error("refresh error", zap.Error(err))
			case <-ctx.Done():
				logger.Info("context done")
				return ctx.Err()
			}
		}
	})

	return eg.Wait()
}

// scheduleRefreshes ticks one refresh cycle per interval. Overlapping
// runs are skipped so at most one refresh is in flight per account.
func scheduleRefreshes(ctx context.Context, interval time.Duration, accountID string, manager LifecycleManager, errChan chan error) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		if err := manager.RefreshAccount(contxt.NewContext(time.Minute), accountID); err != nil {
			var authErr *ostrom.AuthError
			if errors.As(err, &authErr) {
				// keep serving stale data, the re-auth flow takes over.
				return
			}
			errChan <- err
		}
	}); err != nil {
		return errCron
	}

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return ctx.Err()
}

func buildLogger(level string) (*zap.Logger, error) {
	logCfg := zap.NewProductionConfig()
	var err error
	logCfg.Level, err = zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	logCfg.OutputPaths = []string{"stdout"}
	logCfg.ErrorOutputPaths = []string{"stdout"}
	logCfg.Sampling = nil
	return zap.Must(logCfg.Build(zap.AddCaller(), zap.AddStacktrace(zap.ErrorLevel))), nil
}
