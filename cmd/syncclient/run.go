package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"im-sync/internal/auth"
	"im-sync/internal/config"
	"im-sync/internal/handlers/localapi"
	appKafka "im-sync/internal/kafka"
	kafkahandlers "im-sync/internal/kafka/handlers"
	"im-sync/internal/metrics"
	"im-sync/internal/services"
	"im-sync/internal/state"
	"im-sync/internal/storage"
	"im-sync/internal/websocket"
)

const shutdownTimeout = 5 * time.Second

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connects to the realtime server and keeps local state in sync until interrupted.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return errors.Wrap(err, "load config")
		}
		glog.Infof("%s %s starting", cfg.AppName, cfg.AppVersion)
		return run(cfg)
	},
}

func run(cfg config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. Session
	store, err := openTokenStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	api := services.NewAPIClient(cfg.API, nil)
	identityToken, err := resolveToken(ctx, cfg, api, store)
	if err != nil {
		return err
	}

	// 2. State, metrics and the realtime client
	st := state.NewLocalState("")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	client := websocket.NewClient(cfg.Server, cfg.WebSocket, st, websocket.Options{
		Metrics: m,
		OnStatus: func(s websocket.Status) {
			glog.Infof("syncclient: connection %s", s)
		},
		OnError: func(err error) {
			glog.Warningf("syncclient: %v", err)
		},
	})

	// 3. Optional archive
	var archiver *storage.Archiver
	if cfg.Database.Enabled {
		db, err := storage.InitDB(cfg.Database)
		if err != nil {
			return err
		}
		if err := storage.AutoMigrateTables(db); err != nil {
			return err
		}
		archiver = storage.NewArchiver(storage.NewGormMessageRepository(db), storage.NewGormNotificationRepository(db), st)
		detach := archiver.Attach()
		defer detach()
		go archiver.Run(ctx)
		glog.Infof("syncclient: archiving to %s database", cfg.Database.Type)
	}

	// 4. Optional Kafka mirror and outbox
	if cfg.Kafka.Enabled {
		producer, err := appKafka.NewConfluentKafkaProducer(cfg.Kafka)
		if err != nil {
			return err
		}
		defer producer.Close()

		mirror := appKafka.NewMirror(producer, cfg.Kafka.MirrorTopic, st)
		detach := mirror.Attach()
		defer detach()
		go mirror.Run(ctx)
		glog.Infof("syncclient: mirroring events to kafka topic %s", cfg.Kafka.MirrorTopic)

		if cfg.Kafka.OutboxTopic != "" {
			outbox, err := appKafka.NewConfluentKafkaConsumer(cfg.Kafka)
			if err != nil {
				return err
			}
			defer outbox.Close()

			logic := kafkahandlers.NewOutboxConsumerLogic(client)
			go func() {
				glog.Infof("syncclient: outbox consumer listening on %s, group %s", cfg.Kafka.OutboxTopic, cfg.Kafka.GroupID)
				err := outbox.Consume(ctx, []string{cfg.Kafka.OutboxTopic}, cfg.Kafka.GroupID, logic.HandleOutbox)
				if err != nil && !errors.Is(err, context.Canceled) {
					glog.Errorf("syncclient: outbox consumer: %v", err)
				}
				glog.Info("syncclient: outbox consumer stopped")
			}()
		}
	}

	// 5. Event hub for local subscribers
	hub := websocket.NewHub()
	detachHub := hub.Attach(st)
	defer detachHub()
	go hub.Run(ctx)

	// 6. Connect, then load notification history
	if _, err := client.Connect(ctx, identityToken); err != nil {
		return err
	}
	notifications := services.NewNotificationService(api, st)
	conversations := services.NewConversationService(api, st)
	go func() {
		if _, err := notifications.Fetch(ctx, client.Identity().UserID); err != nil {
			glog.Warningf("syncclient: load notifications: %v", err)
		}
	}()

	// 7. Local API
	var srv *http.Server
	if cfg.LocalAPI.Enabled {
		h := localapi.NewHandler(client, notifications, conversations)
		srv = &http.Server{
			Addr:    cfg.LocalAPI.Addr,
			Handler: localapi.NewRouter(h, hub, cfg.WebSocket, reg, cfg.LocalAPI),
		}
		go func() {
			glog.Infof("syncclient: local API listening on %s", cfg.LocalAPI.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				glog.Errorf("syncclient: local API: %v", err)
			}
		}()
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	glog.Infof("syncclient: %s received, shutting down", sig)

	client.Teardown()
	cancel()

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	if srv != nil {
		if err := srv.Shutdown(ctxShutdown); err != nil {
			glog.Errorf("syncclient: local API shutdown: %v", err)
		}
	}
	if archiver != nil {
		select {
		case <-archiver.Done():
		case <-ctxShutdown.Done():
			glog.Warning("syncclient: archive did not drain before shutdown timeout")
		}
	}
	glog.Info("syncclient: stopped")
	return nil
}

// resolveToken picks the identity token: the --token flag, then
// IDENTITY_TOKEN, then the token stored by login.
func resolveToken(ctx context.Context, cfg config.Config, api *services.APIClient, store auth.TokenStore) (string, error) {
	switch {
	case token != "":
		api.SetToken(token)
		return token, nil
	case cfg.Identity.Token != "":
		api.SetToken(cfg.Identity.Token)
		return cfg.Identity.Token, nil
	}

	stored, err := services.NewAuthService(api, store).Restore(ctx)
	if errors.Is(err, auth.ErrTokenNotFound) {
		return "", errors.New("no identity: pass --token, set IDENTITY_TOKEN or run login first")
	}
	if err != nil {
		return "", errors.WithMessage(err, "restore session")
	}
	return stored, nil
}
