package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Kylemerian/real-time-web-chat/internal/cache"
	"github.com/Kylemerian/real-time-web-chat/internal/config"
	"github.com/Kylemerian/real-time-web-chat/internal/db"
	clog "github.com/Kylemerian/real-time-web-chat/internal/log"
	"github.com/Kylemerian/real-time-web-chat/internal/notify"
	"github.com/Kylemerian/real-time-web-chat/internal/registry"
	"github.com/Kylemerian/real-time-web-chat/internal/relay"
	"github.com/Kylemerian/real-time-web-chat/internal/server"
	"github.com/Kylemerian/real-time-web-chat/internal/service"
	"github.com/Kylemerian/real-time-web-chat/internal/ws"

	"github.com/rs/zerolog/log"
)

func main() {
	cfg := config.Load()
	clog.Init(cfg.Env)
	if err := config.Validate(cfg); err != nil {
		log.Fatal().Err(err).Msg("config validate")
	}

	gdb, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	if err := db.Migrate(gdb); err != nil {
		log.Fatal().Err(err).Msg("db migrate")
	}

	var store cache.Store
	if cfg.RedisAddr != "" {
		r := cache.NewRedis(cfg.RedisAddr)
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := r.Ping(ctx); err != nil {
			cancel()
			log.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("redis connect")
		}
		cancel()
		store = r
	} else {
		log.Warn().Msg("REDIS_ADDR not set, using in-process cache")
		store = cache.NewMemory()
	}
	c := cache.New(store)

	var sender notify.Sender
	if cfg.TelegramBotToken != "" {
		tg, err := notify.NewTelegramSender(cfg.TelegramBotToken)
		if err != nil {
			log.Fatal().Err(err).Msg("telegram sender")
		}
		sender = tg
	} else {
		log.Warn().Msg("TELEGRAM_BOT_TOKEN not set, offline notifications are logged only")
		sender = notify.LogSender{}
	}
	queue := notify.NewQueue(sender, cfg.NotifyQueueSize)
	queue.Start()

	reg := registry.New()
	userSvc := service.NewUserService(gdb, cfg)
	chatSvc := service.NewChatService(gdb, c)
	msgSvc := service.NewMessageService(gdb, c)
	rel := relay.New(msgSvc, chatSvc, userSvc, reg, c, queue)

	h := server.NewHandler(cfg, userSvc, chatSvc, msgSvc, reg)
	router := server.SetupRouter(cfg, gdb, h, reg, rel)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: router}
	go func() {
		log.Info().Str("port", cfg.Port).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server run")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Info().Msg("shutting down")
	reg.Broadcast(ws.SystemNotice("server is shutting down"))
	queue.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}
}
