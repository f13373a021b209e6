package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"audience-quiz-service/internal/app"
	"audience-quiz-service/internal/config"
	"audience-quiz-service/internal/domain"
	"audience-quiz-service/internal/infra/memory"
	pgstore "audience-quiz-service/internal/infra/postgres"
	redisstore "audience-quiz-service/internal/infra/redis"
	transport "audience-quiz-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var loader memory.SlideLoader = memory.NewStaticSlideLoader(sampleSlides())
	if pool != nil {
		loader = pgstore.NewSlideLoader(pool)
	}

	slideTTL := config.TTLDuration(cfg.Quiz.SlideTTL, 10*time.Minute)
	var slides app.SlideConfigProvider
	if redisClient != nil {
		slides = redisstore.NewSlideProvider(redisClient, loader, slideTTL)
	} else {
		slides = memory.NewSlideProvider(loader, slideTTL)
	}

	var sessions app.SessionRepository
	if redisClient != nil {
		sessions = redisstore.NewSessionStore(redisClient, redisTTL)
	} else {
		sessions = memory.NewSessionStore()
	}

	var ledger app.ScoreLedger = memory.NewScoreLedger()
	var answerLog app.AnswerLog = memory.NewAnswerLog()
	if pool != nil {
		ledger = pgstore.NewScoreLedger(pool)
		answerLog = pgstore.NewAnswerLog(pool)
	}

	hub := transport.NewHub()
	service := app.NewQuizService(sessions, slides, ledger, answerLog, hub, cfg.Quiz.LeaderboardLimit)
	defer service.Close()
	wsHandler := transport.NewWSHandler(service, hub)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting quiz service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleSlides provides minimal demo slide data; the Postgres loader replaces
// this when a database is configured.
func sampleSlides() (map[string]domain.QuizSlideConfig, map[string][]string) {
	configs := map[string]domain.QuizSlideConfig{
		"slide-1": {SlideID: "slide-1", TimeLimit: 20, CorrectOptionID: "option-b"},
		"slide-2": {SlideID: "slide-2", TimeLimit: 30, CorrectOptionID: "option-a"},
	}
	presentations := map[string][]string{
		"demo": {"slide-1", "slide-2"},
	}
	return configs, presentations
}
