package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/campuswell/wellbeing-api/internal/config"
	"github.com/campuswell/wellbeing-api/internal/email"
	appointmentHandler "github.com/campuswell/wellbeing-api/internal/handler/appointment"
	chatHandler "github.com/campuswell/wellbeing-api/internal/handler/chat"
	healthHandler "github.com/campuswell/wellbeing-api/internal/handler/health"
	intakeHandler "github.com/campuswell/wellbeing-api/internal/handler/intake"
	messageHandler "github.com/campuswell/wellbeing-api/internal/handler/message"
	notificationHandler "github.com/campuswell/wellbeing-api/internal/handler/notification"
	promHandler "github.com/campuswell/wellbeing-api/internal/handler/prometheus"
	"github.com/campuswell/wellbeing-api/internal/middleware"
	"github.com/campuswell/wellbeing-api/internal/repository/postgres"
	"github.com/campuswell/wellbeing-api/internal/router"
	"github.com/campuswell/wellbeing-api/internal/service/chat"
	"github.com/campuswell/wellbeing-api/internal/service/crisis"
	"github.com/campuswell/wellbeing-api/internal/service/moderation"
	"github.com/campuswell/wellbeing-api/internal/service/notification"
	"github.com/campuswell/wellbeing-api/internal/service/scheduling"
	"github.com/campuswell/wellbeing-api/internal/service/triage"
	"github.com/campuswell/wellbeing-api/internal/worker"
	"github.com/campuswell/wellbeing-api/internal/zoom"
	"github.com/campuswell/wellbeing-api/pkg/auth"
	"github.com/campuswell/wellbeing-api/pkg/logger"
	"github.com/campuswell/wellbeing-api/pkg/metrics"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(nil)
	m := metrics.NewMetrics("wellbeing", "api")

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal(err, "failed to connect to database")
	}
	defer db.Close()

	// Repositories.
	base := postgres.NewBaseRepository(db)
	userRepo := postgres.NewUserRepository(db)
	therapistRepo := postgres.NewTherapistRepository(db)
	intakeRepo := postgres.NewIntakeRepository(base)
	assignmentRepo := postgres.NewAssignmentRepository(base)
	appointmentRepo := postgres.NewAppointmentRepository(db)
	messageRepo := postgres.NewMessageRepository(db)
	modLogRepo := postgres.NewModerationLogRepository(db)
	alertRepo := postgres.NewCrisisAlertRepository(base)
	rescheduleRepo := postgres.NewRescheduleRepository(db)
	alternativeRepo := postgres.NewAlternativeOptionsRepository(db)
	notificationRepo := postgres.NewNotificationRepository(db)
	chatRepo := postgres.NewChatRepository(db)
	outboxRepo := postgres.NewOutboxRepository(base)

	// Services. Triage and scheduling reference each other, so the
	// scheduler side is attached after construction.
	emailSvc := email.NewService(cfg.Email)
	notifySvc := notification.NewService(notificationRepo, outboxRepo, userRepo, emailSvc, log)
	classifier := crisis.NewClassifier(crisis.Keywords{
		High:   cfg.Crisis.Keywords.High,
		Medium: cfg.Crisis.Keywords.Medium,
		Low:    cfg.Crisis.Keywords.Low,
		Extra:  cfg.Crisis.ExtraKeywords,
	})
	zoomClient := zoom.NewClient(cfg.Zoom, log, m)

	triageSvc := triage.NewService(
		intakeRepo, therapistRepo, assignmentRepo, alertRepo,
		classifier, notifySvc, nil, log, m,
	)
	scheduler := scheduling.NewScheduler(
		cfg.Scheduling,
		appointmentRepo, assignmentRepo, therapistRepo, intakeRepo,
		rescheduleRepo, alternativeRepo,
		zoomClient, triageSvc, notifySvc, log, m,
	)
	triageSvc.SetScheduler(scheduler)

	moderator := moderation.NewModerator(cfg.Moderation, messageRepo, classifier, log)
	moderationSvc := moderation.NewService(
		moderator, messageRepo, assignmentRepo, therapistRepo,
		alertRepo, modLogRepo, notifySvc, scheduler, log, m,
	)
	chatSvc := chat.NewService(cfg.Crisis, chatRepo, assignmentRepo, therapistRepo, alertRepo, classifier, notifySvc, log, m)

	// HTTP layer.
	jwtSvc := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpiryHours)
	authMiddleware := middleware.NewAuthMiddleware(jwtSvc)

	r := router.NewRouter(
		authMiddleware,
		healthHandler.NewHandler(db),
		promHandler.New("wellbeing"),
		intakeHandler.NewHandler(triageSvc),
		appointmentHandler.NewHandler(scheduler, therapistRepo),
		messageHandler.NewHandler(moderationSvc),
		notificationHandler.NewHandler(notifySvc),
		chatHandler.NewHandler(chatSvc),
		router.Config{
			RateLimit:  rate.Limit(100),
			RateBurst:  200,
			CORSConfig: middleware.DefaultCORSConfig(),
		},
	)
	r.Setup()

	// Background loops owned by the API process. The outbox drainer
	// runs in its own binary (cmd/worker); the sweeps are cheap enough
	// to live here.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	expirySweep := worker.NewExpirySweepWorker(scheduler, cfg.Worker.ExpirySweepInterval, log)
	go expirySweep.Start(ctx)

	cleanup := worker.NewCleanupWorker(scheduler, outboxRepo, cfg.Worker.CleanupInterval, cfg.Worker.OutboxRetentionDays, log)
	go cleanup.Start(ctx)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: r.Engine(),
	}

	go func() {
		log.Info("starting server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(err, "failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(err, "forced shutdown")
	}
}
