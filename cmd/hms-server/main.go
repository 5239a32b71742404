package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hms/hms/internal/config"
	"github.com/hms/hms/internal/domain/appointment"
	"github.com/hms/hms/internal/domain/billing"
	"github.com/hms/hms/internal/domain/diagnostics"
	"github.com/hms/hms/internal/domain/identity"
	"github.com/hms/hms/internal/domain/inventory"
	"github.com/hms/hms/internal/domain/pharmacy"
	"github.com/hms/hms/internal/domain/queue"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/db"
	"github.com/hms/hms/internal/platform/middleware"
	"github.com/hms/hms/internal/platform/notification"
	"github.com/hms/hms/internal/platform/websocket"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "hms-server",
		Short: "Hospital Management API Server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HMS API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("dir") && cfg.MigrationsDir != "" {
				dir = cfg.MigrationsDir
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("dir") && cfg.MigrationsDir != "" {
				dir = cfg.MigrationsDir
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Rollback last migration (not supported)",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("WARNING: migrate down is destructive and not supported by the built-in runner.")
			fmt.Println("Restore from a database backup instead.")
			return nil
		},
	})

	return cmd
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// API group; the display-board websocket and health checks stay open.
	apiV1 := e.Group("/api/v1")

	if cfg.IsDev() {
		apiV1.Use(auth.DevAuthMiddleware())
	} else {
		apiV1.Use(auth.JWTMiddleware([]byte(cfg.JWTSecret)))
	}

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	// Health checks
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	// Display-board websocket hub
	hub := websocket.NewHub(logger)
	websocket.NewHandler(hub).RegisterRoutes(e.Group(""))

	// Queue engine
	queueSvc := queue.NewService(queue.NewRepoPG(pool), logger)
	queueSvc.SetPublisher(hub)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid REDIS_URL")
		}
		queueSvc.SetSnapshotCache(queue.NewRedisCache(redis.NewClient(opts), logger))
		logger.Info().Msg("queue snapshot cache enabled")
	}
	queue.NewHandler(queueSvc).RegisterRoutes(apiV1)

	// Identity domain
	identitySvc := identity.NewService(identity.NewPatientRepoPG(pool), identity.NewStaffRepoPG(pool))
	identity.NewHandler(identitySvc).RegisterRoutes(apiV1)

	// Billing domain
	billingSvc := billing.NewService(billing.NewRepoPG(pool), billing.FeeSchedule{
		ConsultationNew:       cfg.OPDFeeNew,
		ConsultationReturning: cfg.OPDFeeReturning,
	}, logger)
	billingSvc.SetPatientRegistry(&patientRegistry{svc: identitySvc})
	billing.NewHandler(billingSvc).RegisterRoutes(apiV1)

	// Inventory domain
	inventorySvc := inventory.NewService(inventory.NewRepoPG(pool), logger)
	inventory.NewHandler(inventorySvc).RegisterRoutes(apiV1)

	// Pharmacy domain
	pharmacySvc := pharmacy.NewService(pharmacy.NewRepoPG(pool), logger)
	pharmacySvc.SetStockKeeper(&stockKeeper{svc: inventorySvc})
	pharmacy.NewHandler(pharmacySvc).RegisterRoutes(apiV1)

	// Diagnostics domain
	diagnosticsSvc := diagnostics.NewService(diagnostics.NewRepoPG(pool))
	diagnostics.NewHandler(diagnosticsSvc).RegisterRoutes(apiV1)

	// Notifications
	notifySvc := notification.NewService(
		&notification.LogSender{Logger: logger},
		&notification.LogSender{Logger: logger},
		notification.NewTemplateEngine(),
		logger,
	)
	notification.NewHandler(notifySvc).RegisterRoutes(apiV1)

	// Appointment domain, wired to the queue, billing and notifications
	appointmentSvc := appointment.NewService(appointment.NewRepoPG(pool), logger)
	appointmentSvc.SetQueueEngine(queueSvc)
	appointmentSvc.SetPatientDirectory(&patientDirectory{svc: identitySvc})
	appointmentSvc.SetStaffDirectory(&staffDirectory{svc: identitySvc})
	appointmentSvc.SetBiller(billingSvc)
	appointmentSvc.SetNotifier(&appointmentNotifier{
		notify:   notifySvc,
		patients: identitySvc,
		logger:   logger,
	})
	appointment.NewHandler(appointmentSvc).RegisterRoutes(apiV1)

	// Daily queue reset
	sweepCtx, stopSweeper := context.WithCancel(ctx)
	defer stopSweeper()
	go queue.NewSweeper(queueSvc, logger).Start(sweepCtx)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	stopSweeper()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

// patientDirectory adapts the identity service to the appointment package's
// patient lookup, avoiding a direct import between the two domains.
type patientDirectory struct {
	svc *identity.Service
}

func (d *patientDirectory) PatientInfo(ctx context.Context, id uuid.UUID) (*appointment.PatientInfo, error) {
	p, err := d.svc.GetPatient(ctx, id)
	if err != nil {
		return nil, err
	}
	return &appointment.PatientInfo{Name: p.FullName(), Number: p.MRN}, nil
}

// staffDirectory adapts the identity service to the appointment package's
// doctor lookup.
type staffDirectory struct {
	svc *identity.Service
}

func (d *staffDirectory) StaffInfo(ctx context.Context, id uuid.UUID) (*appointment.StaffInfo, error) {
	s, err := d.svc.GetStaff(ctx, id)
	if err != nil {
		return nil, err
	}
	return &appointment.StaffInfo{Name: s.Name, Department: s.Department}, nil
}

// patientRegistry adapts the identity service to billing's fee-class lookup.
type patientRegistry struct {
	svc *identity.Service
}

func (r *patientRegistry) PatientType(ctx context.Context, id uuid.UUID) (string, error) {
	p, err := r.svc.GetPatient(ctx, id)
	if err != nil {
		return "", err
	}
	return p.PatientType, nil
}

func (r *patientRegistry) MarkReturning(ctx context.Context, id uuid.UUID) error {
	return r.svc.MarkReturning(ctx, id)
}

// stockKeeper adapts the inventory service to pharmacy dispensing. An SKU the
// inventory does not track maps to pharmacy.ErrUnknownSKU so dispensing can
// skip the line instead of aborting.
type stockKeeper struct {
	svc *inventory.Service
}

func (k *stockKeeper) DeductBySKU(ctx context.Context, sku string, qty int) error {
	err := k.svc.DeductBySKU(ctx, sku, qty)
	if errors.Is(err, inventory.ErrNotFound) {
		return pharmacy.ErrUnknownSKU
	}
	return err
}

// appointmentNotifier sends patient-facing messages for appointment events.
// Delivery runs in the background so a slow gateway never blocks a booking.
type appointmentNotifier struct {
	notify   *notification.Service
	patients *identity.Service
	logger   zerolog.Logger
}

func (n *appointmentNotifier) AppointmentBooked(ctx context.Context, a *appointment.Appointment) {
	n.send(ctx, a, "appointment-booked", map[string]string{
		"date":  a.ScheduledAt.Format("2006-01-02"),
		"time":  a.ScheduledAt.Format("15:04"),
		"token": a.QueueToken,
	})
}

func (n *appointmentNotifier) AppointmentStatusChanged(ctx context.Context, a *appointment.Appointment, status string) {
	n.send(ctx, a, "appointment-status", map[string]string{
		"date":   a.ScheduledAt.Format("2006-01-02"),
		"status": status,
	})
}

func (n *appointmentNotifier) send(ctx context.Context, a *appointment.Appointment, templateID string, data map[string]string) {
	bg := context.WithoutCancel(ctx)
	go func() {
		p, err := n.patients.GetPatient(bg, a.PatientID)
		if err != nil {
			n.logger.Warn().Err(err).Stringer("patient_id", a.PatientID).Msg("notify: patient lookup failed")
			return
		}
		if p.Phone == nil || *p.Phone == "" {
			return
		}
		data["patient_name"] = p.FullName()
		if s, err := n.patients.GetStaff(bg, a.DoctorID); err == nil {
			data["doctor_name"] = s.Name
		}
		if _, err := n.notify.SendFromTemplate(bg, templateID, data, *p.Phone); err != nil {
			n.logger.Warn().Err(err).Str("template", templateID).Msg("notify: send failed")
		}
	}()
}
