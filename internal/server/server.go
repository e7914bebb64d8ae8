package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ahkjxy/family-points-bank-sub000/internal/action"
	"github.com/ahkjxy/family-points-bank-sub000/internal/amqp"
	"github.com/ahkjxy/family-points-bank-sub000/internal/auth"
	"github.com/ahkjxy/family-points-bank-sub000/internal/backup"
	"github.com/ahkjxy/family-points-bank-sub000/internal/catalog"
	"github.com/ahkjxy/family-points-bank-sub000/internal/config"
	"github.com/ahkjxy/family-points-bank-sub000/internal/email"
	"github.com/ahkjxy/family-points-bank-sub000/internal/family"
	"github.com/ahkjxy/family-points-bank-sub000/internal/feed"
	"github.com/ahkjxy/family-points-bank-sub000/internal/handler"
	"github.com/ahkjxy/family-points-bank-sub000/internal/metrics"
	"github.com/ahkjxy/family-points-bank-sub000/internal/middleware"
	"github.com/ahkjxy/family-points-bank-sub000/internal/objectstore"
	"github.com/ahkjxy/family-points-bank-sub000/internal/push"
	"github.com/ahkjxy/family-points-bank-sub000/internal/store"
	ws "github.com/ahkjxy/family-points-bank-sub000/internal/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Server struct {
	db          *sql.DB
	hub         *ws.Hub
	feed        *feed.Fanout
	registry    *prometheus.Registry
	broker      *amqp.Publisher
	notifier    *push.Notifier
	rateLimiter *middleware.RateLimiter

	sessionStore *store.SessionStore
	resetStore   *store.PasswordResetStore

	provider  *auth.Provider
	directory *family.Directory
	resolver  *action.Resolver
	catalog   *catalog.Manager
	archiver  *backup.Archiver

	authH    *handler.AuthHandler
	familyH  *handler.FamilyHandler
	ledgerH  *handler.LedgerHandler
	catalogH *handler.CatalogHandler
	uploadH  *handler.UploadHandler
	backupH  *handler.BackupHandler
	pushH    *handler.PushHandler

	logger *slog.Logger
}

// New wires the stores, services and handlers for cfg. Optional outbound
// integrations (AMQP, web push, object storage, Postmark) are enabled only
// when configured.
func New(db *sql.DB, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	hub := ws.NewHub(logger.With("component", "websocket"))
	fanout := feed.NewFanout(logger.With("component", "feed"), hub)

	familyStore := store.NewFamilyStore(db)
	memberStore := store.NewMemberStore(db)
	taskStore := store.NewTaskStore(db)
	rewardStore := store.NewRewardStore(db)
	snapshotStore := store.NewSnapshotStore(db)
	ledgerStore := store.NewLedgerStore(db, m)
	accountStore := store.NewAccountStore(db)
	sessionStore := store.NewSessionStore(db)
	resetStore := store.NewPasswordResetStore(db)
	pushStore := store.NewPushStore(db)

	s := &Server{
		db:           db,
		hub:          hub,
		feed:         fanout,
		registry:     registry,
		rateLimiter:  middleware.NewRateLimiter(cfg.RateLimit, cfg.RateBurst),
		sessionStore: sessionStore,
		resetStore:   resetStore,
		logger:       logger,
	}

	// Broker
	if cfg.AMQP.URL != "" {
		broker, err := amqp.Dial(cfg.AMQP.URL, cfg.AMQP.Exchange, logger.With("component", "amqp"))
		if err != nil {
			return nil, err
		}
		s.broker = broker
		fanout.Add(broker)
	}

	// Web push
	pushSvc := push.NewService(cfg.Push.VAPIDPublicKey, cfg.Push.VAPIDPrivateKey, cfg.Push.Subscriber)
	if pushSvc.Configured() {
		s.notifier = push.NewNotifier(pushSvc, pushStore, memberStore, logger)
		fanout.Add(s.notifier)
		s.pushH = handler.NewPushHandler(pushStore, pushSvc, logger.With("component", "push_handler"))
	}

	s.directory = family.NewDirectory(familyStore, memberStore, taskStore, rewardStore, snapshotStore,
		fanout, logger, family.Options{AdminName: cfg.DefaultAdminName, PINCost: cfg.BcryptCost})
	s.resolver = action.NewResolver(ledgerStore, memberStore, taskStore, rewardStore, fanout, m, logger,
		action.Options{GrantTitle: cfg.GrantTitle, GrantPoints: cfg.GrantPoints, Location: cfg.Location()})
	s.catalog = catalog.NewManager(taskStore, rewardStore, memberStore, fanout, logger.With("component", "catalog"))

	mailer := email.NewClient(cfg.Postmark.ServerToken, cfg.Postmark.FromEmail)
	s.provider = auth.NewProvider(accountStore, sessionStore, resetStore, s.directory, mailer,
		auth.NewSigner(cfg.JWTSecret, cfg.JWTIssuer), logger.With("component", "auth"),
		auth.Options{
			TTL:        cfg.SessionTTL.Duration,
			BcryptCost: cfg.BcryptCost,
			OnSessionChange: func(ctx context.Context, c auth.SessionChange) {
				e := feed.NewEvent(feed.EntitySession, c.Action, c.Session.FamilyID, c.Session.ID)
				e.MemberID = c.Session.MemberID
				feed.Emit(ctx, logger, fanout, e)
			},
		})

	// Object storage
	var bucket *objectstore.Bucket
	s3cfg := objectstore.S3Config{
		Endpoint:  cfg.S3.Endpoint,
		Bucket:    cfg.S3.Bucket,
		Region:    cfg.S3.Region,
		AccessKey: cfg.S3.AccessKey,
		SecretKey: cfg.S3.SecretKey,
		PublicURL: cfg.S3.PublicURL,
	}
	if s3cfg.Configured() {
		bucket = objectstore.NewBucket(objectstore.NewS3Client(s3cfg), s3cfg)
	}

	var uploader objectstore.Uploader = objectstore.Disabled{}
	switch cfg.ImageStore {
	case "s3":
		if bucket == nil {
			return nil, fmt.Errorf("image store s3: %w", objectstore.ErrNotConfigured)
		}
		uploader = bucket
	case "cloudinary":
		c, err := objectstore.NewCloudinary(objectstore.CloudinaryConfig{
			CloudName: cfg.Cloudinary.CloudName,
			APIKey:    cfg.Cloudinary.APIKey,
			APISecret: cfg.Cloudinary.APISecret,
			Folder:    cfg.Cloudinary.Folder,
		})
		if err != nil {
			return nil, err
		}
		uploader = c
	}

	var archives backup.Bucket
	if bucket != nil {
		archives = bucket
	}
	s.archiver = backup.NewArchiver(archives, s.directory, logger)

	s.authH = handler.NewAuthHandler(s.provider, logger.With("component", "auth_handler"))
	s.familyH = handler.NewFamilyHandler(s.directory, s.provider, logger.With("component", "family_handler"))
	s.ledgerH = handler.NewLedgerHandler(s.resolver, logger.With("component", "ledger_handler"))
	s.catalogH = handler.NewCatalogHandler(s.catalog, logger.With("component", "catalog_handler"))
	s.uploadH = handler.NewUploadHandler(uploader, logger.With("component", "upload_handler"))
	s.backupH = handler.NewBackupHandler(s.archiver, s.directory, logger.With("component", "backup_handler"))

	return s, nil
}

func (s *Server) Directory() *family.Directory { return s.directory }
func (s *Server) Resolver() *action.Resolver   { return s.resolver }
func (s *Server) Archiver() *backup.Archiver   { return s.archiver }
func (s *Server) Hub() *ws.Hub                 { return s.hub }

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// Cleanup drops expired sessions and reset codes and forgets idle clients.
func (s *Server) Cleanup(ctx context.Context) {
	if n, err := s.sessionStore.DeleteExpired(ctx); err != nil {
		s.logger.Error("cleanup expired sessions", "error", err)
	} else if n > 0 {
		s.logger.Info("cleaned up expired sessions", "count", n)
	}
	if n, err := s.resetStore.DeleteExpired(ctx); err != nil {
		s.logger.Error("cleanup expired reset codes", "error", err)
	} else if n > 0 {
		s.logger.Info("cleaned up expired reset codes", "count", n)
	}
	s.rateLimiter.Cleanup(10 * time.Minute)
}

// Close waits for in-flight push deliveries and closes the broker connection.
func (s *Server) Close() error {
	if s.notifier != nil {
		s.notifier.Wait()
	}
	if s.broker != nil {
		return s.broker.Close()
	}
	return nil
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes (no auth required)
	outerMux.HandleFunc("POST /auth/signup", s.rateLimitedHandler(s.authH.SignUp))
	outerMux.HandleFunc("POST /auth/signin", s.rateLimitedHandler(s.authH.SignIn))
	outerMux.HandleFunc("POST /auth/password/reset", s.rateLimitedHandler(s.authH.RequestReset))
	outerMux.HandleFunc("POST /auth/password/reset/confirm", s.rateLimitedHandler(s.authH.ConfirmReset))
	outerMux.HandleFunc("GET /health", s.healthHandler)
	outerMux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	// Protected routes, wrapped with RequireAuth middleware
	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	authMiddleware := middleware.RequireAuth(s.provider)
	outerMux.Handle("/", authMiddleware(protectedMux))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if err := s.db.PingContext(r.Context()); err != nil {
		status, code = "unavailable", http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{
		"status": status,
		"backup": string(s.archiver.Status().State),
	})
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	rl := middleware.RateLimit(s.rateLimiter, middleware.RealIP)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /auth/signout", s.authH.SignOut)

	// Family
	mux.HandleFunc("GET /api/family", s.familyH.Load)
	mux.HandleFunc("PUT /api/family", s.familyH.Rename)
	mux.HandleFunc("POST /api/family/current-member", s.familyH.SetCurrentMember)
	mux.HandleFunc("GET /api/family/export", s.familyH.Export)
	mux.HandleFunc("POST /api/family/import", s.familyH.Import)
	mux.HandleFunc("GET /api/family/report", s.familyH.Report)

	// Members
	mux.HandleFunc("POST /api/members", s.familyH.CreateMember)
	mux.HandleFunc("PUT /api/members/sort", s.familyH.Reorder)
	mux.HandleFunc("PUT /api/members/{id}", s.familyH.UpdateMember)
	mux.HandleFunc("DELETE /api/members/{id}", s.familyH.DeleteMember)
	mux.HandleFunc("PUT /api/members/{id}/role", s.familyH.ChangeRole)
	mux.HandleFunc("POST /api/members/{id}/pin", s.familyH.SetPIN)
	mux.HandleFunc("DELETE /api/members/{id}/pin", s.familyH.ClearPIN)

	// Member ledger
	mux.HandleFunc("GET /api/members/{id}/balance", s.ledgerH.Balance)
	mux.HandleFunc("GET /api/members/{id}/transactions", s.ledgerH.History)
	mux.HandleFunc("POST /api/members/{id}/adjustments", s.ledgerH.Adjust)

	// Tasks
	mux.HandleFunc("GET /api/tasks", s.catalogH.ListTasks)
	mux.HandleFunc("POST /api/tasks", s.catalogH.CreateTask)
	mux.HandleFunc("PUT /api/tasks/{id}", s.catalogH.UpdateTask)
	mux.HandleFunc("DELETE /api/tasks/{id}", s.catalogH.DeleteTask)
	mux.HandleFunc("POST /api/tasks/{id}/earn", s.ledgerH.Earn)
	mux.HandleFunc("POST /api/tasks/{id}/penalty", s.ledgerH.Penalize)

	// Rewards
	mux.HandleFunc("GET /api/rewards", s.catalogH.ListRewards)
	mux.HandleFunc("POST /api/rewards", s.catalogH.CreateReward)
	mux.HandleFunc("PUT /api/rewards/{id}", s.catalogH.UpdateReward)
	mux.HandleFunc("DELETE /api/rewards/{id}", s.catalogH.DeleteReward)
	mux.HandleFunc("POST /api/rewards/{id}/redeem", s.ledgerH.Redeem)

	// Wishlist
	mux.HandleFunc("POST /api/wishlist", s.catalogH.RequestReward)
	mux.HandleFunc("POST /api/wishlist/{id}/approve", s.catalogH.ApproveReward)
	mux.HandleFunc("POST /api/wishlist/{id}/reject", s.catalogH.RejectReward)

	mux.HandleFunc("POST /api/transfers", s.ledgerH.Transfer)
	mux.HandleFunc("POST /api/daily-grant", s.ledgerH.GrantDaily)

	mux.HandleFunc("POST /api/uploads", s.uploadH.Upload)

	// Backups
	mux.HandleFunc("GET /api/backups", s.backupH.List)
	mux.HandleFunc("POST /api/backups", s.backupH.Create)
	mux.HandleFunc("POST /api/backups/restore", s.backupH.Restore)

	// Push notification API routes
	if s.pushH != nil {
		mux.HandleFunc("POST /api/push/subscribe", s.pushH.Subscribe)
		mux.HandleFunc("GET /api/push/subscriptions", s.pushH.ListSubscriptions)
		mux.HandleFunc("DELETE /api/push/subscriptions/{id}", s.pushH.Unsubscribe)
		mux.HandleFunc("GET /api/push/vapid-key", s.pushH.GetVAPIDKey)
	}

	// WebSocket
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.logger.With("component", "websocket")))
}
