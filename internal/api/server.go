package api

import (
	"context"
	"log"
	"time"

	"github.com/SundayYogurt/clearance_service/config"
	"github.com/SundayYogurt/clearance_service/infra/cache"
	"github.com/SundayYogurt/clearance_service/infra/queue"
	"github.com/SundayYogurt/clearance_service/internal/api/rest/handlers"
	"github.com/SundayYogurt/clearance_service/internal/clients/payment"
	"github.com/SundayYogurt/clearance_service/internal/domain"
	"github.com/SundayYogurt/clearance_service/internal/helper"
	"github.com/SundayYogurt/clearance_service/internal/interfaces"
	"github.com/SundayYogurt/clearance_service/internal/repository"
	"github.com/SundayYogurt/clearance_service/internal/services"
	"github.com/SundayYogurt/clearance_service/pkg/cloudinary"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Services is everything the HTTP layer needs.
type Services struct {
	Clearance services.ClearanceService
	Admin     services.AdminService
	Auth      helper.Auth
	Webhooks  handlers.NotificationParser
}

// NewApp builds the Fiber app with middleware and routes but does not listen.
func NewApp(cfg config.Config, svc Services) *fiber.App {
	app := fiber.New(fiber.Config{
		BodyLimit: 4 * 1024 * 1024,
	})

	app.Use(recover.New())
	app.Use(logger.New())

	// ---------- CORS ----------
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.BaseURL,
		AllowHeaders:     "Content-Type, Accept, Authorization, " + handlers.SessionHeader,
		AllowMethods:     "GET, POST, PUT, PATCH, DELETE, OPTIONS",
		AllowCredentials: cfg.BaseURL != "*",
	}))

	validate := validator.New()
	secure := cfg.Env == "prod"

	// ---------- Handler ----------
	handlers.NewClearanceHandler(svc.Clearance, validate, cfg.SessionTTL, secure).SetupRoutes(app)
	handlers.NewAdminHandler(svc.Admin, svc.Auth, validate, secure).SetupRoutes(app)
	if svc.Webhooks != nil {
		handlers.NewWebhookHandler(svc.Clearance, svc.Webhooks).SetupRoutes(app)
	}

	// ---------- Health ----------
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	return app
}

func StartServer(cfg config.Config) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	log.Printf("StoreDriver=%q KafkaBroker=%q KafkaTopic=%q", cfg.StoreDriver, cfg.KafkaBroker, cfg.KafkaTopic)

	// ---------- Redis (sessions, revocations, kv driver) ----------
	kv := cache.NewRedisStore(cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB))
	if err := kv.Ping(ctx); err != nil {
		log.Fatalf("redis connection error: %v", err)
	}
	log.Println("redis connected")

	// ---------- Repositories ----------
	var (
		studentRepo  repository.StudentProfileRepository
		settingsRepo repository.SettingsRepository
		auditRepo    repository.AuditRepository
	)
	switch cfg.StoreDriver {
	case "redis", "kv":
		studentRepo = repository.NewKVStudentProfileRepository(kv)
		settingsRepo = repository.NewKVSettingsRepository(kv)
		auditRepo = repository.NewKVAuditRepository(kv)
	default:
		db := openDatabase(cfg)
		studentRepo = repository.NewStudentProfileRepository(db)
		settingsRepo = repository.NewSettingsRepository(db)
		auditRepo = repository.NewAuditRepository(db)
	}

	settings, err := settingsRepo.EnsureInitialized(ctx, domain.SystemSettings{
		SessionYear:        cfg.SessionYear,
		ClearanceFee:       cfg.ClearanceFee,
		Currency:           cfg.Currency,
		PaymentDeadline:    cfg.PaymentDeadline,
		GatewayPublicKey:   cfg.GatewayPublicKey,
		PaymentsEnabled:    true,
		SubmissionsEnabled: true,
	})
	if err != nil {
		log.Fatalf("settings init error: %v", err)
	}
	log.Printf("settings ready: session=%s fee=%d", settings.SessionYear, settings.ClearanceFee)

	// ---------- Infra ----------
	kafkaProducer := queue.NewProducer(
		cfg.KafkaBroker,
		cfg.KafkaTopic,
		cfg.KafkaUsername,
		cfg.KafkaPassword,
	)
	defer kafkaProducer.Close()

	cld, err := cloudinary.New(cfg.CloudinaryUrl)
	if err != nil {
		log.Fatalf("cloudinary init error: %v", err)
	}
	var up interfaces.Uploader = cloudinary.NewCloudinaryUploader(cld)

	gateway := payment.New(cfg.MidtransServerKey, cfg.MidtransProduction)
	if !gateway.Available() {
		log.Println("Warning: MIDTRANS_SERVER_KEY not set - payments will be refused")
	}
	if !gateway.Supports(settings.Currency) {
		log.Printf("Warning: midtrans cannot charge in %s - payments will be refused until the currency is changed to %s", settings.Currency, payment.Currency)
	}

	authHelper, err := helper.SetupAuth(cfg.AccessSecret, cfg.AdminAccessKey, cfg.AdminSessionTTL)
	if err != nil {
		log.Fatalf("auth init error: %v", err)
	}

	// ---------- Service ----------
	clearanceSvc := services.NewClearanceService(
		services.NewSessionStore(kv, cfg.SessionTTL),
		studentRepo,
		settingsRepo,
		auditRepo,
		gateway,
		up,
		kafkaProducer,
	)
	adminSvc := services.NewAdminService(authHelper, kv, studentRepo, settingsRepo, auditRepo, gateway)

	app := NewApp(cfg, Services{
		Clearance: clearanceSvc,
		Admin:     adminSvc,
		Auth:      authHelper,
		Webhooks:  gateway,
	})

	// ---------- Listen ----------
	addr := cfg.ServerPort
	log.Println("listening on", addr)
	log.Fatal(app.Listen(addr))
}

func openDatabase(cfg config.Config) *gorm.DB {
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  cfg.DatabaseDSN,
		PreferSimpleProtocol: true,
	}), &gorm.Config{})
	if err != nil {
		log.Fatalf("database connection error: %v", err)
	}
	log.Println("database connected")

	// ---------- MIGRATION (guarded by advisory lock) ----------
	// ใช้เลขคงที่ตัวเดียวกันทั้งระบบเพื่อ lock งาน migrate
	const migrateLockID int64 = 20251101

	if err := db.Exec("SELECT pg_advisory_lock(?)", migrateLockID).Error; err != nil {
		log.Fatalf("migration lock error: %v", err)
	}
	defer func() {
		_ = db.Exec("SELECT pg_advisory_unlock(?)", migrateLockID).Error
	}()

	if err := db.AutoMigrate(
		&domain.StudentProfile{},
		&domain.SystemSettings{},
		&domain.AuditLog{},
	); err != nil {
		log.Fatalf("migration error: %v", err)
	}
	log.Println("migration successful")
	return db
}
