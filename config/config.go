package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env        string
	ServerPort string
	BaseURL    string

	// storage
	StoreDriver   string
	DatabaseDSN   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// messaging
	KafkaBroker   string
	KafkaTopic    string
	KafkaGroupID  string
	KafkaUsername string
	KafkaPassword string

	CloudinaryUrl string

	// payment gateway
	MidtransServerKey  string
	MidtransProduction bool

	// admin
	AccessSecret    string
	AdminAccessKey  string
	AdminSessionTTL time.Duration
	SessionTTL      time.Duration

	// settings defaults, used the first time the store is initialized
	SessionYear      string
	ClearanceFee     int64
	Currency         string
	PaymentDeadline  string
	GatewayPublicKey string

	// notifier
	SMTPHost        string
	SMTPPort        string
	SMTPUser        string
	SMTPPassword    string
	MailFrom        string
	MailFromName    string
	AdmissionsEmail string
	PortalURL       string
}

func LoadConfig() Config {
	env := os.Getenv("ENV")
	if env != "prod" {
		// ใช้ Overload ให้ .env ทับค่าที่ค้างใน shell
		if err := godotenv.Overload(); err != nil {
			log.Println("Warning: env file not found or could not be loaded:", err)
		}
		env = os.Getenv("ENV")
	}

	adminKey := os.Getenv("ADMIN_ACCESS_KEY")
	if adminKey == "" && env != "prod" {
		adminKey = "Admin123"
	}

	return Config{
		Env:        env,
		ServerPort: getString("SERVER_PORT", ":3000"),
		BaseURL:    getString("BASE_URL", "*"),

		StoreDriver:   strings.ToLower(getString("STORE_DRIVER", "postgres")),
		DatabaseDSN:   os.Getenv("DATABASE_DSN"),
		RedisAddr:     getString("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getInt("REDIS_DB", 0),

		KafkaBroker:   os.Getenv("KAFKA_BROKER"),
		KafkaTopic:    getString("KAFKA_TOPIC", "clearance-events"),
		KafkaGroupID:  getString("KAFKA_GROUP_ID", "clearance-notifier"),
		KafkaUsername: os.Getenv("KAFKA_USERNAME"),
		KafkaPassword: os.Getenv("KAFKA_PASSWORD"),

		CloudinaryUrl: os.Getenv("CLOUDINARY_URL"),

		MidtransServerKey:  os.Getenv("MIDTRANS_SERVER_KEY"),
		MidtransProduction: getBool("MIDTRANS_PRODUCTION", false),

		AccessSecret:    os.Getenv("ACCESS_SECRET"),
		AdminAccessKey:  adminKey,
		AdminSessionTTL: getDuration("ADMIN_SESSION_TTL", 8*time.Hour),
		SessionTTL:      getDuration("SESSION_TTL", 24*time.Hour),

		SessionYear:      getString("SESSION_YEAR", "2025/2026"),
		ClearanceFee:     int64(getInt("CLEARANCE_FEE", 99000)),
		Currency:         strings.ToUpper(getString("CLEARANCE_CURRENCY", "NGN")),
		PaymentDeadline:  getString("PAYMENT_DEADLINE", "2025-12-31"),
		GatewayPublicKey: getString("GATEWAY_PUBLIC_KEY", "pk_live_DEMO_KEY_REPLACE_ME"),

		SMTPHost:        getString("SMTP_HOST", "smtp.gmail.com"),
		SMTPPort:        getString("SMTP_PORT", "587"),
		SMTPUser:        os.Getenv("SMTP_USER"),
		SMTPPassword:    os.Getenv("SMTP_PASSWORD"),
		MailFrom:        os.Getenv("MAIL_FROM"),
		MailFromName:    getString("MAIL_FROM_NAME", "Admissions Office"),
		AdmissionsEmail: os.Getenv("ADMISSIONS_EMAIL"),
		PortalURL:       os.Getenv("PORTAL_URL"),
	}
}

func getString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("Warning: %s=%q is not a number, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getBool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("Warning: %s=%q is not a duration, using %s", key, v, fallback)
		return fallback
	}
	return d
}
