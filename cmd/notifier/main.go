package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/SundayYogurt/clearance_service/config"
	"github.com/SundayYogurt/clearance_service/infra/queue"
	"github.com/SundayYogurt/clearance_service/internal/notifier"
)

func main() {
	// ---------- Load Config ----------
	cfg := config.LoadConfig()

	log.Println("Clearance notifier starting...")
	log.Printf("KafkaBroker=%s Topic=%s GroupID=%s\n",
		cfg.KafkaBroker,
		cfg.KafkaTopic,
		cfg.KafkaGroupID,
	)
	if cfg.KafkaBroker == "" {
		log.Fatal("KAFKA_BROKER is required")
	}
	if cfg.AdmissionsEmail == "" {
		log.Println("Warning: ADMISSIONS_EMAIL not set - unrecorded payment alerts cannot be delivered")
	}

	// ---------- Init Service ----------
	mailer := notifier.NewSMTPMailer(
		cfg.SMTPHost,
		cfg.SMTPPort,
		cfg.SMTPUser,
		cfg.SMTPPassword,
		cfg.MailFrom,
		cfg.MailFromName,
	)

	// ---------- Init Handler ----------
	handler := notifier.NewMailHandler(mailer, cfg.AdmissionsEmail, cfg.PortalURL)

	// ---------- Init Kafka Consumer ----------
	consumer := queue.NewKafkaConsumer(
		cfg.KafkaBroker,
		cfg.KafkaTopic,
		cfg.KafkaGroupID,
		cfg.KafkaUsername,
		cfg.KafkaPassword,
		handler,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---------- Start Listening ----------
	log.Println("Clearance notifier listening for events...")
	if err := consumer.Listen(ctx); err != nil {
		log.Fatalf("consumer stopped: %v", err)
	}
	log.Println("Clearance notifier stopped")
}
