package main

import (
	"github.com/joho/godotenv"

	"slotbook/internal/events/handler"
	"slotbook/internal/events/repository"
	"slotbook/internal/events/service"
	"slotbook/internal/events/validator"
	"slotbook/pkg/app"
	"slotbook/pkg/config"
	"slotbook/pkg/kafka"
)

const ServiceName = "events"

func main() {
	_ = godotenv.Load()

	cfg := config.Load(ServiceName)
	cfg.SetMongo()

	cfg.Log.Info("Starting Events service")

	eventValidator := validator.NewEventValidator(cfg.Log)
	repo := repository.NewMongoEventRepository(cfg)

	var publisher service.BookingPublisher
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaBookingTopic)
		if err != nil {
			cfg.Log.Fatal("Failed to initialize Kafka producer", "error", err)
		}
		defer producer.Close()
		publisher = producer
		cfg.Log.Info("Booking notifications enabled", "topic", cfg.KafkaBookingTopic)
	} else {
		cfg.Log.Info("Booking notifications disabled, no Kafka brokers configured")
	}

	eventService := service.NewEventService(repo, eventValidator, cfg)
	bookingService := service.NewBookingService(repo, eventValidator, publisher, cfg)

	serverApp := app.NewApplication(cfg)
	serverApp.SetApp(handler.NewEventHandler(eventService, bookingService, cfg.Log))
	serverApp.Run()
}
