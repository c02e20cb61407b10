package main

import (
	"context"

	bookingsconfig "skyport/internal/bookings/config"
	"skyport/internal/bookings/events"
	"skyport/internal/bookings/handler"
	"skyport/internal/bookings/inventory"
	"skyport/internal/bookings/orchestrator"
	"skyport/internal/bookings/payment"
	"skyport/internal/bookings/payment/gateway"
	"skyport/internal/bookings/pricing"
	"skyport/internal/bookings/repository"
	"skyport/internal/bookings/repository/memory"
	"skyport/internal/bookings/safety"
	"skyport/internal/bookings/service"
	"skyport/internal/bookings/validator"
	"skyport/pkg/app"
	"skyport/pkg/clock"
	"skyport/pkg/config"
	"skyport/pkg/kafka"
	kafkaconfig "skyport/pkg/kafka/config"
	kafkamiddleware "skyport/pkg/kafka/middleware"
)

const ServiceName = "bookings"

func main() {
	cfg := config.Load(ServiceName)

	orch, err := bookingsconfig.Load()
	if err != nil {
		cfg.Log.Fatal("Invalid orchestration configuration", "error", err)
	}
	cfg.Log.Info("Orchestration configured",
		"hold_ttl", orch.HoldTTL,
		"reaper_interval", orch.ReaperInterval,
		"charge_max_retries", orch.ChargeMaxRetries,
		"refund_max_retries", orch.RefundMaxRetries,
		"events_enabled", orch.EventsEnabled,
	)

	store := initStore(cfg)
	clk := clock.NewSystem()
	bookingValidator := validator.NewBookingValidator(cfg.Log)

	ctx, cancel := context.WithCancel(context.Background())
	workers := newBackgroundWorkers(ctx, cfg.Log)

	ledger := inventory.NewLedger(store, clk, cfg.Log, inventory.WithHoldTTL(orch.HoldTTL))
	workers.Go("hold_reaper", func(ctx context.Context) error {
		ledger.RunReaper(ctx, orch.ReaperInterval)
		return nil
	})

	coordinator := payment.NewCoordinator(
		store.Intents,
		gateway.New(cfg.PaymentGatewayURL, cfg.PaymentGatewayAPIKey, cfg.PaymentGatewayTimeout),
		clk,
		cfg.Log,
		payment.WithCallTimeout(orch.PaymentCallTimeout),
		payment.WithRefundPolicy(orch.RefundBackOff, orch.RefundMaxRetries),
	)

	opts := []orchestrator.Option{
		orchestrator.WithChargePolicy(orch.ChargeBackOff, orch.ChargeMaxRetries),
		orchestrator.WithPricing(pricing.NewCalculator(orch.TaxBasisPoints, orch.FullPlanDiscountPoints)),
	}

	var closers []func() error
	var metrics *kafkamiddleware.Metrics
	if orch.EventsEnabled {
		kafkaCfg, err := kafkaconfig.Load()
		if err != nil {
			cfg.Log.Fatal("Invalid Kafka configuration", "error", err)
		}
		kafkaCfg.LogConfiguration(cfg.Log)
		metrics = kafkamiddleware.NewMetrics()

		producer, err := kafka.NewProducer(kafkaCfg, orch.BookingsTopic, "", cfg.Log)
		if err != nil {
			cfg.Log.Fatal("Failed to create booking event producer", "error", err)
		}
		if kafkaCfg.EnableMiddleware {
			producer.Use(kafkamiddleware.LoggingProducerMiddleware(cfg.Log))
			producer.Use(metrics.ProducerMiddleware())
		}
		opts = append(opts, orchestrator.WithPublisher(events.NewPublisher(producer)))
		closers = append(closers, producer.Close)

		recorder := safety.NewRecorder(store.Travelers, clk, cfg.Log,
			safety.WithClearanceValidity(orch.ClearanceValidity),
			safety.WithPassingScore(orch.TrainingPassingScore),
		)
		travelerHandler := events.NewTravelerHandler(recorder, bookingValidator, cfg.Log)
		consumer, err := kafka.NewConsumer(kafkaCfg, orch.TravelersTopic, orch.TravelerEventsGroup, orch.TravelersTopic+".dlq", travelerHandler.Handle, cfg.Log)
		if err != nil {
			cfg.Log.Fatal("Failed to create traveler event consumer", "error", err)
		}
		if kafkaCfg.EnableMiddleware {
			consumer.Use(kafkamiddleware.LoggingConsumerMiddleware(cfg.Log))
			consumer.Use(metrics.ConsumerMiddleware())
		}
		workers.Go("traveler_consumer", consumer.Start)
		closers = append(closers, consumer.Close)
	}

	bookingOrchestrator := orchestrator.New(store, ledger, coordinator, clk, cfg.Log, opts...)
	bookingService := service.NewBookingService(bookingOrchestrator, bookingValidator, cfg.Log)
	cfg.Log.Info("Booking service initialized", "store", cfg.StoreDriver)

	serverApp := app.NewApplication(cfg)
	serverApp.SetApp(
		handler.NewHealthHandler(cfg.Client.Mongo, cfg.Log),
		handler.NewBookingHandler(bookingService, cfg.Log),
		handler.NewCourseHandler(bookingService, cfg.Log),
	)
	serverApp.OnShutdown(func() {
		cancel()
		if err := workers.Wait(); err != nil {
			cfg.Log.Error("Background worker failed", "error", err)
		}
		for _, closeFn := range closers {
			if err := closeFn(); err != nil {
				cfg.Log.Error("Failed to close event stream", "error", err)
			}
		}
		if metrics != nil {
			s := metrics.Snapshot()
			cfg.Log.Info("Event stream totals",
				"published", s.Published,
				"publish_failed", s.PublishFailed,
				"consumed", s.Consumed,
				"consume_failed", s.ConsumeFailed,
			)
		}
		cfg.GracefulShutdown()
	})

	cfg.Log.Info("Starting Bookings service")
	serverApp.Run()
}

func initStore(cfg *config.Config) *repository.Store {
	if !cfg.UsesMongo() {
		cfg.Log.Warn("Using in-memory store; bookings do not survive a restart")
		return memory.NewStore()
	}
	cfg.SetMongo()
	return repository.NewMongoStore(cfg)
}
