// main.go - The entry point: wires stores, engine, OCR and the router.

package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bosocmputer/invoice_resolver/configs"
	"github.com/bosocmputer/invoice_resolver/internal/ai"
	"github.com/bosocmputer/invoice_resolver/internal/api"
	"github.com/bosocmputer/invoice_resolver/internal/assembler"
	"github.com/bosocmputer/invoice_resolver/internal/common"
	"github.com/bosocmputer/invoice_resolver/internal/export"
	"github.com/bosocmputer/invoice_resolver/internal/processor"
	"github.com/bosocmputer/invoice_resolver/internal/resolution"
	"github.com/bosocmputer/invoice_resolver/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

func main() {
	// Step 0: Load configuration from environment variables
	if err := configs.LoadConfig(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger, err := common.InitLogger(common.LogConfig{
		Level:       configs.LOG_LEVEL,
		Environment: configs.APP_ENV,
		ServiceName: "invoice-resolver",
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if configs.GIN_MODE == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}

	// Step 1: Create the UPLOAD_DIR folder if it doesn't exist
	if err := os.MkdirAll(configs.UPLOAD_DIR, 0755); err != nil {
		logger.Fatal("failed to create upload directory", zap.Error(err))
	}

	// Step 2: Relational store for catalogs, aliases and invoices
	db, err := storage.OpenDatabase(configs.DB_DRIVER, configs.DATABASE_URL, logger)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer storage.CloseDatabase(db)

	// Step 2.5: Decision journal in MongoDB, optional
	var journal storage.DecisionJournal = storage.NopJournal{}
	var history api.DecisionHistory
	if configs.MONGO_URI != "" {
		mdb, err := storage.InitMongoDB(configs.MONGO_URI, configs.MONGO_DB_NAME)
		if err != nil {
			logger.Fatal("failed to connect to MongoDB", zap.Error(err))
		}
		defer storage.CloseMongoDB()

		mj := storage.NewMongoJournal(mdb)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := mj.EnsureIndexes(ctx); err != nil {
			logger.Warn("failed to create journal indexes", zap.Error(err))
		}
		cancel()
		journal, history = mj, mj
	} else {
		logger.Info("MONGO_URI not set, decision journal disabled")
	}

	// Step 3: Resolution engine
	normalizers, err := processor.NewNormalizerSet(configs.NORMALIZER_PRODUCT_NOISE, configs.NORMALIZER_SUPPLIER_NOISE)
	if err != nil {
		logger.Fatal("invalid normalizer configuration", zap.Error(err))
	}

	catalog := storage.NewCatalogRepository(db)
	aliases := storage.NewGormAliasStore(db)
	invoices := storage.NewInvoiceRepository(db)

	engine, err := resolution.NewEngine(resolution.Dependencies{
		Normalizers: normalizers,
		Aliases:     aliases,
		Catalog:     catalog,
		Journal:     journal,
		Metrics:     resolution.NewMetrics(prometheus.DefaultRegisterer),
		Logger:      logger,
	}, resolution.Options{
		AutoThreshold:    configs.RESOLVE_AUTO_THRESHOLD,
		SuggestThreshold: configs.RESOLVE_SUGGEST_THRESHOLD,
		TopK:             configs.RESOLVE_TOP_K,
		Workers:          configs.RESOLVE_WORKERS,
		CacheTTL:         configs.CATALOG_CACHE_TTL,
	})
	if err != nil {
		logger.Fatal("failed to create resolution engine", zap.Error(err))
	}

	// Step 4: OCR intake, the service runs without it
	ocr, err := ai.CreateOCRProviderWithFallback(context.Background(), ai.OCRProviderConfig{
		Provider:      configs.OCR_PROVIDER,
		GeminiAPIKey:  configs.GEMINI_API_KEY,
		GeminiModel:   configs.OCR_MODEL_NAME,
		AzureEndpoint: configs.AZURE_VISION_ENDPOINT,
		AzureKey:      configs.AZURE_VISION_KEY,
		RatePerMinute: configs.OCR_RATE_PER_MINUTE,
	}, ai.ProviderOptions{
		Preprocessor: processor.NewImagePreprocessor(configs.ENABLE_IMAGE_PREPROCESSING, configs.MAX_IMAGE_DIMENSION),
		Timeout:      configs.OCR_TIMEOUT,
		Logger:       logger,
	})
	if err != nil {
		logger.Warn("OCR disabled", zap.Error(err))
		ocr = nil
	}
	if closer, ok := ocr.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	// Step 4.5: Syrve export, rendering works without a target URL
	exporter := export.NewSyrveExporter(export.SyrveConfig{
		URL:     configs.SYRVE_URL,
		Token:   configs.SYRVE_TOKEN,
		Buyer:   configs.SYRVE_BUYER,
		Timeout: configs.SYRVE_TIMEOUT,
	}, invoices, catalog, logger)
	if !exporter.Enabled() {
		logger.Info("SYRVE_URL not set, invoice export disabled")
	}

	handler := &api.Handler{
		Engine:    engine,
		Assembler: assembler.NewAssembler(invoices, catalog, logger),
		Catalog:   catalog,
		Invoices:  invoices,
		Aliases:   aliases,
		History:   history,
		Exporter:  exporter,
		OCR:       ocr,
		UploadDir: configs.UPLOAD_DIR,
		Log:       logger,
	}
	router := api.NewRouter(handler, prometheus.DefaultGatherer, configs.ALLOWED_ORIGINS)

	// Step 5: Setup HTTP server with timeouts
	srv := &http.Server{
		Addr:           ":" + configs.PORT,
		Handler:        router,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   2 * time.Minute, // OCR calls dominate
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		logger.Info("starting server", zap.String("port", configs.PORT), zap.Bool("ocr", ocr != nil))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	// Setup graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	logger.Info("server exited")
}
