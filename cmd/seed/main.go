// main.go - Loads product or supplier catalogs from CSV/XLSX exports.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/bosocmputer/invoice_resolver/configs"
	"github.com/bosocmputer/invoice_resolver/internal/common"
	"github.com/bosocmputer/invoice_resolver/internal/storage"
)

func main() {
	var (
		kindFlag = flag.String("kind", "products", "Catalog to load: products or suppliers")
		filePath = flag.String("file", "", "Path to the .csv or .xlsx export")
		encoding = flag.String("encoding", "utf-8", "CSV encoding: utf-8 or cp1251")
		verbose  = flag.Bool("verbose", false, "Print every skipped row")
	)
	flag.Parse()

	if *filePath == "" {
		fmt.Println("Usage: seed -kind products|suppliers -file <path> [-encoding utf-8|cp1251] [-verbose]")
		os.Exit(1)
	}
	if _, err := os.Stat(*filePath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Fatalf("File not found: %s", *filePath)
		}
		log.Fatalf("Error checking file %s: %v", *filePath, err)
	}

	var kind common.EntityKind
	switch *kindFlag {
	case "products", "product":
		kind = common.KindProduct
	case "suppliers", "supplier":
		kind = common.KindSupplier
	default:
		log.Fatalf("Unknown -kind %q (expected products or suppliers)", *kindFlag)
	}

	if err := configs.LoadConfig(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	logger, err := common.InitLogger(common.LogConfig{
		Level:       configs.LOG_LEVEL,
		Environment: configs.APP_ENV,
		ServiceName: "invoice-resolver-seed",
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	db, err := storage.OpenDatabase(configs.DB_DRIVER, configs.DATABASE_URL, logger)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer storage.CloseDatabase(db)

	rows, err := storage.ReadRows(*filePath, *encoding, kind)
	if err != nil {
		log.Fatalf("Failed to parse file: %v", err)
	}

	seeder := storage.NewSeeder(storage.NewCatalogRepository(db), logger)
	report, err := seeder.Seed(context.Background(), kind, rows)
	if err != nil {
		log.Fatalf("Seeding aborted: %v", err)
	}

	fmt.Printf("%s: %d rows, %d created, %d updated, %d skipped\n",
		kind, len(rows), report.Created, report.Updated, len(report.Skipped))
	if *verbose {
		for _, skipped := range report.Skipped {
			fmt.Println("  ", skipped)
		}
	}
}
