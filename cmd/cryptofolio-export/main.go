package main

import (
	"context"
	"flag"
	"log"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"cryptofolio/internal/config"
	"cryptofolio/internal/ledger"
	"cryptofolio/internal/report"
	"cryptofolio/internal/util"
)

func main() {
	_ = godotenv.Load()

	outDir := flag.String("out", "", "output directory (default: storage.export_dir from config)")
	flag.Parse()

	cfgPath := "config/cryptofolio.yaml"
	if p := os.Getenv("CRYPTOFOLIO_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	dir := *outDir
	if dir == "" {
		dir = cfg.Storage.ExportDir
	}

	led, err := ledger.Open(cfg.Storage.DBPath, logger)
	if err != nil {
		log.Fatalf("opening ledger: %v", err)
	}
	defer led.Close()

	ctx := context.Background()
	for _, ns := range []struct {
		simulated bool
		file      string
	}{
		{false, "purchases.parquet"},
		{true, "purchases_mock.parquet"},
	} {
		path := filepath.Join(dir, ns.file)
		n, err := report.ExportPurchases(ctx, led, ns.simulated, path)
		if err != nil {
			log.Fatalf("exporting %s: %v", ns.file, err)
		}
		logger.Info("exported", "file", path, "rows", n, "simulated", ns.simulated)
	}
}
