package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/the-muppet/nice-rack/internal/batch"
	"github.com/the-muppet/nice-rack/internal/config"
	"github.com/the-muppet/nice-rack/internal/core"
	"github.com/the-muppet/nice-rack/internal/logger"
	"github.com/the-muppet/nice-rack/internal/metrics"
	"github.com/the-muppet/nice-rack/internal/store/memory"
	"github.com/the-muppet/nice-rack/internal/store/postgres"
)

func usage() {
	fmt.Fprintln(os.Stderr, `Usage:
  rack migrate                         apply database migrations
  rack import <file.csv>               place inbound stock
  rack pull <tcg-id> <quantity>        fulfill one order, report to stdout
  rack pull --orders <file.csv> [out]  fulfill an order batch, report to out (default stdout)
  rack snapshot [file]                 dump the full hierarchy as JSON
  rack stock [--xlsx file]             per-item stock summary (CSV to stdout, or XLSX)`)
	os.Exit(2)
}

func main() {
	_ = godotenv.Load()

	cfgPath := os.Getenv("RACK_CONFIG")
	if cfgPath == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			cfgPath = "config.yaml"
		}
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.App.Env)

	if len(os.Args) < 2 {
		usage()
	}

	ctx := context.Background()

	dsn := cfg.Storage.DSN
	if dsn == "" {
		dsn = os.Getenv("DATABASE_URL")
	}

	if os.Args[1] == "migrate" {
		if dsn == "" {
			fatal(log, "migrate requires a database DSN (storage.dsn or DATABASE_URL)")
		}
		if err := postgres.Migrate(dsn); err != nil {
			fatal(log, "migrations failed", "err", err)
		}
		log.Info("migrations applied")
		return
	}

	var store core.Store
	switch cfg.Storage.Driver {
	case "memory":
		store = memory.New()
	case "postgres":
		if dsn == "" {
			fatal(log, "postgres driver requires a database DSN (storage.dsn or DATABASE_URL)")
		}
		pg, err := postgres.New(ctx, dsn)
		if err != nil {
			fatal(log, "unable to connect to database", "err", err)
		}
		store = pg
	default:
		fatal(log, "unknown storage driver", "driver", cfg.Storage.Driver)
	}
	defer store.Close()

	if cfg.Metrics.Enabled {
		srv := metrics.NewServer(cfg.Metrics.Addr)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("metrics server error", "err", err)
			}
		}()
		log.Info("metrics listening", "addr", cfg.Metrics.Addr)
	}

	placer := core.NewPlacementService(store, cfg.Geometry, log, cfg.Storage.MaxRetries)
	retriever := core.NewRetrievalService(store, cfg.Geometry, log, cfg.Storage.MaxRetries)
	snapshots := core.NewSnapshotService(store, log)

	switch os.Args[1] {
	case "import":
		if len(os.Args) < 3 {
			usage()
		}
		importer := batch.NewImporter(placer, log)
		summary, err := importer.ImportFile(ctx, os.Args[2])
		if err != nil {
			fatal(log, "import failed", "err", err)
		}
		fmt.Printf("Imported %d rows (%d units, %d skipped, %d new boxes)\n",
			summary.Imported, summary.Units, summary.Skipped, summary.BoxesCreated)

	case "pull":
		runPull(ctx, retriever, log)

	case "snapshot":
		snap, err := snapshots.Snapshot(ctx)
		if err != nil {
			fatal(log, "snapshot failed", "err", err)
		}
		out := os.Stdout
		if len(os.Args) > 2 {
			f, err := os.Create(os.Args[2])
			if err != nil {
				fatal(log, "unable to create snapshot file", "err", err)
			}
			defer f.Close()
			out = f
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(snap); err != nil {
			fatal(log, "failed to encode snapshot", "err", err)
		}

	case "stock":
		if len(os.Args) > 2 && os.Args[2] == "--xlsx" && len(os.Args) < 4 {
			usage()
		}
		levels, err := snapshots.StockLevels(ctx)
		if err != nil {
			fatal(log, "stock summary failed", "err", err)
		}
		if len(os.Args) > 3 && os.Args[2] == "--xlsx" {
			if err := batch.WriteStockXLSX(os.Args[3], levels); err != nil {
				fatal(log, "failed to write stock workbook", "err", err)
			}
			fmt.Printf("Wrote %d items to %s\n", len(levels), os.Args[3])
			return
		}
		if err := batch.WriteStockCSV(os.Stdout, levels); err != nil {
			fatal(log, "failed to write stock summary", "err", err)
		}

	default:
		usage()
	}
}

func runPull(ctx context.Context, retriever core.RetrievalService, log *slog.Logger) {
	if len(os.Args) < 3 {
		usage()
	}

	if os.Args[2] == "--orders" {
		if len(os.Args) < 4 {
			usage()
		}
		out := os.Stdout
		if len(os.Args) > 4 {
			f, err := os.Create(os.Args[4])
			if err != nil {
				fatal(log, "unable to create report file", "err", err)
			}
			defer f.Close()
			out = f
		}
		puller := batch.NewPuller(retriever, log)
		summary, err := puller.PullOrders(ctx, os.Args[3], out)
		if err != nil {
			fatal(log, "pull failed", "err", err)
		}
		fmt.Fprintf(os.Stderr, "Fulfilled %d orders (%d units, %d partial, %d skipped)\n",
			summary.Fulfilled, summary.Units, summary.Partial, summary.Skipped)
		return
	}

	if len(os.Args) < 4 {
		usage()
	}
	tcgID, err := strconv.ParseInt(os.Args[2], 10, 64)
	if err != nil {
		fatal(log, "invalid tcg id", "arg", os.Args[2])
	}
	qty, err := strconv.Atoi(os.Args[3])
	if err != nil {
		fatal(log, "invalid quantity", "arg", os.Args[3])
	}
	res, err := retriever.Fulfill(ctx, tcgID, qty)
	if err != nil {
		fatal(log, "pull failed", "err", err)
	}
	if err := batch.WriteFulfillmentReport(os.Stdout, []*core.FulfillmentResult{res}); err != nil {
		fatal(log, "failed to write report", "err", err)
	}
}

func fatal(log *slog.Logger, msg string, args ...any) {
	log.Error(msg, args...)
	os.Exit(1)
}
