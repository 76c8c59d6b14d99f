package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/stayswap/engine/engine"
	"github.com/stayswap/engine/engine/database"
	"github.com/stayswap/engine/engine/logger"
	"github.com/stayswap/engine/engine/migration"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func main() {
	path := flag.String("config", "config.toml", "path to config")
	mongoURI := flag.String("mongo-uri", "mongodb://localhost:27017", "legacy MongoDB connection URI")
	mongoName := flag.String("mongo-db", "swapplatform", "legacy MongoDB database name")
	useCopy := flag.Bool("copy-from", true, "use pgx CopyFrom for the reservation bulk load")
	flag.Parse()

	slog.SetDefault(slog.New(logger.NewHandler(slog.LevelInfo, false)))

	cfg, err := engine.LoadConfig(*path)
	if err != nil {
		slog.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	db, err := database.New(ctx, cfg.DB)
	if err != nil {
		slog.Error("Failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	if err := db.InitializeSchema(ctx); err != nil {
		slog.Error("Failed to initialize schema", slog.Any("error", err))
		os.Exit(1)
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(*mongoURI))
	if err != nil {
		slog.Error("Failed to connect to MongoDB", slog.Any("error", err))
		os.Exit(1)
	}
	defer client.Disconnect(ctx)

	if err := client.Ping(ctx, nil); err != nil {
		slog.Error("MongoDB ping failed", slog.Any("error", err))
		os.Exit(1)
	}

	migrator := migration.NewMigrator(db.BunDB(), client.Database(*mongoName))
	if *useCopy {
		migrator = migrator.WithCopyFrom(db.GetPool())
	}

	if _, err := migrator.Run(ctx); err != nil {
		slog.Error("Migration failed", slog.Any("error", err))
		os.Exit(1)
	}

	slog.Info("Migration completed successfully")
}
