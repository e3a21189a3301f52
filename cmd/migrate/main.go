package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/repository"
	"github.com/FrancoisRegisDegott-eaton/fty-asset/pkg/config"
	"github.com/FrancoisRegisDegott-eaton/fty-asset/pkg/database"
	"github.com/FrancoisRegisDegott-eaton/fty-asset/pkg/logger"
)

func main() {
	cfg := config.MustLoad()
	log, err := logger.Init(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	db, err := database.OpenPostgres(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}

	if err := repository.Migrate(db); err != nil {
		log.Fatal("migration failed", zap.Error(err))
	}

	fmt.Fprintln(os.Stdout, "migrations completed")
}
