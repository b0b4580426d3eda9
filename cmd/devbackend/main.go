package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/s/eduPortal/internal/config"
	"github.com/s/eduPortal/internal/database"
	"github.com/s/eduPortal/internal/devbackend"
	"github.com/s/eduPortal/internal/logger"
)

func main() {
	cfg, envMissing := config.Load()

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		panic(fmt.Sprintf("logger: %v", err))
	}
	defer log.Sync()

	if envMissing {
		log.Warn("Не удалось загрузить файл .env. Используются системные переменные.")
	}

	// ---------------------------
	// 1. База данных
	// ---------------------------
	db, err := database.Connect(database.Options{DSN: cfg.DatabaseURL, Logger: log})
	if err != nil {
		log.Fatal("Ошибка подключения к БД", "error", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		log.Fatal("Ошибка миграции", "error", err)
	}
	if err := database.Seed(db, cfg.SeedDemoData); err != nil {
		log.Fatal("Ошибка начальных данных", "error", err)
	}

	// ---------------------------
	// 2. Маршруты
	// ---------------------------
	svc := devbackend.New(db, log, cfg.UploadDir)
	srv := &http.Server{
		Addr:              ":" + cfg.DevBackendPort,
		Handler:           svc.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Info("Dev-бэкенд запущен", "addr", "http://localhost:"+cfg.DevBackendPort)
	if err := srv.ListenAndServe(); err != nil {
		log.Fatal("server stopped", "error", err)
	}
}
