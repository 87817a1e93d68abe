package main

import (
	"log"

	"github.com/ali-irt/Karigar/internal/config"
	"github.com/ali-irt/Karigar/internal/db"
	"github.com/ali-irt/Karigar/internal/dispatch"
	"github.com/ali-irt/Karigar/internal/httpapi"
	"github.com/ali-irt/Karigar/internal/models"
	"github.com/ali-irt/Karigar/internal/realtime"
	"github.com/ali-irt/Karigar/internal/store/rabbitmq"
	"github.com/ali-irt/Karigar/internal/store/redisstore"
)

func main() {
	cfg := config.Load()

	gdb := db.Connect(cfg.DBDSN)
	if err := gdb.AutoMigrate(
		&models.User{},
		&models.ProviderProfile{},
		&dispatch.Job{},
		&dispatch.LocationSample{},
		&dispatch.ChatMessage{},
		&dispatch.Notification{},
	); err != nil {
		log.Fatalf("automigrate: %v", err)
	}

	rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer rds.Close()

	pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
	if err != nil {
		log.Fatalf("rabbit publisher: %v", err)
	}
	defer pub.Close()

	repo := dispatch.NewRepo(gdb)
	svc := dispatch.NewService(repo, pub, rds, cfg.AcceptWindow)
	hub := realtime.NewHub()

	r := httpapi.NewRouter(gdb, cfg, svc, hub)

	log.Printf("api listening addr=%s window=%s", cfg.HTTPAddr, cfg.AcceptWindow)
	if err := r.Run(cfg.HTTPAddr); err != nil {
		log.Fatalf("server: %v", err)
	}
}
