package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ali-irt/Karigar/internal/config"
	"github.com/ali-irt/Karigar/internal/db"
	"github.com/ali-irt/Karigar/internal/dispatch"
	"github.com/ali-irt/Karigar/internal/store/rabbitmq"
)

func main() {
	once := flag.Bool("once", false, "run a single sweep and exit (for cron)")
	flag.Parse()

	cfg := config.Load()
	gdb := db.Connect(cfg.DBDSN)

	pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
	if err != nil {
		log.Fatalf("rabbit publisher: %v", err)
	}
	defer pub.Close()

	repo := dispatch.NewRepo(gdb)
	svc := dispatch.NewService(repo, pub, nil, cfg.AcceptWindow)
	sweeper := dispatch.NewSweeper(svc, cfg.SweepInterval)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *once {
		n, err := sweeper.RunOnce(ctx)
		if err != nil {
			log.Fatalf("sweep failed: %v", err)
		}
		log.Printf("sweep done retired=%d", n)
		return
	}

	sweeper.Run(ctx)
}
