package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/ali-irt/Karigar/internal/config"
	"github.com/ali-irt/Karigar/internal/db"
	"github.com/ali-irt/Karigar/internal/dispatch"
	"github.com/ali-irt/Karigar/internal/store/rabbitmq"
)

func main() {
	cfg := config.Load()

	gdb := db.Connect(cfg.DBDSN)
	repo := dispatch.NewRepo(gdb)

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("rabbit dial: %v", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		log.Fatalf("rabbit channel: %v", err)
	}
	defer ch.Close()

	if err := rabbitmq.DeclareTopology(ch, cfg.RabbitQueue); err != nil {
		log.Fatalf("queue declare: %v", err)
	}

	concurrency := cfg.WorkerConcurrency

	if err := ch.Qos(concurrency, 0, false); err != nil {
		log.Fatalf("qos: %v", err)
	}

	msgs, err := ch.Consume(cfg.RabbitQueue, "", false, false, false, false, nil)
	if err != nil {
		log.Fatalf("consume: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("worker started, queue=%s concurrency=%d", cfg.RabbitQueue, concurrency)

	// worker pool
	events := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range events {
				var ev dispatch.JobEvent
				if err := json.Unmarshal(d.Body, &ev); err != nil || ev.JobID == "" {
					log.Printf("worker=%d bad message: %v", workerID, err)
					_ = d.Nack(false, false)
					continue
				}

				if err := handleEvent(ctx, repo, ev); err != nil {
					log.Printf("worker=%d event job=%s kind=%s err=%v", workerID, ev.JobID, ev.Event, err)
					_ = d.Nack(false, false)
					continue
				}

				if err := d.Ack(false); err != nil {
					log.Printf("worker=%d ack failed job=%s err=%v", workerID, ev.JobID, err)
				}
			}
		}(i)
	}

	// dispatcher
	for {
		select {
		case <-ctx.Done():
			log.Printf("worker shutting down")
			close(events)
			wg.Wait()
			return

		case d, ok := <-msgs:
			if !ok {
				log.Printf("delivery channel closed")
				time.Sleep(1 * time.Second)
				continue
			}
			events <- d
		}
	}
}

// handleEvent fans a lifecycle event out as notifications to the parties who
// did not initiate it.
func handleEvent(ctx context.Context, repo *dispatch.Repo, ev dispatch.JobEvent) error {
	job, err := repo.GetJobByID(ctx, ev.JobID)
	if err != nil {
		return err
	}

	for _, userID := range recipients(job, ev) {
		n := &dispatch.Notification{
			UserID: userID,
			JobID:  job.ID,
			Title:  eventTitle(ev.Event),
			Body:   eventBody(job, ev),
		}
		if err := repo.CreateNotification(ctx, n); err != nil {
			return err
		}
	}
	return nil
}

func recipients(job *dispatch.Job, ev dispatch.JobEvent) []uint64 {
	var out []uint64
	if job.CustomerID != ev.ActorID {
		out = append(out, job.CustomerID)
	}
	if job.ProviderID != nil && *job.ProviderID != ev.ActorID {
		out = append(out, *job.ProviderID)
	}
	return out
}

func eventTitle(event string) string {
	switch event {
	case "created":
		return "New service request"
	case "accepted":
		return "Your request was accepted"
	case "started":
		return "Work has started"
	case "completed":
		return "Job completed"
	case "cancelled":
		return "Job cancelled"
	default:
		return "Job update"
	}
}

func eventBody(job *dispatch.Job, ev dispatch.JobEvent) string {
	switch ev.Event {
	case "accepted":
		if job.EtaMinutes != nil {
			return fmt.Sprintf("A provider accepted job %s, estimated arrival in %d minutes.", job.ID, *job.EtaMinutes)
		}
		return fmt.Sprintf("A provider accepted job %s.", job.ID)
	case "cancelled":
		if ev.ActorRole == "system" {
			return fmt.Sprintf("Job %s was cancelled: no provider accepted it in time.", job.ID)
		}
		reason := ""
		if job.CancelReason != nil {
			reason = ": " + *job.CancelReason
		}
		return fmt.Sprintf("Job %s was cancelled by the %s%s.", job.ID, ev.ActorRole, reason)
	case "completed":
		if job.ActualCost != nil {
			return fmt.Sprintf("Job %s is complete. Total cost %.2f.", job.ID, *job.ActualCost)
		}
		return fmt.Sprintf("Job %s is complete.", job.ID)
	default:
		return fmt.Sprintf("Job %s is now %s.", job.ID, ev.Status)
	}
}
