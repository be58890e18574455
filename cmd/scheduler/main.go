package main

import (
	"context"
	"log"
	"time"

	"github.com/ofelix-plnu/acct-deprov/internal/config"
	"github.com/ofelix-plnu/acct-deprov/internal/dispatch"
	"github.com/ofelix-plnu/acct-deprov/internal/scheduler"
	"github.com/ofelix-plnu/acct-deprov/internal/steps"
	"github.com/ofelix-plnu/acct-deprov/internal/store"
	"github.com/ofelix-plnu/acct-deprov/internal/sweep"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	st, err := store.NewEventStore(ctx, store.Options{
		Region:        cfg.Region,
		Table:         cfg.EventTable,
		Endpoint:      cfg.DynamoEndpoint,
		StepDateIndex: cfg.StepDateIndexName,
		FailedIndex:   cfg.HasFailedIndexName,
	})
	if err != nil {
		log.Fatal("scheduler: init event store:", err)
	}

	params, err := steps.NewLoader(ctx, cfg.Region, cfg.StepParameterPath)
	if err != nil {
		log.Fatal("scheduler: init step loader:", err)
	}

	pub := dispatch.NewPublisher(cfg.Brokers, cfg.DispatchTopic)
	defer pub.Close()

	sched := scheduler.New(st, params, pub)
	retries := sweep.New(st, pub, cfg.RetryLimit)

	log.Println("scheduler: started",
		"interval=", cfg.ScheduleInterval,
		"sweepInterval=", cfg.SweepInterval,
		"topic=", cfg.DispatchTopic,
	)

	schedTick := time.NewTicker(cfg.ScheduleInterval)
	sweepTick := time.NewTicker(cfg.SweepInterval)
	defer schedTick.Stop()
	defer sweepTick.Stop()

	if err := sched.Run(ctx); err != nil {
		log.Println("scheduler: run:", err)
	}

	for {
		select {
		case <-schedTick.C:
			if err := sched.Run(ctx); err != nil {
				log.Println("scheduler: run:", err)
			}
		case <-sweepTick.C:
			if err := retries.Run(ctx); err != nil {
				log.Println("scheduler: sweep:", err)
			}
		}
	}
}
