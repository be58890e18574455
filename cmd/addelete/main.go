package main

import (
	"context"
	"log"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"github.com/ofelix-plnu/acct-deprov/internal/addelete"
	"github.com/ofelix-plnu/acct-deprov/internal/config"
	"github.com/ofelix-plnu/acct-deprov/internal/store"
)

// The addelete process owns the durable side of the suspend/delete
// workflow: resuming parked deletes after the wait and draining the
// outbound queue into feed files.
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
		log.Fatal("addelete: init event store:", err)
	}

	wfStore, err := addelete.NewWorkflowStore(ctx, cfg.Region, cfg.WorkflowTable, cfg.DynamoEndpoint)
	if err != nil {
		log.Fatal("addelete: init workflow store:", err)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		log.Fatal("addelete: load aws cfg:", err)
	}

	queue, err := addelete.NewSQSQueue(awsCfg, cfg.QueueURL)
	if err != nil {
		log.Fatal("addelete: init queue:", err)
	}

	uploader, err := addelete.NewS3Uploader(awsCfg, cfg.BucketName)
	if err != nil {
		log.Fatal("addelete: init uploader:", err)
	}

	runner := addelete.NewRunner(addelete.NewHandler(queue, st), wfStore, cfg.WaitSeconds)
	writer := addelete.NewFeedWriter(queue, uploader, cfg.Environment)

	log.Println("addelete: started", "waitSeconds=", cfg.WaitSeconds, "bucket=", cfg.BucketName)

	go func() {
		tick := time.NewTicker(time.Minute)
		defer tick.Stop()
		for range tick.C {
			if err := runner.Tick(ctx); err != nil {
				log.Println("addelete: tick:", err)
			}
		}
	}()

	for {
		n, err := writer.Run(ctx)
		if err != nil {
			log.Println("addelete: feed writer:", err)
		}
		if n == 0 {
			time.Sleep(30 * time.Second)
		}
	}
}
