package main

import (
	"context"
	"log"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/google/uuid"

	"github.com/ofelix-plnu/acct-deprov/internal/addelete"
	"github.com/ofelix-plnu/acct-deprov/internal/advancer"
	"github.com/ofelix-plnu/acct-deprov/internal/config"
	"github.com/ofelix-plnu/acct-deprov/internal/dispatch"
	"github.com/ofelix-plnu/acct-deprov/internal/effector"
	googlefx "github.com/ofelix-plnu/acct-deprov/internal/effectors/google"
	recordfx "github.com/ofelix-plnu/acct-deprov/internal/effectors/record"
	"github.com/ofelix-plnu/acct-deprov/internal/failures"
	"github.com/ofelix-plnu/acct-deprov/internal/models"
	"github.com/ofelix-plnu/acct-deprov/internal/notify"
	"github.com/ofelix-plnu/acct-deprov/internal/steps"
	"github.com/ofelix-plnu/acct-deprov/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()
	workerID := "worker-" + uuid.NewString()[:8]

	st, err := store.NewEventStore(ctx, store.Options{
		Region:        cfg.Region,
		Table:         cfg.EventTable,
		Endpoint:      cfg.DynamoEndpoint,
		StepDateIndex: cfg.StepDateIndexName,
		FailedIndex:   cfg.HasFailedIndexName,
	})
	if err != nil {
		log.Fatal("worker: init event store:", err)
	}

	params, err := steps.NewLoader(ctx, cfg.Region, cfg.StepParameterPath)
	if err != nil {
		log.Fatal("worker: init step loader:", err)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		log.Fatal("worker: load aws cfg:", err)
	}

	sender, err := notify.NewSESSender(awsCfg, cfg.FromEmail)
	if err != nil {
		log.Fatal("worker: init ses:", err)
	}
	notifier := notify.NewFailureNotifier(sender, cfg.FailureEmail, cfg.Environment)

	acks := dispatch.NewPublisher(cfg.Brokers, cfg.DispatchTopic)
	defer acks.Close()
	signals := dispatch.NewSignalPublisher(cfg.Brokers, cfg.FailureTopic)
	defer signals.Close()

	// Suspend/delete workflow entry, wired like any other effector.
	queue, err := addelete.NewSQSQueue(awsCfg, cfg.QueueURL)
	if err != nil {
		log.Fatal("worker: init ad_delete queue:", err)
	}
	wfStore, err := addelete.NewWorkflowStore(ctx, cfg.Region, cfg.WorkflowTable, cfg.DynamoEndpoint)
	if err != nil {
		log.Fatal("worker: init workflow store:", err)
	}
	wfRunner := addelete.NewRunner(addelete.NewHandler(queue, st), wfStore, cfg.WaitSeconds)

	gsvc := googlefx.NewService(cfg.GoogleAdminEmail)
	effectors := []effector.Effector{
		googlefx.NewGALEffector(gsvc, cfg.DomainSuffix),
		googlefx.NewSuspendEffector(gsvc, cfg.DomainSuffix),
		googlefx.NewLogoutEffector(gsvc, cfg.DomainSuffix),
		googlefx.NewDelegatesEffector(gsvc, cfg.DomainSuffix),
		addelete.NewEntryEffector(wfRunner, []string{"emp-1"}),
		recordfx.NewDeleteEffector(st),
	}

	log.Println("worker: started", "workerID=", workerID, "topic=", cfg.DispatchTopic)

	for _, eff := range effectors {
		go runEffector(ctx, cfg, eff, signals, acks)
	}
	go runAdvancer(ctx, cfg, advancer.New(st, params))
	runFailures(ctx, cfg, failures.New(st, notifier, cfg.RetryLimit))
}

// runEffector consumes the dispatch topic for one effector: its steps plus
// its own name, so the retry sweep can reach it directly.
func runEffector(ctx context.Context, cfg config.Config, eff effector.Effector, signals *dispatch.SignalPublisher, acks *dispatch.Publisher) {
	filter := dispatch.Steps(append(eff.Steps(), eff.Name())...)
	sub := dispatch.NewSubscriber(cfg.Brokers, cfg.DispatchTopic, "deprov-"+eff.Name(), dispatch.KindWork, filter)
	defer sub.Close()

	runner := effector.NewRunner(eff, signals, acks, cfg.EffectorTimeout)

	for {
		batch, step, commit, err := sub.Next(ctx)
		if err != nil {
			log.Printf("worker: %s: read error: %v", eff.Name(), err)
			time.Sleep(500 * time.Millisecond)
			continue
		}

		runner.Run(ctx, step, batch)

		// The runner converts every per-record problem into a signal, so the
		// delivery itself is done; commit regardless of outcomes.
		if err := commit(ctx); err != nil {
			log.Printf("worker: %s: commit error: %v", eff.Name(), err)
		}
	}
}

// runAdvancer consumes success acks for any account-type step.
func runAdvancer(ctx context.Context, cfg config.Config, adv *advancer.Advancer) {
	filter := dispatch.Prefixes(models.StepPrefix(models.AccountTypeEmployee), models.StepPrefix(models.AccountTypeStudent))
	sub := dispatch.NewSubscriber(cfg.Brokers, cfg.DispatchTopic, "deprov-advancer", dispatch.KindAck, filter)
	defer sub.Close()

	for {
		batch, step, commit, err := sub.Next(ctx)
		if err != nil {
			log.Println("worker: advancer: read error:", err)
			time.Sleep(500 * time.Millisecond)
			continue
		}

		if err := adv.HandleBatch(ctx, step, batch.Records); err != nil {
			// Snapshot load failed; leave the ack uncommitted for redelivery.
			log.Println("worker: advancer:", err)
			continue
		}

		if err := commit(ctx); err != nil {
			log.Println("worker: advancer: commit error:", err)
		}
	}
}

// runFailures consumes the failure topic and applies the flag/clear/notify
// state machine.
func runFailures(ctx context.Context, cfg config.Config, pipeline *failures.Pipeline) {
	sub := dispatch.NewSignalSubscriber(cfg.Brokers, cfg.FailureTopic, "deprov-failures")
	defer sub.Close()

	for {
		sig, commit, err := sub.Next(ctx)
		if err != nil {
			log.Println("worker: failures: read error:", err)
			time.Sleep(500 * time.Millisecond)
			continue
		}

		if err := pipeline.Handle(ctx, sig); err != nil {
			// Store write failed; redelivery retries just this signal.
			log.Printf("worker: failures: %s/%s: %v", sig.Username, sig.LambdaName, err)
			continue
		}

		if err := commit(ctx); err != nil {
			log.Println("worker: failures: commit error:", err)
		}
	}
}
