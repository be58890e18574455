package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config carries every knob the components need. Mains load it once and pass
// it (or pieces of it) into constructors; nothing else reads the environment.
type Config struct {
	Environment string // "production" or anything else

	// Identity
	DomainSuffix string // appended to usernames for external systems, e.g. "@pointloma.edu"

	// Store
	Region             string
	EventTable         string
	WorkflowTable      string
	DynamoEndpoint     string // local override, empty in real deployments
	StepParameterPath  string
	HasFailedIndexName string
	StepDateIndexName  string

	// Dispatch
	Brokers       []string
	DispatchTopic string
	FailureTopic  string

	// Workflow / outbound feed
	QueueURL   string
	BucketName string

	// Notification
	FromEmail    string
	FailureEmail string

	// Workspace admin to impersonate for directory calls
	GoogleAdminEmail string

	// Engine
	RetryLimit       int
	WaitSeconds      int64
	ScheduleInterval time.Duration
	SweepInterval    time.Duration
	EffectorTimeout  time.Duration
}

// Load reads the environment (after a best-effort .env load) and applies
// defaults. Only the event table name is hard-required; callers that need
// more (queue URL, bucket) fail at first use with a clear error from the SDK.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		Environment:        getenv("DEPLOY_ENVIRONMENT", "dev"),
		DomainSuffix:       getenv("DOMAIN_SUFFIX", "@devptloma.com"),
		Region:             getenv("AWS_REGION", "us-west-2"),
		EventTable:         getenv("EVENT_TABLE", "EventState"),
		WorkflowTable:      getenv("WORKFLOW_TABLE", "AdDeleteWorkflow"),
		DynamoEndpoint:     os.Getenv("DYNAMO_ENDPOINT"),
		StepParameterPath:  getenv("STEP_PARAMETER_PATH", "/deprovisioning/steps"),
		HasFailedIndexName: getenv("FAILED_INDEX", "failed-index"),
		StepDateIndexName:  getenv("STEP_DATE_INDEX", "step-date-index"),
		Brokers:            splitCSV(getenv("KAFKA_BROKERS", "localhost:9092")),
		DispatchTopic:      getenv("KAFKA_TOPIC_DISPATCH", "deprov-dispatch"),
		FailureTopic:       getenv("KAFKA_TOPIC_FAILURES", "deprov-failures"),
		QueueURL:           os.Getenv("AD_DELETE_QUEUE_URL"),
		BucketName:         os.Getenv("AD_DELETE_BUCKET"),
		FromEmail:          os.Getenv("FROM_EMAIL"),
		FailureEmail:       os.Getenv("FAILURE_EMAIL"),
		GoogleAdminEmail:   os.Getenv("GOOGLE_ADMIN_EMAIL"),
		RetryLimit:         getenvInt("RETRY_LIMIT", 3),
		WaitSeconds:        int64(getenvInt("WAIT_SECONDS", 180)),
		ScheduleInterval:   getenvDuration("SCHEDULE_INTERVAL", 24*time.Hour),
		SweepInterval:      getenvDuration("SWEEP_INTERVAL", 24*time.Hour),
		EffectorTimeout:    getenvDuration("EFFECTOR_TIMEOUT", 60*time.Second),
	}

	if cfg.Environment == "production" {
		cfg.DomainSuffix = getenv("DOMAIN_SUFFIX", "@pointloma.edu")
		cfg.WaitSeconds = int64(getenvInt("WAIT_SECONDS", 15552000)) // 180 days
		cfg.ScheduleInterval = getenvDuration("SCHEDULE_INTERVAL", 15*time.Minute)
		cfg.SweepInterval = getenvDuration("SWEEP_INTERVAL", time.Hour)
	}

	return cfg
}

func getenv(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getenvDuration(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
