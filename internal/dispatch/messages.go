package dispatch

import "github.com/ofelix-plnu/acct-deprov/internal/models"

// Batch is the effector invocation message: always a list of records, even
// when the retry sweep republishes a single one.
type Batch struct {
	Records []models.EventRecord `json:"records"`
}

// Message kinds carried in the "kind" header alongside "step". Work messages
// fan out to effectors; ack messages carry the records an effector completed
// and are consumed only by the step advancer.
const (
	KindWork = "work"
	KindAck  = "ack"
)

// Signal classifications.
const (
	ClassRetryable = "retryable"
	ClassTerminal  = "terminal"
	ClassSuccess   = "success"
)

// Signal is the failure-pipeline message. Classification "success" is the
// explicit clear emitted when a previously flagged effector recovers.
type Signal struct {
	Username         string `json:"username"`
	LambdaName       string `json:"lambda_name"`
	Error            string `json:"error"`
	PreviousFailures int    `json:"previous_failures"`
	Classification   string `json:"classification"`
}
