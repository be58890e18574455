// Package notify renders and sends the human alerts the failure pipeline
// escalates to once automated retries are exhausted.
package notify

import (
	"context"
	"fmt"
)

// FailureNotifier emails an operator about an effector needing manual
// intervention.
type FailureNotifier struct {
	sender      Sender
	toEmail     string
	environment string
}

func NewFailureNotifier(sender Sender, toEmail, environment string) *FailureNotifier {
	return &FailureNotifier{sender: sender, toEmail: toEmail, environment: environment}
}

func (n *FailureNotifier) NotifyFailure(ctx context.Context, username, effectorName, errMsg string) error {
	subject := fmt.Sprintf("Account Deprovisioning Failure: %s in %s environment", effectorName, n.environment)
	body := fmt.Sprintf(
		"A failure has occurred when attempting to deprovision %s via task %s. "+
			"This is the end of automated attempts to take care of this issue, please check that the "+
			"account is in the expected state manually\n\n"+
			"The error passed by the process is %s\n\n",
		username, effectorName, errMsg,
	)
	return n.sender.Send(ctx, n.toEmail, subject, body)
}
