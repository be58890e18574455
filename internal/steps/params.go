// Package steps loads the per-account-type step chain from the parameter
// store. Both the scheduler and the step advancer take a fresh snapshot per
// run; a read per invocation buys consistency with externally edited chains.
package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ofelix-plnu/acct-deprov/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

// Parameter is one link in a chain: where a step leads and how many days to
// wait before the next step is due.
type Parameter struct {
	NextStep      string `json:"next_step"`
	NextStepDelay int    `json:"next_step_delay"`
}

// Params is a full snapshot: account type -> step name -> parameter.
type Params map[string]map[string]Parameter

// Lookup returns the parameter for (accountType, step), or false when the
// step is not part of that chain (e.g. the "end" sentinel).
func (p Params) Lookup(accountType, step string) (Parameter, bool) {
	byStep, ok := p[accountType]
	if !ok {
		return Parameter{}, false
	}
	param, ok := byStep[step]
	return param, ok
}

// NextDate computes the new due date: the old due date plus the configured
// delay in days. Exact date addition, not a calendar-month shortcut.
func NextDate(nextStepDate string, delayDays int) (string, error) {
	t, err := models.ParseStepDate(nextStepDate)
	if err != nil {
		return "", err
	}
	return models.FormatStepDate(t.Add(time.Duration(delayDays) * 24 * time.Hour)), nil
}

// ssmAPI is the slice of the SSM client the loader uses; tests substitute a
// fake.
type ssmAPI interface {
	GetParametersByPath(ctx context.Context, in *ssm.GetParametersByPathInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersByPathOutput, error)
}

// Loader reads the step chain from SSM parameters laid out as
// <path>/<account_type>/<step_name> with a JSON parameter value.
type Loader struct {
	client ssmAPI
	path   string
}

func NewLoader(ctx context.Context, region, path string) (*Loader, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, err
	}
	return &Loader{client: ssm.NewFromConfig(cfg), path: path}, nil
}

// Load fetches the whole parameter tree, following pagination.
func (l *Loader) Load(ctx context.Context) (Params, error) {
	params := Params{}

	input := &ssm.GetParametersByPathInput{
		Path:      aws.String(l.path),
		Recursive: aws.Bool(true),
	}
	for {
		out, err := l.client.GetParametersByPath(ctx, input)
		if err != nil {
			return nil, err
		}
		if err := collect(params, out.Parameters); err != nil {
			return nil, err
		}
		if out.NextToken == nil {
			break
		}
		input.NextToken = out.NextToken
	}

	return params, nil
}

func collect(params Params, page []ssmtypes.Parameter) error {
	for _, p := range page {
		name := aws.ToString(p.Name)
		parts := strings.Split(name, "/")
		if len(parts) < 2 {
			return fmt.Errorf("step parameter %q: want .../<account_type>/<step>", name)
		}
		step := parts[len(parts)-1]
		acctType := parts[len(parts)-2]

		var param Parameter
		if err := json.Unmarshal([]byte(aws.ToString(p.Value)), &param); err != nil {
			return fmt.Errorf("step parameter %q: %w", name, err)
		}

		if params[acctType] == nil {
			params[acctType] = map[string]Parameter{}
		}
		params[acctType][step] = param
	}
	return nil
}
