package effector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ofelix-plnu/acct-deprov/internal/dispatch"
	"github.com/ofelix-plnu/acct-deprov/internal/models"
)

type fakeEffector struct {
	name    string
	process func(ctx context.Context, rec models.EventRecord) error
}

func (f *fakeEffector) Name() string    { return f.name }
func (f *fakeEffector) Steps() []string { return []string{"emp-1"} }
func (f *fakeEffector) Process(ctx context.Context, rec models.EventRecord) error {
	return f.process(ctx, rec)
}

type fakeSignaler struct {
	signals []dispatch.Signal
}

func (f *fakeSignaler) PublishSignal(ctx context.Context, sig dispatch.Signal) error {
	f.signals = append(f.signals, sig)
	return nil
}

type fakeAcker struct {
	step    string
	records []models.EventRecord
	calls   int
}

func (f *fakeAcker) PublishAck(ctx context.Context, step string, records []models.EventRecord) error {
	f.calls++
	f.step = step
	f.records = records
	return nil
}

func rec(username string) models.EventRecord {
	return models.EventRecord{Username: username, AccountType: models.AccountTypeEmployee, NextStep: "emp-1"}
}

func TestRun_AcksOnlySucceededRecords(t *testing.T) {
	eff := &fakeEffector{name: "disable_in_gal", process: func(ctx context.Context, r models.EventRecord) error {
		if r.Username == "bbadger" {
			return Retryable(errors.New("rate limited"))
		}
		return nil
	}}
	signals := &fakeSignaler{}
	acks := &fakeAcker{}

	r := NewRunner(eff, signals, acks, time.Second)
	r.Run(context.Background(), "emp-1", dispatch.Batch{Records: []models.EventRecord{
		rec("aapple"), rec("bbadger"), rec("ccherry"),
	}})

	require.Equal(t, 1, acks.calls)
	assert.Equal(t, "emp-1", acks.step)
	require.Len(t, acks.records, 2)
	assert.Equal(t, "aapple", acks.records[0].Username)
	assert.Equal(t, "ccherry", acks.records[1].Username)

	require.Len(t, signals.signals, 1)
	sig := signals.signals[0]
	assert.Equal(t, "bbadger", sig.Username)
	assert.Equal(t, "disable_in_gal", sig.LambdaName)
	assert.Equal(t, dispatch.ClassRetryable, sig.Classification)
}

func TestRun_NoAckForNameRoutedRetries(t *testing.T) {
	eff := &fakeEffector{name: "disable_in_gal", process: func(ctx context.Context, r models.EventRecord) error {
		return nil
	}}
	acks := &fakeAcker{}

	r := NewRunner(eff, &fakeSignaler{}, acks, time.Second)
	r.Run(context.Background(), "disable_in_gal", dispatch.Batch{Records: []models.EventRecord{rec("aapple")}})

	assert.Equal(t, 0, acks.calls, "a sweep retry must not advance the current step")
}

func TestRun_NoAckWhenNothingSucceeded(t *testing.T) {
	eff := &fakeEffector{name: "disable_in_gal", process: func(ctx context.Context, r models.EventRecord) error {
		return Retryable(errors.New("down"))
	}}
	acks := &fakeAcker{}

	r := NewRunner(eff, &fakeSignaler{}, acks, time.Second)
	r.Run(context.Background(), "emp-1", dispatch.Batch{Records: []models.EventRecord{rec("aapple")}})

	assert.Equal(t, 0, acks.calls)
}

func TestRun_NotInTargetIsSkipSuccess(t *testing.T) {
	eff := &fakeEffector{name: "remove_delegates", process: func(ctx context.Context, r models.EventRecord) error {
		return ErrNotInTarget
	}}
	signals := &fakeSignaler{}
	acks := &fakeAcker{}

	r := NewRunner(eff, signals, acks, time.Second)
	r.Run(context.Background(), "emp-1", dispatch.Batch{Records: []models.EventRecord{rec("aapple")}})

	assert.Empty(t, signals.signals, "a skip is not a failure")
	require.Equal(t, 1, acks.calls)
	assert.Equal(t, "aapple", acks.records[0].Username)
}

func TestRun_SuccessClearsOnlyWhenPreviouslyFlagged(t *testing.T) {
	eff := &fakeEffector{name: "disable_in_gal", process: func(ctx context.Context, r models.EventRecord) error {
		return nil
	}}
	signals := &fakeSignaler{}

	r := NewRunner(eff, signals, &fakeAcker{}, time.Second)

	flagged := rec("aapple")
	flagged.FailedLambdas = map[string]int{"disable_in_gal": 2}
	clean := rec("bbadger")

	r.Run(context.Background(), "emp-1", dispatch.Batch{Records: []models.EventRecord{flagged, clean}})

	require.Len(t, signals.signals, 1, "only the previously flagged record emits a clear")
	sig := signals.signals[0]
	assert.Equal(t, "aapple", sig.Username)
	assert.Equal(t, dispatch.ClassSuccess, sig.Classification)
	assert.Equal(t, 2, sig.PreviousFailures)
}

func TestRun_TerminalClassificationCarried(t *testing.T) {
	eff := &fakeEffector{name: "suspend_google_account", process: func(ctx context.Context, r models.EventRecord) error {
		return Terminal(errors.New("400 bad request"))
	}}
	signals := &fakeSignaler{}

	r := NewRunner(eff, signals, &fakeAcker{}, time.Second)
	r.Run(context.Background(), "emp-180", dispatch.Batch{Records: []models.EventRecord{rec("aapple")}})

	require.Len(t, signals.signals, 1)
	assert.Equal(t, dispatch.ClassTerminal, signals.signals[0].Classification)
}

func TestRun_PanicBecomesRetryableFailure(t *testing.T) {
	eff := &fakeEffector{name: "disable_in_gal", process: func(ctx context.Context, r models.EventRecord) error {
		if r.Username == "aapple" {
			panic("nil map write")
		}
		return nil
	}}
	signals := &fakeSignaler{}
	acks := &fakeAcker{}

	r := NewRunner(eff, signals, acks, time.Second)
	r.Run(context.Background(), "emp-1", dispatch.Batch{Records: []models.EventRecord{
		rec("aapple"), rec("bbadger"),
	}})

	require.Len(t, signals.signals, 1)
	assert.Equal(t, dispatch.ClassRetryable, signals.signals[0].Classification)
	assert.Contains(t, signals.signals[0].Error, "panic")

	require.Equal(t, 1, acks.calls, "siblings still complete after a panic")
	assert.Equal(t, "bbadger", acks.records[0].Username)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, dispatch.ClassRetryable, Classify(Retryable(errors.New("x"))))
	assert.Equal(t, dispatch.ClassTerminal, Classify(Terminal(errors.New("x"))))
	assert.Equal(t, dispatch.ClassRetryable, Classify(errors.New("unclassified")))
}

func TestActionError_Unwrap(t *testing.T) {
	base := errors.New("boom")
	assert.True(t, errors.Is(Retryable(base), base))
	assert.True(t, errors.Is(Terminal(base), base))
}
