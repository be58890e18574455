package google

import (
	"context"
	"errors"
	"log"

	"github.com/ofelix-plnu/acct-deprov/internal/effector"
	"github.com/ofelix-plnu/acct-deprov/internal/models"
)

// finalDelegateStep is the pass that strips delegates for good; earlier
// passes re-add the user's manager so mail keeps getting read.
const finalDelegateStep = "emp-180"

// GALEffector hides the account from the global address list.
type GALEffector struct {
	dir          Directory
	domainSuffix string
}

func NewGALEffector(dir Directory, domainSuffix string) *GALEffector {
	return &GALEffector{dir: dir, domainSuffix: domainSuffix}
}

func (e *GALEffector) Name() string { return "disable_in_gal" }

func (e *GALEffector) Steps() []string { return []string{"emp-1"} }

func (e *GALEffector) Process(ctx context.Context, rec models.EventRecord) error {
	return e.dir.HideFromGAL(ctx, rec.Username+e.domainSuffix)
}

// SuspendEffector suspends the Workspace account.
type SuspendEffector struct {
	dir          Directory
	domainSuffix string
}

func NewSuspendEffector(dir Directory, domainSuffix string) *SuspendEffector {
	return &SuspendEffector{dir: dir, domainSuffix: domainSuffix}
}

func (e *SuspendEffector) Name() string { return "suspend_google_account" }

func (e *SuspendEffector) Steps() []string { return []string{"emp-180"} }

func (e *SuspendEffector) Process(ctx context.Context, rec models.EventRecord) error {
	email := rec.Username + e.domainSuffix
	if err := e.dir.Suspend(ctx, email); err != nil {
		return err
	}
	log.Printf("suspend_google_account: %s suspended", rec.Username)
	return nil
}

// LogoutEffector invalidates every active Workspace session.
type LogoutEffector struct {
	dir          Directory
	domainSuffix string
}

func NewLogoutEffector(dir Directory, domainSuffix string) *LogoutEffector {
	return &LogoutEffector{dir: dir, domainSuffix: domainSuffix}
}

func (e *LogoutEffector) Name() string { return "force_logout_google" }

func (e *LogoutEffector) Steps() []string { return []string{"emp-1"} }

func (e *LogoutEffector) Process(ctx context.Context, rec models.EventRecord) error {
	return e.dir.SignOut(ctx, rec.Username+e.domainSuffix)
}

// DelegatesEffector removes mailbox delegates. On the first pass the user's
// manager is re-added as a delegate; on the final pass nothing is.
type DelegatesEffector struct {
	mail         Mailbox
	domainSuffix string
}

func NewDelegatesEffector(mail Mailbox, domainSuffix string) *DelegatesEffector {
	return &DelegatesEffector{mail: mail, domainSuffix: domainSuffix}
}

func (e *DelegatesEffector) Name() string { return "remove_delegates" }

func (e *DelegatesEffector) Steps() []string { return []string{"emp-1", finalDelegateStep} }

func (e *DelegatesEffector) Process(ctx context.Context, rec models.EventRecord) error {
	userEmail := rec.Username + e.domainSuffix

	delegates, err := e.mail.ListDelegates(ctx, userEmail)
	if err != nil {
		return err
	}

	for _, delegate := range delegates {
		log.Printf("remove_delegates: deleting delegate %s from %s", delegate, rec.Username)
		if err := e.mail.RemoveDelegate(ctx, userEmail, delegate); err != nil {
			// A vanished delegate is fine; anything else stops this user.
			if errors.Is(err, effector.ErrNotInTarget) {
				continue
			}
			return err
		}
	}

	if rec.MgrEmail != "" && rec.NextStep != finalDelegateStep {
		log.Printf("remove_delegates: adding manager %s as delegate to %s", rec.MgrEmail, rec.Username)
		if err := e.mail.AddDelegate(ctx, userEmail, rec.MgrEmail); err != nil {
			return err
		}
	}
	return nil
}
