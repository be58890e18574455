// Package google holds the Google Workspace effectors: GAL visibility,
// account suspension, delegate cleanup and forced logout. The SDK clients sit
// behind narrow capability interfaces so effector logic is testable against
// fakes.
package google

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/oauth2/google"
	admin "google.golang.org/api/admin/directory/v1"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/ofelix-plnu/acct-deprov/internal/effector"
)

// Directory is the admin-directory capability the user-level effectors need.
type Directory interface {
	Suspend(ctx context.Context, email string) error
	HideFromGAL(ctx context.Context, email string) error
	SignOut(ctx context.Context, email string) error
}

// Mailbox is the per-user gmail-settings capability.
type Mailbox interface {
	ListDelegates(ctx context.Context, userEmail string) ([]string, error)
	RemoveDelegate(ctx context.Context, userEmail, delegateEmail string) error
	AddDelegate(ctx context.Context, userEmail, delegateEmail string) error
}

var adminScopes = []string{admin.AdminDirectoryUserScope}

var gmailScopes = []string{gmail.GmailSettingsSharingScope, gmail.GmailSettingsBasicScope}

// Service implements Directory and Mailbox on the Workspace APIs. The
// directory client is built lazily, once per process; mailbox clients are
// per delegated user.
type Service struct {
	subjectEmail string // admin to impersonate for directory calls

	mu  sync.Mutex
	dir *admin.Service
}

func NewService(subjectEmail string) *Service {
	return &Service{subjectEmail: subjectEmail}
}

func (s *Service) directory(ctx context.Context) (*admin.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dir != nil {
		return s.dir, nil
	}

	client, err := delegatedClient(ctx, s.subjectEmail, adminScopes)
	if err != nil {
		return nil, err
	}
	svc, err := admin.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, err
	}
	s.dir = svc
	return svc, nil
}

func (s *Service) Suspend(ctx context.Context, email string) error {
	svc, err := s.directory(ctx)
	if err != nil {
		return effector.Retryable(err)
	}
	_, err = svc.Users.Update(email, &admin.User{Suspended: true}).Context(ctx).Do()
	return translate(err)
}

func (s *Service) HideFromGAL(ctx context.Context, email string) error {
	svc, err := s.directory(ctx)
	if err != nil {
		return effector.Retryable(err)
	}
	user := &admin.User{
		IncludeInGlobalAddressList: false,
		ForceSendFields:            []string{"IncludeInGlobalAddressList"},
	}
	_, err = svc.Users.Update(email, user).Context(ctx).Do()
	return translate(err)
}

func (s *Service) SignOut(ctx context.Context, email string) error {
	svc, err := s.directory(ctx)
	if err != nil {
		return effector.Retryable(err)
	}
	return translate(svc.Users.SignOut(email).Context(ctx).Do())
}

func (s *Service) ListDelegates(ctx context.Context, userEmail string) ([]string, error) {
	svc, err := s.mailbox(ctx, userEmail)
	if err != nil {
		return nil, err
	}
	resp, err := svc.Users.Settings.Delegates.List("me").Context(ctx).Do()
	if err != nil {
		return nil, translate(err)
	}
	delegates := make([]string, 0, len(resp.Delegates))
	for _, d := range resp.Delegates {
		delegates = append(delegates, d.DelegateEmail)
	}
	return delegates, nil
}

func (s *Service) RemoveDelegate(ctx context.Context, userEmail, delegateEmail string) error {
	svc, err := s.mailbox(ctx, userEmail)
	if err != nil {
		return err
	}
	return translate(svc.Users.Settings.Delegates.Delete("me", delegateEmail).Context(ctx).Do())
}

func (s *Service) AddDelegate(ctx context.Context, userEmail, delegateEmail string) error {
	svc, err := s.mailbox(ctx, userEmail)
	if err != nil {
		return err
	}
	_, err = svc.Users.Settings.Delegates.Create("me", &gmail.Delegate{DelegateEmail: delegateEmail}).Context(ctx).Do()
	return translate(err)
}

// mailbox builds a gmail client acting as userEmail. A credential refresh
// rejecting the subject means the account no longer exists in Workspace.
func (s *Service) mailbox(ctx context.Context, userEmail string) (*gmail.Service, error) {
	client, err := delegatedClient(ctx, userEmail, gmailScopes)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "invalid email or user id") {
			return nil, effector.ErrNotInTarget
		}
		return nil, effector.Retryable(err)
	}
	svc, err := gmail.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, effector.Retryable(err)
	}
	return svc, nil
}

func delegatedClient(ctx context.Context, subject string, scopes []string) (*http.Client, error) {
	creds, err := google.FindDefaultCredentials(ctx, scopes...)
	if err != nil {
		return nil, err
	}
	cfg, err := google.JWTConfigFromJSON(creds.JSON, scopes...)
	if err != nil {
		return nil, err
	}
	cfg.Subject = subject
	return cfg.Client(ctx), nil
}

// translate maps Workspace API errors onto the effector taxonomy: a missing
// entity is a skip, rate limits and server errors retry, the rest of the 4xx
// range is a permanent rejection.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == 404:
			return effector.ErrNotInTarget
		case gerr.Code == 429 || gerr.Code >= 500:
			return effector.Retryable(err)
		default:
			return effector.Terminal(err)
		}
	}
	return effector.Retryable(err)
}
