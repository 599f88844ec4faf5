// Package accounts manages registration, credentials and sessions.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/agora-social/agora/internal/app/domain/account"
	"github.com/agora-social/agora/internal/app/domain/content"
	"github.com/agora-social/agora/internal/app/domain/session"
	"github.com/agora-social/agora/internal/app/storage"
	"github.com/agora-social/agora/pkg/logger"
)

// ErrInvalidCredentials is returned for both unknown usernames and wrong
// passwords so login failures do not reveal which half was wrong.
var ErrInvalidCredentials = errors.New("invalid credentials")

// DefaultSessionTTL is used when no TTL is configured.
const DefaultSessionTTL = 7 * 24 * time.Hour

// Service manages accounts and their sessions.
type Service struct {
	store      storage.AccountStore
	sessions   storage.SessionStore
	posts      storage.PostStore
	log        *logger.Logger
	sessionTTL time.Duration
}

// New constructs an account service.
func New(store storage.AccountStore, sessions storage.SessionStore, posts storage.PostStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("accounts")
	}
	return &Service{
		store:      store,
		sessions:   sessions,
		posts:      posts,
		log:        log,
		sessionTTL: DefaultSessionTTL,
	}
}

// SetSessionTTL overrides the session lifetime.
func (s *Service) SetSessionTTL(ttl time.Duration) {
	if ttl > 0 {
		s.sessionTTL = ttl
	}
}

// SignupParams carries the registration form fields.
type SignupParams struct {
	Username    string
	DisplayName string
	Email       string
	Password    string
}

// Signup registers an account and opens a session for it.
func (s *Service) Signup(ctx context.Context, params SignupParams) (account.Account, session.Session, error) {
	params.Username = strings.TrimSpace(params.Username)
	params.DisplayName = strings.TrimSpace(params.DisplayName)
	params.Email = strings.TrimSpace(params.Email)

	if params.Username == "" {
		params.Username = account.AnonymousName
	}
	if params.DisplayName == "" {
		params.DisplayName = account.AnonymousName
	}
	if params.Password == "" {
		return account.Account{}, session.Session{}, fmt.Errorf("password is required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(params.Password), bcrypt.DefaultCost)
	if err != nil {
		return account.Account{}, session.Session{}, fmt.Errorf("hash password: %w", err)
	}

	acct, err := s.store.CreateAccount(ctx, account.Account{
		Username:     params.Username,
		DisplayName:  params.DisplayName,
		Email:        params.Email,
		PasswordHash: string(hash),
	})
	if err != nil {
		return account.Account{}, session.Session{}, err
	}

	sess, err := s.StartSession(ctx, acct.ID)
	if err != nil {
		return account.Account{}, session.Session{}, err
	}

	s.log.WithField("account_id", acct.ID).Infof("account %s registered", acct.Username)
	return acct, sess, nil
}

// Login checks credentials and opens a session.
func (s *Service) Login(ctx context.Context, username, password string) (account.Account, session.Session, error) {
	acct, err := s.store.GetAccountByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, storage.ErrNotFound) {
		return account.Account{}, session.Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return account.Account{}, session.Session{}, err
	}

	if bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)) != nil {
		return account.Account{}, session.Session{}, ErrInvalidCredentials
	}

	sess, err := s.StartSession(ctx, acct.ID)
	if err != nil {
		return account.Account{}, session.Session{}, err
	}

	s.log.WithField("account_id", acct.ID).Info("login")
	return acct, sess, nil
}

// StartSession issues a fresh session token for an account.
func (s *Service) StartSession(ctx context.Context, accountID string) (session.Session, error) {
	now := time.Now().UTC()
	sess := session.Session{
		Token:     uuid.NewString(),
		AccountID: accountID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.sessionTTL),
	}
	if err := s.sessions.CreateSession(ctx, sess); err != nil {
		return session.Session{}, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

// ResolveSession returns the account behind a session token. Expired sessions
// are deleted on sight and reported as not found.
func (s *Service) ResolveSession(ctx context.Context, token string) (account.Account, error) {
	sess, err := s.sessions.GetSession(ctx, token)
	if err != nil {
		return account.Account{}, err
	}
	if sess.Expired(time.Now().UTC()) {
		_ = s.sessions.DeleteSession(ctx, token)
		return account.Account{}, storage.ErrNotFound
	}
	return s.store.GetAccount(ctx, sess.AccountID)
}

// EndSession destroys a session. Unknown tokens are not an error.
func (s *Service) EndSession(ctx context.Context, token string) error {
	return s.sessions.DeleteSession(ctx, token)
}

// Get retrieves an account by identifier.
func (s *Service) Get(ctx context.Context, id string) (account.Account, error) {
	return s.store.GetAccount(ctx, id)
}

// List returns every registered account.
func (s *Service) List(ctx context.Context) ([]account.Account, error) {
	return s.store.ListAccounts(ctx)
}

// Profile pairs an account with its posts, newest first.
type Profile struct {
	Account account.Account
	Posts   []content.Post
}

// GetProfile loads an account together with everything it has posted.
func (s *Service) GetProfile(ctx context.Context, accountID string) (Profile, error) {
	acct, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return Profile{}, err
	}
	posts, err := s.posts.ListPostsByAuthor(ctx, accountID)
	if err != nil {
		return Profile{}, err
	}
	return Profile{Account: acct, Posts: posts}, nil
}
