package identity

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// AccountUpdate patches an account held by the auth collaborator. Nil fields
// are left untouched.
type AccountUpdate struct {
	DisplayName *string
	Email       *string
	Phone       *string
}

// AuthProvider is the managed auth collaborator. It owns phone verification
// and the uniqueness of phone numbers and e-mail addresses.
type AuthProvider interface {
	CreateAccount(ctx context.Context, phone, displayName, email string) (string, error)
	UpdateAccount(ctx context.Context, accountID string, update AccountUpdate) error
	VerifyOneTimeCode(ctx context.Context, sessionToken, code string) (string, error)
}

// Account is an identity held by MemoryAuthProvider.
type Account struct {
	ID          string
	Phone       string
	DisplayName string
	Email       string
}

type otpSession struct {
	phone   string
	code    string
	expires time.Time
}

// MemoryAuthProvider is an in-process AuthProvider for local development and
// tests. Sign-in is a two step flow: StartSignIn issues a session and code,
// VerifyOneTimeCode redeems them and creates the account on first use.
type MemoryAuthProvider struct {
	mu       sync.Mutex
	accounts map[string]*Account
	sessions map[string]otpSession
	codeTTL  time.Duration
	now      func() time.Time
}

var _ AuthProvider = (*MemoryAuthProvider)(nil)

// NewMemoryAuthProvider creates an empty provider.
func NewMemoryAuthProvider() *MemoryAuthProvider {
	return &MemoryAuthProvider{
		accounts: make(map[string]*Account),
		sessions: make(map[string]otpSession),
		codeTTL:  5 * time.Minute,
		now:      time.Now,
	}
}

func (p *MemoryAuthProvider) CreateAccount(ctx context.Context, phone, displayName, email string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.checkContactsLocked("", phone, email); err != nil {
		return "", err
	}
	id := uuid.NewString()
	p.accounts[id] = &Account{ID: id, Phone: phone, DisplayName: displayName, Email: email}
	return id, nil
}

func (p *MemoryAuthProvider) UpdateAccount(ctx context.Context, accountID string, update AccountUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	acct, ok := p.accounts[accountID]
	if !ok {
		return ErrAccountNotFound
	}
	phone, email := "", ""
	if update.Phone != nil {
		phone = *update.Phone
	}
	if update.Email != nil {
		email = *update.Email
	}
	if err := p.checkContactsLocked(accountID, phone, email); err != nil {
		return err
	}
	if update.DisplayName != nil {
		acct.DisplayName = *update.DisplayName
	}
	if update.Email != nil {
		acct.Email = *update.Email
	}
	if update.Phone != nil {
		acct.Phone = *update.Phone
	}
	return nil
}

// StartSignIn issues a one-time code for phone. The code is returned to the
// caller instead of being sent by SMS.
func (p *MemoryAuthProvider) StartSignIn(ctx context.Context, phone string) (sessionToken, code string, err error) {
	if err := ctx.Err(); err != nil {
		return "", "", err
	}
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", "", fmt.Errorf("identity: generate code: %w", err)
	}
	code = fmt.Sprintf("%06d", n.Int64())
	sessionToken = uuid.NewString()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessions[sessionToken] = otpSession{phone: phone, code: code, expires: p.now().Add(p.codeTTL)}
	return sessionToken, code, nil
}

func (p *MemoryAuthProvider) VerifyOneTimeCode(ctx context.Context, sessionToken, code string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	session, ok := p.sessions[sessionToken]
	if !ok || session.code != code || p.now().After(session.expires) {
		return "", ErrInvalidCode
	}
	delete(p.sessions, sessionToken)

	for id, acct := range p.accounts {
		if acct.Phone == session.phone {
			return id, nil
		}
	}
	id := uuid.NewString()
	p.accounts[id] = &Account{ID: id, Phone: session.phone}
	return id, nil
}

// Account returns a copy of the stored account.
func (p *MemoryAuthProvider) Account(accountID string) (Account, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	acct, ok := p.accounts[accountID]
	if !ok {
		return Account{}, false
	}
	return *acct, true
}

func (p *MemoryAuthProvider) checkContactsLocked(self, phone, email string) error {
	for id, acct := range p.accounts {
		if id == self {
			continue
		}
		if phone != "" && acct.Phone == phone {
			return ErrDuplicatePhone
		}
		if email != "" && strings.EqualFold(acct.Email, email) {
			return ErrDuplicateEmail
		}
	}
	return nil
}
