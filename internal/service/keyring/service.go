// Package keyring owns the PII key set and the per-admin wrapped copies of
// the data key.
package keyring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/chobbledotcom/tickets-sub006/internal/domain"
	"github.com/chobbledotcom/tickets-sub006/internal/envelope"
	"github.com/chobbledotcom/tickets-sub006/internal/repository"
	"github.com/chobbledotcom/tickets-sub006/internal/uow"
)

const minPasswordLen = 8

// Unlocked is an admin whose password opened the data key.
type Unlocked struct {
	AdminID  int64
	Username string
	Key      *envelope.SessionKey
}

type Service struct {
	uow        uow.Runner
	log        *slog.Logger
	bcryptCost int
	// dummyHash keeps unknown-user logins as slow as wrong-password ones.
	dummyHash []byte

	mu   sync.RWMutex
	keys *domain.KeySet
}

type Option func(*Service)

func WithBcryptCost(cost int) Option {
	return func(s *Service) {
		s.bcryptCost = cost
	}
}

func New(u uow.Runner, log *slog.Logger, opts ...Option) *Service {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	s := &Service{
		uow:        u,
		log:        log,
		bcryptCost: bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-password"), s.bcryptCost)

	return s
}

// Setup creates the key set and the first admin.
//
// Parameters:
//   - ctx: request-scoped context.
//   - username, password: credentials of the first admin.
//
// Returns:
//   - *Unlocked: the new admin, already unlocked.
//   - error: keyring.ErrAlreadySetUp when a key set or admin exists.
//   - error: keyring.ErrInvalidInput for an empty username or short password.
func (s *Service) Setup(ctx context.Context, username, password string) (*Unlocked, error) {
	const op = "service.keyring.Setup"

	username = strings.TrimSpace(username)
	if err := validateCredentials(username, password); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	km, err := envelope.GenerateKeySet()
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	admin, err := s.newAdmin(username, password, km.DataKey)
	if err != nil {
		km.DataKey.Destroy()
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	ks := &domain.KeySet{PublicKey: km.PublicKey, SealedPrivateKey: km.SealedPrivateKey}

	err = s.uow.Do(ctx, func(ctx context.Context, tx uow.Tx, after func(uow.AfterCommit)) error {
		n, err := tx.Keys().CountAdmins(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrAlreadySetUp
		}

		if err := tx.Keys().SaveKeySet(ctx, ks); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return ErrAlreadySetUp
			}
			return err
		}

		admin.ID, err = tx.Keys().CreateAdmin(ctx, admin)
		return err
	})
	if err != nil {
		km.DataKey.Destroy()
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	s.mu.Lock()
	s.keys = ks
	s.mu.Unlock()

	s.log.Info("encryption set up", slog.Int64("admin_id", admin.ID))

	return &Unlocked{AdminID: admin.ID, Username: username, Key: km.DataKey}, nil
}

// Unlock checks an admin's password and unwraps their copy of the data key.
//
// Returns:
//   - error: keyring.ErrInvalidCredentials for an unknown user or wrong password.
//   - error: envelope.ErrDecryptFailed when the stored wrapped key is damaged.
func (s *Service) Unlock(ctx context.Context, username, password string) (*Unlocked, error) {
	const op = "service.keyring.Unlock"

	var admin *domain.Admin
	err := s.uow.Read(ctx, func(ctx context.Context, tx uow.Tx) error {
		var err error
		admin, err = tx.Keys().GetAdminByUsername(ctx, strings.TrimSpace(username))
		return err
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
			return nil, fmt.Errorf("%s:%w", op, ErrInvalidCredentials)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(password)) != nil {
		return nil, fmt.Errorf("%s:%w", op, ErrInvalidCredentials)
	}

	salt, err := envelope.DecodeSalt(admin.KEKSalt)
	if err != nil {
		return nil, fmt.Errorf("%s: kek salt:%w", op, envelope.ErrDecryptFailed)
	}

	key, err := envelope.UnwrapDataKey(admin.WrappedDataKey, envelope.DeriveKEK(password, salt))
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return &Unlocked{AdminID: admin.ID, Username: admin.Username, Key: key}, nil
}

// AddAdmin wraps the data key held by an unlocked admin for a new admin.
//
// Returns:
//   - int64: the new admin's ID.
//   - error: keyring.ErrLocked when key is missing or does not open the key set.
//   - error: keyring.ErrAdminExists when username is taken.
func (s *Service) AddAdmin(ctx context.Context, key *envelope.SessionKey, username, password string) (int64, error) {
	const op = "service.keyring.AddAdmin"

	username = strings.TrimSpace(username)
	if err := validateCredentials(username, password); err != nil {
		return 0, fmt.Errorf("%s:%w", op, err)
	}

	d, err := s.NewDecrypter(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, err)
	}
	d.Destroy()

	admin, err := s.newAdmin(username, password, key)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, err)
	}

	err = s.uow.Do(ctx, func(ctx context.Context, tx uow.Tx, after func(uow.AfterCommit)) error {
		admin.ID, err = tx.Keys().CreateAdmin(ctx, admin)
		if errors.Is(err, repository.ErrConflict) {
			return ErrAdminExists
		}
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, err)
	}

	s.log.Info("admin added", slog.Int64("admin_id", admin.ID))

	return admin.ID, nil
}

// Encrypt seals plaintext to the PII public key. No session is needed.
func (s *Service) Encrypt(ctx context.Context, plaintext string) (string, error) {
	const op = "service.keyring.Encrypt"

	ks, err := s.keySet(ctx)
	if err != nil {
		return "", fmt.Errorf("%s:%w", op, err)
	}

	ct, err := envelope.Encrypt(ks.PublicKey, plaintext)
	if err != nil {
		return "", fmt.Errorf("%s:%w", op, err)
	}

	return ct, nil
}

// EncryptContact encrypts every non-empty contact field.
func (s *Service) EncryptContact(ctx context.Context, c domain.Contact) (domain.Contact, error) {
	fields := []*string{&c.Name, &c.Email, &c.Phone, &c.Address, &c.SpecialInstructions}
	for _, f := range fields {
		if *f == "" {
			continue
		}
		ct, err := s.Encrypt(ctx, *f)
		if err != nil {
			return domain.Contact{}, err
		}
		*f = ct
	}

	return c, nil
}

func (s *Service) Decrypt(ctx context.Context, ciphertext string, key *envelope.SessionKey) (string, error) {
	const op = "service.keyring.Decrypt"

	ks, err := s.keySet(ctx)
	if err != nil {
		return "", fmt.Errorf("%s:%w", op, err)
	}

	pt, err := envelope.Decrypt(ciphertext, ks.SealedPrivateKey, key)
	if err != nil {
		return "", fmt.Errorf("%s:%w", op, err)
	}

	return pt, nil
}

// NewDecrypter unseals the private key once for a batch of decryptions. The
// caller must Destroy it.
//
// Returns:
//   - error: keyring.ErrLocked when key is missing or wrong.
func (s *Service) NewDecrypter(ctx context.Context, key *envelope.SessionKey) (*envelope.Decrypter, error) {
	const op = "service.keyring.NewDecrypter"

	if !key.Valid() {
		return nil, fmt.Errorf("%s:%w", op, ErrLocked)
	}

	ks, err := s.keySet(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	d, err := envelope.OpenPrivateKey(ks.SealedPrivateKey, key)
	if err != nil {
		return nil, fmt.Errorf("%s:%w: %w", op, ErrLocked, err)
	}

	return d, nil
}

// IsSetUp reports whether a key set exists.
func (s *Service) IsSetUp(ctx context.Context) (bool, error) {
	_, err := s.keySet(ctx)
	if errors.Is(err, ErrNotSetUp) {
		return false, nil
	}
	return err == nil, err
}

func (s *Service) keySet(ctx context.Context) (*domain.KeySet, error) {
	s.mu.RLock()
	ks := s.keys
	s.mu.RUnlock()
	if ks != nil {
		return ks, nil
	}

	err := s.uow.Read(ctx, func(ctx context.Context, tx uow.Tx) error {
		var err error
		ks, err = tx.Keys().GetKeySet(ctx)
		return err
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotSetUp
		}
		return nil, err
	}

	s.mu.Lock()
	s.keys = ks
	s.mu.Unlock()

	return ks, nil
}

func (s *Service) newAdmin(username, password string, key *envelope.SessionKey) (*domain.Admin, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, err
	}

	salt, err := envelope.NewSalt()
	if err != nil {
		return nil, err
	}

	wrapped, err := envelope.WrapDataKey(key, envelope.DeriveKEK(password, salt))
	if err != nil {
		return nil, err
	}

	return &domain.Admin{
		Username:       username,
		PasswordHash:   string(hash),
		KEKSalt:        envelope.EncodeSalt(salt),
		WrappedDataKey: wrapped,
	}, nil
}

func validateCredentials(username, password string) error {
	if username == "" {
		return fmt.Errorf("username is required:%w", ErrInvalidInput)
	}
	if len(password) < minPasswordLen {
		return fmt.Errorf("password must be at least %d characters:%w", minPasswordLen, ErrInvalidInput)
	}
	return nil
}
