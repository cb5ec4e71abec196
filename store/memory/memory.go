// Package memory is an in-process [store.Store] that enforces the same
// uniqueness rules as the relational schema. It backs tests and the
// load-test command.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrEthical07/authcore/store"
)

type bindingKey struct {
	provider string
	id       string
}

// Store is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	accounts map[string]*store.Account
	emails   map[string]string
	phones   map[string]string
	bindings map[string]*store.SocialBinding
	external map[bindingKey]string
	union    map[bindingKey]string
	now      func() time.Time

	// failNext is returned once by the next write.
	failNext error
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		accounts: make(map[string]*store.Account),
		emails:   make(map[string]string),
		phones:   make(map[string]string),
		bindings: make(map[string]*store.SocialBinding),
		external: make(map[bindingKey]string),
		union:    make(map[bindingKey]string),
		now:      time.Now,
	}
}

// FailNextWrite makes the next write operation return err.
func (s *Store) FailNextWrite(err error) {
	s.mu.Lock()
	s.failNext = err
	s.mu.Unlock()
}

func (s *Store) takeFailure() error {
	err := s.failNext
	s.failNext = nil
	return err
}

func (s *Store) FindAccountByIdentifier(_ context.Context, accountID string) (*store.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return a.Clone(), nil
}

func (s *Store) FindAccountByEmail(_ context.Context, email string) (*store.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.emails[store.NormalizeEmail(email)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return s.accounts[id].Clone(), nil
}

func (s *Store) FindAccountByPhone(_ context.Context, phone string) (*store.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.phones[phone]
	if !ok {
		return nil, store.ErrNotFound
	}
	return s.accounts[id].Clone(), nil
}

func (s *Store) AccountExists(_ context.Context, accountID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.accounts[accountID]
	return ok, nil
}

func (s *Store) InsertAccount(_ context.Context, account *store.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return err
	}
	return s.insertAccountLocked(account)
}

func (s *Store) insertAccountLocked(account *store.Account) error {
	if _, ok := s.accounts[account.ID]; ok {
		return store.ErrDuplicateAccountID
	}
	email := store.NormalizeEmail(account.Email)
	if email != "" {
		if _, ok := s.emails[email]; ok {
			return store.ErrDuplicateEmail
		}
	}
	if account.Phone != "" {
		if _, ok := s.phones[account.Phone]; ok {
			return store.ErrDuplicatePhone
		}
	}

	now := s.now()
	rec := account.Clone()
	rec.Email = email
	rec.CreatedAt, rec.UpdatedAt = now, now
	s.accounts[rec.ID] = rec
	if email != "" {
		s.emails[email] = rec.ID
	}
	if rec.Phone != "" {
		s.phones[rec.Phone] = rec.ID
	}
	account.Email = email
	account.CreatedAt, account.UpdatedAt = now, now
	return nil
}

func (s *Store) UpdateAccount(_ context.Context, account *store.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return err
	}

	old, ok := s.accounts[account.ID]
	if !ok {
		return store.ErrNotFound
	}
	email := store.NormalizeEmail(account.Email)
	if email != "" && email != old.Email {
		if _, taken := s.emails[email]; taken {
			return store.ErrDuplicateEmail
		}
	}
	if account.Phone != "" && account.Phone != old.Phone {
		if _, taken := s.phones[account.Phone]; taken {
			return store.ErrDuplicatePhone
		}
	}

	if old.Email != "" {
		delete(s.emails, old.Email)
	}
	if old.Phone != "" {
		delete(s.phones, old.Phone)
	}
	rec := account.Clone()
	rec.Email = email
	rec.CreatedAt = old.CreatedAt
	rec.UpdatedAt = s.now()
	s.accounts[rec.ID] = rec
	if email != "" {
		s.emails[email] = rec.ID
	}
	if rec.Phone != "" {
		s.phones[rec.Phone] = rec.ID
	}
	account.UpdatedAt = rec.UpdatedAt
	return nil
}

func (s *Store) FindBindingByExternalID(_ context.Context, provider, externalID string) (*store.SocialBinding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bindingLocked(s.external, provider, externalID)
}

func (s *Store) FindBindingByUnionID(_ context.Context, provider, unionID string) (*store.SocialBinding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bindingLocked(s.union, provider, unionID)
}

func (s *Store) bindingLocked(idx map[bindingKey]string, provider, id string) (*store.SocialBinding, error) {
	if id == "" {
		return nil, store.ErrNotFound
	}
	bid, ok := idx[bindingKey{provider, id}]
	if !ok {
		return nil, store.ErrNotFound
	}
	return s.bindings[bid].Clone(), nil
}

func (s *Store) FindBindingForAccount(_ context.Context, accountID, provider string) (*store.SocialBinding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, b := range s.bindings {
		if b.AccountID == accountID && b.Provider == provider {
			return b.Clone(), nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) InsertBinding(_ context.Context, binding *store.SocialBinding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return err
	}
	if _, ok := s.accounts[binding.AccountID]; !ok {
		return store.ErrNotFound
	}
	return s.insertBindingLocked(binding)
}

func (s *Store) insertBindingLocked(binding *store.SocialBinding) error {
	if _, ok := s.external[bindingKey{binding.Provider, binding.ExternalID}]; ok {
		return store.ErrDuplicateBinding
	}
	if binding.UnionID != "" {
		if _, ok := s.union[bindingKey{binding.Provider, binding.UnionID}]; ok {
			return store.ErrDuplicateBinding
		}
	}
	for _, b := range s.bindings {
		if b.AccountID == binding.AccountID && b.Provider == binding.Provider {
			return store.ErrDuplicateBinding
		}
	}

	now := s.now()
	if binding.ID == "" {
		binding.ID = uuid.NewString()
	}
	binding.CreatedAt, binding.UpdatedAt = now, now
	rec := binding.Clone()
	s.bindings[rec.ID] = rec
	s.external[bindingKey{rec.Provider, rec.ExternalID}] = rec.ID
	if rec.UnionID != "" {
		s.union[bindingKey{rec.Provider, rec.UnionID}] = rec.ID
	}
	return nil
}

func (s *Store) UpdateBinding(_ context.Context, binding *store.SocialBinding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return err
	}

	old, ok := s.bindings[binding.ID]
	if !ok {
		return store.ErrNotFound
	}
	ext := bindingKey{binding.Provider, binding.ExternalID}
	if id, taken := s.external[ext]; taken && id != binding.ID {
		return store.ErrDuplicateBinding
	}
	if binding.UnionID != "" {
		if id, taken := s.union[bindingKey{binding.Provider, binding.UnionID}]; taken && id != binding.ID {
			return store.ErrDuplicateBinding
		}
	}

	delete(s.external, bindingKey{old.Provider, old.ExternalID})
	if old.UnionID != "" {
		delete(s.union, bindingKey{old.Provider, old.UnionID})
	}
	rec := binding.Clone()
	rec.CreatedAt = old.CreatedAt
	rec.UpdatedAt = s.now()
	s.bindings[rec.ID] = rec
	s.external[ext] = rec.ID
	if rec.UnionID != "" {
		s.union[bindingKey{rec.Provider, rec.UnionID}] = rec.ID
	}
	binding.UpdatedAt = rec.UpdatedAt
	return nil
}

func (s *Store) DeleteBinding(_ context.Context, accountID, provider string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return err
	}
	for id, b := range s.bindings {
		if b.AccountID == accountID && b.Provider == provider {
			delete(s.external, bindingKey{b.Provider, b.ExternalID})
			if b.UnionID != "" {
				delete(s.union, bindingKey{b.Provider, b.UnionID})
			}
			delete(s.bindings, id)
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *Store) CountBindings(_ context.Context, accountID, excludingProvider string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, b := range s.bindings {
		if b.AccountID == accountID && (excludingProvider == "" || b.Provider != excludingProvider) {
			n++
		}
	}
	return n, nil
}

func (s *Store) InsertAccountWithBinding(_ context.Context, account *store.Account, binding *store.SocialBinding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return err
	}

	if err := s.insertAccountLocked(account); err != nil {
		return err
	}
	binding.AccountID = account.ID
	if err := s.insertBindingLocked(binding); err != nil {
		// Roll the account back so neither record survives.
		delete(s.accounts, account.ID)
		if account.Email != "" {
			delete(s.emails, account.Email)
		}
		if account.Phone != "" {
			delete(s.phones, account.Phone)
		}
		return err
	}
	return nil
}

// Len returns the number of accounts and bindings held.
func (s *Store) Len() (accounts, bindings int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.accounts), len(s.bindings)
}

var _ store.Store = (*Store)(nil)
