package images

import (
	"errors"
	"math/rand"
	"sync"
	"time"
)

var ErrNoAccounts = errors.New("no backing accounts configured")

// Account is one credentialed account at the backing media service.
type Account struct {
	Name   string
	Key    string
	Secret string
}

// Selector picks a backing account per upload: an in-range explicit
// index wins, anything else gets a uniformly random account. Selection
// is stateless per request.
type Selector struct {
	accounts []Account

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewSelector creates a selector over the configured accounts. Passing a
// nil rnd uses a time-seeded source; tests inject their own.
func NewSelector(accounts []Account, rnd *rand.Rand) *Selector {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Selector{accounts: accounts, rnd: rnd}
}

// Pick returns the account at explicitIndex when it is within range,
// otherwise a random account.
func (s *Selector) Pick(explicitIndex int) (Account, error) {
	if len(s.accounts) == 0 {
		return Account{}, ErrNoAccounts
	}
	if explicitIndex >= 0 && explicitIndex < len(s.accounts) {
		return s.accounts[explicitIndex], nil
	}

	s.mu.Lock()
	i := s.rnd.Intn(len(s.accounts))
	s.mu.Unlock()
	return s.accounts[i], nil
}

// ByName finds an account by name, used to pin re-uploads to the account
// that holds the original.
func (s *Selector) ByName(name string) (Account, bool) {
	for _, a := range s.accounts {
		if a.Name == name {
			return a, true
		}
	}
	return Account{}, false
}
