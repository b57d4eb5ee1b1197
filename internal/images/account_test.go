package images

import (
	"errors"
	"math/rand"
	"testing"
)

func testAccounts() []Account {
	return []Account{
		{Name: "acct-0", Key: "k0", Secret: "s0"},
		{Name: "acct-1", Key: "k1", Secret: "s1"},
		{Name: "acct-2", Key: "k2", Secret: "s2"},
	}
}

func TestSelectorExplicitIndex(t *testing.T) {
	sel := NewSelector(testAccounts(), rand.New(rand.NewSource(1)))

	for i := 0; i < 3; i++ {
		account, err := sel.Pick(i)
		if err != nil {
			t.Fatalf("Pick(%d): %v", i, err)
		}
		if account != testAccounts()[i] {
			t.Errorf("Pick(%d) = %+v", i, account)
		}
	}
}

func TestSelectorRandomOnOutOfRange(t *testing.T) {
	accounts := testAccounts()
	sel := NewSelector(accounts, rand.New(rand.NewSource(42)))

	seen := make(map[string]bool)
	for _, idx := range []int{-1, len(accounts), 1000} {
		for i := 0; i < 50; i++ {
			account, err := sel.Pick(idx)
			if err != nil {
				t.Fatalf("Pick(%d): %v", idx, err)
			}
			seen[account.Name] = true
		}
	}

	// With 150 draws over 3 accounts every account should appear.
	if len(seen) != len(accounts) {
		t.Errorf("random selection covered %d accounts, want %d", len(seen), len(accounts))
	}
}

func TestSelectorEmpty(t *testing.T) {
	sel := NewSelector(nil, rand.New(rand.NewSource(1)))
	if _, err := sel.Pick(-1); !errors.Is(err, ErrNoAccounts) {
		t.Errorf("expected ErrNoAccounts, got %v", err)
	}
}

func TestSelectorByName(t *testing.T) {
	sel := NewSelector(testAccounts(), rand.New(rand.NewSource(1)))

	account, ok := sel.ByName("acct-1")
	if !ok || account.Key != "k1" {
		t.Errorf("ByName(acct-1) = %+v, %v", account, ok)
	}
	if _, ok := sel.ByName("missing"); ok {
		t.Error("ByName must not find unknown accounts")
	}
}
