package model

import (
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Subaccount is the optional 32-byte sub-identifier of an Account. The zero
// value is the default subaccount.
type Subaccount [32]byte

// IsDefault reports whether s is the all-zero default subaccount.
func (s Subaccount) IsDefault() bool {
	return s == Subaccount{}
}

// Account identifies a balance holder: an external owner plus an optional
// subaccount. Accounts are comparable values and are used directly as map
// keys; an absent subaccount and the all-zero subaccount are the same account.
type Account struct {
	Owner      string
	Subaccount Subaccount
}

// NewAccount returns the default-subaccount Account for owner.
func NewAccount(owner string) Account {
	return Account{Owner: owner}
}

var (
	ErrInvalidAccount = errors.New("model: invalid account")

	// ownerRegex matches ledger principals (e.g. uxrrr-q7777-77774-qaaaq-cai)
	// and hex addresses (0x...).
	ownerRegex = regexp.MustCompile(`^[A-Za-z0-9]+(-[A-Za-z0-9]+)*$`)
)

// ParseAccount parses the textual account form.
// Format: {owner} or {owner}.{subaccount-hex}
// Example: uxrrr-q7777-77774-qaaaq-cai.01
//
// The subaccount hex is big-endian and left-padded to 32 bytes.
func ParseAccount(text string) (Account, error) {
	owner, subHex, hasSub := strings.Cut(text, ".")
	if !ownerRegex.MatchString(owner) {
		return Account{}, fmt.Errorf("%w: %q (expected {owner} or {owner}.{subaccount-hex})",
			ErrInvalidAccount, text)
	}

	acct := Account{Owner: owner}
	if !hasSub {
		return acct, nil
	}

	if subHex == "" || len(subHex) > 64 {
		return Account{}, fmt.Errorf("%w: subaccount must be 1-64 hex chars", ErrInvalidAccount)
	}
	if len(subHex)%2 == 1 {
		subHex = "0" + subHex
	}
	raw, err := hex.DecodeString(subHex)
	if err != nil {
		return Account{}, fmt.Errorf("%w: subaccount %q is not hex", ErrInvalidAccount, subHex)
	}
	copy(acct.Subaccount[32-len(raw):], raw)
	if acct.Subaccount.IsDefault() {
		// owner.00 names the default subaccount; keep one canonical form.
		return Account{Owner: owner}, nil
	}
	return acct, nil
}

// String renders the textual form accepted by ParseAccount.
func (a Account) String() string {
	if a.Subaccount.IsDefault() {
		return a.Owner
	}
	s := strings.TrimLeft(hex.EncodeToString(a.Subaccount[:]), "0")
	return a.Owner + "." + s
}

// MarshalText lets Account appear as a JSON string and a JSON map key.
func (a Account) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Account) UnmarshalText(text []byte) error {
	parsed, err := ParseAccount(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
