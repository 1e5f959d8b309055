package wallet

import (
	"errors"
	"fmt"
)

// Errors returned by wallets.
var (
	ErrNoAddress      = errors.New("wallet: address not loaded")
	ErrNoExplorer     = errors.New("wallet: no explorer configured")
	ErrTickerRequired = errors.New("wallet: ticker required")
	ErrUnknownFeature = errors.New("wallet: unknown feature")
	ErrSkipped        = errors.New("wallet: skipped, operation ran recently")
	ErrNoPrivateKey   = errors.New("wallet: private key not set")
	ErrInsufficient   = errors.New("wallet: insufficient funds")
)

// AbstractMethodError is returned when a wallet is asked for a capability its chain strategy or explorer does not
// implement.
type AbstractMethodError struct {
	Method string
	Wallet Wallet
}

func (e *AbstractMethodError) Error() string {
	id := ""
	if e.Wallet != nil {
		id = e.Wallet.ID()
	}
	return fmt.Sprintf("wallet: %s: method %s is not implemented", id, e.Method)
}

// ExplorerRequestError wraps a failed explorer request made on behalf of a wallet.
type ExplorerRequestError struct {
	RequestType string
	Err         error
	Wallet      Wallet
}

func (e *ExplorerRequestError) Error() string {
	id := ""
	if e.Wallet != nil {
		id = e.Wallet.ID()
	}
	return fmt.Sprintf("wallet: %s: %s request failed: %v", id, e.RequestType, e.Err)
}

func (e *ExplorerRequestError) Unwrap() error { return e.Err }

// ValidationError reports malformed construction arguments or call parameters.
type ValidationError struct {
	Field string
	Msg   string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("wallet: invalid %s: %s: %v", e.Field, e.Msg, e.Err)
	}
	return fmt.Sprintf("wallet: invalid %s: %s", e.Field, e.Msg)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Msg: msg}
}
