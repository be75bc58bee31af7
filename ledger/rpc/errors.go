package rpc

import (
	"errors"
	"fmt"

	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"github.com/vocdoni/zknotes/ledger"
	"github.com/vocdoni/zknotes/verifier"
	"github.com/vocdoni/zknotes/wire"
)

// ErrCollaborator wraps every failure to reach a ledger node or to get a
// well formed answer from it.
var ErrCollaborator = errors.New("ledger collaborator failure")

// Application error codes carried in JSON-RPC error objects. Never change an
// existing code, only append new ones.
var errorCodes = []struct {
	code int
	err  error
}{
	{4001, ledger.ErrNotInitialized},
	{4002, ledger.ErrAlreadyInitialized},
	{4003, ledger.ErrZeroCommitment},
	{4004, ledger.ErrUnknownRoot},
	{4005, ledger.ErrNullifierSpent},
	{4006, ledger.ErrInvalidProof},
	{4007, ledger.ErrRootMismatch},
	{4008, ledger.ErrInvalidCursor},
	{4009, verifier.ErrAlreadyRegistered},
	{4010, verifier.ErrNotRegistered},
	{4011, wire.ErrShape},
	{4012, errInvalidParams},
}

var errInvalidParams = errors.New("invalid params")

// Error is a JSON-RPC error with an application code.
type Error struct {
	Code int
	Msg  string
	err  error
}

func (e *Error) Error() string { return e.Msg }

// ErrorCode implements the go-ethereum rpc.Error interface.
func (e *Error) ErrorCode() int { return e.Code }

func (e *Error) Unwrap() error { return e.err }

// toRPCError attaches the application code of err, if any, so the client
// can rebuild the sentinel on its side.
func toRPCError(err error) error {
	if err == nil {
		return nil
	}
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return &Error{Code: c.code, Msg: err.Error(), err: c.err}
		}
	}
	return err
}

// fromRPCError maps a call error back to the ledger sentinel it carries.
// Anything else is a collaborator failure.
func fromRPCError(err error) error {
	if err == nil {
		return nil
	}
	var rerr gethrpc.Error
	if errors.As(err, &rerr) {
		for _, c := range errorCodes {
			if rerr.ErrorCode() == c.code {
				return &Error{Code: c.code, Msg: rerr.Error(), err: c.err}
			}
		}
	}
	return fmt.Errorf("%w: %w", ErrCollaborator, err)
}

// isTransportError reports whether err happened before the node answered,
// which makes it worth retrying on another endpoint. Errors answered by the
// node, known or not, implement the go-ethereum rpc.Error interface.
func isTransportError(err error) bool {
	var rerr gethrpc.Error
	return err != nil && !errors.As(err, &rerr)
}

func invalidParams(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errInvalidParams, fmt.Sprintf(format, args...))
}
