package transfer

import (
	"errors"
	"fmt"
)

var (
	ErrChannelClosed      = errors.New("channel closed")
	ErrRejected           = errors.New("receiver declined the transfer")
	ErrVerificationFailed = errors.New("hash verification failed")
	ErrNegotiationFailed  = errors.New("connection negotiation failed")
	ErrImageTooLarge      = errors.New("image exceeds 3 MB limit")
	ErrNoOffer            = errors.New("no offer awaiting a decision")
	ErrEmptyMessage       = errors.New("empty chat message")
	ErrInvalidDataURL     = errors.New("invalid data URL")
	ErrSignaling          = errors.New("signaling error")
)

type TransferError struct {
	Op      string
	File    string
	Err     error
	Details string
}

func (e *TransferError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.File, e.Err)
	}
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

func NewError(op string, err error) *TransferError {
	return &TransferError{Op: op, Err: err}
}

func NewFileError(op, file string, err error) *TransferError {
	return &TransferError{Op: op, File: file, Err: err}
}

func WrapError(op string, err error, details string) *TransferError {
	return &TransferError{Op: op, Err: err, Details: details}
}
