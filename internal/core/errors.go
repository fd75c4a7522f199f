package core

import (
	"errors"
	"fmt"
)

// User-facing validation messages.
const (
	MsgCategoryTaskRequired = "分類とタスクを入力してください。"
	MsgAssigneesRequired    = "担当者を指定してください。"
	MsgIDRequired           = "IDが指定されていません。"
	MsgInvalidID            = "無効なID形式です。"
	MsgExpenseInvalid       = "費目を選択し、正しい金額(正の整数)を入力してください。"
	MsgAssigneeRequired     = "Assignee is required"
	MsgInventoryIDRequired  = "Inventory ID is required"
	MsgInsufficientPoints   = "ポイントが足りません"
	MsgInvalidRequestID     = "request_id must be a UUID"
)

var (
	ErrNoPrizesAvailable  = errors.New("no prizes available")
	ErrInsufficientPoints = errors.New("insufficient points")
	ErrUnknownAssignee    = errors.New("unknown assignee")
	ErrNotFound           = errors.New("not found")
	ErrAlreadyUsed        = errors.New("reward already used")
	ErrDrawInProgress     = errors.New("draw already in progress")
	ErrDuplicateRequestID = errors.New("duplicate request id")
)

// ValidationError rejects a request before anything is written. Err, when
// set, is the sentinel behind the rejection.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NotFoundError reports a missing delete or update target.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// DependencyError wraps a storage or catalog failure. Message, when set, is
// what the client sees instead of the wrapped cause.
type DependencyError struct {
	Op      string
	Message string
	Err     error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

func (e *DependencyError) Unwrap() error {
	return e.Err
}

// PublicMessage returns the message to surface to clients.
func (e *DependencyError) PublicMessage() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Error()
}

// Invalid builds a ValidationError.
func Invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// UnknownAssignee rejects name as a member of the household.
func UnknownAssignee(field, name string) error {
	return &ValidationError{Field: field, Message: "unknown assignee: " + name, Err: ErrUnknownAssignee}
}
