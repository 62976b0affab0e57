package portfolio

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Error types
var (
	// ErrValidation indicates malformed input rejected before any I/O
	ErrValidation = errors.New("validation failed")

	// ErrUpload indicates an object-store write failed
	ErrUpload = errors.New("upload failed")

	// ErrReferenceResolution indicates a stored URL is not a managed object of the bucket
	ErrReferenceResolution = errors.New("asset reference not resolvable")

	// ErrRecordWrite indicates a datastore insert, update or delete failed
	ErrRecordWrite = errors.New("record write failed")

	// ErrWriteOutcomeUnknown indicates a record write failed after it may
	// already have been applied, for example a connection lost after COMMIT
	ErrWriteOutcomeUnknown = errors.New("record write outcome unknown")

	// ErrRecordNotFound indicates a record was not found
	ErrRecordNotFound = errors.New("record not found")

	// ErrStorageDeletion indicates a stored object could not be removed
	ErrStorageDeletion = errors.New("storage deletion failed")

	// ErrAuthentication indicates re-authentication was rejected
	ErrAuthentication = errors.New("authentication failed")

	// ErrUnknownResourceGroup indicates a registry lookup miss
	ErrUnknownResourceGroup = errors.New("unknown resource group")

	// ErrFunctionInvocation indicates the purge function could not be called
	ErrFunctionInvocation = errors.New("purge function invocation failed")

	// ErrRemoteDeletion indicates the purge function reported a failure
	ErrRemoteDeletion = errors.New("purge function reported an error")

	// ErrNoSelection indicates a deletion was initiated with nothing selected
	ErrNoSelection = errors.New("no resource groups selected")

	// ErrNotAuthenticated indicates an action requires an admin session
	ErrNotAuthenticated = errors.New("admin session required")

	// ErrInvalidTransition indicates an action is not allowed in the current protocol state
	ErrInvalidTransition = errors.New("invalid deletion protocol transition")

	// ErrCountdownActive indicates confirmation was attempted before the countdown elapsed
	ErrCountdownActive = errors.New("countdown has not finished")
)

// Storage operations reported by StorageError.
const (
	OpUpload = "upload"
	OpDelete = "delete"
)

// StorageError represents an error related to object storage operations
type StorageError struct {
	Bucket string
	Key    string
	Op     string
	Err    error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage operation %s failed for key %s in bucket %s: %v", e.Op, e.Key, e.Bucket, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Is reports the taxonomy kind of the failed operation.
func (e *StorageError) Is(target error) bool {
	switch e.Op {
	case OpUpload:
		return target == ErrUpload
	case OpDelete:
		return target == ErrStorageDeletion
	}
	return false
}

// RecordError represents an error related to record operations
type RecordError struct {
	Table string
	ID    uuid.UUID
	Op    string
	Err   error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("record operation %s failed for %s/%s: %v", e.Op, e.Table, e.ID, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// Is matches ErrRecordWrite for failed writes. Lookups that miss match
// ErrRecordNotFound through Unwrap.
func (e *RecordError) Is(target error) bool {
	if target != ErrRecordWrite {
		return false
	}
	if errors.Is(e.Err, ErrRecordNotFound) {
		return false
	}
	switch e.Op {
	case "create", "update", "delete":
		return true
	}
	return false
}

// UnknownResourceGroupError lists every key the registry could not resolve.
type UnknownResourceGroupError struct {
	Keys []string
}

func (e *UnknownResourceGroupError) Error() string {
	return fmt.Sprintf("unknown resource group(s): %s", strings.Join(e.Keys, ", "))
}

func (e *UnknownResourceGroupError) Is(target error) bool {
	return target == ErrUnknownResourceGroup
}

// PurgeError is a failed purge function call. Message is surfaced to the
// admin verbatim.
type PurgeError struct {
	// Remote is true when the function ran and reported a failure itself.
	Remote     bool
	StatusCode int
	Message    string
	Err        error
}

func (e *PurgeError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "purge function failed"
}

func (e *PurgeError) Unwrap() error {
	return e.Err
}

func (e *PurgeError) Is(target error) bool {
	if e.Remote {
		return target == ErrRemoteDeletion
	}
	return target == ErrFunctionInvocation
}

// AuthError is a rejected re-authentication.
type AuthError struct {
	Identifier string
	Reason     string
	Err        error
}

func (e *AuthError) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	return "invalid credentials"
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

func (e *AuthError) Is(target error) bool {
	return target == ErrAuthentication
}

// Validationf returns an ErrValidation error with a formatted message.
func Validationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Error kinds, one per taxonomy entry.
const (
	KindValidation          = "ValidationError"
	KindUpload              = "UploadError"
	KindReferenceResolution = "ReferenceResolutionFailure"
	KindRecordWrite         = "RecordWriteError"
	KindRecordNotFound      = "RecordNotFound"
	KindStorageDeletion     = "StorageDeletionWarning"
	KindAuthentication      = "AuthenticationError"
	KindUnknownGroup        = "UnknownResourceGroupError"
	KindFunctionInvocation  = "FunctionInvocationError"
	KindRemoteDeletion      = "RemoteDeletionLogicError"
	KindNoSelection         = "NoSelection"
	KindNotAuthenticated    = "NotAuthenticated"
	KindInvalidTransition   = "InvalidTransition"
	KindCountdownActive     = "CountdownActive"
	KindInternal            = "InternalError"
)

var kinds = []struct {
	target error
	kind   string
}{
	{ErrValidation, KindValidation},
	{ErrUnknownResourceGroup, KindUnknownGroup},
	{ErrUpload, KindUpload},
	{ErrRecordNotFound, KindRecordNotFound},
	{ErrRecordWrite, KindRecordWrite},
	{ErrReferenceResolution, KindReferenceResolution},
	{ErrStorageDeletion, KindStorageDeletion},
	{ErrAuthentication, KindAuthentication},
	{ErrRemoteDeletion, KindRemoteDeletion},
	{ErrFunctionInvocation, KindFunctionInvocation},
	{ErrNoSelection, KindNoSelection},
	{ErrNotAuthenticated, KindNotAuthenticated},
	{ErrInvalidTransition, KindInvalidTransition},
	{ErrCountdownActive, KindCountdownActive},
}

// Kind maps err to its taxonomy name. Unclassified errors are KindInternal.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.target) {
			return k.kind
		}
	}
	return KindInternal
}
