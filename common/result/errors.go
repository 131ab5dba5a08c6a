package result

import (
	"fmt"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

var (
	// ErrInvalidSignature is returned when a signature cannot be parsed or
	// no public key can be recovered from it.
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrCounterpartyUnresponsive means the hub did not answer within the
	// countersignature deadline. It triggers the dispute path.
	ErrCounterpartyUnresponsive = errors.New("counterparty unresponsive")
)

// MalformedStateError reports a field that cannot be encoded, e.g. a negative
// balance or a zero address, or a bad caller supplied parameter. Several of
// them are aggregated with multierror.
type MalformedStateError struct {
	Code   ErrorCode
	Field  string
	Reason string
}

func (e *MalformedStateError) Error() string {
	return fmt.Sprintf("malformed %s: %s", e.Field, e.Reason)
}

// Malformed creates a *MalformedStateError.
func Malformed(field string, reasonFormat string, a ...interface{}) *MalformedStateError {
	return &MalformedStateError{Code: CodeMalformedState, Field: field, Reason: fmt.Sprintf(reasonFormat, a...)}
}

// ParameterError creates a *MalformedStateError for an invalid argument.
func ParameterError(reasonFormat string, a ...interface{}) *MalformedStateError {
	return &MalformedStateError{Code: CodeParameterError, Field: "parameter", Reason: fmt.Sprintf(reasonFormat, a...)}
}

// ValidationError is a rejected state transition.
type ValidationError struct {
	Code    ErrorCode
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%v: %s", e.Code, e.Message)
}

// SignatureError is raised when the recovered signer is not the party that
// was expected to sign.
type SignatureError struct {
	Role      string
	Expected  ethcommon.Address
	Recovered ethcommon.Address
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("signature of %s: expected signer %v, recovered %v", e.Role, e.Expected.Hex(), e.Recovered.Hex())
}

type ChainFailureKind int

const (
	// BroadcastFailure: the transaction was never accepted, no hash exists.
	BroadcastFailure ChainFailureKind = iota
	// ConfirmationFailure: a hash exists but the transaction was not mined
	// successfully.
	ConfirmationFailure
)

func (k ChainFailureKind) String() string {
	if k == BroadcastFailure {
		return "broadcast failure"
	}
	return "confirmation failure"
}

// ChainTransactionError carries enough context to resume or dispute later.
type ChainTransactionError struct {
	Kind      ChainFailureKind
	Method    string
	TxHash    ethcommon.Hash
	ChannelID ethcommon.Hash
	Nonce     uint64
	Cause     error
}

func (e *ChainTransactionError) Error() string {
	msg := fmt.Sprintf("%v: method=%s, channel=%v, nonce=%d", e.Kind, e.Method, e.ChannelID.Hex(), e.Nonce)
	if e.TxHash != (ethcommon.Hash{}) {
		msg += ", tx=" + e.TxHash.Hex()
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *ChainTransactionError) Unwrap() error {
	return e.Cause
}

// ChannelStateError means the operation is not allowed in the channel's
// current lifecycle status.
type ChannelStateError struct {
	ChannelID ethcommon.Hash
	Status    string
	Reason    string
}

func (e *ChannelStateError) Error() string {
	return fmt.Sprintf("channel %v is %s: %s", e.ChannelID.Hex(), e.Status, e.Reason)
}

// -------------- Predicates -------------- //

func IsMalformed(err error) bool {
	var target *MalformedStateError
	return errors.As(err, &target)
}

// IsValidation checks for a *ValidationError carrying a transition
// validation code. With code CodeOK any validation failure matches.
func IsValidation(err error, code ErrorCode) bool {
	var target *ValidationError
	if !errors.As(err, &target) || !target.Code.IsValidation() {
		return false
	}
	return code == CodeOK || target.Code == code
}

// IsSignature covers both unparsable signatures and signer mismatches.
func IsSignature(err error) bool {
	var target *SignatureError
	return errors.As(err, &target) || errors.Is(err, ErrInvalidSignature)
}

func IsBroadcastFailure(err error) bool {
	var target *ChainTransactionError
	return errors.As(err, &target) && target.Kind == BroadcastFailure
}

func IsConfirmationFailure(err error) bool {
	var target *ChainTransactionError
	return errors.As(err, &target) && target.Kind == ConfirmationFailure
}

func IsChannelState(err error) bool {
	var target *ChannelStateError
	return errors.As(err, &target)
}

func IsUnresponsive(err error) bool {
	return errors.Is(err, ErrCounterpartyUnresponsive)
}

// CodeOf maps an error onto the error code table.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return CodeOK
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Code
	}
	var cerr *ChainTransactionError
	if errors.As(err, &cerr) {
		if cerr.Kind == BroadcastFailure {
			return CodeBroadcastFailure
		}
		return CodeConfirmationFailure
	}
	var merr *MalformedStateError
	if errors.As(err, &merr) {
		if merr.Code == CodeOK {
			return CodeMalformedState
		}
		return merr.Code
	}
	var serr *SignatureError
	switch {
	case errors.As(err, &serr):
		return CodeSignerMismatch
	case errors.Is(err, ErrInvalidSignature):
		return CodeInvalidSignature
	case IsChannelState(err):
		return CodeChannelState
	case IsUnresponsive(err):
		return CodeCounterpartyUnresponsive
	}
	return CodeGenericError
}
