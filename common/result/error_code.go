package result

type ErrorCode int

const (
	CodeOK ErrorCode = 0

	// Parameter / malformed input, 200 ~ 209
	CodeMalformedState ErrorCode = 200
	CodeParameterError ErrorCode = 201

	// Transition validation, 210 ~ 299
	CodeNonceGap              ErrorCode = 210
	CodeBalanceNotConserved   ErrorCode = 211
	CodePartyMismatch         ErrorCode = 212
	CodeNegativeBalance       ErrorCode = 213
	CodeInvalidVcCountDelta   ErrorCode = 214
	CodeRootHashMismatch      ErrorCode = 215
	CodeSelfChannel           ErrorCode = 216
	CodeInsufficientFunds     ErrorCode = 217
	CodeInvalidOpeningBalance ErrorCode = 218
	CodeUnauthorizedRole      ErrorCode = 219
	CodeChannelClosed         ErrorCode = 220

	// On-chain contract calls, 300 ~ 399
	CodeContractError       ErrorCode = 300
	CodeBroadcastFailure    ErrorCode = 301
	CodeConfirmationFailure ErrorCode = 302

	CodeInvalidSignature ErrorCode = 400
	CodeSignerMismatch   ErrorCode = 401

	CodeChannelState ErrorCode = 500

	CodeCounterpartyUnresponsive ErrorCode = 600

	CodeGenericError ErrorCode = 10000
)

var codeNames = map[ErrorCode]string{
	CodeOK:                       "OK",
	CodeMalformedState:           "MalformedState",
	CodeParameterError:           "ParameterError",
	CodeNonceGap:                 "NonceGap",
	CodeBalanceNotConserved:      "BalanceNotConserved",
	CodePartyMismatch:            "PartyMismatch",
	CodeNegativeBalance:          "NegativeBalance",
	CodeInvalidVcCountDelta:      "InvalidVcCountDelta",
	CodeRootHashMismatch:         "RootHashMismatch",
	CodeSelfChannel:              "SelfChannel",
	CodeInsufficientFunds:        "InsufficientFunds",
	CodeInvalidOpeningBalance:    "InvalidOpeningBalance",
	CodeUnauthorizedRole:         "UnauthorizedRole",
	CodeChannelClosed:            "ChannelClosed",
	CodeContractError:            "ContractError",
	CodeBroadcastFailure:         "BroadcastFailure",
	CodeConfirmationFailure:      "ConfirmationFailure",
	CodeInvalidSignature:         "InvalidSignature",
	CodeSignerMismatch:           "SignerMismatch",
	CodeChannelState:             "ChannelStateError",
	CodeCounterpartyUnresponsive: "CounterpartyUnresponsive",
	CodeGenericError:             "GenericError",
}

func (c ErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return "Unknown"
}

// IsValidation returns true for the codes a transition validator may produce.
func (c ErrorCode) IsValidation() bool {
	return c >= CodeNonceGap && c < CodeContractError
}

// IsMalformed returns true for the malformed input codes.
func (c ErrorCode) IsMalformed() bool {
	return c >= CodeMalformedState && c < CodeNonceGap
}
