package errors

import "strings"

// ErrorCode is a string representation of a specific error condition.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common Error Codes
const (
	ErrCodeInternal      ErrorCode = "COMMON_001"
	ErrCodeValidation    ErrorCode = "COMMON_002"
	ErrCodeConfiguration ErrorCode = "COMMON_003"
	ErrCodeSerialization ErrorCode = "COMMON_004"
	ErrCodeCanceled      ErrorCode = "COMMON_005"
	ErrCodeUnknown       ErrorCode = "COMMON_000"
)

// Retrieval (SIEG API) Error Codes
const (
	ErrCodeTransientNetwork ErrorCode = "API_001"
	ErrCodePermanentAPI     ErrorCode = "API_002"
	ErrCodeRetrievalFailed  ErrorCode = "API_003"
	ErrCodePageMalformed    ErrorCode = "API_004"
)

// Document Decoding Error Codes
const (
	ErrCodeDecodeBase64      ErrorCode = "DOC_001"
	ErrCodeDecodeEncoding    ErrorCode = "DOC_002"
	ErrCodeDecodeXML         ErrorCode = "DOC_003"
	ErrCodeNotFiscalDocument ErrorCode = "DOC_004"
)

// Identifier Error Codes
const (
	ErrCodeInvalidIdentifier ErrorCode = "IDN_001"
	ErrCodeIdentifierSource  ErrorCode = "IDN_002"
)

// Infrastructure Error Codes
const (
	ErrCodeStorage       ErrorCode = "STO_001"
	ErrCodeObjectStorage ErrorCode = "STO_002"
	ErrCodeLedger        ErrorCode = "LDG_001"
	ErrCodeMessaging     ErrorCode = "MSG_001"
	ErrCodeSearchIndex   ErrorCode = "IDX_001"
)

// Short aliases used at call sites.
const (
	CodeOK                = ErrorCode("OK")
	CodeUnknown           = ErrCodeUnknown
	CodeInternal          = ErrCodeInternal
	CodeValidation        = ErrCodeValidation
	CodeConfiguration     = ErrCodeConfiguration
	CodeSerialization     = ErrCodeSerialization
	CodeCanceled          = ErrCodeCanceled
	CodeTransientNetwork  = ErrCodeTransientNetwork
	CodePermanentAPI      = ErrCodePermanentAPI
	CodeRetrievalFailed   = ErrCodeRetrievalFailed
	CodePageMalformed     = ErrCodePageMalformed
	CodeDecodeBase64      = ErrCodeDecodeBase64
	CodeDecodeEncoding    = ErrCodeDecodeEncoding
	CodeDecodeXML         = ErrCodeDecodeXML
	CodeNotFiscalDocument = ErrCodeNotFiscalDocument
	CodeInvalidIdentifier = ErrCodeInvalidIdentifier
	CodeIdentifierSource  = ErrCodeIdentifierSource
	CodeStorage           = ErrCodeStorage
	CodeObjectStorage     = ErrCodeObjectStorage
	CodeLedger            = ErrCodeLedger
	CodeMessaging         = ErrCodeMessaging
	CodeSearchIndex       = ErrCodeSearchIndex
)

// ErrorCodeMessage maps ErrorCodes to default messages.
var ErrorCodeMessage = map[ErrorCode]string{
	ErrCodeInternal:      "internal error",
	ErrCodeValidation:    "validation failed",
	ErrCodeConfiguration: "invalid configuration",
	ErrCodeSerialization: "serialization failed",
	ErrCodeCanceled:      "operation canceled",

	ErrCodeTransientNetwork: "network failure talking to document API",
	ErrCodePermanentAPI:     "document API returned an unexpected status",
	ErrCodeRetrievalFailed:  "document retrieval failed after all attempts",
	ErrCodePageMalformed:    "document API returned a malformed page",

	ErrCodeDecodeBase64:      "document payload is not valid base64",
	ErrCodeDecodeEncoding:    "document payload is not valid UTF-8",
	ErrCodeDecodeXML:         "document payload is not well-formed XML",
	ErrCodeNotFiscalDocument: "document payload is not an NF-e document",

	ErrCodeInvalidIdentifier: "invalid taxpayer identifier",
	ErrCodeIdentifierSource:  "failed to read taxpayer identifiers",

	ErrCodeStorage:       "failed to store document",
	ErrCodeObjectStorage: "failed to mirror document to object storage",
	ErrCodeLedger:        "ingestion ledger failure",
	ErrCodeMessaging:     "failed to publish ingestion event",
	ErrCodeSearchIndex:   "failed to index document",
}

// DefaultMessageForCode returns the default message for an ErrorCode.
func DefaultMessageForCode(code ErrorCode) string {
	if msg, ok := ErrorCodeMessage[code]; ok {
		return msg
	}
	return "unknown error"
}

// IsRetryable reports whether a failure with this code may succeed on a later attempt.
func IsRetryable(code ErrorCode) bool {
	switch code {
	case ErrCodeTransientNetwork, ErrCodePermanentAPI:
		return true
	}
	return false
}

// ModuleForCode returns the module prefix of an ErrorCode.
func ModuleForCode(code ErrorCode) string {
	parts := strings.Split(string(code), "_")
	if len(parts) > 0 && parts[0] != "" {
		return parts[0]
	}
	return "UNKNOWN"
}
