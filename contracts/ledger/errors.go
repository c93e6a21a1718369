package ledger

import (
	"fmt"
	"strings"
)

// ErrorCode classifies a business rejection raised by the chaincode.
// The code travels as the prefix of the chaincode error message, the only
// channel Fabric preserves end to end from the endorser to the client.
type ErrorCode string

const (
	CodeDuplicateRecord ErrorCode = "DUPLICATE_RECORD"
	CodeNotFound        ErrorCode = "NOT_FOUND"
	CodeUnauthorized    ErrorCode = "UNAUTHORIZED"
	CodeValidation      ErrorCode = "VALIDATION"
)

var knownCodes = []ErrorCode{CodeDuplicateRecord, CodeNotFound, CodeUnauthorized, CodeValidation}

// FormatError renders a chaincode error message as "<CODE>: detail".
func FormatError(code ErrorCode, detail string) string {
	return fmt.Sprintf("%s: %s", code, detail)
}

// ParseError extracts the business code from a chaincode or gateway error message.
// Gateways wrap the chaincode message in their own text, so the code is searched
// anywhere in msg. The earliest marker wins; later ones belong to the detail.
func ParseError(msg string) (ErrorCode, string, bool) {
	var (
		found ErrorCode
		at    = -1
	)
	for _, code := range knownCodes {
		i := strings.Index(msg, string(code)+": ")
		if i >= 0 && (at < 0 || i < at) {
			found, at = code, i
		}
	}
	if at < 0 {
		return "", "", false
	}
	return found, msg[at+len(found)+2:], true
}

// Error is a chaincode rejection decoded on the client side.
type Error struct {
	Code   ErrorCode
	Detail string
}

func (e *Error) Error() string {
	return FormatError(e.Code, e.Detail)
}

// DecodeError returns the typed rejection carried by msg, if any.
func DecodeError(msg string) (*Error, bool) {
	code, detail, ok := ParseError(msg)
	if !ok {
		return nil, false
	}
	return &Error{Code: code, Detail: detail}, true
}
