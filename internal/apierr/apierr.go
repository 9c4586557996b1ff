// Package apierr carries the stable error-code/HTTP-status/message triples
// the API surface returns, as a struct implementing error + Unwrap so
// handlers can both inspect the code and log the underlying cause.
package apierr

import "fmt"

type Error struct {
	Code    string
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

func Wrap(code string, status int, message string, err error) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Table of stable error codes. Handlers build their own Error via New/Wrap
// with the code+status looked up here so the table stays the single source
// of truth for status codes.
var statusByCode = map[string]int{
	"TERMINAL_UNAUTHORIZED":           401,
	"TERMINAL_BLOCKED":                403,
	"CARD_NOT_FOUND":                  404,
	"CARD_BLOCKED":                    403,
	"EMPLOYEE_BLOCKED":                403,
	"NO_ACTIVE_FACE":                  400,
	"FACE_NOT_FOUND":                  400,
	"MULTIPLE_FACES":                  400,
	"FACE_TOO_SMALL":                  400,
	"LOW_LIGHT":                       400,
	"BLURRY":                          400,
	"FACE_NOT_MATCH":                  403,
	"LIVENESS_EXPIRED":                409,
	"LIVENESS_NOT_IN_PROGRESS":        409,
	"LIVENESS_FAILED":                 403,
	"LIVENESS_TOKEN_EXPIRED":          401,
	"LIVENESS_TOKEN_INVALID":          401,
	"LIVENESS_TOKEN_TERMINAL_MISMATCH": 403,
	"LIVENESS_ALREADY_USED":           409,
	"LIVENESS_NOT_FOUND":              404,
	"BAD_AMOUNT":                      400,
	"MAX_MEAL_1000_EXCEEDED":          400,
	"MAX_RECEIPT_500_EXCEEDED":        400,
	"INSUFFICIENT_MONTHLY_LIMIT":      400,
	"BAD_REQUEST":                     400,
	"PAY_LOCKED_OUT":                  429,
}

// FromCode builds an Error using the status registered for code. Panics if
// the code isn't in the table — a programmer error, not a runtime one.
func FromCode(code, message string) *Error {
	status, ok := statusByCode[code]
	if !ok {
		panic("apierr: unknown code " + code)
	}
	return New(code, status, message)
}
