/*
Package errs provides custom error types and application-level error code constants.

This file defines the map from error codes to CustomError templates, used to
standardize failure responses and internal error handling.
*/
package errs

import "net/http"

// errorMap stores the CustomError template corresponding to every application
// error code. The key is the error code, the value carries the user message
// and the HTTP status used by the admin API.
var errorMap = map[int]CustomError{
	// 1xxx: Protocol and Framing Errors
	ErrInvalidFrame:      {Code: ErrInvalidFrame, Message: "Malformed frame."},
	ErrFrameTooLarge:     {Code: ErrFrameTooLarge, Message: "Frame exceeds the size limit."},
	ErrUnknownModule:     {Code: ErrUnknownModule, Message: "No handler registered for module %q."},
	ErrNamespaceMismatch: {Code: ErrNamespaceMismatch, Message: "Envelope type does not belong to module %q."},
	ErrDuplicateHandler:  {Code: ErrDuplicateHandler, Message: "A handler for module %q is already registered."},
	ErrRateLimitExceeded: {Code: ErrRateLimitExceeded, Message: "Too many requests. Please slow down.", Status: http.StatusTooManyRequests},

	// 2xxx: Chat Business Logic Errors
	ErrMessageEmpty:          {Code: ErrMessageEmpty, Message: "Message cannot be empty."},
	ErrMessageContentTooLong: {Code: ErrMessageContentTooLong, Message: "Message is too long."},

	// 3xxx: Authentication, Session, and User Errors
	ErrNotAuthenticated:     {Code: ErrNotAuthenticated, Message: "Please authenticate to continue.", Status: http.StatusUnauthorized},
	ErrAuthTypeMismatch:     {Code: ErrAuthTypeMismatch, Message: "Unsupported authentication type."},
	ErrInvalidCredentials:   {Code: ErrInvalidCredentials, Message: "Incorrect credentials."},
	ErrAlreadyAuthenticated: {Code: ErrAlreadyAuthenticated, Message: "This connection already holds a session."},
	ErrNotLoggedIn:          {Code: ErrNotLoggedIn, Message: "Please sign in to continue."},
	ErrUuidMismatch:         {Code: ErrUuidMismatch, Message: "Claimed identity does not match this connection."},
	ErrAlreadyLoggedIn:      {Code: ErrAlreadyLoggedIn, Message: "You are already signed in elsewhere."},
	ErrSessionReplaced:      {Code: ErrSessionReplaced, Message: "You were signed in on another connection."},

	// 4xxx: Admin API Request Errors
	ErrInvalidJSONFormat:    {Code: ErrInvalidJSONFormat, Message: "Invalid JSON format in request body.", Status: http.StatusBadRequest},
	ErrUnsupportedMediaType: {Code: ErrUnsupportedMediaType, Message: "Content-Type must be application/json.", Status: http.StatusUnsupportedMediaType},
	ErrExtraContentInBody:   {Code: ErrExtraContentInBody, Message: "Request body must contain a single JSON object.", Status: http.StatusBadRequest},

	// 5xxx: Internal System Errors
	ErrUnknown:      {Code: ErrUnknown, Message: "Something went wrong. Please try again.", Status: http.StatusInternalServerError},
	ErrStoreCorrupt: {Code: ErrStoreCorrupt, Message: "Persistent store is unreadable.", Status: http.StatusInternalServerError},
}
