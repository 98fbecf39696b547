/*
Package errs provides custom error types and application-level error code constants.

These error codes identify specific protocol or business errors both
internally on the server and inside failure responses sent to clients.
*/
package errs

// 1xxx: Protocol and Framing Errors
const (
	// ErrInvalidFrame indicates that an inbound frame could not be decoded.
	ErrInvalidFrame = 1001

	// ErrFrameTooLarge indicates that an inbound frame exceeded the size limit.
	ErrFrameTooLarge = 1002

	// ErrUnknownModule indicates that a frame addressed a module with no registered handler.
	ErrUnknownModule = 1003

	// ErrNamespaceMismatch indicates that an envelope's type URL does not belong to the addressed module.
	ErrNamespaceMismatch = 1004

	// ErrDuplicateHandler indicates that a module handler was registered twice.
	ErrDuplicateHandler = 1005

	// ErrRateLimitExceeded indicates that a connection exceeded the inbound frame rate limit.
	ErrRateLimitExceeded = 1006
)

// 2xxx: Chat Business Logic Errors
const (
	// ErrMessageEmpty indicates that a chat message had no content.
	ErrMessageEmpty = 2001

	// ErrMessageContentTooLong indicates that a chat message exceeded the maximum length limit.
	ErrMessageContentTooLong = 2002
)

// 3xxx: Authentication, Session, and User Errors
const (
	// ErrNotAuthenticated indicates that the connection has not completed the authentication handshake.
	ErrNotAuthenticated = 3001

	// ErrAuthTypeMismatch indicates that the client offered credentials of a type the server did not advertise.
	ErrAuthTypeMismatch = 3002

	// ErrInvalidCredentials indicates that the supplied credentials failed verification.
	ErrInvalidCredentials = 3003

	// ErrAlreadyAuthenticated indicates a handshake attempt on a connection that already holds a session.
	ErrAlreadyAuthenticated = 3004

	// ErrNotLoggedIn indicates that the connection has no live login binding.
	ErrNotLoggedIn = 3005

	// ErrUuidMismatch indicates that a caller claimed a UUID other than the one bound to its connection.
	ErrUuidMismatch = 3006

	// ErrAlreadyLoggedIn indicates that the identity already holds a live login binding elsewhere.
	ErrAlreadyLoggedIn = 3007

	// ErrSessionReplaced indicates that the connection was closed because the identity logged in elsewhere.
	ErrSessionReplaced = 3008
)

// 4xxx: Admin API Request Errors
const (
	// ErrInvalidJSONFormat indicates that a request body was not valid JSON for the target shape.
	ErrInvalidJSONFormat = 4001

	// ErrUnsupportedMediaType indicates that a request did not carry a JSON content type.
	ErrUnsupportedMediaType = 4002

	// ErrExtraContentInBody indicates trailing content after the JSON document in a request body.
	ErrExtraContentInBody = 4003
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified internal error.
	ErrUnknown = 5000

	// ErrStoreCorrupt indicates that a persistent store could not be read safely.
	ErrStoreCorrupt = 5001
)
