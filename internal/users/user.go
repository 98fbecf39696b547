/*
Package users binds authenticated sessions to persistent identities: the
identity records themselves, the durable stores they live in, the
server-side login registry, and the client-side login state.
*/
package users

import "time"

// User is a persistent identity. It is independent of any connection and
// survives across reconnects and process restarts.
type User struct {
	// UUID is the globally unique identifier of this identity.
	UUID string `json:"uuid"`

	// LoginKey resolves credentials to this identity: the username for
	// password auth, or the hashed client key for clientkey auth.
	LoginKey string `json:"loginKey"`

	// DisplayName is shown to other users.
	DisplayName string `json:"displayName"`

	// PasswordHash is the bcrypt hash for password auth; empty otherwise.
	PasswordHash string `json:"passwordHash,omitempty"`

	// CreatedAt records when the identity was first provisioned.
	CreatedAt time.Time `json:"createdAt"`
}
