/*
Package auth implements the authentication handshake shared by server and
client: the per-connection state machine, session token issuance, and the
IsAuthenticated gate every other module consults before trusting a request.

This file defines the handshake packets and the module's tagged decode step.
*/
package auth

import (
	"encoding/json"
	"fmt"

	"chatwire/internal/protocol"
)

// ModuleName addresses this module on the wire.
const ModuleName = "auth"

// ProtocolVersion is advertised in the challenge so mismatched clients can
// bail out early.
const ProtocolVersion = 1

// HelloPacket is the server's challenge, sent immediately on connect. It
// describes the server and the authentication type it accepts.
type HelloPacket struct {
	ServerName        string `json:"serverName"`
	ServerDescription string `json:"serverDescription,omitempty"`
	AuthType          string `json:"authType"`
	ProtocolVersion   int    `json:"protocolVersion"`
}

// CredentialsPacket is the client's reply to the challenge.
type CredentialsPacket struct {
	AuthType string `json:"authType"`

	// ClientKey is the opaque client-generated key for clientkey auth.
	ClientKey string `json:"clientKey,omitempty"`

	// Username and Password are used for password auth.
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

// AuthResponsePacket closes the handshake. On success it carries the session
// token the client must present with every subsequent request.
type AuthResponsePacket struct {
	Success        bool   `json:"success"`
	SessionToken   string `json:"sessionToken,omitempty"`
	FailureCode    int    `json:"failureCode,omitempty"`
	FailureMessage string `json:"failureMessage,omitempty"`
}

// DecodePacket decodes a validated frame into one of this module's packet
// types. Callers dispatch on the returned concrete type.
func DecodePacket(frame protocol.Frame) (any, error) {
	switch frame.PacketName() {
	case "HelloPacket":
		var p HelloPacket
		if err := json.Unmarshal(frame.Payload, &p); err != nil {
			return nil, fmt.Errorf("failed to decode HelloPacket: %w", err)
		}
		return p, nil

	case "CredentialsPacket":
		var p CredentialsPacket
		if err := json.Unmarshal(frame.Payload, &p); err != nil {
			return nil, fmt.Errorf("failed to decode CredentialsPacket: %w", err)
		}
		return p, nil

	case "AuthResponsePacket":
		var p AuthResponsePacket
		if err := json.Unmarshal(frame.Payload, &p); err != nil {
			return nil, fmt.Errorf("failed to decode AuthResponsePacket: %w", err)
		}
		return p, nil

	default:
		return nil, fmt.Errorf("unknown auth packet type %q", frame.Type)
	}
}
