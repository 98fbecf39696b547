package users

import (
	"encoding/json"
	"fmt"

	"chatwire/internal/protocol"
)

// ModuleName addresses this module on the wire.
const ModuleName = "users"

// LoginPacket asks the server to bind the authenticated session to a
// persistent identity, creating one if needed.
type LoginPacket struct {
	SessionToken string `json:"sessionToken"`

	// ClientKey repeats the clientkey credential so the identity can be
	// resolved; Username does the same for password auth.
	ClientKey string `json:"clientKey,omitempty"`
	Username  string `json:"username,omitempty"`

	// DisplayName is the wanted display name; empty keeps the stored one
	// or generates a fallback for new identities.
	DisplayName string `json:"displayName,omitempty"`
}

// LoginResponsePacket reports the outcome of a login attempt.
type LoginResponsePacket struct {
	Success        bool   `json:"success"`
	UUID           string `json:"uuid,omitempty"`
	DisplayName    string `json:"displayName,omitempty"`
	FailureCode    int    `json:"failureCode,omitempty"`
	FailureMessage string `json:"failureMessage,omitempty"`
}

// LogoutPacket releases the session's login binding without disconnecting.
type LogoutPacket struct {
	SessionToken string `json:"sessionToken"`
	UUID         string `json:"uuid"`
}

// DecodePacket decodes a validated frame into one of this module's packet
// types. Callers dispatch on the returned concrete type.
func DecodePacket(frame protocol.Frame) (any, error) {
	switch frame.PacketName() {
	case "LoginPacket":
		var p LoginPacket
		if err := json.Unmarshal(frame.Payload, &p); err != nil {
			return nil, fmt.Errorf("failed to decode LoginPacket: %w", err)
		}
		return p, nil

	case "LoginResponsePacket":
		var p LoginResponsePacket
		if err := json.Unmarshal(frame.Payload, &p); err != nil {
			return nil, fmt.Errorf("failed to decode LoginResponsePacket: %w", err)
		}
		return p, nil

	case "LogoutPacket":
		var p LogoutPacket
		if err := json.Unmarshal(frame.Payload, &p); err != nil {
			return nil, fmt.Errorf("failed to decode LogoutPacket: %w", err)
		}
		return p, nil

	default:
		return nil, fmt.Errorf("unknown users packet type %q", frame.Type)
	}
}
