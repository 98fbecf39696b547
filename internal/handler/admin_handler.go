/*
Package handler provides HTTP handler functions for the admin API's
read-only views over the running server.
*/
package handler

import (
	"net/http"

	"chatwire/internal/auth"
	"chatwire/internal/pkg/errs"
	"chatwire/internal/pkg/req"
	"chatwire/internal/pkg/resp"
)

// HandleServerInfo reports the server's public identity, matching what the
// handshake challenge advertises.
func HandleServerInfo(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data := map[string]any{
			"name":            deps.Config.ServerName,
			"description":     deps.Config.ServerDescription,
			"authType":        deps.Config.AuthType,
			"protocolVersion": auth.ProtocolVersion,
		}
		resp.RespondSuccess(w, r, data)
	}
}

// HandleOnlineUsers lists every logged-in connection with its identity.
func HandleOnlineUsers(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		online := deps.Users.LoggedInUsers()

		data := map[string]any{
			"count": len(online),
			"users": online,
		}
		resp.RespondSuccess(w, r, data)
	}
}

type AnnounceInput struct {
	// Body is the announcement text, subject to the same sanitization and
	// length limits as user messages.
	Body string `json:"body"`
}

// HandleAnnounce injects a server announcement into the chat room.
func HandleAnnounce(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input AnnounceInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		msg, err := deps.Chat.Announce(input.Body)
		if err != nil {
			if customErr, ok := err.(*errs.CustomError); ok {
				resp.RespondError(w, r, customErr)
				return
			}
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"messageId": msg.MessageID,
		})
	}
}

// HandleChatHistory returns the room's current bounded history, oldest
// first.
func HandleChatHistory(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		history := deps.Chat.History()

		data := map[string]any{
			"count":    len(history),
			"messages": history,
		}
		resp.RespondSuccess(w, r, data)
	}
}
