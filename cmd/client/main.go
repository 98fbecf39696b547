/*
Package main is a terminal client for a chatwire server.

It connects, completes the handshake with the configured credentials, logs
in, and then relays lines typed on stdin into the chat room while printing
everything the room broadcasts back.
*/
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"chatwire/internal/auth"
	"chatwire/internal/chat"
	"chatwire/internal/pkg/logx"
	"chatwire/internal/transport"
	"chatwire/internal/users"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:16180", "server address")
	clientKey := flag.String("client-key", "", "client key credential")
	username := flag.String("username", "", "username credential")
	password := flag.String("password", "", "password credential")
	displayName := flag.String("display-name", "", "display name to request at login")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	logx.InitGlobalLogger(*verbose)

	client := transport.NewNetClient()

	authenticator, err := auth.NewClientAuthenticator(client, auth.Credentials{
		ClientKey: *clientKey,
		Username:  *username,
		Password:  *password,
	})
	if err != nil {
		logx.Fatal(err, "Failed to initialize authenticator")
	}

	userManager, err := users.NewClientUserManager(client, authenticator)
	if err != nil {
		logx.Fatal(err, "Failed to initialize user manager")
	}

	chatRoom, err := chat.NewClientChat(client, authenticator, userManager)
	if err != nil {
		logx.Fatal(err, "Failed to initialize chat")
	}

	// Chain the handshake into login, and login into the prompt.
	authenticator.OnAuthenticated(func(sessionToken string) {
		if err := userManager.SendLogin(*clientKey, *username, *displayName); err != nil {
			logx.Error(err, "Failed to send login")
		}
	})
	authenticator.OnRejected(func(failureCode int, message string) {
		fmt.Fprintf(os.Stderr, "authentication rejected (%d): %s\n", failureCode, message)
		os.Exit(1)
	})
	userManager.OnLogin(func(uuid, displayName string) {
		fmt.Printf("logged in to %s as %s (%s)\n", authenticator.ServerName(), displayName, uuid)
	})
	userManager.OnLoginFailed(func(failureCode int, message string) {
		fmt.Fprintf(os.Stderr, "login rejected (%d): %s\n", failureCode, message)
		os.Exit(1)
	})
	chatRoom.OnChatMessageReceived(func(msg chat.ChatMessage) {
		fmt.Printf("[%s] %s: %s\n", msg.Timestamp.Local().Format("15:04:05"), msg.SenderUUID, msg.Body)
	})
	client.OnDisconnect(func() {
		fmt.Fprintln(os.Stderr, "disconnected from server")
		os.Exit(1)
	})

	if err := client.Connect(*addr); err != nil {
		logx.Fatal(err, "Failed to connect")
	}
	defer client.Disconnect()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit":
			return
		case line == "/history":
			for _, rec := range chatRoom.Messages() {
				marker := ""
				switch rec.Status {
				case chat.StatusPending:
					marker = " (pending)"
				case chat.StatusDenied:
					marker = " (denied)"
				}
				fmt.Printf("[%s] %s: %s%s\n",
					rec.Message.Timestamp.Local().Format("15:04:05"),
					rec.Message.SenderUUID, rec.Message.Body, marker)
			}
		default:
			if _, err := chatRoom.Send(line); err != nil {
				fmt.Fprintf(os.Stderr, "send failed: %v\n", err)
			}
		}
	}
}
