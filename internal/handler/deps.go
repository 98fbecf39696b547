package handler

import (
	"chatwire/internal/chat"
	"chatwire/internal/configs"
	"chatwire/internal/users"
)

// AppDeps bundles what the admin API handlers need.
type AppDeps struct {
	Config *configs.AppConfig
	Users  *users.ServerUserManager
	Chat   *chat.ServerChat
}
