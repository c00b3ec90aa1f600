package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/udisondev/rconherd/internal/model"
)

// Message display styles supported by the HLstatsX family of mods.
const (
	messageTypeCsay    = "hlx_csay"
	messageTypeTsay    = "hlx_tsay"
	messageTypeTypehud = "hlx_typehud"

	defaultMessageColor = "00FF00"
	maxMessageLength    = 200
)

// MessageExecutor broadcasts announcements. The wire command is
// "<type> <color> <message>" with {server.name} and {server.serverId}
// placeholders expanded per server. When the schedule names a
// command_kind instead, the concrete command comes from the resolver's
// layered lookup and the color is dropped.
type MessageExecutor struct {
	rcon     RconService
	resolver CommandResolver
}

// NewMessageExecutor wires the announcement executor. resolver may be
// nil when no layered command configuration is available.
func NewMessageExecutor(rconSvc RconService, resolver CommandResolver) *MessageExecutor {
	return &MessageExecutor{rcon: rconSvc, resolver: resolver}
}

// Type implements Executor.
func (e *MessageExecutor) Type() string { return model.CommandServerMessage }

// Validate implements Executor: the display type must be known (absent
// falls back to hlx_csay), the message present and at most 200 chars.
func (e *MessageExecutor) Validate(s model.ScheduledCommand) bool {
	if s.Command.Type != model.CommandServerMessage {
		return false
	}
	if s.Command.Params["command_kind"] == "" {
		switch s.Command.Params["type"] {
		case "", messageTypeCsay, messageTypeTsay, messageTypeTypehud:
		default:
			return false
		}
	}
	msg := strings.TrimSpace(s.Command.Params["message"])
	return msg != "" && utf8.RuneCountInString(msg) <= maxMessageLength
}

// Execute sends the announcement to one server. A server that is not
// connected, or a failed send, still counts as processed, just without
// a command sent.
func (e *MessageExecutor) Execute(ctx context.Context, ec Context) (Outcome, error) {
	serverID := ec.Server.ServerID

	if !e.rcon.IsConnected(serverID) {
		slog.Debug("skipping announcement, server not connected", "server", serverID)
		return Outcome{ServersProcessed: 1}, nil
	}

	command, err := e.buildCommand(ctx, ec)
	if err != nil {
		slog.Warn("resolving announcement command failed", "server", serverID, "err", err)
		return Outcome{ServersProcessed: 1}, nil
	}
	if _, err := e.rcon.Execute(ctx, serverID, command); err != nil {
		slog.Warn("announcement failed", "server", serverID, "err", err)
		return Outcome{ServersProcessed: 1}, nil
	}

	return Outcome{ServersProcessed: 1, CommandsSent: 1}, nil
}

func (e *MessageExecutor) buildCommand(ctx context.Context, ec Context) (string, error) {
	params := ec.Schedule.Command.Params

	message := strings.TrimSpace(params["message"])
	message = strings.ReplaceAll(message, "{server.name}", ec.Server.Name)
	message = strings.ReplaceAll(message, "{server.serverId}", strconv.Itoa(ec.Server.ServerID))

	if kind := params["command_kind"]; kind != "" && e.resolver != nil {
		cmd, err := e.resolver.GetCommand(ctx, ec.Server.ServerID, ec.Server.Game, kind)
		if err != nil {
			return "", fmt.Errorf("resolving %q: %w", kind, err)
		}
		return fmt.Sprintf("%s %s", cmd, message), nil
	}

	msgType := params["type"]
	if msgType == "" {
		msgType = messageTypeCsay
	}
	color := params["color"]
	if color == "" {
		color = defaultMessageColor
	}

	return fmt.Sprintf("%s %s %s", msgType, color, message), nil
}
