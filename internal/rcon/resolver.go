package rcon

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// ConfigStore reads layered command configuration: per-server values,
// per-mod defaults and process-wide defaults. Empty string means absent.
type ConfigStore interface {
	GetServerConfig(ctx context.Context, serverID int, key string) (string, error)
	GetModDefault(ctx context.Context, game, key string) (string, error)
	GetServerConfigDefault(ctx context.Context, key string) (string, error)
}

// fallbackCommand is the last-resort concrete command.
const fallbackCommand = "say"

// Capability describes what a resolved command supports on the wire.
type Capability struct {
	SupportsBatch      bool
	MaxBatchSize       int
	RequiresHashPrefix bool
}

// capabilityRule maps a command prefix to its capabilities. Rules are
// matched longest prefix first.
type capabilityRule struct {
	prefix string
	cap    Capability
}

var capabilityRules = []capabilityRule{
	{"hlx_amx_bulkpsay", Capability{SupportsBatch: true, MaxBatchSize: 8, RequiresHashPrefix: true}},
	{"amx_bulkpsay", Capability{SupportsBatch: true, MaxBatchSize: 8, RequiresHashPrefix: true}},
	{"hlx_sm_psay", Capability{SupportsBatch: true, MaxBatchSize: 32}},
	{"hlx_amx_psay", Capability{MaxBatchSize: 1, RequiresHashPrefix: true}},
	{"ma_hlx_psay", Capability{MaxBatchSize: 1}},
	{"hlx_psay", Capability{MaxBatchSize: 1}},
	{"ms_psay", Capability{MaxBatchSize: 1}},
	{"amx_psay", Capability{MaxBatchSize: 1, RequiresHashPrefix: true}},
	{"amx_say", Capability{MaxBatchSize: 1, RequiresHashPrefix: true}},
	{"amx_tell", Capability{MaxBatchSize: 1, RequiresHashPrefix: true}},
	{"amx_pm", Capability{MaxBatchSize: 1, RequiresHashPrefix: true}},
}

type resolverKey struct {
	ServerID int
	Kind     string
}

// Resolver maps (server, logical command kind) to the concrete server-mod
// command string, memoizing both the string and its inferred
// capabilities.
type Resolver struct {
	store ConfigStore

	mu       sync.Mutex
	commands map[resolverKey]string
	caps     map[resolverKey]Capability
}

// NewResolver creates a Resolver over the given config store.
func NewResolver(store ConfigStore) *Resolver {
	return &Resolver{
		store:    store,
		commands: make(map[resolverKey]string),
		caps:     make(map[resolverKey]Capability),
	}
}

// GetCommand resolves the concrete command for (serverID, kind),
// consulting server config, then the mod default for game, then the
// process default, then the literal "say" fallback. Whitespace-only
// layer values count as absent. Results are cached per (server, kind).
func (r *Resolver) GetCommand(ctx context.Context, serverID int, game, kind string) (string, error) {
	key := resolverKey{ServerID: serverID, Kind: kind}

	r.mu.Lock()
	if cmd, ok := r.commands[key]; ok {
		r.mu.Unlock()
		return cmd, nil
	}
	r.mu.Unlock()

	cmd, err := r.resolve(ctx, serverID, game, kind)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	r.commands[key] = cmd
	r.caps[key] = inferCapability(cmd)
	r.mu.Unlock()
	return cmd, nil
}

// GetCapability resolves the command for (serverID, kind) if needed and
// returns its inferred capabilities.
func (r *Resolver) GetCapability(ctx context.Context, serverID int, game, kind string) (Capability, error) {
	key := resolverKey{ServerID: serverID, Kind: kind}

	r.mu.Lock()
	if c, ok := r.caps[key]; ok {
		r.mu.Unlock()
		return c, nil
	}
	r.mu.Unlock()

	if _, err := r.GetCommand(ctx, serverID, game, kind); err != nil {
		return Capability{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.caps[key], nil
}

// ClearCache evicts every memoized command and capability.
func (r *Resolver) ClearCache() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = make(map[resolverKey]string)
	r.caps = make(map[resolverKey]Capability)
}

// ClearServerCache evicts only the entries of one server.
func (r *Resolver) ClearServerCache(serverID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key := range r.commands {
		if key.ServerID == serverID {
			delete(r.commands, key)
		}
	}
	for key := range r.caps {
		if key.ServerID == serverID {
			delete(r.caps, key)
		}
	}
}

func (r *Resolver) resolve(ctx context.Context, serverID int, game, kind string) (string, error) {
	v, err := r.store.GetServerConfig(ctx, serverID, kind)
	if err != nil {
		return "", fmt.Errorf("reading server config %d/%s: %w", serverID, kind, err)
	}
	if v = strings.TrimSpace(v); v != "" {
		return v, nil
	}

	v, err = r.store.GetModDefault(ctx, game, kind)
	if err != nil {
		return "", fmt.Errorf("reading mod default %s/%s: %w", game, kind, err)
	}
	if v = strings.TrimSpace(v); v != "" {
		return v, nil
	}

	v, err = r.store.GetServerConfigDefault(ctx, kind)
	if err != nil {
		return "", fmt.Errorf("reading config default %s: %w", kind, err)
	}
	if v = strings.TrimSpace(v); v != "" {
		return v, nil
	}

	return fallbackCommand, nil
}

// inferCapability matches the concrete command against the prefix table,
// longest prefix first.
func inferCapability(command string) Capability {
	for _, rule := range capabilityRules {
		if strings.HasPrefix(command, rule.prefix) {
			return rule.cap
		}
	}
	return Capability{MaxBatchSize: 1}
}
