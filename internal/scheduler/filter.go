package scheduler

import (
	"slices"
	"strings"

	"github.com/udisondev/rconherd/internal/model"
)

// matchesFilter reports whether server passes the schedule's filter.
// A nil filter matches everything. The whitelist applies first, then the
// blacklist, then player-count and tag constraints.
func matchesFilter(server model.ServerInfo, filter *model.ServerFilter) bool {
	if filter == nil {
		return true
	}

	if len(filter.ServerIDs) > 0 && !slices.Contains(filter.ServerIDs, server.ServerID) {
		return false
	}
	if slices.Contains(filter.ExcludeServerIDs, server.ServerID) {
		return false
	}

	if filter.MinPlayers != nil && server.CurrentPlayers < *filter.MinPlayers {
		return false
	}
	if filter.MaxPlayers != nil && server.CurrentPlayers > *filter.MaxPlayers {
		return false
	}

	if len(filter.GameTypes) > 0 {
		match := slices.ContainsFunc(filter.GameTypes, func(g string) bool {
			return strings.EqualFold(g, server.Game)
		})
		if !match {
			return false
		}
	}

	if len(filter.Tags) > 0 {
		match := slices.ContainsFunc(filter.Tags, func(want string) bool {
			return slices.ContainsFunc(server.Tags, func(have string) bool {
				return strings.EqualFold(want, have)
			})
		})
		if !match {
			return false
		}
	}

	return true
}
