// Package status converts raw `status` command output from GoldSource
// and Source servers into a typed snapshot.
package status

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/udisondev/rconherd/internal/model"
)

var (
	// GoldSource style: `hostname:  Some Server`
	reHostname = regexp.MustCompile(`(?im)^hostname\s*:\s*(.+)$`)
	// Source style: `Server Name: Some Server` (older mods emit this)
	reServerName = regexp.MustCompile(`(?im)^server name\s*:\s*(.+)$`)

	reVersion = regexp.MustCompile(`(?im)^version\s*:\s*(.+)$`)

	// `map     :  de_dust2 at: ...` or `Map: de_dust2`
	reMap = regexp.MustCompile(`(?im)^map\s*:\s*(\S+)`)

	// GoldSource: `players :  12 active (32 max)` or `players : 12 (32 max)`
	rePlayersGold = regexp.MustCompile(`(?im)^players\s*:\s*(\d+)[^(]*\((\d+)\s*max\)`)
	// Source: `Players: 12/32` or `players : 12 / 32`
	rePlayersSource = regexp.MustCompile(`(?im)^players\s*:\s*(\d+)\s*/\s*(\d+)`)

	// `uptime  :  12:34:56` (H:M:S) or `uptime: 95:03` (M:S on some mods)
	reUptime = regexp.MustCompile(`(?im)^uptime\s*:\s*(\d+)(?::(\d+))?(?::(\d+))?`)

	// `fps: 512.1` possibly inline with cpu: `cpu: 10.0 ... fps: 512.1`
	reFPS = regexp.MustCompile(`(?i)\bfps\s*:?\s*([\d.]+)`)
	reCPU = regexp.MustCompile(`(?i)\bcpu\s*:?\s*([\d.]+)`)

	// Player table rows:
	// #  2 "Name" STEAM_0:1:234 12:34 25 0 active
	rePlayerLine = regexp.MustCompile(`(?m)^#\s*(\d+)\s+"(.*?)"\s+(\S+)\s+(\S+)\s+(\d+)\s+(\d+)\s*(\S*)`)
)

// Parse extracts a ServerStatus from raw status output. Both GoldSource
// and Source formats are accepted, case-insensitively. Fields that fail
// to parse keep their defaults (map "unknown", numerics zero).
func Parse(raw string) model.ServerStatus {
	st := model.ServerStatus{
		Map:       "unknown",
		Timestamp: time.Now(),
	}
	if strings.TrimSpace(raw) == "" {
		return st
	}

	if m := reHostname.FindStringSubmatch(raw); m != nil {
		st.Hostname = strings.TrimSpace(m[1])
	} else if m := reServerName.FindStringSubmatch(raw); m != nil {
		st.Hostname = strings.TrimSpace(m[1])
	}
	if m := reVersion.FindStringSubmatch(raw); m != nil {
		st.Version = strings.TrimSpace(m[1])
	}
	if m := reMap.FindStringSubmatch(raw); m != nil {
		st.Map = m[1]
	}

	if m := rePlayersGold.FindStringSubmatch(raw); m != nil {
		st.Players, _ = strconv.Atoi(m[1])
		st.MaxPlayers, _ = strconv.Atoi(m[2])
	} else if m := rePlayersSource.FindStringSubmatch(raw); m != nil {
		st.Players, _ = strconv.Atoi(m[1])
		st.MaxPlayers, _ = strconv.Atoi(m[2])
	}

	if m := reUptime.FindStringSubmatch(raw); m != nil {
		st.Uptime = parseUptimeSeconds(m)
	}
	if m := reFPS.FindStringSubmatch(raw); m != nil {
		st.FPS, _ = strconv.ParseFloat(m[1], 64)
	}
	if m := reCPU.FindStringSubmatch(raw); m != nil {
		st.CPU, _ = strconv.ParseFloat(m[1], 64)
	}

	for _, m := range rePlayerLine.FindAllStringSubmatch(raw, -1) {
		entry := model.PlayerEntry{
			Name:     m[2],
			UniqueID: m[3],
			Time:     m[4],
			State:    m[7],
		}
		entry.UserID, _ = strconv.Atoi(m[1])
		entry.Ping, _ = strconv.Atoi(m[5])
		entry.Loss, _ = strconv.Atoi(m[6])
		entry.IsBot = strings.Contains(m[0], "BOT")
		st.PlayerList = append(st.PlayerList, entry)
		if entry.IsBot {
			st.BotCount++
		} else {
			st.RealPlayerCount++
		}
	}

	return st
}

// parseUptimeSeconds converts the captured uptime groups to seconds.
// Three groups mean H:M:S, two mean M:S, one bare number is minutes
// (GoldSource prints whole minutes early in a map).
func parseUptimeSeconds(m []string) int {
	a, _ := strconv.Atoi(m[1])
	if m[2] == "" {
		return a * 60
	}
	b, _ := strconv.Atoi(m[2])
	if m[3] == "" {
		return a*60 + b
	}
	c, _ := strconv.Atoi(m[3])
	return a*3600 + b*60 + c
}
