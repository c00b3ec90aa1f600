package status

import "testing"

const goldsrcStatus = `hostname:  [EU] Classic CS 1.6 Server
version :  48/1.1.2.7/Stdio 8684 secure  (10)
tcp/ip  :  192.168.1.10:27015
map     :  de_dust2 at: 0 x, 0 y, 0 z
players :  3 active (32 max)
uptime  :  1:02:03
fps: 499.8  cpu: 12.3

#      name userid uniqueid frag time ping loss adr
#  1 "Player One" STEAM_0:0:11111 05:12 35 0 active
#  2 "BotAlpha" BOT 01:00 5 0 active
#  3 "Player Two" STEAM_0:1:22222 15:44 60 1 active
3 users
`

const sourceStatus = `Server Name: My TF2 Server
version : 1.2.3.4/24 7777 secure
udp/ip  : 10.0.0.5:27015
Map: pl_upward
Players: 18/24

# userid name                uniqueid            connected ping loss state
#      2 "Sniper Guy" [U:1:123456] 12:34 45 0 active
`

func TestParse_GoldSource(t *testing.T) {
	st := Parse(goldsrcStatus)

	if st.Hostname != "[EU] Classic CS 1.6 Server" {
		t.Errorf("Hostname = %q", st.Hostname)
	}
	if st.Map != "de_dust2" {
		t.Errorf("Map = %q", st.Map)
	}
	if st.Players != 3 || st.MaxPlayers != 32 {
		t.Errorf("Players = %d/%d, want 3/32", st.Players, st.MaxPlayers)
	}
	if want := 1*3600 + 2*60 + 3; st.Uptime != want {
		t.Errorf("Uptime = %d, want %d", st.Uptime, want)
	}
	if st.FPS != 499.8 {
		t.Errorf("FPS = %v", st.FPS)
	}
	if st.CPU != 12.3 {
		t.Errorf("CPU = %v", st.CPU)
	}
	if len(st.PlayerList) != 3 {
		t.Fatalf("PlayerList = %d entries, want 3", len(st.PlayerList))
	}
	if st.BotCount != 1 || st.RealPlayerCount != 2 {
		t.Errorf("bots/real = %d/%d, want 1/2", st.BotCount, st.RealPlayerCount)
	}
	if st.PlayerList[0].Name != "Player One" || st.PlayerList[0].UniqueID != "STEAM_0:0:11111" {
		t.Errorf("first player = %+v", st.PlayerList[0])
	}
	if !st.PlayerList[1].IsBot {
		t.Error("BotAlpha not flagged as bot")
	}
	if st.ActivePlayers() != 2 {
		t.Errorf("ActivePlayers = %d, want 2 (bots excluded)", st.ActivePlayers())
	}
}

func TestParse_Source(t *testing.T) {
	st := Parse(sourceStatus)

	if st.Hostname != "My TF2 Server" {
		t.Errorf("Hostname = %q", st.Hostname)
	}
	if st.Map != "pl_upward" {
		t.Errorf("Map = %q", st.Map)
	}
	if st.Players != 18 || st.MaxPlayers != 24 {
		t.Errorf("Players = %d/%d, want 18/24", st.Players, st.MaxPlayers)
	}
	if len(st.PlayerList) != 1 {
		t.Fatalf("PlayerList = %d entries, want 1", len(st.PlayerList))
	}
	if st.PlayerList[0].UserID != 2 || st.PlayerList[0].Ping != 45 {
		t.Errorf("player = %+v", st.PlayerList[0])
	}
}

func TestParse_Garbage(t *testing.T) {
	for _, raw := range []string{"", "   \n", "complete nonsense without any fields"} {
		st := Parse(raw)
		if st.Map != "unknown" {
			t.Errorf("Parse(%q).Map = %q, want unknown", raw, st.Map)
		}
		if st.Players != 0 || st.MaxPlayers != 0 || st.Uptime != 0 || st.FPS != 0 {
			t.Errorf("Parse(%q) numerics not zero: %+v", raw, st)
		}
		if st.Timestamp.IsZero() {
			t.Error("Timestamp must be stamped even for garbage")
		}
	}
}

func TestParse_HeadlineCountWithoutPlayerTable(t *testing.T) {
	st := Parse("players : 7 (16 max)\n")
	if st.Players != 7 || st.MaxPlayers != 16 {
		t.Errorf("Players = %d/%d, want 7/16", st.Players, st.MaxPlayers)
	}
	if st.ActivePlayers() != 7 {
		t.Errorf("ActivePlayers = %d, want headline 7", st.ActivePlayers())
	}
}
