package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/udisondev/rconherd/internal/model"
	"github.com/udisondev/rconherd/internal/rcon"
)

// fakeRcon is a scriptable RconService.
type fakeRcon struct {
	mu             sync.Mutex
	connected      map[int]bool
	connectErr     map[int]error
	execErr        map[int]error
	reply          map[int]string
	executed       []string
	perServer      map[int][]string
	connectDelay   time.Duration
	connectStarted atomic.Int32
}

func newFakeRcon() *fakeRcon {
	return &fakeRcon{
		connected:  make(map[int]bool),
		connectErr: make(map[int]error),
		execErr:    make(map[int]error),
		reply:      make(map[int]string),
		perServer:  make(map[int][]string),
	}
}

func (f *fakeRcon) Connect(_ context.Context, serverID int) error {
	f.connectStarted.Add(1)
	f.mu.Lock()
	delay := f.connectDelay
	err := f.connectErr[serverID]
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return err
	}

	f.mu.Lock()
	f.connected[serverID] = true
	f.mu.Unlock()
	return nil
}

func (f *fakeRcon) Execute(_ context.Context, serverID int, command string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.execErr[serverID]; err != nil {
		return "", err
	}
	f.executed = append(f.executed, command)
	f.perServer[serverID] = append(f.perServer[serverID], command)
	return f.reply[serverID], nil
}

func (f *fakeRcon) IsConnected(serverID int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected[serverID]
}

func (f *fakeRcon) Disconnect(_ context.Context, serverID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.connected, serverID)
	return nil
}

func (f *fakeRcon) sentTo(serverID int) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.perServer[serverID]))
	copy(out, f.perServer[serverID])
	return out
}

// fakeStore serves a fixed server list.
type fakeStore struct {
	mu      sync.Mutex
	servers []model.ServerInfo
	noCreds map[int]bool
	listErr error
}

func (f *fakeStore) FindActiveServersWithRcon(context.Context) ([]model.ServerInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]model.ServerInfo, len(f.servers))
	copy(out, f.servers)
	return out, nil
}

func (f *fakeStore) FindByID(_ context.Context, serverID int) (*model.ServerInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.servers {
		if s.ServerID == serverID {
			cp := s
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) HasRconCredentials(_ context.Context, serverID int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.noCreds[serverID], nil
}

// fakeRetry is a RetryGate with simple allow/deny scripting.
type fakeRetry struct {
	mu       sync.Mutex
	denied   map[int]bool
	failures map[int]int
	resets   map[int]int
}

func newFakeRetry() *fakeRetry {
	return &fakeRetry{
		denied:   make(map[int]bool),
		failures: make(map[int]int),
		resets:   make(map[int]int),
	}
}

func (f *fakeRetry) ShouldRetry(serverID int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.denied[serverID]
}

func (f *fakeRetry) RecordFailure(serverID int) rcon.FailureState {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[serverID]++
	return rcon.FailureState{
		ServerID:            serverID,
		ConsecutiveFailures: f.failures[serverID],
		Status:              rcon.StatusBackingOff,
	}
}

func (f *fakeRetry) ResetFailureState(serverID int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets[serverID]++
	delete(f.failures, serverID)
}

func (f *fakeRetry) GetFailureState(serverID int) rcon.FailureState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return rcon.FailureState{ServerID: serverID, ConsecutiveFailures: f.failures[serverID]}
}

// fakeSink records status captures.
type fakeSink struct {
	mu       sync.Mutex
	statuses map[int]model.ServerStatus
	loads    []model.ServerLoad
	err      error
}

func newFakeSink() *fakeSink {
	return &fakeSink{statuses: make(map[int]model.ServerStatus)}
}

func (f *fakeSink) UpdateServerStatus(_ context.Context, serverID int, st model.ServerStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.statuses[serverID] = st
	return nil
}

func (f *fakeSink) InsertLoad(_ context.Context, load model.ServerLoad) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.loads = append(f.loads, load)
	return nil
}

// fakeSyncer counts session sync calls.
type fakeSyncer struct {
	mu    sync.Mutex
	calls map[int][]model.PlayerEntry
}

func newFakeSyncer() *fakeSyncer {
	return &fakeSyncer{calls: make(map[int][]model.PlayerEntry)}
}

func (f *fakeSyncer) SynchronizeServerSessions(_ context.Context, serverID int, players []model.PlayerEntry) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[serverID] = players
	return len(players)
}

// fakeExecutor is a scriptable schedule executor.
type fakeExecutor struct {
	commandType string
	valid       bool
	failFor     map[int]error
	failTimes   map[int]int

	mu       sync.Mutex
	attempts map[int]int
	inFlight map[int]int32
	maxSeen  map[int]int32
	block    time.Duration
	calls    atomic.Int32
}

func newFakeExecutor(commandType string) *fakeExecutor {
	return &fakeExecutor{
		commandType: commandType,
		valid:       true,
		failFor:     make(map[int]error),
		failTimes:   make(map[int]int),
		attempts:    make(map[int]int),
		inFlight:    make(map[int]int32),
		maxSeen:     make(map[int]int32),
	}
}

func (f *fakeExecutor) Type() string { return f.commandType }

func (f *fakeExecutor) Validate(model.ScheduledCommand) bool { return f.valid }

func (f *fakeExecutor) Execute(_ context.Context, ec Context) (Outcome, error) {
	serverID := ec.Server.ServerID
	f.calls.Add(1)

	f.mu.Lock()
	f.attempts[serverID]++
	attempt := f.attempts[serverID]
	f.inFlight[serverID]++
	if f.inFlight[serverID] > f.maxSeen[serverID] {
		f.maxSeen[serverID] = f.inFlight[serverID]
	}
	block := f.block
	f.mu.Unlock()

	if block > 0 {
		time.Sleep(block)
	}

	f.mu.Lock()
	f.inFlight[serverID]--
	f.mu.Unlock()

	if err := f.failFor[serverID]; err != nil {
		if n := f.failTimes[serverID]; n == 0 || attempt <= n {
			return Outcome{ServersProcessed: 1}, err
		}
	}
	return Outcome{ServersProcessed: 1, CommandsSent: 1}, nil
}

var errExecBoom = errors.New("boom")
