// internal/server/room/manager_test.go
package room

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/obrien-tchaleu/ludo-server/internal/server/board"
	"github.com/obrien-tchaleu/ludo-server/internal/shared/constants"
	"github.com/obrien-tchaleu/ludo-server/internal/shared/models"
)

type fakeTimer struct {
	delay   time.Duration
	fn      func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

// fakeScheduler garde les minuteurs ; le test les déclenche à la main
type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{delay: d, fn: f}
	s.timers = append(s.timers, t)
	return t
}

// pending retourne le dernier minuteur actif
func (s *fakeScheduler) pending() *fakeTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.timers) - 1; i >= 0; i-- {
		if !s.timers[i].stopped {
			return s.timers[i]
		}
	}
	return nil
}

func (s *fakeScheduler) fireNext(t *testing.T) time.Duration {
	t.Helper()
	timer := s.pending()
	if timer == nil {
		t.Fatal("no pending timer")
	}
	timer.stopped = true
	timer.fn()
	return timer.delay
}

type fakeNotifier struct {
	mu    sync.Mutex
	lobby []string
	msgs  map[string][]*models.NetworkMessage
}

func newFakeNotifier(lobby ...string) *fakeNotifier {
	return &fakeNotifier{lobby: lobby, msgs: make(map[string][]*models.NetworkMessage)}
}

func (n *fakeNotifier) Send(connID string, msg *models.NetworkMessage) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs[connID] = append(n.msgs[connID], msg)
}

func (n *fakeNotifier) Broadcast(msg *models.NetworkMessage, skip func(string) bool) {
	var to []string
	for _, id := range n.lobby {
		if skip == nil || !skip(id) {
			to = append(to, id)
		}
	}
	for _, id := range to {
		n.Send(id, msg)
	}
}

func (n *fakeNotifier) types(connID string) []constants.MessageType {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []constants.MessageType
	for _, msg := range n.msgs[connID] {
		out = append(out, msg.Type)
	}
	return out
}

func (n *fakeNotifier) count(connID string, msgType constants.MessageType) int {
	c := 0
	for _, t := range n.types(connID) {
		if t == msgType {
			c++
		}
	}
	return c
}

func (n *fakeNotifier) last(connID string) *models.NetworkMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	msgs := n.msgs[connID]
	if len(msgs) == 0 {
		return nil
	}
	return msgs[len(msgs)-1]
}

func (n *fakeNotifier) reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = make(map[string][]*models.NetworkMessage)
}

type statsCall struct {
	userID int64
	won    bool
	moves  int
}

type fakeRecorder struct {
	mu    sync.Mutex
	games []*models.GameRecord
	stats []statsCall
}

func (r *fakeRecorder) SaveGame(_ context.Context, rec *models.GameRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.games = append(r.games, rec)
	return nil
}

func (r *fakeRecorder) UpdatePlayerStats(_ context.Context, userID int64, won bool, moves int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats = append(r.stats, statsCall{userID: userID, won: won, moves: moves})
	return nil
}

// fakeDice renvoie toujours la valeur courante
type fakeDice struct {
	mu    sync.Mutex
	value int
}

func (d *fakeDice) set(v int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.value = v
}

func (d *fakeDice) roll() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.value
}

type fixture struct {
	m        *Manager
	sched    *fakeScheduler
	notifier *fakeNotifier
	recorder *fakeRecorder
	dice     *fakeDice
}

func newFixture(lobby ...string) *fixture {
	f := &fixture{
		sched:    &fakeScheduler{},
		notifier: newFakeNotifier(lobby...),
		recorder: &fakeRecorder{},
		dice:     &fakeDice{value: 3},
	}
	ids := 0
	clock := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	f.m = NewManager(DefaultSettings(), Deps{
		Notifier:  f.notifier,
		Recorder:  f.recorder,
		Scheduler: f.sched,
		NewID: func() string {
			ids++
			return fmt.Sprintf("room-%d", ids)
		},
		Dice: f.dice.roll,
		Now: func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		},
	})
	return f
}

func (f *fixture) create(t *testing.T, connID string, userID int64, req CreateRequest) *models.Room {
	t.Helper()
	req.UserID = userID
	if req.DisplayName == "" {
		req.DisplayName = fmt.Sprintf("user%d", userID)
	}
	if req.Name == "" {
		req.Name = "Partie"
	}
	room, err := f.m.CreateRoom(connID, req)
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	return room
}

func (f *fixture) join(t *testing.T, connID, roomID string, userID int64) *models.Participant {
	t.Helper()
	p, err := f.m.JoinRoom(connID, roomID, userID, fmt.Sprintf("user%d", userID))
	if err != nil {
		t.Fatalf("JoinRoom(%s): %v", connID, err)
	}
	return p
}

// startTwoPlayers démarre une partie entre c1 (rouge) et c2 (bleu)
func (f *fixture) startTwoPlayers(t *testing.T) string {
	t.Helper()
	room := f.create(t, "c1", 1, CreateRequest{})
	f.join(t, "c2", room.ID, 2)
	f.m.SetReady("c1")
	f.m.SetReady("c2")
	return room.ID
}

func (f *fixture) snapshot(t *testing.T, roomID string) *models.Room {
	t.Helper()
	room, ok := f.m.GetRoom(roomID)
	if !ok {
		t.Fatalf("room %s not found", roomID)
	}
	return room.Snapshot()
}

func TestCreateRoomConfirmsToCreator(t *testing.T) {
	f := newFixture()
	room := f.create(t, "c1", 1, CreateRequest{Name: "  Salon  "})

	if room.Name != "Salon" || room.State != constants.StateWaiting || len(room.Participants) != 1 {
		t.Errorf("unexpected room: %+v", room)
	}
	if room.Participants[0].Color != constants.ColorRed {
		t.Errorf("creator color = %s, want red", room.Participants[0].Color)
	}
	if got := f.notifier.types("c1"); !reflect.DeepEqual(got, []constants.MessageType{constants.MsgRoomCreated}) {
		t.Errorf("creator messages = %v", got)
	}
	if b, ok := f.m.BindingOf("c1"); !ok || b.RoomID != room.ID || b.UserID != 1 {
		t.Errorf("binding = %+v, %v", b, ok)
	}

	if _, err := f.m.CreateRoom("c1", CreateRequest{Name: "Again", UserID: 1}); !errors.Is(err, ErrAlreadyInRoom) {
		t.Errorf("second create err = %v, want ErrAlreadyInRoom", err)
	}
	if f.m.GetRoomCount() != 1 {
		t.Errorf("room count = %d, want 1", f.m.GetRoomCount())
	}
}

func TestJoinAssignsDistinctColors(t *testing.T) {
	f := newFixture()
	room := f.create(t, "c1", 1, CreateRequest{})

	want := []constants.PlayerColor{constants.ColorBlue, constants.ColorGreen, constants.ColorYellow}
	for i, color := range want {
		p := f.join(t, fmt.Sprintf("c%d", i+2), room.ID, int64(i+2))
		if p.Color != color {
			t.Errorf("participant %d color = %s, want %s", i+2, p.Color, color)
		}
	}

	if _, err := f.m.JoinRoom("c5", room.ID, 5, "user5"); !errors.Is(err, ErrRoomFull) {
		t.Errorf("fifth join err = %v, want ErrRoomFull", err)
	}
	if f.m.IsBound("c5") {
		t.Error("rejected connection is bound")
	}
	if got := f.notifier.count("c1", constants.MsgPlayerJoined); got != 3 {
		t.Errorf("creator saw %d PLAYER_JOINED, want 3", got)
	}
}

func TestJoinErrors(t *testing.T) {
	f := newFixture()

	if _, err := f.m.JoinRoom("c9", "missing", 9, "user9"); !errors.Is(err, ErrRoomNotFound) {
		t.Errorf("unknown room err = %v, want ErrRoomNotFound", err)
	}

	roomID := f.startTwoPlayers(t)
	if _, err := f.m.JoinRoom("c3", roomID, 3, "user3"); !errors.Is(err, ErrGameAlreadyStarted) {
		t.Errorf("join started game err = %v, want ErrGameAlreadyStarted", err)
	}

	other := f.create(t, "c4", 4, CreateRequest{})
	if _, err := f.m.JoinRoom("c1", other.ID, 1, "user1"); !errors.Is(err, ErrAlreadyInRoom) {
		t.Errorf("bound connection join err = %v, want ErrAlreadyInRoom", err)
	}
}

func TestListRoomsShowsWaitingPublicRooms(t *testing.T) {
	f := newFixture()
	first := f.create(t, "c1", 1, CreateRequest{Name: "Premier"})
	f.create(t, "c2", 2, CreateRequest{Name: "Privé", IsPrivate: true})
	f.create(t, "c3", 3, CreateRequest{Name: "Ordinateur", Scripted: true})
	last := f.create(t, "c4", 4, CreateRequest{Name: "Dernier"})

	list := f.m.ListRooms()
	if len(list) != 2 {
		t.Fatalf("listed %d rooms, want 2: %+v", len(list), list)
	}
	if list[0].ID != first.ID || list[1].ID != last.ID {
		t.Errorf("order = [%s %s], want [%s %s]", list[0].ID, list[1].ID, first.ID, last.ID)
	}
	if list[0].Players != 1 || list[0].MaxPlayers != constants.MaxPlayers {
		t.Errorf("public view = %+v", list[0])
	}
	if again := f.m.ListRooms(); !reflect.DeepEqual(list, again) {
		t.Error("ListRooms is not stable across calls")
	}
}

func TestRoomListIsPushedToLobbyOnly(t *testing.T) {
	f := newFixture("c1", "lobby")
	room := f.create(t, "c1", 1, CreateRequest{})

	if got := f.notifier.count("lobby", constants.MsgRoomListUpdated); got != 1 {
		t.Fatalf("lobby got %d ROOM_LIST_UPDATED, want 1", got)
	}
	if got := f.notifier.count("c1", constants.MsgRoomListUpdated); got != 0 {
		t.Errorf("bound creator got %d ROOM_LIST_UPDATED", got)
	}
	payload := f.notifier.last("lobby").Payload.(models.RoomListPayload)
	if len(payload.Rooms) != 1 || payload.Rooms[0].ID != room.ID {
		t.Errorf("room list = %+v", payload.Rooms)
	}

	f.create(t, "c2", 2, CreateRequest{IsPrivate: true})
	if got := f.notifier.count("lobby", constants.MsgRoomListUpdated); got != 1 {
		t.Errorf("private room triggered a lobby update (%d)", got)
	}
}

func TestReadyStartsGameWhenAllHumansReady(t *testing.T) {
	f := newFixture()
	room := f.create(t, "c1", 1, CreateRequest{})
	f.join(t, "c2", room.ID, 2)

	f.m.SetReady("c1")
	if f.snapshot(t, room.ID).State != constants.StateWaiting {
		t.Fatal("game started with one participant not ready")
	}
	f.m.SetReady("c2")

	snap := f.snapshot(t, room.ID)
	if snap.State != constants.StatePlaying || snap.CurrentPlayer != 0 {
		t.Fatalf("state=%s current=%d", snap.State, snap.CurrentPlayer)
	}
	for _, conn := range []string{"c1", "c2"} {
		types := f.notifier.types(conn)
		n := len(types)
		if n < 2 || types[n-2] != constants.MsgGameStarted || types[n-1] != constants.MsgTurnChanged {
			t.Errorf("%s messages = %v, want GAME_STARTED then TURN_CHANGED", conn, types)
		}
	}
	if timer := f.sched.pending(); timer == nil || timer.delay != constants.DefaultTurnTimeout {
		t.Errorf("turn timeout not scheduled: %+v", timer)
	}
}

func TestOutOfTurnRequestsAreIgnored(t *testing.T) {
	f := newFixture()
	roomID := f.startTwoPlayers(t)
	f.notifier.reset()

	f.m.RollDice("c2", roomID)
	f.m.MovePiece("c2", roomID, 0)
	f.m.RollDice("c1", "another-room")
	f.m.RollDice("stranger", roomID)

	if got := f.notifier.types("c1"); len(got) != 0 {
		t.Errorf("ignored requests produced messages: %v", got)
	}
	if snap := f.snapshot(t, roomID); snap.LastRoll != 0 || snap.CurrentPlayer != 0 {
		t.Errorf("state changed: roll=%d current=%d", snap.LastRoll, snap.CurrentPlayer)
	}
}

func TestNoMoveAdvancesAfterDelay(t *testing.T) {
	f := newFixture()
	roomID := f.startTwoPlayers(t)
	f.notifier.reset()

	f.dice.set(3)
	f.m.RollDice("c1", roomID)

	if got := f.notifier.types("c2"); !reflect.DeepEqual(got, []constants.MessageType{constants.MsgDiceRolled}) {
		t.Fatalf("c2 messages = %v", got)
	}
	if delay := f.sched.fireNext(t); delay != constants.DefaultNoMoveDelay {
		t.Errorf("advance delay = %v, want %v", delay, constants.DefaultNoMoveDelay)
	}

	changed := f.notifier.last("c1").Payload.(models.TurnChangedPayload)
	if changed.PlayerIndex != 1 {
		t.Errorf("turn passed to %d, want 1", changed.PlayerIndex)
	}
}

func TestRollMoveBroadcastOrder(t *testing.T) {
	f := newFixture()
	roomID := f.startTwoPlayers(t)
	f.notifier.reset()

	f.dice.set(6)
	f.m.RollDice("c1", roomID)
	f.m.MovePiece("c1", roomID, 2)

	want := []constants.MessageType{constants.MsgDiceRolled, constants.MsgPieceMoved}
	for _, conn := range []string{"c1", "c2"} {
		if got := f.notifier.types(conn); !reflect.DeepEqual(got, want) {
			t.Errorf("%s messages = %v, want %v", conn, got, want)
		}
	}
	snap := f.snapshot(t, roomID)
	if !snap.Participants[0].Pieces[2].OnTrack() || snap.CurrentPlayer != 0 {
		t.Errorf("after a 6: piece=%+v current=%d", snap.Participants[0].Pieces[2], snap.CurrentPlayer)
	}
}

func TestScriptedRoomPlaysOnTimers(t *testing.T) {
	f := newFixture()
	room := f.create(t, "c1", 1, CreateRequest{Scripted: true})

	if room.State != constants.StatePlaying || len(room.Participants) != 2 {
		t.Fatalf("scripted room not started: %+v", room)
	}
	if room.Participants[1].ID != constants.ScriptedUserID || !room.Participants[1].IsScripted {
		t.Errorf("second seat = %+v", room.Participants[1])
	}
	want := []constants.MessageType{constants.MsgRoomCreated, constants.MsgGameStarted, constants.MsgTurnChanged}
	if got := f.notifier.types("c1"); !reflect.DeepEqual(got, want) {
		t.Fatalf("creator messages = %v, want %v", got, want)
	}

	f.notifier.reset()
	f.dice.set(3)
	f.m.RollDice("c1", room.ID)
	f.sched.fireNext(t) // avance : tour de l'ordinateur
	if delay := f.sched.fireNext(t); delay != constants.DefaultAIRollDelay {
		t.Errorf("scripted roll delay = %v", delay)
	}
	f.sched.fireNext(t) // aucun pion jouable : retour à l'humain

	want = []constants.MessageType{
		constants.MsgDiceRolled,
		constants.MsgTurnChanged,
		constants.MsgDiceRolled,
		constants.MsgTurnChanged,
	}
	if got := f.notifier.types("c1"); !reflect.DeepEqual(got, want) {
		t.Fatalf("messages = %v, want %v", got, want)
	}
	rolled := f.notifier.msgs["c1"][2].Payload.(models.DiceRolledPayload)
	if rolled.Player != constants.ScriptedUsername {
		t.Errorf("second roll by %q, want the computer", rolled.Player)
	}
	if snap := f.snapshot(t, room.ID); snap.CurrentPlayer != 0 {
		t.Errorf("current = %d, want the human seat", snap.CurrentPlayer)
	}
}

func TestScriptedMoveUsesSix(t *testing.T) {
	f := newFixture()
	room := f.create(t, "c1", 1, CreateRequest{Scripted: true})

	f.dice.set(3)
	f.m.RollDice("c1", room.ID)
	f.sched.fireNext(t)

	f.dice.set(6)
	f.sched.fireNext(t) // lancer
	f.sched.fireNext(t) // déplacement

	snap := f.snapshot(t, room.ID)
	computer := snap.Participants[1]
	if computer.MovesMade != 1 {
		t.Fatalf("computer moves = %d, want 1", computer.MovesMade)
	}
	onTrack := 0
	for _, p := range computer.Pieces {
		if p.OnTrack() && p.Position == board.EntryOffset(constants.ColorBlue) {
			onTrack++
		}
	}
	if onTrack != 1 {
		t.Errorf("computer pieces on its entry cell = %d, want 1", onTrack)
	}
	if snap.CurrentPlayer != 1 || snap.Turn != constants.TurnAwaitingRoll {
		t.Errorf("after a scripted 6: current=%d turn=%s", snap.CurrentPlayer, snap.Turn)
	}
}

func TestStaleTimerIsIgnored(t *testing.T) {
	f := newFixture()
	roomID := f.startTwoPlayers(t)

	stale := f.sched.pending()
	if stale == nil {
		t.Fatal("no timer after start")
	}

	f.dice.set(6)
	f.m.RollDice("c1", roomID)
	f.m.MovePiece("c1", roomID, 0)
	f.notifier.reset()

	stale.fn()

	if got := f.notifier.types("c1"); len(got) != 0 {
		t.Errorf("stale timer produced %v", got)
	}
	if snap := f.snapshot(t, roomID); snap.CurrentPlayer != 0 || snap.Turn != constants.TurnAwaitingRoll {
		t.Errorf("stale timer changed the turn: current=%d turn=%s", snap.CurrentPlayer, snap.Turn)
	}
}

func TestDisconnectWhileWaiting(t *testing.T) {
	f := newFixture()
	room := f.create(t, "c1", 1, CreateRequest{})
	f.join(t, "c2", room.ID, 2)

	f.m.Disconnect("c2")
	snap := f.snapshot(t, room.ID)
	if len(snap.Participants) != 1 {
		t.Fatalf("participants = %d, want 1", len(snap.Participants))
	}
	if got := f.notifier.count("c1", constants.MsgPlayerLeft); got != 1 {
		t.Errorf("creator got %d PLAYER_LEFT", got)
	}

	p := f.join(t, "c3", room.ID, 3)
	if p.Color != constants.ColorBlue {
		t.Errorf("freed color not reused: %s", p.Color)
	}

	f.m.Disconnect("c1")
	f.m.Disconnect("c3")
	if _, ok := f.m.GetRoom(room.ID); ok || f.m.GetRoomCount() != 0 {
		t.Error("empty room was not deleted")
	}
	f.m.Disconnect("c3")
}

func TestDisconnectDuringGameKeepsSeat(t *testing.T) {
	f := newFixture()
	roomID := f.startTwoPlayers(t)

	f.m.Disconnect("c2")
	snap := f.snapshot(t, roomID)
	if len(snap.Participants) != 2 || snap.Participants[1].IsConnected {
		t.Fatalf("seat not kept disconnected: %+v", snap.Participants[1])
	}

	f.dice.set(2)
	f.m.RollDice("c1", roomID)
	f.sched.fireNext(t) // avance vers le siège déconnecté

	if delay := f.sched.fireNext(t); delay != constants.DefaultNoMoveDelay {
		t.Errorf("disconnected seat delay = %v, want %v", delay, constants.DefaultNoMoveDelay)
	}
	if snap := f.snapshot(t, roomID); snap.CurrentPlayer != 0 {
		t.Errorf("current = %d, want the connected seat", snap.CurrentPlayer)
	}
}

func TestLeaveRoom(t *testing.T) {
	f := newFixture()
	if err := f.m.LeaveRoom("c1"); !errors.Is(err, ErrNotInRoom) {
		t.Errorf("leave unbound err = %v", err)
	}
	f.create(t, "c1", 1, CreateRequest{})
	if err := f.m.LeaveRoom("c1"); err != nil {
		t.Fatalf("LeaveRoom: %v", err)
	}
	if f.m.IsBound("c1") || f.m.GetRoomCount() != 0 {
		t.Error("connection still bound after leaving")
	}
}

func TestWinIsRecordedForHumans(t *testing.T) {
	f := newFixture()
	created := f.create(t, "c1", 1, CreateRequest{Scripted: true})

	r, _ := f.m.GetRoom(created.ID)
	r.mu.Lock()
	red := r.Model.Participants[0]
	for _, p := range red.Pieces[:3] {
		board.Apply(p, board.Destination{Zone: constants.ZoneFinished, Position: 5, Progress: board.FinishProgress})
	}
	board.Apply(red.Pieces[3], board.Destination{Zone: constants.ZoneLane, Position: 2, Progress: board.FinishProgress - 3})
	r.mu.Unlock()

	f.dice.set(3)
	f.m.RollDice("c1", created.ID)
	f.m.MovePiece("c1", created.ID, 3)
	f.m.Wait()

	won := f.notifier.last("c1")
	if won == nil || won.Type != constants.MsgGameWon {
		t.Fatalf("last message = %+v, want GAME_WON", won)
	}
	if payload := won.Payload.(models.GameWonPayload); payload.WinnerID != 1 {
		t.Errorf("winner = %d", payload.WinnerID)
	}

	f.recorder.mu.Lock()
	defer f.recorder.mu.Unlock()
	if len(f.recorder.games) != 1 {
		t.Fatalf("saved %d games, want 1", len(f.recorder.games))
	}
	rec := f.recorder.games[0]
	if rec.WinnerID != 1 || len(rec.Participants) != 2 || rec.State != constants.StateFinished {
		t.Errorf("record = %+v", rec)
	}
	want := []statsCall{{userID: 1, won: true, moves: 1}}
	if !reflect.DeepEqual(f.recorder.stats, want) {
		t.Errorf("stats = %+v, want %+v", f.recorder.stats, want)
	}
	if f.sched.pending() != nil {
		t.Error("timer still pending after the game ended")
	}
}

func TestInviteReachesIdentifiedConnections(t *testing.T) {
	f := newFixture()
	room := f.create(t, "c1", 1, CreateRequest{Name: "Soirée"})
	f.m.Identify("c9", 42)
	f.m.Identify("c10", 42)

	n, err := f.m.Invite("c1", room.ID, 42)
	if err != nil || n != 2 {
		t.Fatalf("Invite = %d, %v; want 2 deliveries", n, err)
	}
	inv := f.notifier.last("c9").Payload.(models.InvitationPayload)
	if inv.RoomID != room.ID || inv.RoomName != "Soirée" || inv.InviterName != "user1" {
		t.Errorf("invitation = %+v", inv)
	}

	f.m.Forget("c10")
	if n, _ := f.m.Invite("c1", room.ID, 42); n != 1 {
		t.Errorf("after Forget delivered %d, want 1", n)
	}
	if _, err := f.m.Invite("c9", room.ID, 1); !errors.Is(err, ErrNotInRoom) {
		t.Errorf("invite from outside err = %v, want ErrNotInRoom", err)
	}
}

func TestCloseStopsEverything(t *testing.T) {
	f := newFixture()
	f.startTwoPlayers(t)
	timer := f.sched.pending()

	f.m.Close()

	if f.m.GetRoomCount() != 0 || f.m.IsBound("c1") {
		t.Error("rooms or bindings survived Close")
	}
	if timer == nil || !timer.stopped {
		t.Error("pending timer not stopped")
	}
}

func TestLastLaggardLeavingStartsGame(t *testing.T) {
	f := newFixture("lobby")
	room := f.create(t, "c1", 1, CreateRequest{})
	f.join(t, "c2", room.ID, 2)
	f.join(t, "c3", room.ID, 3)

	f.m.SetReady("c1")
	f.m.SetReady("c2")
	if f.snapshot(t, room.ID).State != constants.StateWaiting {
		t.Fatal("game started while c3 was not ready")
	}
	f.notifier.reset()

	f.m.Disconnect("c3")

	snap := f.snapshot(t, room.ID)
	if snap.State != constants.StatePlaying || len(snap.Participants) != 2 {
		t.Fatalf("state=%s participants=%d, want playing with 2 seats", snap.State, len(snap.Participants))
	}
	want := []constants.MessageType{constants.MsgPlayerLeft, constants.MsgGameStarted, constants.MsgTurnChanged}
	for _, conn := range []string{"c1", "c2"} {
		if got := f.notifier.types(conn); !reflect.DeepEqual(got, want) {
			t.Errorf("%s messages = %v, want %v", conn, got, want)
		}
	}
	if f.sched.pending() == nil {
		t.Error("no turn timer after the game started")
	}

	lobby := f.notifier.last("lobby")
	if lobby == nil || lobby.Type != constants.MsgRoomListUpdated {
		t.Fatalf("lobby last message = %+v", lobby)
	}
	if rooms := lobby.Payload.(models.RoomListPayload).Rooms; len(rooms) != 0 {
		t.Errorf("started room still listed: %+v", rooms)
	}
}

func TestLeavingWithoutEnoughSeatsKeepsWaiting(t *testing.T) {
	f := newFixture()
	room := f.create(t, "c1", 1, CreateRequest{})
	f.join(t, "c2", room.ID, 2)

	f.m.SetReady("c1")
	f.m.Disconnect("c2")

	if snap := f.snapshot(t, room.ID); snap.State != constants.StateWaiting {
		t.Errorf("state = %s, want waiting with a single seat", snap.State)
	}
}

func TestFourSeatDisconnect(t *testing.T) {
	tests := []struct {
		name       string
		start      bool
		wantColors []constants.PlayerColor
		wantSeats  int
	}{
		{
			name:       "waiting",
			wantColors: []constants.PlayerColor{constants.ColorBlue, constants.ColorGreen, constants.ColorYellow},
			wantSeats:  3,
		},
		{
			name:       "playing",
			start:      true,
			wantColors: []constants.PlayerColor{constants.ColorRed, constants.ColorBlue, constants.ColorGreen, constants.ColorYellow},
			wantSeats:  4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			room := f.create(t, "c1", 1, CreateRequest{})
			for i := 2; i <= 4; i++ {
				f.join(t, fmt.Sprintf("c%d", i), room.ID, int64(i))
			}
			if tt.start {
				for i := 1; i <= 4; i++ {
					f.m.SetReady(fmt.Sprintf("c%d", i))
				}
				if f.snapshot(t, room.ID).State != constants.StatePlaying {
					t.Fatal("four ready seats did not start the game")
				}
			}
			f.notifier.reset()

			f.m.Disconnect("c1")

			left := f.notifier.last("c2")
			if left == nil || left.Type != constants.MsgPlayerLeft {
				t.Fatalf("c2 last message = %+v, want PLAYER_LEFT", left)
			}
			seen := left.Payload.(models.RoomPayload).Room
			if len(seen.Participants) != tt.wantSeats {
				t.Fatalf("PLAYER_LEFT roster has %d seats, want %d", len(seen.Participants), tt.wantSeats)
			}
			for i, color := range tt.wantColors {
				if seen.Participants[i].Color != color {
					t.Errorf("seat %d color = %s, want %s", i, seen.Participants[i].Color, color)
				}
			}
			if tt.start && seen.Participants[0].IsConnected {
				t.Error("departed seat still marked connected")
			}
			if !tt.start && seen.CurrentPlayer >= len(seen.Participants) {
				t.Errorf("current player %d out of range", seen.CurrentPlayer)
			}
			if got := f.notifier.count("c1", constants.MsgPlayerLeft); got != 0 {
				t.Errorf("departed connection got %d PLAYER_LEFT", got)
			}

			for i := 2; i <= 4; i++ {
				f.m.Disconnect(fmt.Sprintf("c%d", i))
			}
			if _, ok := f.m.GetRoom(room.ID); ok {
				t.Error("room survived its last connection")
			}
		})
	}
}

// reentrantNotifier interroge le gestionnaire à chaque envoi
type reentrantNotifier struct {
	*fakeNotifier
	m *Manager
}

func (n *reentrantNotifier) Send(connID string, msg *models.NetworkMessage) {
	n.m.GetRoomCount()
	n.m.IsBound(connID)
	n.fakeNotifier.Send(connID, msg)
}

func TestRoomCallbacksRunOutsideManagerLock(t *testing.T) {
	n := &reentrantNotifier{fakeNotifier: newFakeNotifier()}
	n.m = NewManager(DefaultSettings(), Deps{Notifier: n, Scheduler: &fakeScheduler{}})
	defer n.m.Close()

	done := make(chan error, 1)
	go func() {
		created, err := n.m.CreateRoom("c1", CreateRequest{Name: "Partie", UserID: 1, DisplayName: "alice"})
		if err != nil {
			done <- err
			return
		}
		_, err = n.m.JoinRoom("c2", created.ID, 2, "bob")
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("create/join: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("create/join blocked while notifying")
	}
	if got := n.count("c1", constants.MsgPlayerJoined); got != 1 {
		t.Errorf("creator got %d PLAYER_JOINED", got)
	}
}

func TestFailedJoinReleasesBinding(t *testing.T) {
	f := newFixture()
	roomID := f.startTwoPlayers(t)

	if _, err := f.m.JoinRoom("c3", roomID, 3, "user3"); !errors.Is(err, ErrGameAlreadyStarted) {
		t.Fatalf("join err = %v, want ErrGameAlreadyStarted", err)
	}
	if f.m.IsBound("c3") {
		t.Fatal("failed join left a binding")
	}
	if n, _ := f.m.Invite("c1", roomID, 3); n != 0 {
		t.Errorf("failed join registered an identity (%d invitations)", n)
	}

	created := f.create(t, "c3", 3, CreateRequest{})
	if b, ok := f.m.BindingOf("c3"); !ok || b.RoomID != created.ID {
		t.Errorf("binding after create = %+v, %v", b, ok)
	}
}

func TestRecordAfterCloseIsSkipped(t *testing.T) {
	f := newFixture()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			f.m.record(&models.GameRecord{RoomID: fmt.Sprintf("room-%d", i)})
		}(i)
	}
	f.m.Close()

	f.recorder.mu.Lock()
	saved := len(f.recorder.games)
	f.recorder.mu.Unlock()

	wg.Wait()
	f.m.Wait()
	f.m.record(&models.GameRecord{RoomID: "late"})
	f.m.Wait()

	f.recorder.mu.Lock()
	defer f.recorder.mu.Unlock()
	if len(f.recorder.games) != saved {
		t.Errorf("saved %d games after Close returned, had %d", len(f.recorder.games), saved)
	}
	for _, rec := range f.recorder.games {
		if rec.RoomID == "late" {
			t.Error("record started after Close was saved")
		}
	}
}
