package signal

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/dkeye/Beacon/internal/core"
	"github.com/dkeye/Beacon/internal/domain"
)

type stubRouter struct{}

func (stubRouter) RTPCapabilities() core.RTPCapabilities {
	return core.RTPCapabilities{HeaderExtensions: []string{"urn:ietf:params:rtp-hdrext:sdes:mid"}}
}
func (stubRouter) Close() {}

type stubProvider struct{}

func (stubProvider) NewRouter() (core.Router, error) { return stubRouter{}, nil }

type stubSession struct {
	failConnect bool
}

func (s *stubSession) InitData() (json.RawMessage, error) {
	return json.RawMessage(`{"ice_candidates":[]}`), nil
}

func (s *stubSession) Connect(data json.RawMessage) error {
	if s.failConnect {
		return errors.New("dtls refused")
	}
	return nil
}

func (s *stubSession) Close() {}

type stubFactory struct {
	failConnect bool
}

func (f stubFactory) Initialize(router core.Router, initData json.RawMessage) (core.Session, error) {
	return &stubSession{failConnect: f.failConnect}, nil
}

type harness struct {
	rooms *core.RoomManager
	srv   *httptest.Server
}

func newHarness(t *testing.T, factory core.TransportFactory) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	rooms := core.NewRoomManager(stubProvider{})
	ctl := NewController(rooms, factory, Options{})

	r := gin.New()
	r.GET("/ws", ctl.HandleSignal)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &harness{rooms: rooms, srv: srv}
}

func (h *harness) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// newRoomWithToken creates a room and issues one join token.
func (h *harness) newRoomWithToken(t *testing.T, username string) (*core.Room, string) {
	t.Helper()
	room, err := h.rooms.Create("test")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	token, err := room.Users().Issue(username)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return room, token
}

func sendRaw(t *testing.T, conn *websocket.Conn, payload string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal %q: %v", data, err)
	}
	return m
}

func expectClose(t *testing.T, conn *websocket.Conn, code int) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		var ce *websocket.CloseError
		if !errors.As(err, &ce) {
			t.Fatalf("expected close frame, got %v", err)
		}
		if ce.Code != code {
			t.Fatalf("expected close code %d, got %d (%s)", code, ce.Code, ce.Text)
		}
		return
	}
}

// waitSubscribers blocks until n event-loop subscriptions are open on
// the room, so a broadcast published next is guaranteed to reach them.
func waitSubscribers(t *testing.T, room *core.Room, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for room.SubscriberCount() < n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d subscribers, have %d", n, room.SubscriberCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// join runs the full handshake and returns the active connection plus
// the authenticated user id.
func (h *harness) join(t *testing.T, room *core.Room, token string) (*websocket.Conn, domain.UserID) {
	t.Helper()
	conn := h.dial(t)
	sendRaw(t, conn, fmt.Sprintf(`{"id":"h1","type":"authenticate","room_id":"%s","token":"%s"}`, room.ID(), token))
	reply := readJSON(t, conn)
	if reply["type"] != "authenticate" {
		t.Fatalf("expected authenticate reply, got %v", reply)
	}
	userID, _ := reply["user_id"].(string)
	if userID == "" {
		t.Fatalf("authenticate reply missing user_id: %v", reply)
	}
	sendRaw(t, conn, `{"id":"h2","type":"initializeTransports","init_data":{}}`)
	reply = readJSON(t, conn)
	if reply["type"] != "initializeTransports" {
		t.Fatalf("expected initializeTransports reply, got %v", reply)
	}
	return conn, domain.UserID(userID)
}

func TestMalformedPayloadClosesInvalidData(t *testing.T) {
	h := newHarness(t, stubFactory{})
	conn := h.dial(t)
	sendRaw(t, conn, `{"type":`)
	expectClose(t, conn, 1003)
}

func TestUnknownCommandTagClosesInvalidData(t *testing.T) {
	h := newHarness(t, stubFactory{})
	conn := h.dial(t)
	sendRaw(t, conn, `{"type":"selfDestruct"}`)
	expectClose(t, conn, 1003)
}

func TestCommandBeforeAuthClosesInvalidState(t *testing.T) {
	h := newHarness(t, stubFactory{})
	conn := h.dial(t)
	sendRaw(t, conn, `{"type":"roomInfo"}`)
	expectClose(t, conn, 1002)
}

func TestCommandBeforeTransportInitClosesInvalidState(t *testing.T) {
	h := newHarness(t, stubFactory{})
	room, token := h.newRoomWithToken(t, "alice")

	conn := h.dial(t)
	sendRaw(t, conn, fmt.Sprintf(`{"type":"authenticate","room_id":"%s","token":"%s"}`, room.ID(), token))
	readJSON(t, conn) // authenticate reply
	sendRaw(t, conn, `{"type":"roomInfo"}`)
	expectClose(t, conn, 1002)
}

func TestAuthenticateUnknownRoomUnauthorized(t *testing.T) {
	h := newHarness(t, stubFactory{})
	room, _ := h.newRoomWithToken(t, "alice")

	conn := h.dial(t)
	sendRaw(t, conn, `{"type":"authenticate","room_id":"no-such-room","token":"whatever"}`)
	expectClose(t, conn, 4001)

	if room.Users().Count() != 0 {
		t.Fatalf("failed authenticate must not add a member")
	}
}

func TestAuthenticateBadTokenUnauthorized(t *testing.T) {
	h := newHarness(t, stubFactory{})
	room, _ := h.newRoomWithToken(t, "alice")

	conn := h.dial(t)
	sendRaw(t, conn, fmt.Sprintf(`{"type":"authenticate","room_id":"%s","token":"bogus"}`, room.ID()))
	expectClose(t, conn, 4001)

	if room.Users().Count() != 0 {
		t.Fatalf("failed authenticate must not add a member")
	}
}

func TestHandshakeCommandsInActiveStateClose(t *testing.T) {
	h := newHarness(t, stubFactory{})
	room, token := h.newRoomWithToken(t, "alice")
	conn, _ := h.join(t, room, token)

	sendRaw(t, conn, fmt.Sprintf(`{"type":"authenticate","room_id":"%s","token":"again"}`, room.ID()))
	expectClose(t, conn, 1002)
}

func TestDisconnectAfterAuthReleasesMembership(t *testing.T) {
	h := newHarness(t, stubFactory{})
	room, token := h.newRoomWithToken(t, "alice")

	conn := h.dial(t)
	sendRaw(t, conn, fmt.Sprintf(`{"type":"authenticate","room_id":"%s","token":"%s"}`, room.ID(), token))
	readJSON(t, conn)
	if room.Users().Count() != 1 {
		t.Fatalf("expected one member after authenticate")
	}

	conn.Close()
	deadline := time.Now().Add(2 * time.Second)
	for room.Users().Count() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("membership was not released after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestConnectTransportFailureIsRecoverable(t *testing.T) {
	h := newHarness(t, stubFactory{failConnect: true})
	room, token := h.newRoomWithToken(t, "alice")
	conn, _ := h.join(t, room, token)

	sendRaw(t, conn, `{"id":"c1","type":"connectTransport","connect_data":{}}`)
	errMsg := readJSON(t, conn)
	if errMsg["error"] != errTransportConnectionFailure {
		t.Fatalf("expected %q error, got %v", errTransportConnectionFailure, errMsg)
	}
	if errMsg["id"] != "c1" || errMsg["type"] != "connectTransport" {
		t.Fatalf("error envelope must carry the command id and type: %v", errMsg)
	}

	// The connection stays open and still serves commands.
	sendRaw(t, conn, `{"id":"c2","type":"roomInfo"}`)
	reply := readJSON(t, conn)
	if reply["type"] != "roomInfo" || reply["id"] != "c2" {
		t.Fatalf("expected roomInfo reply after recoverable error, got %v", reply)
	}
}

func TestConnectTransportSuccessReplies(t *testing.T) {
	h := newHarness(t, stubFactory{})
	room, token := h.newRoomWithToken(t, "alice")
	conn, _ := h.join(t, room, token)

	sendRaw(t, conn, `{"id":"c1","type":"connectTransport","connect_data":{}}`)
	reply := readJSON(t, conn)
	if reply["type"] != "connectTransport" || reply["id"] != "c1" {
		t.Fatalf("expected connectTransport reply, got %v", reply)
	}
}

func TestRoomInfoSnapshot(t *testing.T) {
	h := newHarness(t, stubFactory{})
	room, token := h.newRoomWithToken(t, "alice")
	conn, aliceID := h.join(t, room, token)
	waitSubscribers(t, room, 1)

	bob := registerDirect(t, room, "bob")
	ev := readJSON(t, conn) // bob's join broadcast
	if ev["type"] != "userJoined" || ev["id"] != string(bob.ID) {
		t.Fatalf("expected userJoined for bob, got %v", ev)
	}

	sendRaw(t, conn, `{"id":"r1","type":"roomInfo"}`)
	reply := readJSON(t, conn)
	if reply["id"] != "r1" || reply["type"] != "roomInfo" {
		t.Fatalf("unexpected reply envelope: %v", reply)
	}
	if reply["room_id"] != string(room.ID()) {
		t.Fatalf("expected room id %s, got %v", room.ID(), reply["room_id"])
	}
	if allowed, ok := reply["video_allowed"].(bool); !ok || allowed {
		t.Fatalf("video_allowed must be reported false, got %v", reply["video_allowed"])
	}
	users, ok := reply["users"].(map[string]any)
	if !ok {
		t.Fatalf("expected users map, got %v", reply["users"])
	}
	if len(users) != 2 {
		t.Fatalf("expected two users, got %v", users)
	}
	if _, ok := users[string(aliceID)]; !ok {
		t.Fatalf("users map missing %s: %v", aliceID, users)
	}
	if _, ok := users[string(bob.ID)]; !ok {
		t.Fatalf("users map missing %s: %v", bob.ID, users)
	}
}

func TestKickClosesWithKicked(t *testing.T) {
	h := newHarness(t, stubFactory{})
	room, token := h.newRoomWithToken(t, "alice")
	conn, aliceID := h.join(t, room, token)
	waitSubscribers(t, room, 1)

	room.Users().Remove(aliceID)
	expectClose(t, conn, 4003)
}

func TestRoomDeleteClosesAllConnections(t *testing.T) {
	h := newHarness(t, stubFactory{})
	room, tokenA := h.newRoomWithToken(t, "alice")
	tokenB, err := room.Users().Issue("bob")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	connA, _ := h.join(t, room, tokenA)
	waitSubscribers(t, room, 1)
	connB, _ := h.join(t, room, tokenB)
	waitSubscribers(t, room, 2)
	readJSON(t, connA) // bob's join broadcast

	h.rooms.Delete(room.ID())
	expectClose(t, connA, 4004)
	expectClose(t, connB, 4004)
}

func TestOwnEventsAreSuppressed(t *testing.T) {
	h := newHarness(t, stubFactory{})
	room, tokenA := h.newRoomWithToken(t, "alice")
	tokenB, err := room.Users().Issue("bob")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	connA, aliceID := h.join(t, room, tokenA)
	waitSubscribers(t, room, 1)
	connB, bobID := h.join(t, room, tokenB)
	waitSubscribers(t, room, 2)

	// Alice sees bob join; bob must not see his own join.
	ev := readJSON(t, connA)
	if ev["type"] != "userJoined" || ev["id"] != string(bobID) {
		t.Fatalf("expected userJoined for bob, got %v", ev)
	}

	if err := room.Users().StartProduce(bobID, domain.ProduceAudio); err != nil {
		t.Fatalf("start produce: %v", err)
	}
	if err := room.Users().StartProduce(aliceID, domain.ProduceVideo); err != nil {
		t.Fatalf("start produce: %v", err)
	}

	ev = readJSON(t, connA)
	if ev["type"] != "userStartProduce" || ev["id"] != string(bobID) || ev["produce_type"] != "audio" {
		t.Fatalf("expected bob's userStartProduce on alice's stream, got %v", ev)
	}

	// Bob's first event after joining must be alice's produce, not his
	// own: his own broadcast was suppressed.
	ev = readJSON(t, connB)
	if ev["type"] != "userStartProduce" || ev["id"] != string(aliceID) || ev["produce_type"] != "video" {
		t.Fatalf("expected alice's userStartProduce on bob's stream, got %v", ev)
	}
}

func TestUserLeftIsForwardedToOthers(t *testing.T) {
	h := newHarness(t, stubFactory{})
	room, tokenA := h.newRoomWithToken(t, "alice")

	connA, _ := h.join(t, room, tokenA)
	waitSubscribers(t, room, 1)
	bob := registerDirect(t, room, "bob")
	readJSON(t, connA) // bob's join broadcast

	room.Users().Remove(bob.ID)
	ev := readJSON(t, connA)
	if ev["type"] != "userLeft" || ev["id"] != string(bob.ID) {
		t.Fatalf("expected userLeft for bob, got %v", ev)
	}
}

func TestReplyIDEcho(t *testing.T) {
	h := newHarness(t, stubFactory{})
	room, token := h.newRoomWithToken(t, "alice")

	conn := h.dial(t)
	sendRaw(t, conn, fmt.Sprintf(`{"id":"my-id","type":"authenticate","room_id":"%s","token":"%s"}`, room.ID(), token))
	reply := readJSON(t, conn)
	if reply["id"] != "my-id" {
		t.Fatalf("expected echoed id, got %v", reply)
	}
}

func TestReplyOmitsIDWhenCommandHadNone(t *testing.T) {
	h := newHarness(t, stubFactory{})
	room, token := h.newRoomWithToken(t, "alice")

	conn := h.dial(t)
	sendRaw(t, conn, fmt.Sprintf(`{"type":"authenticate","room_id":"%s","token":"%s"}`, room.ID(), token))
	reply := readJSON(t, conn)
	if _, ok := reply["id"]; ok {
		t.Fatalf("reply must omit id when the command had none: %v", reply)
	}
}

func TestBinaryFramesAreIgnored(t *testing.T) {
	h := newHarness(t, stubFactory{})
	room, token := h.newRoomWithToken(t, "alice")

	conn := h.dial(t)
	if err := conn.WriteMessage(websocket.BinaryMessage, []byte{0x01, 0x02}); err != nil {
		t.Fatalf("write binary: %v", err)
	}
	sendRaw(t, conn, fmt.Sprintf(`{"type":"authenticate","room_id":"%s","token":"%s"}`, room.ID(), token))
	reply := readJSON(t, conn)
	if reply["type"] != "authenticate" {
		t.Fatalf("binary frame should be skipped, expected authenticate reply, got %v", reply)
	}
}

// registerDirect adds a member through the roster, as a second
// connection's authenticate would.
func registerDirect(t *testing.T, room *core.Room, username string) *domain.User {
	t.Helper()
	token, err := room.Users().Issue(username)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	user, ok := room.Users().Register(token)
	if !ok {
		t.Fatalf("register should succeed")
	}
	return user
}
