package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"testing"
	"time"

	"codezen/internal/models"
	"codezen/internal/notifications"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wsEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// listen serves app on a random local port and returns its address.
func listen(t *testing.T, app *fiber.App) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })
	return ln.Addr().String()
}

func dialEvents(t *testing.T, addr string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial("ws://"+addr+"/api/ws", nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })

	hello := readEvent(t, conn)
	require.Equal(t, EventConnected, hello.Type)
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) wsEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var evt wsEvent
	require.NoError(t, json.Unmarshal(data, &evt), string(data))
	return evt
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestWebsocketUpgradeRequired(t *testing.T) {
	_, app := newTestServer(t)

	resp, _ := doJSON(t, app, http.MethodGet, "/api/ws", nil)
	assert.Equal(t, http.StatusUpgradeRequired, resp.StatusCode)
}

func TestWebsocket_ReceivesForumEvents(t *testing.T) {
	s, app := newTestServer(t)
	seedTestPost(t, s, "p1")
	addr := listen(t, app)

	first := dialEvents(t, addr)
	second := dialEvents(t, addr)
	assert.Equal(t, 2, s.hub.Count())

	resp := postJSON(t, "http://"+addr+"/api/posts/p1/comment", CreateCommentRequest{Text: "live", Username: "meera"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	for _, conn := range []*websocket.Conn{first, second} {
		evt := readEvent(t, conn)
		require.Equal(t, models.EventNewComment, evt.Type)

		var payload models.CommentAddedEvent
		require.NoError(t, json.Unmarshal(evt.Payload, &payload))
		assert.Equal(t, "p1", payload.PostID)
		require.NotNil(t, payload.UpdatedPost)
		require.Len(t, payload.UpdatedPost.Comments, 1)
		assert.Equal(t, "live", payload.UpdatedPost.Comments[0].Text)
	}

	resp = postJSON(t, "http://"+addr+"/api/posts/p1/like", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	for _, conn := range []*websocket.Conn{first, second} {
		evt := readEvent(t, conn)
		require.Equal(t, models.EventPostLiked, evt.Type)
		var liked models.PostLikedEvent
		require.NoError(t, json.Unmarshal(evt.Payload, &liked))
		assert.Equal(t, models.PostLikedEvent{PostID: "p1", Likes: 1}, liked)
	}

	resp = postJSON(t, "http://"+addr+"/api/posts", map[string]string{
		"title": "Fresh", "content": "New thread", "category": "general",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, models.EventNewPost, readEvent(t, second).Type)
}

func TestWebsocket_DisconnectUnregisters(t *testing.T) {
	s, app := newTestServer(t)
	addr := listen(t, app)

	conn := dialEvents(t, addr)
	require.Equal(t, 1, s.hub.Count())
	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")))
	_ = conn.Close()

	assert.Eventually(t, func() bool { return s.hub.Count() == 0 }, 2*time.Second, 20*time.Millisecond)
}

func TestWebsocket_HubClosedRejectsClient(t *testing.T) {
	s, app := newTestServer(t)
	addr := listen(t, app)
	require.NoError(t, s.hub.Shutdown(context.Background()))

	conn, resp, err := websocket.DefaultDialer.Dial("ws://"+addr+"/api/ws", nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	defer func() { _ = conn.Close() }()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(data), notifications.ErrHubClosed.Error())
}
