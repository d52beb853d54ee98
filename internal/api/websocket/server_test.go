package websocket

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/fortuna/metapitch/internal/store"
)

const longPlayFrames = 30

func newPlaybackServer(t *testing.T, fps int, pongWait time.Duration) *httptest.Server {
	t.Helper()
	ctx := context.Background()
	db, err := store.NewDatabase(store.DriverSQLite, filepath.Join(t.TempDir(), "ws.db"))
	if err != nil {
		t.Fatalf("NewDatabase() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.ResetSchema(ctx); err != nil {
		t.Fatalf("ResetSchema() error = %v", err)
	}
	stmts := []string{
		`INSERT INTO plays (game_id, play_id) VALUES (1, 1)`,
		`INSERT INTO frames (game_id, play_id, frame_id, nfl_id, x, y, team) VALUES
			(1, 1, 1, -1, 50, 25, 'ball'),
			(1, 1, 2, -1, 51, 25, 'ball'),
			(1, 1, 3, -1, 52, 25, 'ball')`,
		`INSERT INTO plays (game_id, play_id) VALUES (1, 2)`,
	}
	for i := 1; i <= longPlayFrames; i++ {
		stmts = append(stmts, fmt.Sprintf(
			`INSERT INTO frames (game_id, play_id, frame_id, nfl_id, x, y, team) VALUES (1, 2, %d, -1, %d, 25, 'ball')`, i, i))
	}
	for _, s := range stmts {
		if _, err := db.DB().ExecContext(ctx, s); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	ws := NewServer(db, nil, fps)
	ws.pongWait = pongWait
	srv := httptest.NewServer(ws.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func TestPlaybackStream(t *testing.T) {
	srv := newPlaybackServer(t, 60, pongWait)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws/plays/1/1"), nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var types []string
	var frameIDs []int64
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				t.Fatalf("ReadMessage() error = %v", err)
			}
			break
		}
		var head struct {
			Type  string `json:"type"`
			Frame struct {
				ID int64 `json:"id"`
			} `json:"frame"`
		}
		if err := json.Unmarshal(msg, &head); err != nil {
			t.Fatalf("decode %s: %v", msg, err)
		}
		types = append(types, head.Type)
		if head.Type == MessageFrame {
			frameIDs = append(frameIDs, head.Frame.ID)
		}
	}

	want := []string{MessagePlay, MessageFrame, MessageFrame, MessageFrame, MessageComplete}
	if strings.Join(types, ",") != strings.Join(want, ",") {
		t.Errorf("message types = %v, want %v", types, want)
	}
	if len(frameIDs) != 3 || frameIDs[0] != 1 || frameIDs[2] != 3 {
		t.Errorf("frame ids = %v, want [1 2 3]", frameIDs)
	}
}

func TestPlaybackLookupErrors(t *testing.T) {
	srv := newPlaybackServer(t, 60, pongWait)

	tests := []struct {
		path   string
		status int
	}{
		{"/ws/plays/1/2", http.StatusNotFound},
		{"/ws/plays/1/abc", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, tt.path), nil)
			if err == nil {
				t.Fatal("Dial() succeeded, want handshake failure")
			}
			if resp == nil || resp.StatusCode != tt.status {
				t.Errorf("status = %v, want %d", resp, tt.status)
			}
		})
	}
}

func TestPlaybackOutlivesPongWait(t *testing.T) {
	// 30 frames at 20 fps take 1.5s, three times the read deadline.
	srv := newPlaybackServer(t, 20, 500*time.Millisecond)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws/plays/1/2"), nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))

	var frames int
	var completed bool
	for {
		// Reading answers pings; the client never writes on its own.
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				t.Fatalf("stream ended after %d frames: %v", frames, err)
			}
			break
		}
		var head struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(msg, &head); err != nil {
			t.Fatalf("decode %s: %v", msg, err)
		}
		switch head.Type {
		case MessageFrame:
			frames++
		case MessageComplete:
			completed = true
		}
	}

	if frames != longPlayFrames || !completed {
		t.Errorf("frames = %d, completed = %v, want %d and true", frames, completed, longPlayFrames)
	}
}
