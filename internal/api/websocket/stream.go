package websocket

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/fortuna/metapitch/internal/service"
)

// stream paces one play over one connection. The peer is pinged every
// 9/10 of pongWait so a silent viewer stays connected for the whole play.
type stream struct {
	conn     *websocket.Conn
	interval time.Duration
	pongWait time.Duration
}

// play sends the play header, one frame per tick, then the completion
// message, and closes the connection.
func (st *stream) play(ctx context.Context, p *service.PlayPayload) error {
	defer st.conn.Close()

	// The read side only watches for the client going away.
	gone := make(chan struct{})
	go st.readPump(gone)

	if err := st.send(PlayMessage{
		Type:       MessagePlay,
		GameID:     p.GameID,
		PlayID:     p.PlayID,
		Meta:       p.Meta,
		FrameCount: p.FrameCount,
		Events:     p.Events,
		Players:    p.Players,
	}); err != nil {
		return err
	}

	ticker := time.NewTicker(st.interval)
	defer ticker.Stop()
	ping := time.NewTicker(st.pongWait * 9 / 10)
	defer ping.Stop()

	for i := 0; i < len(p.Frames); {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-gone:
			return websocket.ErrCloseSent
		case <-ping.C:
			if err := st.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return err
			}
			continue
		case <-ticker.C:
		}
		if err := st.send(FrameMessage{Type: MessageFrame, Index: i, Frame: p.Frames[i]}); err != nil {
			return err
		}
		i++
	}

	if err := st.send(CompleteMessage{Type: MessageComplete, Frames: len(p.Frames)}); err != nil {
		return err
	}
	_ = st.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return st.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "complete"))
}

func (st *stream) send(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = st.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return st.conn.WriteMessage(websocket.TextMessage, b)
}

func (st *stream) readPump(gone chan<- struct{}) {
	defer close(gone)
	st.conn.SetReadLimit(512)
	_ = st.conn.SetReadDeadline(time.Now().Add(st.pongWait))
	st.conn.SetPongHandler(func(string) error {
		return st.conn.SetReadDeadline(time.Now().Add(st.pongWait))
	})
	for {
		if _, _, err := st.conn.ReadMessage(); err != nil {
			return
		}
	}
}
