package ws

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Conn é o subconjunto de *websocket.Conn usado aqui; permite conexões falsas nos testes
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

var _ Conn = (*websocket.Conn)(nil)

// Client representa uma conexão WebSocket viva.
// A identidade é o ponteiro; ID serve só para logs
type Client struct {
	ID         string
	RemoteAddr string

	conn      Conn
	writeWait time.Duration

	mu        sync.Mutex // gorilla não aceita writers concorrentes
	closeOnce sync.Once
}

// NewClient envolve a conexão; writeWait limita quanto um cliente lento pode segurar um envio
func NewClient(conn Conn, remoteAddr string, writeWait time.Duration) *Client {
	if writeWait <= 0 {
		writeWait = 2 * time.Second
	}
	return &Client{
		ID:         uuid.NewString(),
		RemoteAddr: remoteAddr,
		conn:       conn,
		writeWait:  writeWait,
	}
}

// Send escreve um frame de texto com deadline
func (c *Client) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// Ping envia um ping de controle (WriteControl pode rodar junto com Send)
func (c *Client) Ping() error {
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeWait))
}

// Close manda close frame (best-effort) e fecha o socket; chamadas repetidas são no-op
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.writeWait))
		_ = c.conn.Close()
	})
}
