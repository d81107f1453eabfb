package server

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 16 * 1024
)

// ErrLineTooLong is returned by the line transport for oversized messages
var ErrLineTooLong = errors.New("message exceeds maximum size")

// Conn is one client transport. Reads happen on the session's read loop,
// writes on its write pump, so neither side needs to be concurrency safe
// beyond Close.
type Conn interface {
	// ReadMessage returns the next payload; it may hold several
	// newline-delimited JSON objects.
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	// Ping keeps the transport alive between messages
	Ping() error
	Close() error
	RemoteIP() string
	Transport() string
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // non-browser clients don't send Origin
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return u.Host == r.Host
	},
}

type wsConn struct {
	conn *websocket.Conn
	ip   string
	once sync.Once
}

func newWSConn(c *websocket.Conn, ip string) *wsConn {
	c.SetReadLimit(maxMessageSize)
	c.SetReadDeadline(time.Now().Add(pongWait))
	c.SetPongHandler(func(string) error {
		c.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	return &wsConn{conn: c, ip: ip}
}

func (w *wsConn) ReadMessage() ([]byte, error) {
	for {
		kind, data, err := w.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		w.conn.SetReadDeadline(time.Now().Add(pongWait))
		if kind == websocket.TextMessage || kind == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (w *wsConn) WriteMessage(data []byte) error {
	w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

func (w *wsConn) Ping() error {
	return w.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (w *wsConn) Close() error {
	var err error
	w.once.Do(func() {
		w.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = w.conn.Close()
	})
	return err
}

func (w *wsConn) RemoteIP() string  { return w.ip }
func (w *wsConn) Transport() string { return "ws" }

// lineConn is the raw TCP transport: one JSON object per line.
type lineConn struct {
	conn    net.Conn
	scanner *bufio.Scanner
	ip      string
	once    sync.Once
}

func newLineConn(c net.Conn) *lineConn {
	sc := bufio.NewScanner(c)
	sc.Buffer(make([]byte, 0, 4096), maxMessageSize)
	return &lineConn{conn: c, scanner: sc, ip: hostOf(c.RemoteAddr().String())}
}

func (l *lineConn) ReadMessage() ([]byte, error) {
	if l.scanner.Scan() {
		return l.scanner.Bytes(), nil
	}
	if err := l.scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, ErrLineTooLong
		}
		return nil, err
	}
	return nil, net.ErrClosed
}

func (l *lineConn) WriteMessage(data []byte) error {
	l.conn.SetWriteDeadline(time.Now().Add(writeWait))
	buf := make([]byte, 0, len(data)+1)
	buf = append(buf, data...)
	buf = append(buf, '\n')
	_, err := l.conn.Write(buf)
	return err
}

// Ping is a no-op; TCP keepalive covers dead peers
func (l *lineConn) Ping() error { return nil }

func (l *lineConn) Close() error {
	var err error
	l.once.Do(func() { err = l.conn.Close() })
	return err
}

func (l *lineConn) RemoteIP() string  { return l.ip }
func (l *lineConn) Transport() string { return "tcp" }

func hostOf(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

func extractIP(r *http.Request) string {
	return hostOf(r.RemoteAddr)
}
