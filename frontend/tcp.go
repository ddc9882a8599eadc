// Package frontend is the minimal TCP and REST front door around
// handler.Handler: it owns the socket/HTTP plumbing and the per-request
// framing, and nothing else. Authentication and TLS are out of scope —
// callers supply the user id a connection runs as, the same way tests
// construct a Handler directly.
package frontend

import (
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"net"

	"github.com/basestored/core/codec"
	"github.com/basestored/core/handler"
	"github.com/basestored/core/storage"
)

// TCPServer accepts connections and dispatches one Handler per socket,
// each request/response pair framed as <varuint32 MessageType><varuint32
// length><body> — the same framing Response.WriteTo emits.
type TCPServer struct {
	Listener    net.Listener
	Instance    *storage.Instance
	UserID      uint64
	IsSuperuser bool

	log *slog.Logger
}

func NewTCPServer(ln net.Listener, inst *storage.Instance, userID uint64, isSuperuser bool) *TCPServer {
	return &TCPServer{Listener: ln, Instance: inst, UserID: userID, IsSuperuser: isSuperuser, log: inst.Logger()}
}

// Serve accepts connections until the listener is closed, handling each
// on its own goroutine. It returns the listener's terminal error (nil
// after a deliberate Close).
func (s *TCPServer) Serve() error {
	for {
		conn, err := s.Listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		go s.handleConn(conn)
	}
}

func (s *TCPServer) handleConn(conn net.Conn) {
	defer conn.Close()
	h := handler.New(s.Instance)
	h.UserID = s.UserID
	h.IsSuperuser = s.IsSuperuser

	r := &byteReader{conn}
	for {
		msgType, err := binary.ReadUvarint(r)
		if err != nil {
			if err != io.EOF {
				s.log.Error("tcp frontend: read message type", "remote", conn.RemoteAddr(), "error", err)
			}
			return
		}
		if handler.MessageType(msgType) != handler.MessageDatabaseEngineRequest {
			s.log.Error("tcp frontend: unexpected message type", "type", msgType)
			return
		}
		length, err := binary.ReadUvarint(r)
		if err != nil {
			s.log.Error("tcp frontend: read message length", "error", err)
			return
		}
		body := make([]byte, length)
		if _, err := io.ReadFull(conn, body); err != nil {
			s.log.Error("tcp frontend: read message body", "error", err)
			return
		}
		req, requestID, responseID, responseCount, err := handler.DecodeRequest(&codec.Cursor{Buf: body})
		if err != nil {
			s.log.Error("tcp frontend: decode request", "error", err)
			return
		}
		if err := h.Execute(req, conn, requestID, responseID, responseCount); err != nil {
			s.log.Error("tcp frontend: write response", "error", err)
			return
		}
	}
}

// byteReader adapts net.Conn to io.ByteReader one byte at a time for
// binary.ReadUvarint, the same one-byte-at-a-time approach
// stream.ChunkedInputStream.readVarint uses for its own length prefixes.
type byteReader struct {
	r io.Reader
}

func (b *byteReader) ReadByte() (byte, error) {
	var buf [1]byte
	if _, err := io.ReadFull(b.r, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}
