package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/chazu/lalg/vm"
)

// Session message types.
const (
	msgRun    = "run"
	msgOutput = "output"
	msgInput  = "input"
	msgDone   = "done"
	msgError  = "error"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 64 * 1024
)

// SessionMessage is the single JSON frame exchanged on /v1/session.
//
//	client → {"type":"run","source":"..."}
//	server → {"type":"output","text":"5"}      one per printed value
//	server → {"type":"input"}                   input() is waiting
//	client → {"type":"input","value":7}
//	server → {"type":"done","runId":"...","stats":{...}}
type SessionMessage struct {
	Type     string     `json:"type"`
	Source   string     `json:"source,omitempty"`
	Program  []string   `json:"program,omitempty"`
	MaxSteps int64      `json:"maxSteps,omitempty"`
	Text     string     `json:"text,omitempty"`
	Value    *float64   `json:"value,omitempty"`
	RunID    string     `json:"runId,omitempty"`
	Stats    *vm.Stats  `json:"stats,omitempty"`
	Error    *ErrorInfo `json:"error,omitempty"`
}

// session drives one websocket connection. Reads and writes both happen on
// the handler goroutine: while a program runs, the VM's input source reads
// the next frame itself.
type session struct {
	s    *Server
	conn *websocket.Conn
	ctx  context.Context
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warningf("session upgrade: %v", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxMessageSize)

	sess := &session{s: s, conn: conn, ctx: r.Context()}
	sess.serve()
}

func (ss *session) serve() {
	for {
		msg, err := ss.read()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				ss.s.log.Warningf("session read: %v", err)
			}
			return
		}
		switch msg.Type {
		case msgRun:
			if err := ss.run(msg); err != nil {
				ss.s.log.Warningf("session run: %v", err)
				return
			}
		default:
			if err := ss.sendError(fmt.Errorf("unexpected %q message", msg.Type)); err != nil {
				return
			}
		}
	}
}

func (ss *session) read() (*SessionMessage, error) {
	ss.conn.SetReadDeadline(time.Now().Add(ss.s.cfg.idleTimeout))
	var msg SessionMessage
	if err := ss.conn.ReadJSON(&msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (ss *session) send(msg *SessionMessage) error {
	ss.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return ss.conn.WriteJSON(msg)
}

func (ss *session) sendError(err error) error {
	return ss.send(&SessionMessage{Type: msgError, Error: errorInfo(err)})
}

// run executes one program, streaming output and answering input requests.
// A non-nil error means the connection is no longer usable.
func (ss *session) run(req *SessionMessage) error {
	runID := uuid.NewString()
	prog, err := loadProgram(req.Source, req.Program)
	if err != nil {
		return ss.send(&SessionMessage{Type: msgDone, RunID: runID, Error: errorInfo(err)})
	}

	out := &sessionOutput{ss: ss}
	var connErr error
	in := vm.InputFunc(func() (float64, error) {
		v, err := ss.requestInput()
		if err != nil && connErr == nil && !errors.Is(err, errBadInput) {
			connErr = err
		}
		return v, err
	})

	machine := vm.New(prog,
		vm.WithOutput(out),
		vm.WithInputSource(in),
		vm.WithMaxSteps(ss.s.stepLimit(req.MaxSteps)),
		vm.WithMaxCallDepth(ss.s.cfg.maxCallDepth),
	)
	runErr := machine.Run(ss.ctx)
	if err := out.flush(); err != nil && connErr == nil {
		connErr = err
	}
	if out.err != nil && connErr == nil {
		connErr = out.err
	}
	if connErr != nil {
		return connErr
	}

	stats := machine.Stats()
	ss.s.log.Infof("session run %s: %s", runID, stats)
	return ss.send(&SessionMessage{Type: msgDone, RunID: runID, Stats: &stats, Error: errorInfo(runErr)})
}

var errBadInput = errors.New("expected an input message with a value")

func (ss *session) requestInput() (float64, error) {
	if err := ss.send(&SessionMessage{Type: msgInput}); err != nil {
		return 0, err
	}
	msg, err := ss.read()
	if err != nil {
		return 0, err
	}
	if msg.Type != msgInput || msg.Value == nil {
		return 0, errBadInput
	}
	return *msg.Value, nil
}

// sessionOutput turns VM output into one output message per line.
type sessionOutput struct {
	ss  *session
	buf bytes.Buffer
	err error
}

func (o *sessionOutput) Write(p []byte) (int, error) {
	if o.err != nil {
		return 0, o.err
	}
	o.buf.Write(p)
	for {
		i := bytes.IndexByte(o.buf.Bytes(), '\n')
		if i < 0 {
			return len(p), nil
		}
		line := string(o.buf.Next(i + 1))
		if err := o.ss.send(&SessionMessage{Type: msgOutput, Text: line[:i]}); err != nil {
			o.err = err
			return 0, err
		}
	}
}

func (o *sessionOutput) flush() error {
	if o.err != nil || o.buf.Len() == 0 {
		return nil
	}
	text := o.buf.String()
	o.buf.Reset()
	return o.ss.send(&SessionMessage{Type: msgOutput, Text: text})
}
