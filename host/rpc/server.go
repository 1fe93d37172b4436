package rpc

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/guseggert/hostbridge/native"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// Server accepts bridge sessions and runs their calls against a call table.
type Server struct {
	log   *zap.SugaredLogger
	table *native.Table

	mut      sync.Mutex
	closed   bool
	sessions map[string]*session
}

func NewServer(log *zap.SugaredLogger, table *native.Table) *Server {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Server{
		log:      log.Named("rpc_server"),
		table:    table,
		sessions: map[string]*session{},
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:    []string{SubprotocolJSON, SubprotocolCBOR},
		CompressionMode: websocket.CompressionContextTakeover,
	})
	if err != nil {
		s.log.Debugf("error accepting WebSocket conn: %s", err)
		return
	}
	wsConn.SetReadLimit(readLimit)

	c, err := codecFor(wsConn.Subprotocol())
	if err != nil {
		wsConn.Close(websocket.StatusPolicyViolation, err.Error())
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	sess := &session{
		id:     uuid.NewString(),
		server: s,
		conn:   wsConn,
		codec:  c,
		ctx:    ctx,
		cancel: cancel,
		lanes:  &sequencer{tails: map[string]chan struct{}{}},
	}
	sess.log = s.log.Named("session").With("Session", sess.id)

	if !s.add(sess) {
		wsConn.Close(websocket.StatusGoingAway, "server closed")
		return
	}
	defer s.remove(sess)
	defer sess.close(websocket.StatusNormalClosure, "")

	sess.log.Debugw("accepted session", "Subprotocol", wsConn.Subprotocol())
	sess.run()
}

func (s *Server) add(sess *session) bool {
	s.mut.Lock()
	defer s.mut.Unlock()
	if s.closed {
		return false
	}
	s.sessions[sess.id] = sess
	return true
}

func (s *Server) remove(sess *session) {
	s.mut.Lock()
	defer s.mut.Unlock()
	delete(s.sessions, sess.id)
}

func (s *Server) snapshot() []*session {
	s.mut.Lock()
	defer s.mut.Unlock()
	sessions := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	return sessions
}

// Sessions returns the number of connected sessions.
func (s *Server) Sessions() int {
	s.mut.Lock()
	defer s.mut.Unlock()
	return len(s.sessions)
}

// Broadcast asks every connected session to run callback.
func (s *Server) Broadcast(callback string, args ...any) {
	if args == nil {
		args = []any{}
	}
	msg := responseMessage{Event: &eventMessage{Callback: callback, Args: args}}
	for _, sess := range s.snapshot() {
		if err := sess.write(msg); err != nil {
			sess.log.Debugf("error sending event: %s", err)
		}
	}
}

// Close ends every session and refuses new ones.
func (s *Server) Close() {
	s.mut.Lock()
	s.closed = true
	s.mut.Unlock()
	for _, sess := range s.snapshot() {
		sess.close(websocket.StatusGoingAway, "server closed")
	}
}

type session struct {
	id     string
	log    *zap.SugaredLogger
	server *Server
	conn   *websocket.Conn
	codec  codec
	ctx    context.Context
	cancel func()
	lanes  *sequencer

	writeMut  sync.Mutex
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func (ss *session) write(msg responseMessage) error {
	ss.writeMut.Lock()
	defer ss.writeMut.Unlock()
	return ss.codec.write(ss.ctx, ss.conn, msg)
}

func (ss *session) close(code websocket.StatusCode, reason string) {
	ss.closeOnce.Do(func() {
		if err := ss.conn.Close(code, reason); err != nil {
			ss.log.Debugf("error closing conn: %s", err)
		}
		ss.cancel()
	})
}

func (ss *session) run() {
	defer ss.wg.Wait()
	defer ss.cancel()
	for {
		var req requestMessage
		err := ss.codec.read(ss.ctx, ss.conn, &req)
		if websocket.CloseStatus(err) == websocket.StatusNormalClosure || websocket.CloseStatus(err) == websocket.StatusGoingAway {
			ss.log.Debug("got closure from client, wrapping up")
			return
		}
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				ss.log.Debugf("message reader got error: %s", err)
			}
			ss.close(websocket.StatusInternalError, truncateReason(err.Error()))
			return
		}
		ss.dispatch(req)
	}
}

// dispatch queues req in its lane. It must be called in the order requests were read.
func (ss *session) dispatch(req requestMessage) {
	inv, err := ss.server.table.Prepare(req.Name, native.Args(req.Args))
	if err != nil {
		ss.respond(req, nil, err)
		return
	}
	ss.wg.Add(1)
	ss.lanes.submit(inv.Lane, func() {
		complete, err := inv.Admit(ss.ctx)
		if err != nil {
			ss.respond(req, nil, err)
			ss.wg.Done()
			return
		}
		go func() {
			defer ss.wg.Done()
			res, err := complete(ss.ctx)
			ss.respond(req, res, err)
		}()
	})
}

func (ss *session) respond(req requestMessage, res any, err error) {
	msg := responseMessage{ID: req.ID, Result: res}
	if err != nil {
		ss.log.Debugw("call rejected", "Name", req.Name, "Error", err)
		msg.Result = nil
		msg.Err = NewErrorBody(err)
	}
	if werr := ss.write(msg); werr != nil {
		ss.log.Debugf("error writing response for %s: %s", req.Name, werr)
	}
}

// websocket close reasons can't be above 123 bytes
func truncateReason(reason string) string {
	if len(reason) > 100 {
		return reason[:100]
	}
	return reason
}

// sequencer runs jobs of one lane in submission order. Jobs without a lane run right away.
type sequencer struct {
	mut   sync.Mutex
	tails map[string]chan struct{}
}

func (q *sequencer) submit(lane string, job func()) {
	if lane == "" {
		go job()
		return
	}
	done := make(chan struct{})
	q.mut.Lock()
	prev := q.tails[lane]
	q.tails[lane] = done
	q.mut.Unlock()

	go func() {
		if prev != nil {
			<-prev
		}
		job()
		close(done)
		q.mut.Lock()
		if q.tails[lane] == done {
			delete(q.tails, lane)
		}
		q.mut.Unlock()
	}()
}
