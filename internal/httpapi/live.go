package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/pion/webrtc/v3"

	"careerlens/internal/audio"
	"careerlens/internal/domain"
	"careerlens/internal/ports"
	"careerlens/internal/speech"
)

const (
	speechBrowser = "browser"
	speechServer  = "server"

	writeTimeout = 10 * time.Second
	endTimeout   = 10 * time.Second
)

var errClientEnded = errors.New("client ended the session")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  65536,
	WriteBufferSize: 65536,
	CheckOrigin:     func(*http.Request) bool { return true },
}

type clientMessage struct {
	Type   string `json:"type"`
	Text   string `json:"text,omitempty"`
	ID     string `json:"id,omitempty"`
	Reason string `json:"reason,omitempty"`
	SDP    string `json:"sdp,omitempty"`
}

type stateMessage struct {
	Type    string                    `json:"type"`
	Phase   domain.Phase              `json:"phase"`
	Reason  domain.SessionStateReason `json:"reason"`
	Message string                    `json:"message,omitempty"`
}

type partialMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type turnMessage struct {
	Type     string                 `json:"type"`
	Index    int                    `json:"index"`
	Speaker  domain.Speaker         `json:"speaker"`
	Text     string                 `json:"text"`
	At       time.Time              `json:"timestamp"`
	Feedback *domain.FeedbackReport `json:"feedback,omitempty"`
}

type speakMessage struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	Text string `json:"text,omitempty"`
}

type errorMessageBody struct {
	Type    string           `json:"type"`
	Code    domain.ErrorCode `json:"code,omitempty"`
	Message string           `json:"message"`
	Detail  string           `json:"detail,omitempty"`
}

// live attaches a websocket client to a session and starts it. The client
// picks who does speech: the browser, or the server with PCM frames over
// the socket.
func (s *Server) live(c echo.Context) error {
	session, err := s.deps.Registry.Get(c.Param("id"))
	if err != nil {
		return err
	}
	mode := c.QueryParam("speech")
	if mode == "" {
		mode = speechBrowser
	}
	if mode != speechBrowser && mode != speechServer {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unknown speech mode %q", mode))
	}
	if session.Status().Phase != domain.PhaseIdle {
		return domain.ErrAlreadyStarted
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "session", session.ID(), "error", err)
		return nil
	}
	conn := newLiveConn(ws, s.log.With("session", session.ID(), "speech", mode))
	defer conn.close()

	var (
		remote  *speech.Remote
		pipe    *audio.PipeCapture
		channel ports.SpeechChannel
	)
	if mode == speechServer {
		pipe = audio.NewPipeCapture()
		channel = s.deps.Channels.StreamingChannel(pipe, conn)
	} else {
		remote = s.deps.Channels.RemoteChannel(conn)
		channel = remote
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var owned atomic.Bool
	startDone := make(chan struct{})
	go func() {
		defer close(startDone)
		_, err := session.Start(ctx, channel, conn)
		switch {
		case err == nil:
			owned.Store(true)
		case errors.Is(err, domain.ErrResourceAcquisition):
			// Start already reported it through the sink. The session stays
			// idle so the client can reconnect and retry.
			conn.closeWith(websocket.CloseTryAgainLater, "speech unavailable")
		default:
			conn.SessionError(errorCodeOr(err, domain.ErrorCodeStartup), err.Error())
			conn.closeWith(websocket.ClosePolicyViolation, err.Error())
		}
	}()
	go func() {
		select {
		case <-session.Done():
			conn.closeWith(websocket.CloseNormalClosure, "session finished")
		case <-ctx.Done():
		}
	}()

	readErr := conn.readLoop(ctx, session, remote, pipe)
	cancel()
	<-startDone

	if !owned.Load() && !errors.Is(readErr, errClientEnded) {
		return nil
	}
	endCtx, endCancel := context.WithTimeout(context.Background(), endTimeout)
	defer endCancel()
	if err := session.End(endCtx); err != nil {
		conn.log.Warn("session did not end cleanly", "error", err)
	}
	return nil
}

type submitter interface {
	SubmitUtterance(ctx context.Context, text string) error
}

// liveConn is one websocket client. It is the session's event sink, the
// remote peer for browser speech and the audio sink for server speech.
type liveConn struct {
	ws   *websocket.Conn
	acks *speech.Acks
	log  *slog.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func newLiveConn(ws *websocket.Conn, logger *slog.Logger) *liveConn {
	return &liveConn{ws: ws, acks: speech.NewAcks(), log: logger}
}

func (l *liveConn) readLoop(ctx context.Context, session submitter, remote *speech.Remote, pipe *audio.PipeCapture) error {
	for {
		mt, data, err := l.ws.ReadMessage()
		if err != nil {
			return err
		}
		if mt == websocket.BinaryMessage {
			if pipe != nil {
				pipe.Write(data)
			}
			continue
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			l.SessionError("", "malformed message")
			continue
		}

		switch msg.Type {
		case "partial":
			if remote != nil {
				remote.Partial(msg.Text)
			}
		case "capture_ended":
			if remote != nil {
				remote.CaptureEnded(msg.Reason)
			}
		case "utterance":
			go func(text string) {
				if err := session.SubmitUtterance(ctx, text); err != nil {
					l.SessionError(errorCodeOr(err, domain.ErrorCodeInvalidTurn), err.Error())
				}
			}(msg.Text)
		case "render_complete":
			if remote != nil {
				remote.RenderComplete(msg.ID)
			} else {
				l.acks.Resolve(msg.ID, nil)
			}
		case "render_failed":
			if remote != nil {
				remote.RenderFailed(msg.ID, msg.Reason)
			} else {
				l.acks.Resolve(msg.ID, fmt.Errorf("client playback failed: %s", msg.Reason))
			}
		case "answer":
			if remote == nil {
				continue
			}
			go func(sdp string) {
				if err := remote.Answer(ctx, webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp}); err != nil {
					l.SessionError(domain.ErrorCodeResources, err.Error())
				}
			}(msg.SDP)
		case "end":
			return errClientEnded
		default:
			l.log.Debug("ignoring client message", "type", msg.Type)
		}
	}
}

func (l *liveConn) send(v any) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	_ = l.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return l.ws.WriteJSON(v)
}

func (l *liveConn) emit(v any) {
	if err := l.send(v); err != nil {
		l.log.Debug("websocket write failed", "error", err)
	}
}

func (l *liveConn) closeWith(code int, text string) {
	l.writeMu.Lock()
	msg := websocket.FormatCloseMessage(code, text)
	_ = l.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	l.writeMu.Unlock()
	l.close()
}

func (l *liveConn) close() {
	l.closeOnce.Do(func() {
		l.acks.FailAll(speech.ErrChannelReleased)
		_ = l.ws.Close()
	})
}

func (l *liveConn) SessionStateChanged(phase domain.Phase, reason domain.SessionStateReason) {
	l.emit(stateMessage{Type: "state", Phase: phase, Reason: reason, Message: sessionReasonMessage(reason)})
}

func (l *liveConn) PartialTranscript(text string) {
	l.emit(partialMessage{Type: "partial", Text: text})
}

func (l *liveConn) TurnCommitted(index int, item domain.TranscriptItem, feedback *domain.FeedbackReport) {
	l.emit(turnMessage{Type: "turn", Index: index, Speaker: item.Speaker, Text: item.Text, At: item.Timestamp, Feedback: feedback})
}

func (l *liveConn) HandshakeReady(h ports.Handshake) {
	l.emit(metaChunk{Type: "meta", Handshake: h})
}

func (l *liveConn) SessionError(code domain.ErrorCode, detail string) {
	l.emit(errorMessageBody{Type: "error", Code: code, Message: errorMessage(code, detail), Detail: detail})
}

// Speak asks the browser to say text and ack with id.
func (l *liveConn) Speak(id, text string) error {
	return l.send(speakMessage{Type: "speak", ID: id, Text: text})
}

func (l *liveConn) WriteAudio(chunk []byte) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	_ = l.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return l.ws.WriteMessage(websocket.BinaryMessage, chunk)
}

// Drain marks the end of a turn's audio and waits for the client to
// report it played.
func (l *liveConn) Drain(ctx context.Context) error {
	id, done, forget := l.acks.Register()
	defer forget()
	if err := l.send(speakMessage{Type: "audio_end", ID: id}); err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func errorCodeOr(err error, fallback domain.ErrorCode) domain.ErrorCode {
	if code := codeFor(err); code != "" {
		return code
	}
	return fallback
}
