package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/catdadcode/pdk-data-importer/internal/importer"
	"github.com/catdadcode/pdk-data-importer/internal/logging"
)

// ActionInitUpload is the client-to-server message that declares the file
// about to be sent as the next binary frame on the same connection.
const ActionInitUpload = "INIT_UPLOAD"

// msgStagingFailed is sent when the payload could not be written to the
// staging directory; no processing unit is started.
const msgStagingFailed = "Failed to save uploaded file."

// initMessage is the INIT_UPLOAD payload.
type initMessage struct {
	Action   string `json:"action"`
	FileName string `json:"fileName"`
	FileSize int64  `json:"fileSize"`
}

// session is one websocket connection. The client may run several uploads
// over it, each as an INIT_UPLOAD text frame followed by one binary frame;
// status updates for every upload are multiplexed back over the same
// connection, so all writes go through writeJSON's mutex.
type session struct {
	conn     *websocket.Conn
	imports  *importer.Service
	stager   *Stager
	log      *slog.Logger
	pending  *initMessage
	relaying sync.WaitGroup

	writeMu sync.Mutex
}

func (s *session) run(ctx context.Context) {
	defer s.conn.Close()

	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Warn("websocket read failed", "error", err)
			}
			break
		}

		switch msgType {
		case websocket.TextMessage:
			s.handleText(data)
		case websocket.BinaryMessage:
			s.handleBinary(ctx, data)
		}
	}

	// Units outlive the read loop; keep draining their events so they can
	// finish even though nobody is listening anymore.
	s.relaying.Wait()
}

func (s *session) handleText(data []byte) {
	var msg initMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.log.Warn("unparseable text frame", "error", err)
		return
	}
	if msg.Action != ActionInitUpload {
		s.log.Warn("unexpected action", "action", msg.Action)
		return
	}
	if msg.FileName == "" {
		s.log.Warn("INIT_UPLOAD without fileName")
		return
	}

	s.pending = &msg
	s.log.Info("upload initiated", "file", msg.FileName, "size", msg.FileSize)

	s.writeJSON(importer.StatusUpdate{
		Action:   importer.ActionStatusUpdate,
		FileName: msg.FileName,
		FileSize: msg.FileSize,
		Status:   importer.MsgUploadInitiated,
		Progress: importer.Progress(0),
	})
}

func (s *session) handleBinary(ctx context.Context, data []byte) {
	if s.pending == nil {
		s.log.Warn("binary frame without INIT_UPLOAD", "bytes", len(data))
		return
	}
	meta := *s.pending
	s.pending = nil

	stagedPath, err := s.stager.Save(meta.FileName, data)
	if err != nil {
		s.log.Error("failed to stage upload", "file", meta.FileName, "error", err)
		s.status(meta.FileName, msgStagingFailed)
		return
	}

	s.log.Info("upload completed", "file", meta.FileName, "bytes", len(data), "staged", stagedPath)
	s.writeJSON(importer.StatusUpdate{
		Action:   importer.ActionStatusUpdate,
		FileName: meta.FileName,
		FileSize: meta.FileSize,
		Status:   importer.MsgUploadCompleted,
		Progress: importer.Progress(100),
	})

	// The unit runs against the server's lifetime, not this connection's:
	// a client that disconnects mid-import does not abort the import.
	events, err := s.imports.Start(context.WithoutCancel(ctx), meta.FileName, stagedPath)
	if err != nil {
		s.log.Warn("import not started", "file", meta.FileName, "error", err)
		s.status(meta.FileName, err.Error())
		return
	}

	s.relaying.Add(1)
	go s.relay(events)
}

// relay forwards unit events to the client. Write failures stop the
// forwarding but never the draining; the unit must be able to finish.
func (s *session) relay(events <-chan importer.StatusUpdate) {
	defer s.relaying.Done()

	writable := true
	for ev := range events {
		if !writable {
			continue
		}
		if err := s.writeJSON(ev); err != nil {
			s.log.Warn("dropping remaining events", "file", ev.FileName, "error", err)
			writable = false
		}
	}
}

func (s *session) status(fileName, status string) {
	s.writeJSON(importer.StatusUpdate{
		Action:   importer.ActionStatusUpdate,
		FileName: fileName,
		Status:   status,
	})
}

func (s *session) writeJSON(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(v)
}

// handleWS upgrades the request and runs the session until the client
// disconnects.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		logging.FromContext(r.Context()).Warn("websocket upgrade failed", "error", err)
		return
	}

	log := logging.WithFields(r.Context(), "remote", r.RemoteAddr)
	log.Info("websocket connected")

	sess := &session{
		conn:    conn,
		imports: s.imports,
		stager:  s.stager,
		log:     log,
	}
	sess.run(r.Context())

	log.Info("websocket disconnected")
}
