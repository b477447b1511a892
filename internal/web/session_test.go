package web

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catdadcode/pdk-data-importer/internal/config"
	"github.com/catdadcode/pdk-data-importer/internal/directory"
	"github.com/catdadcode/pdk-data-importer/internal/importer"
)

type allowAllChecker struct{}

func (allowAllChecker) IsDisposable(string) bool            { return false }
func (allowAllChecker) Check(context.Context, string) error { return nil }

func newTestServer(t *testing.T) (*httptest.Server, *directory.MemoryRepository) {
	t.Helper()

	repo := directory.NewMemoryRepository()
	imports := importer.NewService(config.ImportConfig{
		MaxRows:       100,
		MaxConcurrent: 2,
		RowWorkers:    4,
	}, repo, allowAllChecker{})

	stager, err := NewStager(t.TempDir())
	require.NoError(t, err)

	srv := NewServer(config.ServerConfig{}, imports, stager)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, repo
}

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(10*time.Second)))
	return conn
}

func readUpdate(t *testing.T, conn *websocket.Conn) importer.StatusUpdate {
	t.Helper()

	var update importer.StatusUpdate
	require.NoError(t, conn.ReadJSON(&update))
	require.Equal(t, importer.ActionStatusUpdate, update.Action)
	return update
}

func TestUploadOverWebsocket(t *testing.T) {
	ts, repo := newTestServer(t)
	conn := dialWS(t, ts)

	csv := "first,last,email,bluetooth\nAda,Lovelace,ada@example.com,1\n"

	require.NoError(t, conn.WriteJSON(initMessage{
		Action:   ActionInitUpload,
		FileName: "people.csv",
		FileSize: int64(len(csv)),
	}))

	initiated := readUpdate(t, conn)
	assert.Equal(t, importer.MsgUploadInitiated, initiated.Status)
	assert.Equal(t, "people.csv", initiated.FileName)
	assert.Equal(t, int64(len(csv)), initiated.FileSize)
	require.NotNil(t, initiated.Progress)
	assert.Equal(t, float64(0), *initiated.Progress)

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte(csv)))

	completed := readUpdate(t, conn)
	assert.Equal(t, importer.MsgUploadCompleted, completed.Status)
	require.NotNil(t, completed.Progress)
	assert.Equal(t, float64(100), *completed.Progress)

	var terminal importer.StatusUpdate
	for {
		update := readUpdate(t, conn)
		if update.Status == importer.MsgProcessing {
			continue
		}
		terminal = update
		break
	}

	require.Equal(t, importer.MsgDone, terminal.Status, "got %q", terminal.Status)
	require.NotNil(t, terminal.Report)
	assert.Equal(t, 1, terminal.Report.RecordsCreated)
	assert.Equal(t, 0, terminal.Report.RecordsUpdated)
	assert.Equal(t, 1, terminal.Report.CredentialCount)

	p, err := repo.FindPerson(context.Background(), "", "ada@example.com")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "Ada", p.First)
}

func TestUploadInvalidRowsReportsErrors(t *testing.T) {
	ts, _ := newTestServer(t)
	conn := dialWS(t, ts)

	csv := "first,last,email\n,Lovelace,ada@example.com\n"

	require.NoError(t, conn.WriteJSON(initMessage{
		Action:   ActionInitUpload,
		FileName: "people.csv",
		FileSize: int64(len(csv)),
	}))
	readUpdate(t, conn) // initiated

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte(csv)))
	readUpdate(t, conn) // completed

	sawRowError := false
	for {
		update := readUpdate(t, conn)
		if strings.HasPrefix(update.Status, "Validation error in file people.csv:") {
			sawRowError = true
			continue
		}
		if update.Status == importer.MsgProcessing {
			continue
		}
		assert.True(t, strings.HasPrefix(update.Status,
			"File contains errors. Please fix them and try again.\n"),
			"got terminal status %q", update.Status)
		assert.Nil(t, update.Report)
		break
	}
	assert.True(t, sawRowError, "row error streamed before the terminal event")
}

func TestUnsupportedFormatOverWebsocket(t *testing.T) {
	ts, _ := newTestServer(t)
	conn := dialWS(t, ts)

	require.NoError(t, conn.WriteJSON(initMessage{
		Action:   ActionInitUpload,
		FileName: "people.pdf",
		FileSize: 4,
	}))
	readUpdate(t, conn) // initiated

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte("%PDF")))
	readUpdate(t, conn) // completed

	update := readUpdate(t, conn)
	assert.Equal(t, importer.MsgUnsupportedFormat, update.Status)
}

func TestStagingFailureReportsAndSkipsImport(t *testing.T) {
	repo := directory.NewMemoryRepository()
	imports := importer.NewService(config.ImportConfig{
		MaxRows:       100,
		MaxConcurrent: 2,
		RowWorkers:    4,
	}, repo, allowAllChecker{})

	// Pull the staging directory out from under the stager so Save fails.
	dir := filepath.Join(t.TempDir(), "staging")
	stager, err := NewStager(dir)
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(dir))

	srv := NewServer(config.ServerConfig{}, imports, stager)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	conn := dialWS(t, ts)

	csv := "first,last,email\nAda,Lovelace,ada@example.com\n"
	require.NoError(t, conn.WriteJSON(initMessage{
		Action:   ActionInitUpload,
		FileName: "people.csv",
		FileSize: int64(len(csv)),
	}))
	readUpdate(t, conn) // initiated

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte(csv)))

	update := readUpdate(t, conn)
	assert.Equal(t, msgStagingFailed, update.Status)
	assert.Equal(t, "people.csv", update.FileName)

	// No unit was spawned: nothing further arrives and nothing was written.
	assert.Equal(t, 0, imports.ActiveImports())
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	var extra importer.StatusUpdate
	require.Error(t, conn.ReadJSON(&extra), "no events after the staging failure")

	p, err := repo.FindPerson(context.Background(), "", "ada@example.com")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestBinaryWithoutInitIsIgnored(t *testing.T) {
	ts, _ := newTestServer(t)
	conn := dialWS(t, ts)

	// A stray payload frame must not produce events or break the
	// connection; a proper upload afterwards still works.
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte("orphan")))

	require.NoError(t, conn.WriteJSON(initMessage{
		Action:   ActionInitUpload,
		FileName: "people.csv",
		FileSize: 1,
	}))

	update := readUpdate(t, conn)
	assert.Equal(t, importer.MsgUploadInitiated, update.Status)
}

func TestSecondUploadOnSameConnection(t *testing.T) {
	ts, _ := newTestServer(t)
	conn := dialWS(t, ts)

	for _, file := range []struct {
		name string
		csv  string
	}{
		{"one.csv", "first,last,email\nAda,Lovelace,ada@example.com\n"},
		{"two.csv", "first,last,email\nGrace,Hopper,grace@example.com\n"},
	} {
		require.NoError(t, conn.WriteJSON(initMessage{
			Action:   ActionInitUpload,
			FileName: file.name,
			FileSize: int64(len(file.csv)),
		}))
		readUpdate(t, conn) // initiated

		require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte(file.csv)))
		readUpdate(t, conn) // completed

		for {
			update := readUpdate(t, conn)
			if update.Status == importer.MsgProcessing {
				continue
			}
			require.Equal(t, importer.MsgDone, update.Status, "got %q", update.Status)
			assert.Equal(t, file.name, update.FileName)
			break
		}
	}
}
