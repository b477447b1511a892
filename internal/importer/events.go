// Package importer implements the personnel import pipeline: decoding an
// uploaded file into rows, reconciling every row against the directory
// store, and reporting progress back to the owning connection.
package importer

// ActionStatusUpdate is the single action used for every server-to-client
// lifecycle event: upload acks, per-row progress, row errors, and the
// terminal success or failure message.
const ActionStatusUpdate = "STATUS_UPDATE"

// StatusUpdate is the one message shape relayed to the client for every
// lifecycle event. Optional fields are omitted when empty so the wire
// format stays minimal.
type StatusUpdate struct {
	Action   string        `json:"action"`
	FileName string        `json:"fileName"`
	FileSize int64         `json:"fileSize,omitempty"`
	Status   string        `json:"status,omitempty"`
	Progress *float64      `json:"progress,omitempty"`
	Report   *ImportReport `json:"report,omitempty"`
}

// ImportReport aggregates the outcome of one file's import.
type ImportReport struct {
	RecordsCreated int `json:"recordsCreated"`
	RecordsUpdated int `json:"recordsUpdated"`

	// CredentialCount is the number of invitations issued: one per newly
	// provisioned bluetooth or mobile credential.
	CredentialCount int `json:"credentialCount"`
}

// Progress returns a pointer to v for use in StatusUpdate, where progress 0
// must still be serialized (the upload-initiated ack carries progress 0).
func Progress(v float64) *float64 {
	return &v
}
