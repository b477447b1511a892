package importer

// messages.go is the catalog of user-facing status strings. Clients render
// these verbatim, so wording changes are protocol changes; keep them here
// so they change in one place.

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	msgInvalidName          = "Invalid first or last name."
	msgInvalidEmail         = "Invalid email address."
	msgInvalidEmailFormat   = "Invalid email format."
	msgDisposableEmail      = "Disposable email addresses are not allowed."
	msgDomainNotFound       = "Domain does not exist."
	msgNoMailExchange       = "No MX records found."
	msgDomainVerifyFailed   = "Failed to verify email domain."
	msgPinTooLarge          = "Pin or duress pin exceeds maximum value."
	msgCredentialNeedsEmail = "Bluetooth or mobile credential specified without an email address."

	// MsgUnsupportedFormat is emitted when the file extension is not
	// recognized; no decoder runs and no rows are processed.
	MsgUnsupportedFormat = "Unsupported file format."

	// MsgProcessing labels per-row progress events.
	MsgProcessing = "Processing..."

	// MsgDone labels the terminal success event carrying the report.
	MsgDone = "Done!"

	msgFileHasErrors = "File contains errors. Please fix them and try again."

	// MsgUploadInitiated and MsgUploadCompleted are the transport acks the
	// session sends around the payload transfer.
	MsgUploadInitiated = "File upload initiated"
	MsgUploadCompleted = "File upload completed"

	// MsgImportFailed is the generic status for a processing unit that
	// terminated abnormally before emitting a terminal event.
	MsgImportFailed = "Import failed due to an internal error."
)

// tooManyRowsMessage renders the row-limit rejection for the configured
// maximum, e.g. "File contains too many entries. The maximum allowed is 10,000."
func tooManyRowsMessage(max int) string {
	return fmt.Sprintf("File contains too many entries. The maximum allowed is %s.", groupDigits(max))
}

// nameConflictMessage reports a (first, last) collision with a different person.
func nameConflictMessage(first, last string) string {
	return fmt.Sprintf("Person with the name %s %s already exists.", first, last)
}

// rowErrorMessage combines a row's validation failures into one message.
func rowErrorMessage(fileName string, errs []string) string {
	return fmt.Sprintf("Validation error in file %s: %s", fileName, strings.Join(errs, ", "))
}

// groupDigits formats n with thousands separators.
func groupDigits(n int) string {
	s := strconv.Itoa(n)
	neg := false
	if len(s) > 0 && s[0] == '-' {
		neg = true
		s = s[1:]
	}
	var out []byte
	for i, c := range []byte(s) {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, c)
	}
	if neg {
		return "-" + string(out)
	}
	return string(out)
}
