package workflow

// User-facing notice messages.
const (
	MsgNoFileSelected      = "Please select a file first."
	MsgUploadFailed        = "Error uploading file. Please try again."
	MsgUploadSucceeded     = "File uploaded successfully!"
	MsgNoDownloadAvailable = "No data available for download. Please ensure the file is processed correctly."
	MsgHeaderReadFailure   = "Could not read the selected file."
	MsgUnknownColumn       = "Selected column is not in the file header."
	MsgUploadInProgress    = "An upload is already in progress."
	MsgHeaderPending       = "The selected file is still being read."
)

// ErrorKind identifies a workflow failure.
type ErrorKind string

const (
	KindNoFileSelected      ErrorKind = "no_file_selected"
	KindHeaderReadFailure   ErrorKind = "header_read_failure"
	KindUploadFailure       ErrorKind = "upload_failure"
	KindNoDownloadAvailable ErrorKind = "no_download_available"
	KindUploadInProgress    ErrorKind = "upload_in_progress"
	KindUnknownColumn       ErrorKind = "unknown_column"
	KindHeaderPending       ErrorKind = "header_pending"
)

// Error is returned by Controller operations. Message is safe to show to the
// user; Err carries the underlying cause for logs.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// Sentinels for errors.Is. Two Errors match when their kinds match.
var (
	ErrNoFileSelected      = &Error{Kind: KindNoFileSelected, Message: MsgNoFileSelected}
	ErrHeaderReadFailure   = &Error{Kind: KindHeaderReadFailure, Message: MsgHeaderReadFailure}
	ErrUploadFailure       = &Error{Kind: KindUploadFailure, Message: MsgUploadFailed}
	ErrNoDownloadAvailable = &Error{Kind: KindNoDownloadAvailable, Message: MsgNoDownloadAvailable}
	ErrUploadInProgress    = &Error{Kind: KindUploadInProgress, Message: MsgUploadInProgress}
	ErrUnknownColumn       = &Error{Kind: KindUnknownColumn, Message: MsgUnknownColumn}
	ErrHeaderPending       = &Error{Kind: KindHeaderPending, Message: MsgHeaderPending}
)

func (e *Error) Error() string {
	if e.Err != nil {
		return string(e.Kind) + ": " + e.Err.Error()
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on Kind so wrapped causes do not defeat errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func newError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}
