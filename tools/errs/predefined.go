package errs

// Error codes grouped by concern. REST handlers map these onto HTTP statuses,
// socket handlers log them and keep the read loop alive.
const (
	ServerInternalError = 500

	ArgsError       = 1001 // request argument invalid
	TokenExpired    = 1501
	TokenInvalid    = 1502
	RecordNotFound  = 1404
	NoPermission    = 1403
	ContentEmpty    = 1601
	TransientIO     = 1700
	ChannelNotReady = 1701
)

var (
	ErrInternalServer = NewCodeError(ServerInternalError, "server internal error")
	ErrArgs           = NewCodeError(ArgsError, "args error")
	ErrTokenExpired   = NewCodeError(TokenExpired, "token expired")
	ErrTokenInvalid   = NewCodeError(TokenInvalid, "token invalid")
	ErrRecordNotFound = NewCodeError(RecordNotFound, "record not found")
	ErrNoPermission   = NewCodeError(NoPermission, "no permission")
	ErrContentEmpty   = NewCodeError(ContentEmpty, "content is empty")
	ErrTransientIO    = NewCodeError(TransientIO, "store or channel unavailable")
	ErrChannelClosed  = NewCodeError(ChannelNotReady, "realtime channel not connected")
)
