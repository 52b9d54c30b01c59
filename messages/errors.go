package messages

const (
	ErrTypeMsgEncoding       = "msg_encoding"
	ErrTypeMsgDecoding       = "msg_decoding"
	ErrTypePositionsDecoding = "positions_decoding"
)

// ErrorCode tells a client why its request failed.
type ErrorCode string

const (
	ErrorCodeBadRequest    ErrorCode = "bad_request"
	ErrorCodeNotFound      ErrorCode = "not_found"
	ErrorCodeAlreadyJoined ErrorCode = "already_joined"
	ErrorCodeNotJoined     ErrorCode = "not_joined"
	ErrorCodeOutOfBounds   ErrorCode = "out_of_bounds"
	ErrorCodeRateLimited   ErrorCode = "rate_limited"
	ErrorCodeLimitReached  ErrorCode = "limit_reached"
	ErrorCodeBodyTooLarge  ErrorCode = "body_too_large"
	ErrorCodeInternal      ErrorCode = "internal_server_error"
)
