package errs

const (
	ErrCode_OK              = 0
	ErrCode_Unknown         = 1
	ErrCode_InvalidDuration = 2
	ErrCode_DriverInit      = 3
	ErrCode_DriverClosed    = 4
	ErrCode_Canceled        = 5
	ErrCode_LockFailed      = 6
)

var (
	Unknown         = CreateCodeError(ErrCode_Unknown, "UNKNOWN")
	InvalidDuration = CreateCodeError(ErrCode_InvalidDuration, "INVALID_DURATION")
	DriverInit      = CreateCodeError(ErrCode_DriverInit, "DRIVER_INIT")
	DriverClosed    = CreateCodeError(ErrCode_DriverClosed, "DRIVER_CLOSED")
	Canceled        = CreateCodeError(ErrCode_Canceled, "CANCELED")
	LockFailed      = CreateCodeError(ErrCode_LockFailed, "LOCK_FAILED")
)
