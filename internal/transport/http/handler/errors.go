package handler

const (
	errInternalServer = "Internal server error"
	errTokenNotFound  = "Token not found"
	errInvalidUserID  = "Invalid user id"
)
