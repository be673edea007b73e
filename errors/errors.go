package errors

import "fmt"

var (
	ErrWorkerPanic      = fmt.Errorf("worker panic")
	ErrEmptyMessage     = fmt.Errorf("message content is empty")
	ErrNoActiveRoom     = fmt.Errorf("no active room")
	ErrNotAuthenticated = fmt.Errorf("no authenticated sender")
	ErrSelfChat         = fmt.Errorf("cannot start a chat with yourself")
	ErrRoomNotFound     = fmt.Errorf("room not found")
	ErrMessageNotFound  = fmt.Errorf("message not found in timeline")
	ErrBusClosed        = fmt.Errorf("event bus is closed")
)
