package cqc

import (
	"fmt"

	"github.com/danmuck/cqc/internal/protocol"
	"github.com/danmuck/cqc/internal/protocol/hdr"
)

// BackendError is an explicit ERR_* reply from the node. It matches
// protocol.ErrBackend.
type BackendError struct {
	Op   string
	Type hdr.MsgType
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("cqc: %s: node replied %s", e.Op, e.Type)
}

func (e *BackendError) Is(target error) bool { return target == protocol.ErrBackend }

// UnexpectedNotificationError is a reply the pending operation cannot accept.
// It matches protocol.ErrUnexpectedNotification.
type UnexpectedNotificationError struct {
	Op    string
	State OpState
	Got   hdr.MsgType
	Want  hdr.MsgType
	AppID uint16
}

func (e *UnexpectedNotificationError) Error() string {
	return fmt.Sprintf("cqc: %s: got %s (app %d) while %s, want %s", e.Op, e.Got, e.AppID, e.State, e.Want)
}

func (e *UnexpectedNotificationError) Is(target error) bool {
	return target == protocol.ErrUnexpectedNotification
}
