package smp

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrTimeout is returned when no response arrived in time.
	ErrTimeout = errors.New("smp: transaction timed out")

	// ErrRejected is matched by every RcError.
	ErrRejected = errors.New("smp: request rejected")

	// ErrDecode is returned for a frame or payload that cannot be decoded.
	ErrDecode = errors.New("smp: decode error")

	ErrTooManyPending  = errors.New("smp: too many pending transactions")
	ErrReset           = errors.New("smp: client reset")
	ErrPayloadTooLarge = errors.New("smp: payload too large")
)

// Rc is an mcumgr management return code.
type Rc int

const (
	RcOK           Rc = 0
	RcUnknown      Rc = 1
	RcNoMem        Rc = 2
	RcInvalid      Rc = 3
	RcTimeout      Rc = 4
	RcNoEnt        Rc = 5
	RcBadState     Rc = 6
	RcMsgSize      Rc = 7
	RcNotSup       Rc = 8
	RcCorrupt      Rc = 9
	RcBusy         Rc = 10
	RcAccessDenied Rc = 11
	RcTooOld       Rc = 12
	RcTooNew       Rc = 13
	RcPerUser      Rc = 256
)

var rcNames = map[Rc]string{
	RcOK:           "MGMT_ERR_EOK",
	RcUnknown:      "MGMT_ERR_EUNKNOWN",
	RcNoMem:        "MGMT_ERR_ENOMEM",
	RcInvalid:      "MGMT_ERR_EINVAL",
	RcTimeout:      "MGMT_ERR_ETIMEOUT",
	RcNoEnt:        "MGMT_ERR_ENOENT",
	RcBadState:     "MGMT_ERR_EBADSTATE",
	RcMsgSize:      "MGMT_ERR_EMSGSIZE",
	RcNotSup:       "MGMT_ERR_ENOTSUP",
	RcCorrupt:      "MGMT_ERR_ECORRUPT",
	RcBusy:         "MGMT_ERR_EBUSY",
	RcAccessDenied: "MGMT_ERR_EACCESSDENIED",
	RcTooOld:       "MGMT_ERR_UNSUPPORTED_TOO_OLD",
	RcTooNew:       "MGMT_ERR_UNSUPPORTED_TOO_NEW",
	RcPerUser:      "MGMT_ERR_EPERUSER",
}

func (rc Rc) String() string {
	if s, ok := rcNames[rc]; ok {
		return s
	}
	if rc > RcPerUser {
		return fmt.Sprintf("MGMT_ERR_EPERUSER+%d", int(rc-RcPerUser))
	}
	return fmt.Sprintf("MGMT_ERR(%d)", int(rc))
}

// RcError is a response that carried a nonzero return code.
type RcError struct {
	Group  Group
	ID     uint8
	Rc     Rc
	Reason string
}

func (e *RcError) Error() string {
	s := fmt.Sprintf("smp: group %d command %d: %s (%d)", e.Group, e.ID, e.Rc, int(e.Rc))
	if e.Reason != "" {
		s += ": " + e.Reason
	}
	return s
}

func (e *RcError) Is(target error) bool { return target == ErrRejected }
