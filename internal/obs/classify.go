// SPDX-License-Identifier: GPL-3.0-or-later

package obs

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"
)

// ClassifySystem is an [ErrClassifierFunc] that classifies transport-level
// errors into Unix-errno-style labels, so structured logs group identically
// across platforms (the Windows table maps WSA errors onto the same names).
//
// Errors produced by this module (wrapped in [*Error]) classify to their
// [Kind]; system errors classify to their errno name; everything else
// classifies to "EGENERIC".
func ClassifySystem(err error) string {
	if err == nil {
		return ""
	}

	var ce *Error
	if errors.As(err, &ce) {
		return string(ce.Kind)
	}

	switch {
	case errors.Is(err, context.Canceled):
		return "EINTR"
	case errors.Is(err, context.DeadlineExceeded):
		return "ETIMEDOUT"
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return "EOF"
	case errors.Is(err, net.ErrClosed):
		return "ECONNABORTED"
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		if name, ok := errnoNames[errno]; ok {
			return name
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "ETIMEDOUT"
	}

	return "EGENERIC"
}

// errnoNames maps the platform errno constants (classify_unix.go,
// classify_windows.go) to their portable labels.
var errnoNames = map[syscall.Errno]string{
	syscall.Errno(errEADDRNOTAVAIL):   "EADDRNOTAVAIL",
	syscall.Errno(errEADDRINUSE):      "EADDRINUSE",
	syscall.Errno(errECONNABORTED):    "ECONNABORTED",
	syscall.Errno(errECONNREFUSED):    "ECONNREFUSED",
	syscall.Errno(errECONNRESET):      "ECONNRESET",
	syscall.Errno(errEHOSTUNREACH):    "EHOSTUNREACH",
	syscall.Errno(errEINVAL):          "EINVAL",
	syscall.Errno(errEINTR):           "EINTR",
	syscall.Errno(errENETDOWN):        "ENETDOWN",
	syscall.Errno(errENETUNREACH):     "ENETUNREACH",
	syscall.Errno(errENOBUFS):         "ENOBUFS",
	syscall.Errno(errENOTCONN):        "ENOTCONN",
	syscall.Errno(errEPROTONOSUPPORT): "EPROTONOSUPPORT",
	syscall.Errno(errETIMEDOUT):       "ETIMEDOUT",
}
