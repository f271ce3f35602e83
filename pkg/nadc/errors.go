// Package nadc holds the pieces shared by every nadc tool: the error
// codes and severities, the per-file warning stack, logging setup and
// environment loading.
package nadc

import (
	"errors"
	"fmt"
)

// Code identifies the class of a failure, following the NADC_ERR_* set.
type Code int

const (
	ErrNone Code = iota
	ErrFile
	ErrFileRd
	ErrFileWr
	ErrPDSRd
	ErrPDSDSD
	ErrPDSSize
	ErrCalib
	ErrSQL
	ErrHDF
	ErrNetCDF
	ErrTileDB
	ErrAlloc
	ErrParam
)

var codeNames = map[Code]string{
	ErrNone:    "NONE",
	ErrFile:    "FILE",
	ErrFileRd:  "FILE_RD",
	ErrFileWr:  "FILE_WR",
	ErrPDSRd:   "PDS_RD",
	ErrPDSDSD:  "PDS_DSD",
	ErrPDSSize: "PDS_SIZE",
	ErrCalib:   "CALIB",
	ErrSQL:     "SQL",
	ErrHDF:     "HDF",
	ErrNetCDF:  "NETCDF",
	ErrTileDB:  "TILEDB",
	ErrAlloc:   "ALLOC",
	ErrParam:   "PARAM",
}

func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("CODE(%d)", int(c))
}

// Severity tells a caller whether processing of the current file can go on.
type Severity int

const (
	Warning Severity = iota
	Fatal
)

func (s Severity) String() string {
	if s == Fatal {
		return "fatal"
	}
	return "warning"
}

// Error is the error type returned by the readers, the calibration steps
// and the sinks.
type Error struct {
	Code     Code
	Severity Severity
	Op       string
	Err      error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("[%s] %v", e.Code, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %v", e.Code, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Fatalf returns a fatal *Error.
func Fatalf(code Code, op string, format string, args ...any) error {
	return &Error{Code: code, Severity: Fatal, Op: op, Err: fmt.Errorf(format, args...)}
}

// Warnf returns a non-fatal *Error.
func Warnf(code Code, op string, format string, args ...any) error {
	return &Error{Code: code, Severity: Warning, Op: op, Err: fmt.Errorf(format, args...)}
}

// Wrap attaches a code and severity to err. A nil err stays nil.
func Wrap(code Code, sev Severity, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Severity: sev, Op: op, Err: err}
}

// IsFatal reports whether err must stop the processing of a file.
// Errors that carry no severity are treated as fatal.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var ne *Error
	if errors.As(err, &ne) {
		return ne.Severity == Fatal
	}
	return true
}

// CodeOf returns the code of the first *Error in the chain of err.
func CodeOf(err error) Code {
	var ne *Error
	if errors.As(err, &ne) {
		return ne.Code
	}
	return ErrNone
}
