package server

import "errors"

// Sentinel kinds for listener failures.
var (
	// ErrBind means the address is in use or otherwise unavailable.
	ErrBind = errors.New("cannot bind address")
	// ErrPrivilege means the process lacks permission to bind the address.
	ErrPrivilege = errors.New("insufficient privilege to bind address")
	// ErrServe means the accept loop failed after binding.
	ErrServe = errors.New("serve failed")
)
