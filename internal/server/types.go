// Package server defines helpers shared by the hub and client connection code.
package server

import "strings"

// closeErrorMarkers are fragments of the errors returned when a peer or the
// hub has already torn the connection down.
var closeErrorMarkers = []string{
	"use of closed network connection",
	"websocket: close sent",
	"broken pipe",
	"connection reset by peer",
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	for _, marker := range closeErrorMarkers {
		if strings.Contains(errStr, marker) {
			return true
		}
	}
	return false
}
