// Package defaults holds conservative default values shared by the
// ingestion server, the control-plane server, and the sensor loop.
package defaults

import "time"

const (
	// HTTPListen is the default control-plane HTTP bind address.
	HTTPListen = "0.0.0.0:3000"
	// TCPListen is the default ingestion TCP bind address.
	TCPListen = "0.0.0.0:8000"
	// AuthorizedUsersDir is the default bootstrap directory of user PEM files.
	AuthorizedUsersDir = "authorized_users"

	// SensorInterval is the default key-rotation interval in frames.
	SensorInterval = 10
	// SensorPeriod is the default delay between sensor samples.
	SensorPeriod = time.Second
	// SerialReadTimeout bounds how long the sensor loop waits on inbound
	// UART bytes before returning to the sample/encrypt/emit cycle.
	SerialReadTimeout = time.Second

	// HTTPReadHeaderTimeout bounds time spent reading request headers.
	HTTPReadHeaderTimeout = 5 * time.Second
	// HTTPReadTimeout bounds time spent reading the full request.
	HTTPReadTimeout = 10 * time.Second
	// HTTPWriteTimeout bounds time spent writing the response.
	HTTPWriteTimeout = 10 * time.Second
	// HTTPIdleTimeout bounds idle keep-alive connections.
	HTTPIdleTimeout = 60 * time.Second
	// HTTPMaxHeaderBytes caps the size of request headers.
	HTTPMaxHeaderBytes = 32 << 10

	// MaxFrameNameBytes caps the sensor-name run read between '>' and '<'.
	MaxFrameNameBytes = 256
	// MaxCipherBytes caps the ciphertext+tag length read per frame (1-byte
	// length field means this can never exceed 255, but the constant keeps
	// call sites self-documenting).
	MaxCipherBytes = 255
)
