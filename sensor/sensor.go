// Package sensor simulates the embedded firmware loop: poll the
// accelerometer, build a JSON record, rotate the epoch key when needed,
// encrypt with AES-128-CCM, and emit a framed packet on the serial link.
package sensor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/abe-bb/sensor-telemetry/crypto/ccm"
	"github.com/abe-bb/sensor-telemetry/crypto/epochkey"
	"github.com/abe-bb/sensor-telemetry/internal/defaults"
	"github.com/abe-bb/sensor-telemetry/wire"
)

// noEpoch differs from epoch 0, the epoch of the first frame (counter 0),
// guaranteeing the first RunOnce call always computes the initial key.
const noEpoch = ^uint32(0)

// Sampler stands in for the accelerometer driver. It returns ok=false when
// no new sample is available, in which case the loop skips the frame.
type Sampler interface {
	Sample() (x, y, z int32, ok bool, err error)
}

// Port is the subset of a serial/TCP connection the loop needs: writing
// frames out and bounding how long it waits on inbound bytes.
type Port interface {
	Write(p []byte) (int, error)
	Read(p []byte) (int, error)
	SetReadDeadline(t time.Time) error
}

// Config is the fixed key material and schedule for one sensor identity.
type Config struct {
	Name     string
	Key      [16]byte
	IV       [8]byte
	Interval uint32
}

// Loop runs the steady-state sample/build/encrypt/emit cycle for one sensor
// identity.
type Loop struct {
	cfg     Config
	sampler Sampler
	port    Port
	log     *slog.Logger

	readTimeout time.Duration

	counter       uint64
	previousEpoch uint32
	epochKey      [16]byte
}

// New constructs a firmware loop for one sensor identity.
func New(cfg Config, sampler Sampler, port Port, log *slog.Logger) *Loop {
	return &Loop{
		cfg:           cfg,
		sampler:       sampler,
		port:          port,
		log:           log,
		readTimeout:   defaults.SerialReadTimeout,
		previousEpoch: noEpoch,
	}
}

// Run drives RunOnce every period until ctx is canceled.
func (l *Loop) Run(ctx context.Context, period time.Duration) error {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			l.RunOnce()
		}
	}
}

// RunOnce executes one iteration of the firmware loop: sample, build,
// rotate key if needed, encrypt, emit, then service any inbound bytes.
func (l *Loop) RunOnce() {
	x, y, z, ok, err := l.sampler.Sample()
	if err != nil {
		l.log.Warn("accelerometer read failed, skipping frame", "sensor", l.cfg.Name, "error", err)
		l.serviceInbound()
		return
	}
	if !ok {
		l.serviceInbound()
		return
	}

	body := buildData(x, y, z)

	epoch := epochkey.Epoch(l.counter, l.cfg.Interval)
	if epoch != l.previousEpoch {
		l.epochKey = epochkey.Derive(l.counter, l.cfg.Key, l.cfg.Interval)
		l.previousEpoch = epoch
	}

	nonce := wire.Nonce(l.counter, l.cfg.IV)
	cipher, err := ccm.New(l.epochKey)
	if err != nil {
		l.log.Error("constructing CCM cipher", "sensor", l.cfg.Name, "error", err)
		l.serviceInbound()
		return
	}

	sealed, err := cipher.Seal(nonce, body, nil)
	if err != nil {
		// Do NOT advance the counter on a failed seal, so the next attempt
		// retries under the same, still-unused nonce.
		l.log.Error("encryption failed, frame dropped", "sensor", l.cfg.Name, "error", err)
		l.serviceInbound()
		return
	}

	if err := wire.WriteFrame(l.port, l.cfg.Name, l.counter, sealed); err != nil {
		l.log.Error("writing frame", "sensor", l.cfg.Name, "error", err)
		l.serviceInbound()
		return
	}

	l.counter++
	l.serviceInbound()
}

// buildData renders the textual record the original firmware emits.
func buildData(x, y, z int32) []byte {
	return []byte(fmt.Sprintf(`{"accel_x": %d, "accel_y": %d, "accel_z": %d}`, x, y, z))
}

// serviceInbound drains (and discards) any bytes waiting on the UART within
// a bounded timeout; the protocol is currently one-way.
func (l *Loop) serviceInbound() {
	if err := l.port.SetReadDeadline(time.Now().Add(l.readTimeout)); err != nil {
		return
	}
	var buf [256]byte
	n, err := l.port.Read(buf[:])
	if err != nil {
		return
	}
	if n > 0 {
		l.log.Debug("discarded inbound bytes on one-way link", "sensor", l.cfg.Name, "bytes", n)
	}
}

// jsonFields is used only to validate buildData's output shape in tests.
type jsonFields struct {
	AccelX int32 `json:"accel_x"`
	AccelY int32 `json:"accel_y"`
	AccelZ int32 `json:"accel_z"`
}

// DecodeTestFields parses a body produced by buildData back into its fields.
// Exported so tests can assert on decoded content without duplicating the
// JSON shape.
func DecodeTestFields(body []byte) (x, y, z int32, err error) {
	var f jsonFields
	if err := json.Unmarshal(body, &f); err != nil {
		return 0, 0, 0, err
	}
	return f.AccelX, f.AccelY, f.AccelZ, nil
}
