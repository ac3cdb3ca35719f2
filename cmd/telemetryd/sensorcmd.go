package main

import (
	"encoding/hex"
	"fmt"
	"math/rand"
	"net"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/abe-bb/sensor-telemetry/internal/defaults"
	"github.com/abe-bb/sensor-telemetry/sensor"
)

var sensorCmd = &cobra.Command{
	Use:   "sensor",
	Short: "Run a simulated firmware loop against a running ingestion server",
	RunE:  runSensor,
}

func init() {
	sensorCmd.Flags().String("target", "127.0.0.1:8000", "Ingestion server address to dial")
	sensorCmd.Flags().String("name", "", "Sensor name (required)")
	sensorCmd.Flags().String("key", "", "Hex-encoded 16-byte symmetric key (required)")
	sensorCmd.Flags().String("iv", "", "Hex-encoded 8-byte IV (required)")
	sensorCmd.Flags().Uint32("interval", defaults.SensorInterval, "Key-rotation interval, in frames")
	sensorCmd.Flags().Duration("period", defaults.SensorPeriod, "Delay between samples")
	_ = sensorCmd.MarkFlagRequired("name")
	_ = sensorCmd.MarkFlagRequired("key")
	_ = sensorCmd.MarkFlagRequired("iv")
}

func runSensor(cmd *cobra.Command, args []string) error {
	target := viper.GetString("target")
	name := viper.GetString("name")
	keyHex := viper.GetString("key")
	ivHex := viper.GetString("iv")
	interval := viper.GetUint32("interval")
	period := viper.GetDuration("period")

	keyBytes, err := hex.DecodeString(keyHex)
	if err != nil || len(keyBytes) != 16 {
		return fmt.Errorf("--key must be 32 hex characters (16 bytes)")
	}
	ivBytes, err := hex.DecodeString(ivHex)
	if err != nil || len(ivBytes) != 8 {
		return fmt.Errorf("--iv must be 16 hex characters (8 bytes)")
	}

	conn, err := net.Dial("tcp", target)
	if err != nil {
		return err
	}
	defer conn.Close()

	cfg := sensor.Config{Name: name, Interval: interval}
	copy(cfg.Key[:], keyBytes)
	copy(cfg.IV[:], ivBytes)

	loop := sensor.New(cfg, newAccelerometerSim(), conn, logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("sensor loop started", "name", name, "target", target, "period", period)
	return loop.Run(ctx, period)
}

// accelerometerSim is a stand-in for real accelerometer hardware: a random
// walk starting at rest that moves each axis by at most 10 milli-g per
// sample (the walk itself is not clamped), giving the ingestion side
// plausible-looking telemetry without depending on any physical sensor.
type accelerometerSim struct {
	x, y, z int32
}

func newAccelerometerSim() *accelerometerSim {
	return &accelerometerSim{z: 1000} // rest position: ~1g on the z axis
}

func (a *accelerometerSim) Sample() (x, y, z int32, ok bool, err error) {
	a.x += int32(rand.Intn(21) - 10)
	a.y += int32(rand.Intn(21) - 10)
	a.z += int32(rand.Intn(21) - 10)
	return a.x, a.y, a.z, true, nil
}
