// Package bluetooth implements a cross-platform Bluetooth Low Energy
// central/GATT-client: scanning for advertising peripherals, connecting to
// one, discovering its attribute database, and performing GATT read,
// write, and notify/indicate operations against it.
//
// The package runs on Linux (via BlueZ over D-Bus), Windows (via the WinRT
// Bluetooth APIs), and macOS (via CoreBluetooth). Each OS is implemented as
// an independent backend behind the same Scanner/Client API; see backend.go
// for the contract every backend satisfies.
//
// This package implements the central/GATT-client role only: it does not
// advertise, does not implement a GATT server, and connects to at most one
// peripheral per Client.
package bluetooth // import "github.com/oscentral/bluetooth"

import (
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
)

// Log is the package-wide logger used for advisory and debug output (BlueZ
// InProgress retries, passive-scan notices, write-response mismatches,
// slow advertisement-stream consumers). It
// defaults to logrus's standard logger. Set BLEAK_LOGGING=1 to raise it to
// debug level, or replace Log entirely before using the package.
var Log logrus.FieldLogger = logrus.StandardLogger()

func init() {
	if enabled, _ := strconv.ParseBool(os.Getenv("BLEAK_LOGGING")); enabled {
		logrus.SetLevel(logrus.DebugLevel)
	}
}

// DefaultBackend constructs the Backend for the OS this binary was built
// for (linuxBackend over BlueZ D-Bus, darwinBackend over CoreBluetooth, or
// windowsBackend over the WinRT Bluetooth APIs), ready to pass to
// NewScanner or NewClient. Tests and callers that want to talk to a
// simulated peripheral construct their own Backend instead.
func DefaultBackend() (Backend, error) {
	return newDefaultBackend()
}
