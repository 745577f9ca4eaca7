package models

import (
	"net"
	"runtime"
	"strconv"

	"github.com/google/uuid"
)

const AppVersion = "1.0.0"

// DeviceInfo identifies one peer on the local network. It is created once
// per process at startup and embedded read-only into pairing payloads and
// discovery envelopes.
type DeviceInfo struct {
	DeviceID   string `json:"device_id"`
	DeviceName string `json:"device_name"`
	IPAddress  string `json:"ip_address"`
	Port       int    `json:"port"`
	OSVersion  string `json:"os_version"`
	AppVersion string `json:"app_version"`
}

func NewDeviceInfo(name string, ip string, port int) DeviceInfo {
	return DeviceInfo{
		DeviceID:   uuid.NewString(),
		DeviceName: name,
		IPAddress:  ip,
		Port:       port,
		OSVersion:  runtime.GOOS,
		AppVersion: AppVersion,
	}
}

// Addr returns the host:port the device listens on.
func (d DeviceInfo) Addr() string {
	return net.JoinHostPort(d.IPAddress, strconv.Itoa(d.Port))
}
