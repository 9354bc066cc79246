package goOTP

import (
	"context"

	"github.com/MrEthical07/goOTP/session"
)

type clientIPContextKey struct{}
type deviceContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. The backend uses it
// for per-IP code request throttling.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithDevice attaches the client device description recorded on sessions
// opened with ctx.
func WithDevice(ctx context.Context, device session.Device) context.Context {
	return context.WithValue(ctx, deviceContextKey{}, device)
}

// ClientIPFromContext returns the IP attached by [WithClientIP].
func ClientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

// DeviceFromContext returns the device attached by [WithDevice], with IP
// defaulting to the client IP.
func DeviceFromContext(ctx context.Context) session.Device {
	if ctx == nil {
		return session.Device{}
	}
	device, _ := ctx.Value(deviceContextKey{}).(session.Device)
	if device.IP == "" {
		device.IP = ClientIPFromContext(ctx)
	}
	return device
}
