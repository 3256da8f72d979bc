package config

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/ftrias/MCP4551/bus"
)

const (
	serviceName  = "config"
	configPrefix = "config"
	CtxDeviceKey = "device" // context key used for the board ID
)

var (
	ErrNoDevice  = errors.New("config: missing device ID in context")
	ErrNoConfig  = errors.New("config: no embedded config for device")
	ErrNotObject = errors.New("config: embedded config is not a JSON object")
)

// EmbeddedConfigLookup allows overriding how configs are resolved.
var EmbeddedConfigLookup = func(device string) ([]byte, bool) {
	b, ok := embeddedConfigs[device]
	return b, ok
}

type ConfigService struct {
	Name string
}

func NewConfigService() *ConfigService {
	return &ConfigService{Name: serviceName}
}

// publishConfig publishes each top-level key of the board's config as a
// retained config/<key> message. Values stay as decoded JSON (maps, slices,
// float64) so consumers decode them into their own types.
func (s *ConfigService) publishConfig(ctx context.Context, conn *bus.Connection) error {
	device, _ := ctx.Value(CtxDeviceKey).(string)
	if device == "" {
		return ErrNoDevice
	}

	raw, ok := EmbeddedConfigLookup(device)
	if !ok || len(raw) == 0 {
		return ErrNoConfig
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil || m == nil {
		return ErrNotObject
	}

	for k, v := range m {
		conn.Publish(conn.NewMessage(bus.T(configPrefix, k), v, true))
	}
	return nil
}

// Start launches the config publisher in a goroutine.
func (s *ConfigService) Start(ctx context.Context, conn *bus.Connection) {
	go func() {
		if err := s.publishConfig(ctx, conn); err != nil {
			println("Error:", err.Error())
		}
	}()
}
