package viewmodel

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/dovecote/pigeon/internal/deviceapi"
	"github.com/dovecote/pigeon/internal/logging"
)

// ErrInFlight is returned when an action is started while the same action
// is still running
var ErrInFlight = errors.New("action already in progress")

// Device is the part of the device API the view-model uses.
// *deviceapi.Client implements it.
type Device interface {
	ScanNetworks(ctx context.Context) (*deviceapi.NetworkList, error)
	ApplySettings(ctx context.Context, payload deviceapi.SettingsPayload) (*deviceapi.ApplyResult, error)
	FetchSettings(ctx context.Context) (*deviceapi.Settings, error)
}

// ViewModel runs user actions against a device. It is safe for concurrent use.
type ViewModel struct {
	device Device
	logger *zap.Logger

	mu       sync.Mutex
	inFlight map[Action]bool
}

// New creates a view-model for device. A nil logger uses the global one.
func New(device Device, logger *zap.Logger) *ViewModel {
	if logger == nil {
		logger = logging.Named("viewmodel")
	}
	return &ViewModel{
		device:   device,
		logger:   logger,
		inFlight: make(map[Action]bool),
	}
}

// Scan asks the device for visible WiFi networks (GET /wifi/networks)
func (vm *ViewModel) Scan(ctx context.Context) Outcome {
	return vm.run(ActionScan, func() Outcome {
		list, err := vm.device.ScanNetworks(ctx)
		if err != nil {
			return Outcome{Err: err}
		}
		if list.WifiList == nil {
			vm.logger.Debug("Scan response has no wifi_list")
		} else {
			vm.logger.Info("Scan complete", zap.Int("networks", len(list.WifiList)))
		}
		return Outcome{Networks: list}
	})
}

// Apply sends the fields to the device (POST /settings). The network list
// is left alone; the outcome carries the device's acknowledgement.
func (vm *ViewModel) Apply(ctx context.Context, f Fields) Outcome {
	return vm.run(ActionApply, func() Outcome {
		result, err := vm.device.ApplySettings(ctx, f.Payload())
		if err != nil {
			return Outcome{Err: err}
		}
		vm.logger.Info("Settings applied",
			zap.Int("status_code", result.StatusCode),
			zap.String("wifi_ssid", f.WifiSSID),
		)
		return Outcome{Applied: result}
	})
}

// Fetch reads the stored settings (GET /settings) for diagnostics
func (vm *ViewModel) Fetch(ctx context.Context) Outcome {
	return vm.run(ActionFetch, func() Outcome {
		settings, err := vm.device.FetchSettings(ctx)
		if err != nil {
			return Outcome{Err: err}
		}
		redacted := settings.Redacted()
		vm.logger.Debug("Fetched settings", zap.Any("settings", redacted))
		return Outcome{Settings: settings}
	})
}

// Running reports whether action is in flight
func (vm *ViewModel) Running(action Action) bool {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.inFlight[action]
}

func (vm *ViewModel) run(action Action, fn func() Outcome) Outcome {
	vm.mu.Lock()
	if vm.inFlight[action] {
		vm.mu.Unlock()
		vm.logger.Debug("Ignoring duplicate action", zap.Stringer("action", action))
		return Outcome{Action: action, Err: ErrInFlight}
	}
	vm.inFlight[action] = true
	vm.mu.Unlock()

	defer func() {
		vm.mu.Lock()
		delete(vm.inFlight, action)
		vm.mu.Unlock()
	}()

	out := fn()
	out.Action = action
	if out.Err != nil {
		vm.logger.Warn("Action failed",
			zap.Stringer("action", action),
			zap.Error(out.Err),
		)
	}
	return out
}
