// Package eventbus adapts the simulator's internal event emissions onto the
// host desktop shell's subscriber surface: emit_all(event_name, json_value).
package eventbus

import "encoding/json"

// Bus is implemented by the host application embedding the simulator. A
// CLI-only run (the scripted driver) gets a bus that just logs.
type Bus interface {
	EmitAll(event string, payload any) error
}

const (
	EventSandboxStatus   = "sandbox_status"
	EventNewTransaction  = "new_transaction"
	EventNewAPILog       = "new-api-log"
	EventSettingsUpdated = "settings_updated"
)

// NoopBus discards every event; used in tests and in --script mode runs that
// register no listeners.
type NoopBus struct{}

func (NoopBus) EmitAll(event string, payload any) error { return nil }

// LoggingBus marshals and logs every event instead of delivering it
// anywhere, used by the CLI driver when no desktop shell is attached.
type LoggingBus struct {
	Sink func(line string)
}

func (b LoggingBus) EmitAll(event string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if b.Sink != nil {
		b.Sink(event + " " + string(body))
	}
	return nil
}
