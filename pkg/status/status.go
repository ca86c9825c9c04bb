// Package status implements the device's tagged-union status model: the
// wire representation of Phone, Hardware, Sensor, Recording, NetworkDevice
// and Template components, a total parse function, and a pure reducer that
// folds a component into an immutable Status snapshot.
package status

import (
	"encoding/json"
	"fmt"
)

// Component is the closed set of status component kinds. The unexported
// method keeps this a closed sum type — callers switch on a type assertion,
// never subclass it.
type Component interface {
	isComponent()
}

// UnknownComponentError is returned by ParseComponent for a model name the
// client does not recognize. Callers should drop the component and log a
// structured warning rather than aborting the whole status update.
type UnknownComponentError struct {
	Model string
}

func (e *UnknownComponentError) Error() string {
	return fmt.Sprintf("status: unknown component model %q", e.Model)
}

// envelope is the wire shape every component arrives in: {model, data}.
type envelope struct {
	Model string          `json:"model"`
	Data  json.RawMessage `json:"data"`
}

// BatteryState enumerates Phone.BatteryState.
type BatteryState string

const (
	BatteryOK        BatteryState = "OK"
	BatteryLow       BatteryState = "LOW"
	BatteryNoBattery BatteryState = "NO_BATTERY"
)

// MemoryState enumerates Phone.MemoryState.
type MemoryState string

const (
	MemoryOK       MemoryState = "OK"
	MemoryLow      MemoryState = "LOW"
	MemoryCritical MemoryState = "CRITICAL"
)

// Phone is the phone/companion-device component.
type Phone struct {
	DeviceID            string       `json:"device_id"`
	DeviceName           string       `json:"device_name"`
	BatteryLevelPercent  int          `json:"battery_level_percent"`
	BatteryState         BatteryState `json:"battery_state"`
	IP                   string       `json:"ip"`
	MemoryBytesFree      int64        `json:"memory_bytes_free"`
	MemoryState          MemoryState  `json:"memory_state"`
	TimeEchoPort         *int         `json:"time_echo_port"`
}

func (Phone) isComponent() {}

// Hardware is the glasses hardware component.
type Hardware struct {
	Version           string `json:"version"`
	ModuleSerial      string `json:"module_serial"`
	GlassesSerial     string `json:"glasses_serial"`
	WorldCameraSerial string `json:"world_camera_serial"`
}

func (Hardware) isComponent() {}

// SensorKind enumerates Sensor.Sensor.
type SensorKind string

const (
	SensorWorld      SensorKind = "world"
	SensorEyes       SensorKind = "eyes"
	SensorGaze       SensorKind = "gaze"
	SensorIMU        SensorKind = "imu"
	SensorAudio      SensorKind = "audio"
	SensorEyeEvents  SensorKind = "eye_events"
)

// ConnectionKind enumerates Sensor.Connection.
type ConnectionKind string

const (
	ConnectionDirect    ConnectionKind = "DIRECT"
	ConnectionWebsocket ConnectionKind = "WEBSOCKET"
)

// SensorKey uniquely identifies a Sensor entry within a Status.
type SensorKey struct {
	Sensor     SensorKind
	Connection ConnectionKind
}

// Sensor describes one media/data source the device exposes.
type Sensor struct {
	Sensor      SensorKind     `json:"sensor"`
	Connection  ConnectionKind `json:"connection"`
	Connected   bool           `json:"connected"`
	IP          string         `json:"ip"`
	Port        int            `json:"port"`
	Protocol    string         `json:"protocol"`
	Params      string         `json:"params"`
	StreamError bool           `json:"stream_error"`
}

func (Sensor) isComponent() {}

// Key returns the Sensor's identity within a Status's sensor set.
func (s Sensor) Key() SensorKey {
	return SensorKey{Sensor: s.Sensor, Connection: s.Connection}
}

// URL reconstructs the RTSP URL this sensor is reachable at, following
// the `rtsp://<ip>:<port>/?<params>` pattern.
func (s Sensor) URL() string {
	if s.Params == "" {
		return fmt.Sprintf("rtsp://%s:%d/", s.IP, s.Port)
	}
	return fmt.Sprintf("rtsp://%s:%d/?%s", s.IP, s.Port, s.Params)
}

// RecordingAction enumerates Recording.Action.
type RecordingAction string

const (
	RecordingActionStart  RecordingAction = "START"
	RecordingActionStop   RecordingAction = "STOP"
	RecordingActionSave   RecordingAction = "SAVE"
	RecordingActionCancel RecordingAction = "CANCEL"
	RecordingActionError  RecordingAction = "ERROR"
)

// Recording is the active-recording component.
type Recording struct {
	ID            string          `json:"id"`
	RecDurationNS int64           `json:"rec_duration_ns"`
	Action        RecordingAction `json:"action"`
	Message       string          `json:"message"`
}

func (Recording) isComponent() {}

// clears reports whether this recording action clears the active recording.
func (r Recording) clears() bool {
	switch r.Action {
	case RecordingActionStop, RecordingActionSave, RecordingActionCancel:
		return true
	default:
		return false
	}
}

// NetworkDevice mirrors DiscoveredDevice but arrives over the status
// channel instead of mDNS.
type NetworkDevice struct {
	Name       string            `json:"name"`
	Host       string            `json:"host"`
	IPv4       string            `json:"ipv4"`
	Port       int               `json:"port"`
	TXTRecords map[string]string `json:"txt_records"`
}

func (NetworkDevice) isComponent() {}

// TemplateItemKind enumerates the allowed Template item widgets.
type TemplateItemKind string

const (
	TemplateItemText          TemplateItemKind = "text"
	TemplateItemParagraph     TemplateItemKind = "paragraph"
	TemplateItemRadioList     TemplateItemKind = "radio_list"
	TemplateItemCheckboxList  TemplateItemKind = "checkbox_list"
)

// TemplateItem is one answerable item within a Template section.
type TemplateItem struct {
	ID            string           `json:"id"`
	Kind          TemplateItemKind `json:"type"`
	Required      bool             `json:"required"`
	AllowedValues []string         `json:"allowed_values,omitempty"`
	Hidden        bool             `json:"hidden"`
	HelpText      string           `json:"help_text,omitempty"`
	Pattern       string           `json:"pattern,omitempty"`
}

// TemplateSection is a named group of items, possibly with nested
// subsections.
type TemplateSection struct {
	Title    string            `json:"title"`
	Items    []TemplateItem    `json:"items,omitempty"`
	Sections []TemplateSection `json:"sections,omitempty"`
}

// Template is the recording questionnaire descriptor.
type Template struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Sections []TemplateSection `json:"sections"`
}

func (Template) isComponent() {}

// ParseComponent dispatches on the wire envelope's model field and returns
// the parsed variant, or UnknownComponentError for an unrecognized model.
func ParseComponent(raw json.RawMessage) (Component, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("status: parse envelope: %w", err)
	}

	switch env.Model {
	case "Phone":
		var p Phone
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, fmt.Errorf("status: parse Phone: %w", err)
		}
		return p, nil
	case "Hardware":
		var h Hardware
		if err := json.Unmarshal(env.Data, &h); err != nil {
			return nil, fmt.Errorf("status: parse Hardware: %w", err)
		}
		return h, nil
	case "Sensor":
		var s Sensor
		if err := json.Unmarshal(env.Data, &s); err != nil {
			return nil, fmt.Errorf("status: parse Sensor: %w", err)
		}
		return s, nil
	case "Recording":
		var r Recording
		if err := json.Unmarshal(env.Data, &r); err != nil {
			return nil, fmt.Errorf("status: parse Recording: %w", err)
		}
		return r, nil
	case "NetworkDevice":
		var n NetworkDevice
		if err := json.Unmarshal(env.Data, &n); err != nil {
			return nil, fmt.Errorf("status: parse NetworkDevice: %w", err)
		}
		return n, nil
	case "Template":
		var t Template
		if err := json.Unmarshal(env.Data, &t); err != nil {
			return nil, fmt.Errorf("status: parse Template: %w", err)
		}
		return t, nil
	default:
		return nil, &UnknownComponentError{Model: env.Model}
	}
}

// SerializeComponent is the inverse of ParseComponent, used by tests
// exercising the "parse ∘ serialize is identity" property.
func SerializeComponent(c Component) (json.RawMessage, error) {
	model, err := modelName(c)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("status: serialize %s: %w", model, err)
	}
	return json.Marshal(envelope{Model: model, Data: data})
}

func modelName(c Component) (string, error) {
	switch c.(type) {
	case Phone:
		return "Phone", nil
	case Hardware:
		return "Hardware", nil
	case Sensor:
		return "Sensor", nil
	case Recording:
		return "Recording", nil
	case NetworkDevice:
		return "NetworkDevice", nil
	case Template:
		return "Template", nil
	default:
		return "", fmt.Errorf("status: unserializable component type %T", c)
	}
}

// Status is an immutable snapshot of everything the device currently
// reports. Apply returns a new Status with one component folded in;
// existing Status values are never mutated, so readers holding an older
// pointer continue to observe a consistent view (an immutable-swap cell).
type Status struct {
	Phone         Phone
	Hardware      Hardware
	Sensors       map[SensorKey]Sensor
	Recording     *Recording
	NetworkPeers  map[string]NetworkDevice
	Template      Template
	APIVersion    string
}

// New returns an empty Status, ready to accumulate components via Apply.
func New() Status {
	return Status{
		Sensors:      make(map[SensorKey]Sensor),
		NetworkPeers: make(map[string]NetworkDevice),
	}
}

// Apply is the pure reducer: it returns a new Status with the given
// component folded in, leaving the receiver untouched.
func (s Status) Apply(c Component) Status {
	next := Status{
		Phone:      s.Phone,
		Hardware:   s.Hardware,
		Recording:  s.Recording,
		Template:   s.Template,
		APIVersion: s.APIVersion,
	}
	next.Sensors = make(map[SensorKey]Sensor, len(s.Sensors))
	for k, v := range s.Sensors {
		next.Sensors[k] = v
	}
	next.NetworkPeers = make(map[string]NetworkDevice, len(s.NetworkPeers))
	for k, v := range s.NetworkPeers {
		next.NetworkPeers[k] = v
	}

	switch v := c.(type) {
	case Phone:
		next.Phone = v
	case Hardware:
		next.Hardware = v
	case Sensor:
		next.Sensors[v.Key()] = v
	case Recording:
		if v.clears() {
			next.Recording = nil
		} else {
			rv := v
			next.Recording = &rv
		}
	case NetworkDevice:
		next.NetworkPeers[v.Name] = v
	case Template:
		next.Template = v
	}

	return next
}

// direct returns the unique DIRECT-connection entry for a sensor kind, or
// false if none is present.
func (s Status) direct(kind SensorKind) (Sensor, bool) {
	sensor, ok := s.Sensors[SensorKey{Sensor: kind, Connection: ConnectionDirect}]
	return sensor, ok
}

// DirectWorldSensor returns the DIRECT world (scene) video sensor, if any.
func (s Status) DirectWorldSensor() (Sensor, bool) { return s.direct(SensorWorld) }

// DirectGazeSensor returns the DIRECT gaze sensor, if any.
func (s Status) DirectGazeSensor() (Sensor, bool) { return s.direct(SensorGaze) }

// DirectEyesSensor returns the DIRECT eye-camera sensor, if any.
func (s Status) DirectEyesSensor() (Sensor, bool) { return s.direct(SensorEyes) }

// DirectIMUSensor returns the DIRECT IMU sensor, if any.
func (s Status) DirectIMUSensor() (Sensor, bool) { return s.direct(SensorIMU) }

// DirectEyeEventsSensor returns the DIRECT eye-events sensor, if any.
func (s Status) DirectEyeEventsSensor() (Sensor, bool) { return s.direct(SensorEyeEvents) }

// FieldChange describes one field whose value differed between two Status
// snapshots, used by cmd/watch and S1-style test assertions.
type FieldChange struct {
	Field string
	Prior any
	Next  any
}

// Diff reports the fields that differ between prior and s. For Phone it
// reports only battery level/state and free memory/state; Hardware,
// Recording and APIVersion are compared whole; a sensor present in s that
// is new or differs in any field is reported as one change, and a sensor
// present only in prior is not reported. Template and network peers are
// not compared.
func (s Status) Diff(prior Status) []FieldChange {
	var changes []FieldChange

	if s.Phone != prior.Phone {
		changes = append(changes, diffPhone(prior.Phone, s.Phone)...)
	}
	if s.Hardware != prior.Hardware {
		changes = append(changes, FieldChange{Field: "hardware", Prior: prior.Hardware, Next: s.Hardware})
	}
	if !recordingEqual(prior.Recording, s.Recording) {
		changes = append(changes, FieldChange{Field: "recording", Prior: prior.Recording, Next: s.Recording})
	}
	if s.APIVersion != prior.APIVersion {
		changes = append(changes, FieldChange{Field: "api_version", Prior: prior.APIVersion, Next: s.APIVersion})
	}
	for key, sensor := range s.Sensors {
		if old, ok := prior.Sensors[key]; !ok || old != sensor {
			changes = append(changes, FieldChange{
				Field: fmt.Sprintf("sensor[%s/%s]", key.Sensor, key.Connection),
				Prior: old,
				Next:  sensor,
			})
		}
	}

	return changes
}

func diffPhone(prior, next Phone) []FieldChange {
	var changes []FieldChange
	if prior.BatteryLevelPercent != next.BatteryLevelPercent {
		changes = append(changes, FieldChange{
			Field: "phone.battery_level_percent",
			Prior: prior.BatteryLevelPercent,
			Next:  next.BatteryLevelPercent,
		})
	}
	if prior.BatteryState != next.BatteryState {
		changes = append(changes, FieldChange{
			Field: "phone.battery_state",
			Prior: prior.BatteryState,
			Next:  next.BatteryState,
		})
	}
	if prior.MemoryBytesFree != next.MemoryBytesFree {
		changes = append(changes, FieldChange{
			Field: "phone.memory_bytes_free",
			Prior: prior.MemoryBytesFree,
			Next:  next.MemoryBytesFree,
		})
	}
	if prior.MemoryState != next.MemoryState {
		changes = append(changes, FieldChange{
			Field: "phone.memory_state",
			Prior: prior.MemoryState,
			Next:  next.MemoryState,
		})
	}
	return changes
}

func recordingEqual(a, b *Recording) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}
