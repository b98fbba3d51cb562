package model

type RegisterDevice struct {
	Name         string   `json:"name"`
	Identifiers  []string `json:"identifiers"`
	Model        string   `json:"model"`
	Manufacturer string   `json:"manufacturer"`
}

type RegisterMessage struct {
	Tilda             string         `json:"~"`
	Name              string         `json:"name"`
	ID                string         `json:"unique_id"`
	StateTopic        string         `json:"state_topic"`
	UnitOfMeasurement string         `json:"unit_of_measurement"`
	DeviceClass       string         `json:"device_class"`
	Device            RegisterDevice `json:"device"`
}

// Device identifies one configured Ostrom account.
type Device struct {
	ID      string
	Name    string
	ZipCode string
}

// SensorState is one publishable sensor value. A nil Value means the
// reading is unknown and must never be rendered as zero.
type SensorState struct {
	Name  string   `json:"name"`
	Slug  string   `json:"slug"`
	Value *float64 `json:"value"`
	Unit  string   `json:"unit"`
}
