package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gosimple/slug"

	"github.com/anicoll/ostrom-integration/internal/pkg/model"
)

// RegisterDevice announces the account's price sensors to Home
// Assistant via MQTT discovery. Discovery messages are retained so HA
// picks them up even after a restart.
func (s *service) RegisterDevice(device *model.Device) error {
	for _, sensor := range []struct {
		name        string
		unit        string
		deviceClass string
	}{
		{name: "Current Price", unit: "EUR/kWh", deviceClass: "monetary"},
		{name: "Hourly Cost", unit: "EUR", deviceClass: "monetary"},
	} {
		sensorSlug := sensorSlug(device, sensor.name)
		s.mu.Lock()
		if _, exists := s.configuredSensors[sensorSlug]; exists {
			s.mu.Unlock()
			continue
		}
		s.mu.Unlock()

		topic := fmt.Sprintf("homeassistant/sensor/%s/config", sensorSlug)
		payload, err := json.Marshal(registerMsg(device, sensor.name, sensor.unit, sensor.deviceClass))
		if err != nil {
			return err
		}
		token := s.client.Publish(topic, 1, true, payload)
		if !token.WaitTimeout(time.Second * 5) {
			return errors.New("timed out publishing discovery config")
		}
		if err := token.Error(); err != nil {
			return err
		}
		s.mu.Lock()
		s.configuredSensors[sensorSlug] = struct{}{}
		s.mu.Unlock()
	}
	return nil
}

// Write publishes each sensor state to the topic its discovery config
// advertised. An unknown value is published as the literal "unknown" so
// HA marks the entity unavailable instead of showing zero.
func (s *service) Write(ctx context.Context, device *model.Device, states []model.SensorState) error {
	for _, state := range states {
		payload := map[string]string{
			"value": "unknown",
		}
		if state.Value != nil {
			payload["value"] = fmt.Sprintf("%.4f", *state.Value)
			payload["unit_of_measurement"] = state.Unit
		}

		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}

		topic := fmt.Sprintf("homeassistant/sensor/%s/state", sensorSlug(device, state.Slug))
		token := s.client.Publish(topic, 0, false, data)
		if !token.WaitTimeout(time.Second * 10) {
			return errors.New("timed out publishing state")
		}
		if err := token.Error(); err != nil {
			return err
		}
	}
	return nil
}

func registerMsg(device *model.Device, name, unit, deviceClass string) model.RegisterMessage {
	sensorSlug := sensorSlug(device, name)
	return model.RegisterMessage{
		Tilda:             fmt.Sprintf("homeassistant/sensor/%s", sensorSlug),
		Name:              fmt.Sprintf("%s %s", device.Name, name),
		ID:                sensorSlug,
		StateTopic:        "~/state",
		UnitOfMeasurement: unit,
		DeviceClass:       deviceClass,
		Device: model.RegisterDevice{
			Name:         device.Name,
			Identifiers:  []string{device.ID},
			Model:        "Spot Price " + device.ZipCode,
			Manufacturer: "Ostrom",
		},
	}
}

func deviceSlug(device *model.Device) string {
	return strings.Replace(slug.Make(device.Name), "-", "_", -1)
}

func sensorSlug(device *model.Device, sensorName string) string {
	return fmt.Sprintf("%s_%s", deviceSlug(device), strings.Replace(slug.Make(sensorName), "-", "_", -1))
}
