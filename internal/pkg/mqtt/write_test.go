package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	paho_mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anicoll/ostrom-integration/internal/pkg/model"
)

type fakeToken struct {
	err error
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Error() error                   { return t.err }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeClient struct {
	paho_mqtt.Client

	tokenErr error
	messages []published
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho_mqtt.Token {
	c.messages = append(c.messages, published{
		topic:    topic,
		qos:      qos,
		retained: retained,
		payload:  payload.([]byte),
	})
	return &fakeToken{err: c.tokenErr}
}

func testDevice() *model.Device {
	return &model.Device{ID: "client-1", Name: "Ostrom 33378", ZipCode: "33378"}
}

func value(v float64) *float64 {
	return &v
}

func TestWrite_PublishesToAdvertisedStateTopic(t *testing.T) {
	t.Parallel()
	client := &fakeClient{}
	svc := New(client)
	device := testDevice()

	require.NoError(t, svc.RegisterDevice(device))
	require.Len(t, client.messages, 2)

	advertised := make(map[string]struct{})
	for _, msg := range client.messages {
		assert.True(t, msg.retained, "discovery configs must be retained")
		assert.Equal(t, byte(1), msg.qos)

		var config model.RegisterMessage
		require.NoError(t, json.Unmarshal(msg.payload, &config))
		advertised[strings.Replace(config.StateTopic, "~", config.Tilda, 1)] = struct{}{}
	}

	states := []model.SensorState{
		{Name: "Current Price", Slug: "current_price", Value: value(0.21), Unit: "EUR/kWh"},
		{Name: "Hourly Cost", Slug: "hourly_cost", Value: value(0.74), Unit: "EUR"},
	}
	require.NoError(t, svc.Write(context.Background(), device, states))
	require.Len(t, client.messages, 4)

	for _, msg := range client.messages[2:] {
		assert.Contains(t, advertised, msg.topic, "state must land on a discovered topic")
	}
}

func TestRegisterDevice_Idempotent(t *testing.T) {
	t.Parallel()
	client := &fakeClient{}
	svc := New(client)

	require.NoError(t, svc.RegisterDevice(testDevice()))
	require.NoError(t, svc.RegisterDevice(testDevice()))
	assert.Len(t, client.messages, 2, "configured sensors must not be re-announced")
}

func TestRegisterDevice_RejectedPublish(t *testing.T) {
	t.Parallel()
	client := &fakeClient{tokenErr: errors.New("broker rejected")}
	svc := New(client)

	require.Error(t, svc.RegisterDevice(testDevice()))

	// a failed announcement is not marked configured and is retried
	client.tokenErr = nil
	require.NoError(t, svc.RegisterDevice(testDevice()))
	assert.Len(t, client.messages, 3)
}

func TestWrite_UnknownValue(t *testing.T) {
	t.Parallel()
	client := &fakeClient{}
	svc := New(client)

	states := []model.SensorState{{Name: "Current Price", Slug: "current_price", Unit: "EUR/kWh"}}
	require.NoError(t, svc.Write(context.Background(), testDevice(), states))

	require.Len(t, client.messages, 1)
	var payload map[string]string
	require.NoError(t, json.Unmarshal(client.messages[0].payload, &payload))
	assert.Equal(t, "unknown", payload["value"])
}

func TestWrite_RejectedPublish(t *testing.T) {
	t.Parallel()
	client := &fakeClient{tokenErr: errors.New("broker rejected")}
	svc := New(client)

	states := []model.SensorState{{Slug: "current_price", Value: value(0.21)}}
	assert.Error(t, svc.Write(context.Background(), testDevice(), states))
}
