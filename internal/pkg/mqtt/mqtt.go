package mqtt

import (
	"errors"
	"sync"
	"time"

	paho_mqtt "github.com/eclipse/paho.mqtt.golang"
)

type service struct {
	client paho_mqtt.Client

	mu                sync.Mutex
	configuredSensors map[string]struct{}
}

func New(client paho_mqtt.Client) *service {
	return &service{
		client:            client,
		configuredSensors: make(map[string]struct{}),
	}
}

func (s *service) Connect() error {
	token := s.client.Connect()
	if !token.WaitTimeout(time.Second * 5) {
		return errors.New("unable to connect in time")
	}
	return token.Error()
}
