package mqtt

import (
	"errors"
	"strconv"
	"strings"
	"time"

	paho_mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/anicoll/ostrom-integration/internal/pkg/publisher"
)

// SubscribeReadings forwards numeric payloads from sourceTopic onto the
// broker under targetTopic. Non-numeric payloads are logged and
// dropped.
func (s *service) SubscribeReadings(sourceTopic, targetTopic string, broker *publisher.Broker) error {
	token := s.client.Subscribe(sourceTopic, 0, func(_ paho_mqtt.Client, msg paho_mqtt.Message) {
		raw := strings.TrimSpace(string(msg.Payload()))
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			zap.L().Warn("ignoring non-numeric reading",
				zap.String("topic", sourceTopic),
				zap.String("payload", raw),
			)
			return
		}
		broker.Publish(targetTopic, value)
	})
	if res := token.WaitTimeout(time.Second * 5); !res {
		return errors.New("unable to subscribe in time")
	}
	return token.Error()
}
