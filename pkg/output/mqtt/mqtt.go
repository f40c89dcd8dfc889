package mqtt

import (
	"encoding/json"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/ericogr/hcsr04-exerciser/pkg/config"
	"github.com/ericogr/hcsr04-exerciser/pkg/output"
	"github.com/ericogr/hcsr04-exerciser/pkg/sensor"
	"github.com/sirupsen/logrus"
)

const (
	// defaults
	DefaultServer     = "tcp://localhost:1883"
	DefaultClientID   = "hcsr04-exerciser"
	DefaultStateTopic = "hcsr04/state"
	// discovery payload keys/values
	keyName                = "name"
	keyStateTopic          = "state_topic"
	keyUnitOfMeasurement   = "unit_of_measurement"
	keyDeviceClass         = "device_class"
	keyStateClass          = "state_class"
	keyValueTemplate       = "value_template"
	keyJSONAttributesTopic = "json_attributes_topic"
	keyUniqueID            = "unique_id"
	unitCentimetres        = "cm"
	deviceClassDistance    = "distance"
	stateClassMeasurement  = "measurement"
	valueTemplateDistance  = "{{ value_json.distance_cm }}"
)

type MQTTOutput struct {
	client     mqtt.Client
	stateTopic string
}

// WithDefaults fills unset connection fields.
func WithDefaults(cfg config.MQTTConfig) config.MQTTConfig {
	if cfg.Server == "" {
		cfg.Server = DefaultServer
	}
	if cfg.ClientID == "" {
		cfg.ClientID = DefaultClientID
	}
	if cfg.StateTopic == "" {
		cfg.StateTopic = DefaultStateTopic
	}
	return cfg
}

func NewMQTT(cfg config.MQTTConfig, log logrus.FieldLogger) (output.Output, error) {
	cfg = WithDefaults(cfg)
	opts := mqtt.NewClientOptions().AddBroker(cfg.Server).SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}

	m := &MQTTOutput{client: client, stateTopic: cfg.StateTopic}

	// Publish Home Assistant discovery payload if requested
	if cfg.DiscoveryTopic != "" {
		payload := discoveryPayload(cfg)
		if err := publishJSON(client, cfg.DiscoveryTopic, true, payload); err != nil {
			log.WithError(err).Warn("mqtt discovery publish failed")
		}
	}

	return m, nil
}

func (m *MQTTOutput) Publish(r sensor.Reading) error {
	return publishJSON(m.client, m.stateTopic, false, output.NewDocument(r))
}

func (m *MQTTOutput) Close() error {
	if m.client != nil {
		m.client.Disconnect(250)
	}
	return nil
}

// discoveryPayload builds the Home Assistant sensor config for the state topic.
func discoveryPayload(cfg config.MQTTConfig) map[string]interface{} {
	name := cfg.DiscoveryName
	if name == "" {
		name = fmt.Sprintf("HC-SR04 %s", cfg.ClientID)
	}
	uid := cfg.DiscoveryUniqueID
	if uid == "" {
		uid = cfg.ClientID
	}
	payload := map[string]interface{}{
		keyName:                name,
		keyStateTopic:          cfg.StateTopic,
		keyUnitOfMeasurement:   unitCentimetres,
		keyDeviceClass:         deviceClassDistance,
		keyStateClass:          stateClassMeasurement,
		keyValueTemplate:       valueTemplateDistance,
		keyJSONAttributesTopic: cfg.StateTopic,
	}
	if uid != "" {
		payload[keyUniqueID] = uid
	}
	return payload
}

// helper: marshal and publish JSON payload
func publishJSON(client mqtt.Client, topic string, retained bool, payload interface{}) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	token := client.Publish(topic, 0, retained, b)
	token.Wait()
	return token.Error()
}
