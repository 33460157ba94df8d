package relay

import (
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/technosupport/ts-vms-monitor/internal/config"
	"github.com/technosupport/ts-vms-monitor/internal/data"
)

const mqttPublishTimeout = 5 * time.Second

// MQTTPublisher publishes events on <topic>/<camera id>.
type MQTTPublisher struct {
	client mqtt.Client
	topic  string
	qos    byte
}

func NewMQTTPublisher(client mqtt.Client, topic string, qos byte) *MQTTPublisher {
	return &MQTTPublisher{client: client, topic: topic, qos: qos}
}

// DialMQTT connects to the broker and waits for the first CONNACK.
func DialMQTT(cfg config.MQTTConfig) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	return NewMQTTPublisher(client, cfg.Topic, cfg.QoS), nil
}

func (p *MQTTPublisher) Name() string { return "mqtt" }

func (p *MQTTPublisher) Topic(evt data.DomainEvent) string {
	if evt.CameraID == "" {
		return p.topic
	}
	return p.topic + "/" + evt.CameraID
}

func (p *MQTTPublisher) Publish(evt data.DomainEvent) error {
	payload, err := encode(evt)
	if err != nil {
		return err
	}

	topic := p.Topic(evt)
	token := p.client.Publish(topic, p.qos, false, payload)
	if !token.WaitTimeout(mqttPublishTimeout) {
		return fmt.Errorf("publish to topic %s timed out", topic)
	}
	if token.Error() != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, token.Error())
	}
	return nil
}

func (p *MQTTPublisher) Close() error {
	p.client.Disconnect(250)
	return nil
}
