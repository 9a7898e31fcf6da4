package location

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"fieldtrack/internal/geo"
	"fieldtrack/internal/metrics"
	"fieldtrack/internal/model"
)

// TopicFor returns the topic a device publishes fixes on. "+" matches every device.
func TopicFor(deviceID string) string {
	return "fieldtrack/devices/" + deviceID + "/location"
}

type mqttMessage struct {
	Latitude         *float64 `json:"latitude"`
	Longitude        *float64 `json:"longitude"`
	Accuracy         *float64 `json:"accuracy,omitempty"`
	Altitude         *float64 `json:"altitude,omitempty"`
	AltitudeAccuracy *float64 `json:"altitudeAccuracy,omitempty"`
	// Timestamp is unix milliseconds; zero means receive time.
	Timestamp int64  `json:"timestamp"`
	Error     *Error `json:"error,omitempty"`
}

// ConnectMQTT dials broker with the given client id.
func ConnectMQTT(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}
	return client, nil
}

// MQTTProvider turns device location messages into updates.
// Malformed messages are logged and dropped.
type MQTTProvider struct {
	client mqtt.Client
	topic  string
	qos    byte
	feed   *Feed
	logger *log.Logger
	now    func() time.Time

	once     sync.Once
	startErr error
}

func NewMQTTProvider(client mqtt.Client, deviceID string) *MQTTProvider {
	return &MQTTProvider{
		client: client,
		topic:  TopicFor(deviceID),
		qos:    1,
		feed:   NewFeed(),
		logger: log.Default(),
		now:    time.Now,
	}
}

// Subscribe starts the broker subscription on first use.
func (p *MQTTProvider) Subscribe(ctx context.Context) (*Subscription, error) {
	p.once.Do(func() {
		token := p.client.Subscribe(p.topic, p.qos, p.handleMessage)
		token.Wait()
		p.startErr = token.Error()
		if p.startErr == nil {
			p.logger.Printf("[location] subscribed to %s", p.topic)
		}
	})
	if p.startErr != nil {
		return nil, fmt.Errorf("mqtt subscribe %s: %w", p.topic, p.startErr)
	}
	return p.feed.Subscribe(ctx)
}

// Close unsubscribes from the broker and ends all subscriptions.
func (p *MQTTProvider) Close() {
	if p.client != nil && p.client.IsConnected() {
		p.client.Unsubscribe(p.topic).WaitTimeout(2 * time.Second)
	}
	p.feed.Close()
}

func (p *MQTTProvider) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	p.handlePayload(msg.Topic(), msg.Payload())
}

func (p *MQTTProvider) handlePayload(topic string, payload []byte) {
	u, err := decodeMessage(payload, p.now)
	if err != nil {
		metrics.Fixes.WithLabelValues("mqtt", "rejected").Inc()
		p.logger.Printf("[location] dropping message on %s: %v", topic, err)
		return
	}
	if u.Err != nil {
		metrics.Fixes.WithLabelValues("mqtt", "error").Inc()
	} else {
		metrics.Fixes.WithLabelValues("mqtt", "accepted").Inc()
	}
	p.feed.Publish(u)
}

func decodeMessage(payload []byte, now func() time.Time) (Update, error) {
	var m mqttMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		return Update{}, fmt.Errorf("invalid location message: %w", err)
	}
	ts := now()
	if m.Timestamp > 0 {
		ts = time.UnixMilli(m.Timestamp)
	}
	if m.Error != nil {
		if !m.Error.Code.Valid() {
			return Update{}, fmt.Errorf("unknown error code %q", m.Error.Code)
		}
		return Update{Timestamp: ts, Err: m.Error}, nil
	}
	if m.Latitude == nil || m.Longitude == nil {
		return Update{}, fmt.Errorf("latitude and longitude are required")
	}
	c := model.Coordinates{
		Latitude:         *m.Latitude,
		Longitude:        *m.Longitude,
		Accuracy:         m.Accuracy,
		Altitude:         m.Altitude,
		AltitudeAccuracy: m.AltitudeAccuracy,
	}
	if err := geo.ValidateCoordinates(c); err != nil {
		return Update{}, err
	}
	return Update{Coords: c, Timestamp: ts}, nil
}
