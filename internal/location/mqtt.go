package location

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTOptions configures the GPS topic subscription
type MQTTOptions struct {
	Broker   string
	Topic    string
	ClientID string
	MaxAge   time.Duration
}

// MQTTPositioner keeps the latest GPS fix published on an MQTT topic.
// Payloads are JSON objects with lat/lon (or latitude/longitude) and an optional RFC 3339 time.
type MQTTPositioner struct {
	client mqtt.Client
	topic  string
	maxAge time.Duration
	now    func() time.Time

	mu     sync.RWMutex
	latest *Fix
}

type gpsPayload struct {
	Lat       *float64 `json:"lat"`
	Lon       *float64 `json:"lon"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Time      string   `json:"time"`
}

// NewMQTTPositioner connects to the broker and subscribes to the GPS topic
func NewMQTTPositioner(o MQTTOptions) (*MQTTPositioner, error) {
	p := &MQTTPositioner{
		topic:  o.Topic,
		maxAge: o.MaxAge,
		now:    time.Now,
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(o.Broker)
	opts.SetClientID(o.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectionLostHandler(func(c mqtt.Client, err error) {
		slog.Warn("MQTT connection lost", "broker", o.Broker, "error", err)
	})
	// Subscriptions are not kept across reconnects with a clean session
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		token := c.Subscribe(p.topic, 0, p.onMessage)
		if token.Wait() && token.Error() != nil {
			slog.Error("MQTT subscribe failed", "topic", p.topic, "error", token.Error())
			return
		}
		slog.Debug("Subscribed to GPS topic", "topic", p.topic)
	})

	p.client = mqtt.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(10*time.Second) {
		return nil, fmt.Errorf("timed out connecting to MQTT broker %s", o.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}

	slog.Info("Connected to MQTT broker", "broker", o.Broker, "topic", o.Topic)
	return p, nil
}

func (p *MQTTPositioner) onMessage(_ mqtt.Client, msg mqtt.Message) {
	fix, err := parseFix(msg.Payload(), p.now())
	if err != nil {
		slog.Debug("Ignoring GPS message", "topic", msg.Topic(), "error", err)
		return
	}
	p.store(fix)
}

func (p *MQTTPositioner) store(fix Fix) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.latest = &fix
}

// Position returns the latest fix unless it is older than the configured max age
func (p *MQTTPositioner) Position(ctx context.Context) (Fix, error) {
	if err := ctx.Err(); err != nil {
		return Fix{}, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.latest == nil {
		return Fix{}, ErrNoFix
	}
	if p.maxAge > 0 && p.now().Sub(p.latest.Time) > p.maxAge {
		return Fix{}, fmt.Errorf("%w: last fix is %s old", ErrNoFix, p.now().Sub(p.latest.Time).Round(time.Second))
	}
	return *p.latest, nil
}

// Close disconnects from the broker
func (p *MQTTPositioner) Close() {
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(250)
	}
}

func parseFix(payload []byte, received time.Time) (Fix, error) {
	var msg gpsPayload
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Fix{}, fmt.Errorf("invalid GPS payload: %w", err)
	}

	lat, lon := msg.Lat, msg.Lon
	if lat == nil {
		lat = msg.Latitude
	}
	if lon == nil {
		lon = msg.Longitude
	}
	if lat == nil || lon == nil {
		return Fix{}, fmt.Errorf("GPS payload has no coordinates")
	}
	if *lat < -90 || *lat > 90 || *lon < -180 || *lon > 180 {
		return Fix{}, fmt.Errorf("GPS coordinates out of range: %f, %f", *lat, *lon)
	}

	fix := Fix{Latitude: *lat, Longitude: *lon, Time: received}
	if msg.Time != "" {
		t, err := time.Parse(time.RFC3339, msg.Time)
		if err != nil {
			return Fix{}, fmt.Errorf("invalid GPS time %q: %w", msg.Time, err)
		}
		fix.Time = t
	}
	return fix, nil
}
