package player

import (
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	jsoniter "github.com/json-iterator/go"

	"github.com/shaunagostinho/globe-radio/internal/catalog"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// MQTTConfig configures the command topic an external media player
// subscribes to.
type MQTTConfig struct {
	Broker   string `yaml:"broker" json:"broker"` // e.g. tcp://localhost:1883
	Topic    string `yaml:"topic" json:"topic"`
	ClientID string `yaml:"client_id" json:"clientId"`
}

// Command is the JSON payload published for every play or stop.
type Command struct {
	Action string `json:"action"` // "play" or "stop"
	City   string `json:"city,omitempty"`
	Name   string `json:"name,omitempty"`
	URL    string `json:"url,omitempty"`
}

const mqttTimeout = 5 * time.Second

// MQTTPlayer publishes commands with QoS 1 and the retained flag set, so a
// player that reconnects picks up the current station.
type MQTTPlayer struct {
	cfg    MQTTConfig
	client mqtt.Client
}

// NewMQTT connects to the broker. Auto-reconnect is on; commands issued
// while the connection is down are queued by the client.
func NewMQTT(cfg MQTTConfig) (*MQTTPlayer, error) {
	if cfg.Topic == "" {
		cfg.Topic = "globeradio/player"
	}
	if cfg.ClientID == "" {
		cfg.ClientID = fmt.Sprintf("globeradio-%d", time.Now().Unix())
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(time.Minute)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Printf("[player] mqtt connection lost: %v", err)
	})
	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Printf("[player] mqtt connected to %s, publishing on %s", cfg.Broker, cfg.Topic)
	})

	p := &MQTTPlayer{cfg: cfg, client: mqtt.NewClient(opts)}
	token := p.client.Connect()
	if !token.WaitTimeout(mqttTimeout) {
		return nil, fmt.Errorf("player: mqtt connect to %s timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("player: mqtt connect to %s: %w", cfg.Broker, err)
	}
	return p, nil
}

func (p *MQTTPlayer) Name() string { return "mqtt" }

func (p *MQTTPlayer) Play(city string, st catalog.Station) error {
	return p.publish(Command{Action: "play", City: city, Name: st.Name, URL: st.URL})
}

func (p *MQTTPlayer) Stop() error {
	return p.publish(Command{Action: "stop"})
}

func (p *MQTTPlayer) Close() error {
	err := p.Stop()
	p.client.Disconnect(250)
	return err
}

func (p *MQTTPlayer) publish(cmd Command) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("player: %w", err)
	}
	token := p.client.Publish(p.cfg.Topic, 1, true, payload)
	if !token.WaitTimeout(mqttTimeout) {
		return fmt.Errorf("player: publish %s timed out", cmd.Action)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("player: publish %s: %w", cmd.Action, err)
	}
	return nil
}
