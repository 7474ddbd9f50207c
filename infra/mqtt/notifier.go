// Package mqtt broadcasts saved overrides to sibling planning consoles over
// an MQTT broker. Delivery is best-effort: a broken broker never blocks a
// save, it only costs the refresh hint.
package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/groundctl/passplan/core/logger"
	"github.com/groundctl/passplan/core/model"
	infralogger "github.com/groundctl/passplan/infra/logger"
)

// Config defines the connection parameters for the notifier.
type Config struct {
	Enabled  bool   `json:"enabled"`
	Broker   string `json:"broker"`
	ClientID string `json:"client_id"`
	Username string `json:"username"`
	Password string `json:"password"`
	Topic    string `json:"topic"`
	QoS      byte   `json:"qos"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.Topic == "" {
		c.Topic = "passplan/overrides/saved"
	}
	if c.ClientID == "" {
		c.ClientID = "passplan-" + uuid.NewString()[:8]
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Broker == "" {
		return fmt.Errorf("mqtt broker is required when enabled")
	}
	return nil
}

// OverrideSavedNotice is the payload published after a successful save.
type OverrideSavedNotice struct {
	SessionID     string             `json:"session_id"`
	OpportunityID string             `json:"opportunity_id"`
	Allocation    []model.Allocation `json:"allocation"`
	ForceOverride bool               `json:"force_override"`
	SavedAt       time.Time          `json:"saved_at"`
}

// Notifier publishes override-saved notices.
type Notifier interface {
	NotifySaved(notice OverrideSavedNotice) error
	Close()
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// PahoNotifier implements Notifier on Eclipse Paho.
type PahoNotifier struct {
	cli   pahoClient
	topic string
	qos   byte
	log   logger.Logger
}

// NewPahoNotifier connects to the broker and returns a ready notifier.
func NewPahoNotifier(cfg Config) (*PahoNotifier, error) {
	cfg.SetDefaults()
	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetConnectTimeout(5 * time.Second).
		SetAutoReconnect(true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	cli := newMQTTClient(opts)
	token := cli.Connect()
	if !token.WaitTimeout(10*time.Second) || token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}
	return &PahoNotifier{
		cli:   cli,
		topic: cfg.Topic,
		qos:   cfg.QoS,
		log:   infralogger.New("mqtt-notifier"),
	}, nil
}

// NotifySaved publishes the notice as JSON.
func (n *PahoNotifier) NotifySaved(notice OverrideSavedNotice) error {
	payload, err := json.Marshal(notice)
	if err != nil {
		return fmt.Errorf("encode notice: %w", err)
	}
	token := n.cli.Publish(n.topic, n.qos, false, payload)
	if !token.WaitTimeout(5*time.Second) || token.Error() != nil {
		return fmt.Errorf("publish notice: %w", token.Error())
	}
	n.log.Debugw("override notice published", map[string]any{
		"opportunity": notice.OpportunityID,
		"topic":       n.topic,
	})
	return nil
}

// Close disconnects from the broker.
func (n *PahoNotifier) Close() {
	n.cli.Disconnect(250)
}
