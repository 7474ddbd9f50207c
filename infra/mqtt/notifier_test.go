package mqtt

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/groundctl/passplan/core/model"
)

type fakeToken struct {
	err     error
	timeout bool
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return !t.timeout }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *fakeToken) Error() error { return t.err }

type fakeClient struct {
	connectErr   error
	publishErr   error
	connected    bool
	disconnected bool

	topic   string
	qos     byte
	payload []byte
}

func (c *fakeClient) IsConnected() bool { return c.connected }

func (c *fakeClient) Connect() paho.Token {
	if c.connectErr == nil {
		c.connected = true
	}
	return &fakeToken{err: c.connectErr}
}

func (c *fakeClient) Disconnect(uint) { c.disconnected = true }

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	c.topic = topic
	c.qos = qos
	c.payload = payload.([]byte)
	return &fakeToken{err: c.publishErr}
}

func withFakeClient(t *testing.T, cli *fakeClient) {
	t.Helper()
	orig := newMQTTClient
	newMQTTClient = func(*paho.ClientOptions) pahoClient { return cli }
	t.Cleanup(func() { newMQTTClient = orig })
}

func TestNotifySavedPublishesJSON(t *testing.T) {
	cli := &fakeClient{}
	withFakeClient(t, cli)

	n, err := NewPahoNotifier(Config{Enabled: true, Broker: "tcp://broker:1883", QoS: 1})
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}
	defer n.Close()

	notice := OverrideSavedNotice{
		SessionID:     "s1",
		OpportunityID: "opp-1",
		Allocation:    []model.Allocation{{SiteID: "A", Passes: 5}},
		SavedAt:       time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC),
	}
	if err := n.NotifySaved(notice); err != nil {
		t.Fatalf("notify: %v", err)
	}

	if cli.topic != "passplan/overrides/saved" {
		t.Fatalf("unexpected topic %q", cli.topic)
	}
	if cli.qos != 1 {
		t.Fatalf("unexpected qos %d", cli.qos)
	}
	var got OverrideSavedNotice
	if err := json.Unmarshal(cli.payload, &got); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if got.OpportunityID != "opp-1" || len(got.Allocation) != 1 {
		t.Fatalf("unexpected payload %+v", got)
	}
}

func TestNewPahoNotifierConnectFailure(t *testing.T) {
	cli := &fakeClient{connectErr: errors.New("broker unreachable")}
	withFakeClient(t, cli)

	if _, err := NewPahoNotifier(Config{Enabled: true, Broker: "tcp://broker:1883"}); err == nil {
		t.Fatalf("expected connect error")
	}
}

func TestNotifySavedPublishFailure(t *testing.T) {
	cli := &fakeClient{publishErr: errors.New("not authorized")}
	withFakeClient(t, cli)

	n, err := NewPahoNotifier(Config{Enabled: true, Broker: "tcp://broker:1883"})
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}
	if err := n.NotifySaved(OverrideSavedNotice{OpportunityID: "opp-1"}); err == nil {
		t.Fatalf("expected publish error")
	}
}

func TestCloseDisconnects(t *testing.T) {
	cli := &fakeClient{}
	withFakeClient(t, cli)

	n, err := NewPahoNotifier(Config{Enabled: true, Broker: "tcp://broker:1883"})
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}
	n.Close()
	if !cli.disconnected {
		t.Fatalf("close must disconnect the client")
	}
}

func TestConfigDefaults(t *testing.T) {
	var cfg Config
	cfg.SetDefaults()
	if cfg.Topic != "passplan/overrides/saved" {
		t.Fatalf("unexpected default topic %q", cfg.Topic)
	}
	if cfg.ClientID == "" {
		t.Fatalf("expected generated client id")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled config must validate: %v", err)
	}
	cfg.Enabled = true
	if err := cfg.Validate(); err == nil {
		t.Fatalf("enabled config without broker must fail validation")
	}
}

func TestMockNotifier(t *testing.T) {
	m := &MockNotifier{}
	if err := m.NotifySaved(OverrideSavedNotice{OpportunityID: "opp-1"}); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if sent := m.Sent(); len(sent) != 1 || sent[0].OpportunityID != "opp-1" {
		t.Fatalf("unexpected notices %+v", sent)
	}
	m.Close()
	if err := m.NotifySaved(OverrideSavedNotice{}); err == nil {
		t.Fatalf("closed notifier must reject notices")
	}
}
