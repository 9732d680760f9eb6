// Package publish mirrors the live session to an MQTT broker so remote
// displays can show the count.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/ayusman/repcounter/internal/rep"
)

const (
	connTimeout    = 10
	reconnTimeout  = 1
	disconnTimeout = 250
)

var (
	errPublishTimeout   = errors.New("failed to publish due to timeout reached")
	errSubscribeTimeout = errors.New("failed to subscribe due to timeout reached")
	errEmptyPrefix      = errors.New("empty topic prefix")
	errEmptyID          = errors.New("empty client ID")
)

// Topic suffixes under the configured prefix.
const (
	TopicState   = "state"
	TopicEvents  = "events"
	TopicStatus  = "status"
	TopicControl = "control"
)

// Commands accepted on the control topic.
const (
	CommandRestart = "restart"
)

// Config configures the MQTT publisher.
type Config struct {
	Broker      string
	ClientID    string
	TopicPrefix string
	QoS         byte
	Timeout     time.Duration
}

// Command is the payload of a control message.
type Command struct {
	Command string `json:"command"`
}

// CommandHandler is called for every well-formed control message.
type CommandHandler func(cmd Command)

// Publisher sends snapshots and events of one session to MQTT.
type Publisher struct {
	client  mqtt.Client
	prefix  string
	qos     byte
	timeout time.Duration
}

// New connects to the broker and returns a Publisher. A last-will message
// marks the counter offline if the connection drops.
func New(cfg Config) (*Publisher, error) {
	if cfg.ClientID == "" {
		return nil, errEmptyID
	}
	if cfg.TopicPrefix == "" {
		return nil, errEmptyPrefix
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}

	client, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	return NewWithClient(client, cfg)
}

// NewWithClient wraps an existing client, announcing the counter online.
func NewWithClient(client mqtt.Client, cfg Config) (*Publisher, error) {
	if cfg.TopicPrefix == "" {
		return nil, errEmptyPrefix
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}

	p := &Publisher{
		client:  client,
		prefix:  cfg.TopicPrefix,
		qos:     cfg.QoS,
		timeout: cfg.Timeout,
	}
	if err := p.publish(p.Topic(TopicStatus), true, []byte(`{"status":"online"}`)); err != nil {
		return nil, err
	}
	return p, nil
}

// Topic returns the full topic for a suffix.
func (p *Publisher) Topic(suffix string) string {
	return p.prefix + "/" + suffix
}

// Publish sends the snapshot to the retained state topic and, when the update
// carries one, the event to the events topic.
func (p *Publisher) Publish(u rep.Update) error {
	state, err := json.Marshal(u.Snapshot)
	if err != nil {
		return err
	}
	if err := p.publish(p.Topic(TopicState), true, state); err != nil {
		return err
	}

	if u.Event == nil {
		return nil
	}
	event, err := json.Marshal(u.Event)
	if err != nil {
		return err
	}
	return p.publish(p.Topic(TopicEvents), false, event)
}

// OnCommand subscribes to the control topic.
func (p *Publisher) OnCommand(handler CommandHandler) error {
	token := p.client.Subscribe(p.Topic(TopicControl), p.qos, func(_ mqtt.Client, m mqtt.Message) {
		var cmd Command
		if err := json.Unmarshal(m.Payload(), &cmd); err != nil || cmd.Command == "" {
			logrus.WithField("topic", m.Topic()).Warn("ignoring malformed control message")
			return
		}
		logrus.WithField("command", cmd.Command).Info("mqtt command received")
		handler(cmd)
	})
	if token.Error() != nil {
		return token.Error()
	}
	if ok := token.WaitTimeout(p.timeout); !ok {
		return errSubscribeTimeout
	}
	return nil
}

// Run publishes every update until ctx is done or updates is closed, then
// marks the counter offline and disconnects. Publish failures are logged.
func (p *Publisher) Run(ctx context.Context, updates <-chan rep.Update) error {
	defer p.Close()

	tracking := true
	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			// a run of skipped samples is published once, when tracking is lost
			if u.Skip != rep.SkipNone && !tracking {
				continue
			}
			tracking = u.Snapshot.Tracking || u.Skip == rep.SkipNone
			if err := p.Publish(u); err != nil {
				logrus.WithError(err).Warn("mqtt publish failed")
			}
		}
	}
}

// Close announces the counter offline and disconnects.
func (p *Publisher) Close() {
	if err := p.publish(p.Topic(TopicStatus), true, []byte(`{"status":"offline"}`)); err != nil {
		logrus.WithError(err).Debug("mqtt offline status not sent")
	}
	p.client.Disconnect(disconnTimeout)
}

func (p *Publisher) publish(topic string, retained bool, payload []byte) error {
	token := p.client.Publish(topic, p.qos, retained, payload)
	if token.Error() != nil {
		return token.Error()
	}
	if ok := token.WaitTimeout(p.timeout); !ok {
		return errPublishTimeout
	}
	return token.Error()
}

func newClient(cfg Config) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectTimeout(connTimeout * time.Second).
		SetMaxReconnectInterval(reconnTimeout * time.Minute).
		SetWill(cfg.TopicPrefix+"/"+TopicStatus, `{"status":"offline"}`, cfg.QoS, true)

	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		logrus.WithField("broker", cfg.Broker).Info("MQTT connection established")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logrus.WithError(err).Warn("MQTT connection lost")
	})
	opts.SetReconnectingHandler(func(_ mqtt.Client, options *mqtt.ClientOptions) {
		logrus.WithField("client_id", options.ClientID).Info("MQTT reconnecting")
	})

	client := mqtt.NewClient(opts)

	token := client.Connect()
	if ok := token.WaitTimeout(cfg.Timeout); !ok {
		return nil, fmt.Errorf("timeout reached while connecting to MQTT broker %s", cfg.Broker)
	}
	if token.Error() != nil {
		return nil, errors.Join(errors.New("failed to connect to MQTT broker"), token.Error())
	}

	return client, nil
}
