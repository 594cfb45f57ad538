package sink

import (
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/catflap/catflap/internal/errors"
	"github.com/catflap/catflap/internal/logging"
)

// BusConfig configures the MQTT publisher.
type BusConfig struct {
	Broker   string
	ClientID string
	Topic    string // Used when a template resolves no topic
	QoS      byte
	Retain   bool
	Timeout  time.Duration
}

// publisher is the part of mqtt.Client the sink needs.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// BusSink publishes each output on an MQTT topic.
type BusSink struct {
	cfg    BusConfig
	client mqtt.Client
	pub    publisher
	log    zerolog.Logger
}

// DialBus connects to the configured broker.
func DialBus(cfg BusConfig) (*BusSink, error) {
	if cfg.ClientID == "" {
		cfg.ClientID = "catflap-" + uuid.NewString()[:8]
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetConnectTimeout(cfg.Timeout)
	opts.AutoReconnect = true

	log := logging.GetLogger("sink.bus")
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Str("broker", cfg.Broker).Msg("MQTT connection lost")
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(cfg.Timeout) {
		return nil, errors.Newf(errors.ErrSink, "connecting to %s timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, errors.Wrapf(err, errors.ErrSink, "connecting to %s", cfg.Broker)
	}

	s := newBusSink(client, cfg)
	s.client = client
	return s, nil
}

func newBusSink(pub publisher, cfg BusConfig) *BusSink {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &BusSink{cfg: cfg, pub: pub, log: logging.GetLogger("sink.bus")}
}

func (s *BusSink) Kind() Kind { return KindBus }

// Emit publishes the body on the output's topic.
func (s *BusSink) Emit(out Output) error {
	topic := out.Topic
	if topic == "" {
		topic = s.cfg.Topic
	}
	if topic == "" {
		return errors.Newf(errors.ErrSink, "template %s has no topic", out.Template)
	}

	token := s.pub.Publish(topic, s.cfg.QoS, s.cfg.Retain, []byte(out.Body))
	if !token.WaitTimeout(s.cfg.Timeout) {
		return errors.Newf(errors.ErrSink, "publishing to %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		return errors.Wrapf(err, errors.ErrSink, "publishing to %s", topic)
	}

	s.log.Debug().Str("topic", topic).Int("bytes", len(out.Body)).Msg("Published template output")
	return nil
}

// Close disconnects from the broker.
func (s *BusSink) Close() error {
	if s.client != nil {
		s.client.Disconnect(250)
	}
	return nil
}
