package sink

import (
	stderrors "errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catflap/catflap/internal/errors"
)

type fakeToken struct {
	mqtt.Token
	done bool
	err  error
}

func (t *fakeToken) Wait() bool { return t.done }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return t.done }
func (t *fakeToken) Error() error { return t.err }

type published struct {
	topic   string
	qos     byte
	retain  bool
	payload string
}

type fakePublisher struct {
	sent  []published
	token *fakeToken
}

func (p *fakePublisher) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	p.sent = append(p.sent, published{topic, qos, retained, string(payload.([]byte))})
	return p.token
}

func TestBusSinkPublishes(t *testing.T) {
	pub := &fakePublisher{token: &fakeToken{done: true}}
	s := newBusSink(pub, BusConfig{Topic: "catflap/default", QoS: 1, Retain: true})
	assert.Equal(t, KindBus, s.Kind())

	require.NoError(t, s.Emit(Output{Template: "a", Topic: "catflap/match", Body: "hello"}))
	require.NoError(t, s.Emit(Output{Template: "b", Body: "world"}))

	require.Len(t, pub.sent, 2)
	assert.Equal(t, published{"catflap/match", 1, true, "hello"}, pub.sent[0])
	assert.Equal(t, "catflap/default", pub.sent[1].topic)
}

func TestBusSinkFailures(t *testing.T) {
	tests := []struct {
		name  string
		token *fakeToken
		cfg   BusConfig
	}{
		{"timeout", &fakeToken{done: false}, BusConfig{Topic: "t"}},
		{"error", &fakeToken{done: true, err: stderrors.New("not connected")}, BusConfig{Topic: "t"}},
		{"no_topic", &fakeToken{done: true}, BusConfig{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newBusSink(&fakePublisher{token: tt.token}, tt.cfg)
			err := s.Emit(Output{Template: "a", Body: "x"})
			assert.True(t, errors.IsErrorCode(err, errors.ErrSink))
		})
	}
}
