package rabbitmq

import (
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
)

func TestPublishBackOff(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		want   []time.Duration
	}{
		{
			name: "configured exponential",
			config: Config{
				PublishRetries:     3,
				PublishRetryDelay:  50 * time.Millisecond,
				PublishBackoffMult: 2,
			},
			want: []time.Duration{50 * time.Millisecond, 100 * time.Millisecond, 200 * time.Millisecond},
		},
		{
			name:   "defaults",
			config: Config{},
			want:   []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := publishBackOff(&tt.config)
			for _, want := range tt.want {
				assert.Equal(t, want, b.NextBackOff())
			}
			assert.Equal(t, backoff.Stop, b.NextBackOff())
		})
	}
}

func TestClient_NotConnected(t *testing.T) {
	c := &Client{config: &Config{}}

	err := c.Publish(t.Context(), Message{RoutingKey: "k"})
	assert.EqualError(t, err, "not connected to RabbitMQ")

	_, err = c.Consume("tag")
	assert.EqualError(t, err, "not connected to RabbitMQ")
	assert.False(t, c.IsConnected())
}
