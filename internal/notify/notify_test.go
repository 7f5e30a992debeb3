package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/glue-pipeline/shared/logger"
	"github.com/cuongbtq/glue-pipeline/shared/rabbitmq"
)

const topic = "arn:aws:sns:us-east-1:909372601881:demos-all-dev-useast1-notify"

type fakeSNS struct {
	inputs []*sns.PublishInput
	err    error
}

func (f *fakeSNS) Publish(_ context.Context, params *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.inputs = append(f.inputs, params)
	if f.err != nil {
		return nil, f.err
	}
	return &sns.PublishOutput{MessageId: aws.String("msg-1")}, nil
}

func TestSNSNotifier(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantID  string
		wantErr bool
	}{
		{name: "published", wantID: "msg-1"},
		{name: "sns error", err: errors.New("throttled"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeSNS{err: tt.err}
			n := NewSNSNotifierWithClient(client, logger.NewDiscard())

			id, err := n.Publish(context.Background(), Message{
				Topic:   topic,
				Subject: "Glue Job Status",
				Body:    `{"Error":"States.TaskFailed"}`,
			})

			require.Len(t, client.inputs, 1)
			assert.Equal(t, topic, aws.ToString(client.inputs[0].TopicArn))
			assert.Equal(t, "Glue Job Status", aws.ToString(client.inputs[0].Subject))
			assert.Equal(t, `{"Error":"States.TaskFailed"}`, aws.ToString(client.inputs[0].Message))

			if tt.wantErr {
				assert.ErrorContains(t, err, "failed to publish to sns topic")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, id)
		})
	}
}

type fakePublisher struct {
	msgs []rabbitmq.Message
	err  error
}

func (p *fakePublisher) Publish(_ context.Context, msg rabbitmq.Message) error {
	p.msgs = append(p.msgs, msg)
	return p.err
}

func TestRabbitMQNotifier(t *testing.T) {
	publisher := &fakePublisher{}
	n := NewRabbitMQNotifier(publisher, "pipeline.notifications", logger.NewDiscard())

	id, err := n.Publish(context.Background(), Message{Topic: topic, Subject: "Glue Job Status", Body: `{"a":1}`})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	require.Len(t, publisher.msgs, 1)
	msg := publisher.msgs[0]
	assert.Equal(t, "pipeline.notifications", msg.RoutingKey)
	assert.Equal(t, "Glue Job Status", msg.Headers["subject"])
	assert.Equal(t, topic, msg.Headers["topic"])
	assert.Equal(t, id, msg.Headers["message_id"])
	assert.Equal(t, `{"a":1}`, string(msg.Body))

	publisher.err = errors.New("channel closed")
	_, err = n.Publish(context.Background(), Message{Body: "x"})
	assert.ErrorContains(t, err, "failed to publish notification")
	assert.Len(t, publisher.msgs, 2, "publish is attempted once")
}

func TestLogNotifier(t *testing.T) {
	id, err := NewLogNotifier(logger.NewDiscard()).Publish(context.Background(), Message{Subject: "Glue Job Status"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}
