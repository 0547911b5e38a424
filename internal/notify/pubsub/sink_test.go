package pubsub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func newTestTopic(t *testing.T) (*pstest.Server, *pubsub.Topic) {
	t.Helper()
	ctx := context.Background()

	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := pubsub.NewClient(ctx, "dealwatch-test", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	topic, err := client.CreateTopic(ctx, "deals")
	require.NoError(t, err)
	return srv, topic
}

func TestSinkPublishesPayload(t *testing.T) {
	srv, topic := newTestTopic(t)
	sentAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sink := New(topic, fixedClock{t: sentAt})
	t.Cleanup(sink.Close)

	require.NoError(t, sink.Notify(context.Background(), "998877", "**New deal in Fietsen!**"))

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "998877", msgs[0].Attributes["channel_id"])

	var got Payload
	require.NoError(t, json.Unmarshal(msgs[0].Data, &got))
	require.Equal(t, Payload{ChannelID: "998877", Text: "**New deal in Fietsen!**", SentAt: sentAt}, got)
}

func TestSinkWithoutTopic(t *testing.T) {
	t.Parallel()

	require.Error(t, New(nil, nil).Notify(context.Background(), "1", "x"))
}

func TestPubsubCarrier(t *testing.T) {
	t.Parallel()

	c := &pubsubCarrier{attrs: map[string]string{}}
	c.Set("traceparent", "00-abc-def-01")
	require.Equal(t, "00-abc-def-01", c.Get("traceparent"))
	require.Equal(t, []string{"traceparent"}, c.Keys())
}
