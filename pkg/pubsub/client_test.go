package pubsub

import (
	"context"
	"errors"
	"testing"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/farmlink-backend/pkg/config"
)

type fakePublisher struct {
	msgs    []*gcppubsub.Message
	err     error
	stopped bool
}

func (f *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	f.msgs = append(f.msgs, msg)
	return fakeResult{err: f.err}
}

func (f *fakePublisher) Stop() { f.stopped = true }

type fakeResult struct{ err error }

func (r fakeResult) Get(context.Context) (string, error) { return "server-id", r.err }

func TestTopicResourceName(t *testing.T) {
	cases := []struct {
		project, name, want string
	}{
		{"proj", "events", "projects/proj/topics/events"},
		{"proj", "projects/other/topics/events", "projects/other/topics/events"},
		{"proj", "  ", ""},
		{"", "events", ""},
	}
	for _, tc := range cases {
		if got := topicResourceName(tc.project, tc.name); got != tc.want {
			t.Fatalf("topicResourceName(%q,%q)=%q want %q", tc.project, tc.name, got, tc.want)
		}
	}
}

func TestNewClientRequiresProject(t *testing.T) {
	_, err := NewClient(context.Background(), config.GCPConfig{}, config.PubSubConfig{}, "events", nil)
	if !errors.Is(err, errProjectIDRequired) {
		t.Fatalf("expected project id error, got %v", err)
	}
}

func TestPublishAddsAggregateKey(t *testing.T) {
	pub := &fakePublisher{}
	c := &Client{topicName: "projects/p/topics/t", publisher: pub}

	if err := c.Publish(context.Background(), "order-1", []byte("{}"), map[string]string{"event_type": "order_created"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(pub.msgs) != 1 {
		t.Fatalf("expected one message")
	}
	attrs := pub.msgs[0].Attributes
	if attrs["aggregate_key"] != "order-1" || attrs["event_type"] != "order_created" {
		t.Fatalf("unexpected attributes %v", attrs)
	}
}

func TestPublishSurfacesAckError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("deadline exceeded")}
	c := &Client{topicName: "projects/p/topics/t", publisher: pub}
	if err := c.Publish(context.Background(), "", nil, nil); err == nil || !errors.Is(err, pub.err) {
		t.Fatalf("expected wrapped ack error, got %v", err)
	}
	if err := c.Close(); err != nil || !pub.stopped {
		t.Fatal("expected publisher stop on close")
	}
}

func TestPingUsesTopicCheck(t *testing.T) {
	var checked string
	c := &Client{topicName: "projects/p/topics/t", checkTopic: func(_ context.Context, name string) error {
		checked = name
		return nil
	}}
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if checked != "projects/p/topics/t" {
		t.Fatalf("unexpected topic checked %q", checked)
	}
}
