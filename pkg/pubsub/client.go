package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/farmlink-backend/pkg/config"
	"github.com/angelmondragon/farmlink-backend/pkg/logger"
)

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errTopicRequired     = errors.New("pubsub topic is required")
)

type publisher interface {
	Publish(ctx context.Context, msg *pubsub.Message) publishResult
	Stop()
}

type publishResult interface {
	Get(ctx context.Context) (string, error)
}

type topicChecker func(ctx context.Context, fullName string) error

// Client publishes settlement events to one Pub/Sub topic.
type Client struct {
	client     *pubsub.Client
	projectID  string
	topicName  string
	publisher  publisher
	checkTopic topicChecker
}

// NewClient creates a Pub/Sub v2 client bound to topic. When EnsureTopic is
// set the topic is created if it does not exist yet.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, topic string, logg *logger.Logger) (*Client, error) {
	if strings.TrimSpace(gcp.ProjectID) == "" {
		return nil, errProjectIDRequired
	}
	fullName := topicResourceName(gcp.ProjectID, topic)
	if fullName == "" {
		return nil, errTopicRequired
	}

	psClient, err := pubsub.NewClient(ctx, gcp.ProjectID, clientOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	c := &Client{
		client:    psClient,
		projectID: gcp.ProjectID,
		topicName: fullName,
		publisher: &gcpPublisher{Publisher: psClient.Publisher(fullName)},
	}
	c.checkTopic = c.getTopic

	if cfg.EnsureTopic {
		if err := c.ensureTopic(ctx); err != nil {
			_ = psClient.Close()
			return nil, err
		}
	}

	if logg != nil {
		logg.Info(logg.WithField(ctx, "topic", fullName), "pubsub client initialized")
	}
	return c, nil
}

func clientOptions(gcp config.GCPConfig) []option.ClientOption {
	var opts []option.ClientOption
	switch {
	case strings.TrimSpace(gcp.CredentialsJSON) != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(gcp.CredentialsJSON)))
	case strings.TrimSpace(gcp.ApplicationCredentials) != "":
		opts = append(opts, option.WithCredentialsFile(gcp.ApplicationCredentials))
	}
	return opts
}

func (c *Client) getTopic(ctx context.Context, fullName string) error {
	_, err := c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: fullName})
	return err
}

func (c *Client) ensureTopic(ctx context.Context) error {
	err := c.checkTopic(ctx, c.topicName)
	if err == nil {
		return nil
	}
	if status.Code(err) != codes.NotFound {
		return fmt.Errorf("checking topic %q: %w", c.topicName, err)
	}
	_, err = c.client.TopicAdminClient.CreateTopic(ctx, &pubsubpb.Topic{Name: c.topicName})
	if err != nil && status.Code(err) != codes.AlreadyExists {
		return fmt.Errorf("creating topic %q: %w", c.topicName, err)
	}
	return nil
}

// Publish sends one message and waits for the server ack.
func (c *Client) Publish(ctx context.Context, key string, data []byte, attrs map[string]string) error {
	if c == nil || c.publisher == nil {
		return errors.New("pubsub client not initialized")
	}
	merged := make(map[string]string, len(attrs)+1)
	for k, v := range attrs {
		merged[k] = v
	}
	if key != "" {
		merged["aggregate_key"] = key
	}
	res := c.publisher.Publish(ctx, &pubsub.Message{Data: data, Attributes: merged})
	if res == nil {
		return errors.New("publish result is nil")
	}
	if _, err := res.Get(ctx); err != nil {
		return fmt.Errorf("publish to %s: %w", c.topicName, err)
	}
	return nil
}

// Ping verifies the topic is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.checkTopic == nil {
		return errors.New("pubsub client not initialized")
	}
	return c.checkTopic(ctx, c.topicName)
}

// Topic returns the full topic resource name.
func (c *Client) Topic() string {
	if c == nil {
		return ""
	}
	return c.topicName
}

// Close flushes the publisher and releases the client.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	if c.publisher != nil {
		c.publisher.Stop()
	}
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

func topicResourceName(projectID, name string) string {
	n := strings.TrimSpace(name)
	if n == "" {
		return ""
	}
	if strings.HasPrefix(n, "projects/") && strings.Contains(n, "/topics/") {
		return n
	}
	p := strings.TrimSpace(projectID)
	if p == "" {
		return ""
	}
	return fmt.Sprintf("projects/%s/topics/%s", p, n)
}

type gcpPublisher struct {
	*pubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *pubsub.Message) publishResult {
	if p == nil || p.Publisher == nil {
		return nil
	}
	return p.Publisher.Publish(ctx, msg)
}

func (p *gcpPublisher) Stop() {
	if p != nil && p.Publisher != nil {
		p.Publisher.Stop()
	}
}
