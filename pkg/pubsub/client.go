package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/aardg/massabalans/pkg/config"
	"github.com/aardg/massabalans/pkg/logger"
)

const defaultPublishTimeout = 15 * time.Second

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errTopicRequired     = errors.New("pubsub topic is required")
)

type Client struct {
	client    *pubsub.Client
	projectID string
}

// NewClient creates a Pub/Sub v2 client with the shared GCP credentials.
func NewClient(ctx context.Context, gcp config.GCPConfig, logg *logger.Logger) (*Client, error) {
	if strings.TrimSpace(gcp.ProjectID) == "" {
		return nil, errProjectIDRequired
	}

	psClient, err := pubsub.NewClient(ctx, gcp.ProjectID, gcp.ClientOptions()...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	if logg != nil {
		logg.Debug(ctx, "pubsub client initialized")
	}
	return &Client{client: psClient, projectID: gcp.ProjectID}, nil
}

// Publisher returns a publisher handle for the given topic ID/resource name.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	fullName := topicResourceName(c.projectID, name)
	if fullName == "" {
		return nil
	}
	return c.client.Publisher(fullName)
}

// Close releases the Pub/Sub client resources.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
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

type publisher interface {
	Publish(context.Context, *pubsub.Message) publishResult
	Stop()
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// JSONPublisher publishes JSON payloads to one topic and waits for the ack.
type JSONPublisher struct {
	pub     publisher
	topic   string
	timeout time.Duration
}

// NewJSONPublisher binds a publisher to topic.
func NewJSONPublisher(c *Client, topic string) (*JSONPublisher, error) {
	if strings.TrimSpace(topic) == "" {
		return nil, errTopicRequired
	}
	p := c.Publisher(topic)
	if p == nil {
		return nil, fmt.Errorf("publisher not configured for topic %s", topic)
	}
	return &JSONPublisher{pub: &gcpPublisher{Publisher: p}, topic: topic, timeout: defaultPublishTimeout}, nil
}

// Publish marshals payload and returns the server assigned message id.
func (p *JSONPublisher) Publish(ctx context.Context, payload any, attrs map[string]string) (string, error) {
	if p == nil || p.pub == nil {
		return "", errors.New("publisher not initialized")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	res := p.pub.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs})
	if res == nil {
		return "", fmt.Errorf("publisher returned nil for topic %s", p.topic)
	}
	id, err := res.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish to %s: %w", p.topic, err)
	}
	return id, nil
}

// Stop flushes pending messages.
func (p *JSONPublisher) Stop() {
	if p == nil || p.pub == nil {
		return
	}
	p.pub.Stop()
}

type gcpPublisher struct {
	*pubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *pubsub.Message) publishResult {
	if p == nil || p.Publisher == nil {
		return nil
	}
	return &gcpPublishResult{PublishResult: p.Publisher.Publish(ctx, msg)}
}

type gcpPublishResult struct {
	*pubsub.PublishResult
}

func (r *gcpPublishResult) Get(ctx context.Context) (string, error) {
	if r == nil || r.PublishResult == nil {
		return "", errors.New("publish result is nil")
	}
	return r.PublishResult.Get(ctx)
}
