package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"devicelab/internal/benchtest/application"
	benchtest "devicelab/internal/benchtest/domain"
	"devicelab/internal/config"
	"devicelab/internal/observability/metrics"
)

// ErrInvalidMessage is returned for a topic or payload that is not a status report.
var ErrInvalidMessage = errors.New("mqtt: invalid status message")

// StatusReporter records a device status.
type StatusReporter interface {
	ReportDeviceStatus(ctx context.Context, report application.StatusReport) (*benchtest.BoardDevice, error)
}

type statusMessage struct {
	topic   string
	payload []byte
}

type statusPayload struct {
	Status string `json:"status"`
}

// StatusConsumer subscribes to rig status topics of the form
// benchtest/<boardId>/<serialNumber>/status and reports each message.
type StatusConsumer struct {
	cfg      config.MQTTConfig
	reporter StatusReporter
	logger   *log.Logger
	client   paho.Client
	msgCh    chan statusMessage
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewStatusConsumer constructs a consumer.
func NewStatusConsumer(cfg config.MQTTConfig, reporter StatusReporter, logger *log.Logger) (*StatusConsumer, error) {
	if reporter == nil {
		return nil, errors.New("mqtt: nil status reporter")
	}
	if strings.TrimSpace(cfg.Broker) == "" {
		return nil, errors.New("mqtt: broker required")
	}
	if cfg.Topic == "" {
		cfg.Topic = config.DefaultStatusTopic
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &StatusConsumer{
		cfg:      cfg,
		reporter: reporter,
		logger:   logger,
		msgCh:    make(chan statusMessage, 1024),
	}, nil
}

// Start connects to the broker and begins reporting. Messages are handled on
// a single worker so reports for a board arrive in publish order.
func (c *StatusConsumer) Start(ctx context.Context) error {
	opts := paho.NewClientOptions().
		AddBroker(c.cfg.Broker).
		SetClientID(c.cfg.ClientID).
		SetKeepAlive(30 * time.Second).
		SetPingTimeout(10 * time.Second).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetCleanSession(false)
	if c.cfg.Username != "" {
		opts.SetUsername(c.cfg.Username)
		opts.SetPassword(c.cfg.Password)
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		c.logger.Printf("mqtt: connection lost: %v", err)
	}
	opts.OnConnect = func(client paho.Client) {
		c.logger.Printf("mqtt: connected, subscribing topic=%s", c.cfg.Topic)
		if token := client.Subscribe(c.cfg.Topic, c.cfg.QoS, c.onMessage); token.Wait() && token.Error() != nil {
			c.logger.Printf("mqtt: subscribe topic=%s failed: %v", c.cfg.Topic, token.Error())
		}
	}

	c.client = paho.NewClient(opts)
	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.worker(ctx)
	}()
	return nil
}

// Stop disconnects and drains queued messages.
func (c *StatusConsumer) Stop() {
	c.stopOnce.Do(func() {
		if c.client != nil && c.client.IsConnected() {
			c.client.Disconnect(500)
		}
		close(c.msgCh)
		c.wg.Wait()
	})
}

// IsConnected reports whether the broker connection is up.
func (c *StatusConsumer) IsConnected() bool {
	return c.client != nil && c.client.IsConnected()
}

func (c *StatusConsumer) onMessage(_ paho.Client, m paho.Message) {
	select {
	case c.msgCh <- statusMessage{topic: m.Topic(), payload: m.Payload()}:
	default:
		c.logger.Printf("mqtt: queue full, dropping topic=%s", m.Topic())
	}
}

func (c *StatusConsumer) worker(ctx context.Context) {
	for msg := range c.msgCh {
		if err := c.Handle(ctx, msg.topic, msg.payload); err != nil {
			c.logger.Printf("mqtt: topic=%s: %v", msg.topic, err)
		}
	}
}

// Handle reports one status message.
func (c *StatusConsumer) Handle(ctx context.Context, topic string, payload []byte) error {
	report, err := ParseStatusMessage(topic, payload)
	if err != nil {
		metrics.IncDeviceStatusReport(metrics.SourceMQTT, err)
		return err
	}
	_, err = c.reporter.ReportDeviceStatus(ctx, report)
	return err
}

// ParseStatusMessage decodes a status topic and its payload.
func ParseStatusMessage(topic string, payload []byte) (application.StatusReport, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[3] != "status" {
		return application.StatusReport{}, fmt.Errorf("%w: topic %q, expected benchtest/<boardId>/<serialNumber>/status", ErrInvalidMessage, topic)
	}
	boardID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || boardID <= 0 {
		return application.StatusReport{}, fmt.Errorf("%w: board id %q", ErrInvalidMessage, parts[1])
	}
	if parts[2] == "" {
		return application.StatusReport{}, fmt.Errorf("%w: empty serial number", ErrInvalidMessage)
	}
	var body statusPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return application.StatusReport{}, fmt.Errorf("%w: payload: %v", ErrInvalidMessage, err)
	}
	if strings.TrimSpace(body.Status) == "" {
		return application.StatusReport{}, fmt.Errorf("%w: status missing", ErrInvalidMessage)
	}
	return application.StatusReport{
		BoardID:      boardID,
		SerialNumber: parts[2],
		Status:       body.Status,
		Source:       metrics.SourceMQTT,
	}, nil
}
