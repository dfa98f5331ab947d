package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	coremon "github.com/kilianp07/vehicle-broker/core/monitoring"
	"github.com/kilianp07/vehicle-broker/core/transport"
	"github.com/kilianp07/vehicle-broker/infra/logger"
)

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Broker     string          `json:"broker"`
	ClientID   string          `json:"client_id"`
	Username   string          `json:"username"`
	Password   string          `json:"password"`
	UseTLS     bool            `json:"use_tls"`
	ClientCert string          `json:"client_cert"`
	ClientKey  string          `json:"client_key"`
	CABundle   string          `json:"ca_bundle"`
	AuthMethod string          `json:"auth_method"`
	QoS        map[string]byte `json:"qos"`
	LWTTopic   string          `json:"lwt_topic"`
	LWTPayload string          `json:"lwt_payload"`
	LWTQoS     byte            `json:"lwt_qos"`
	LWTRetain  bool            `json:"lwt_retain"`
	MaxRetries int             `json:"max_retries"`
	BackoffMS  int             `json:"backoff_ms"`
	TLSConfig  *tls.Config     `json:"-"`

	// FixedClientID connects with ClientID verbatim. Otherwise a random
	// suffix is appended per connection.
	FixedClientID bool `json:"fixed_client_id"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.Broker == "" {
		c.Broker = "tcp://localhost:1883"
	}
	if c.ClientID == "" {
		c.ClientID = "vehicle-broker"
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.BackoffMS == 0 {
		c.BackoffMS = 100
	}
}

// SessionClientID returns the client id used for one connection.
func (c Config) SessionClientID() string {
	if c.FixedClientID {
		return c.ClientID
	}
	// prefix-xxxxxxxx stays within the 23 bytes MQTT 3.1 brokers accept
	return c.ClientID + "-" + uuid.NewString()[:8]
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if c.Broker == "" {
		return fmt.Errorf("mqtt broker is required")
	}
	switch c.AuthMethod {
	case "", "username_password", "tls", "both":
	default:
		return fmt.Errorf("unknown mqtt auth_method %q", c.AuthMethod)
	}
	return nil
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
	Unsubscribe(topics ...string) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// ToMQTTTopic converts a ':' separated topic or glob pattern to an MQTT topic
// filter. '*' becomes the single level wildcard '+'.
func ToMQTTTopic(topic string) string {
	return strings.ReplaceAll(strings.ReplaceAll(topic, ":", "/"), "*", "+")
}

// FromMQTTTopic converts an MQTT topic back to ':' separated form.
func FromMQTTTopic(topic string) string {
	return strings.ReplaceAll(topic, "/", ":")
}

type route struct {
	filter  string
	pattern string
	handler transport.Handler
}

// Transport implements transport.Transport on an MQTT broker. Subscriptions
// are replayed whenever the connection is re-established.
type Transport struct {
	cli    pahoClient
	logger logger.Logger
	qos    map[string]byte

	maxRetries int
	backoff    time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	routes map[string]route
}

// NewTransport connects to the MQTT broker described by cfg.
func NewTransport(cfg Config) (*Transport, error) {
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}

	log := logger.New("mqtt_transport")
	ctx, cancel := context.WithCancel(context.Background())
	t := &Transport{
		logger:     log,
		qos:        cfg.QoS,
		maxRetries: cfg.MaxRetries,
		backoff:    time.Duration(cfg.BackoffMS) * time.Millisecond,
		ctx:        ctx,
		cancel:     cancel,
		routes:     map[string]route{},
	}
	if t.maxRetries < 0 {
		t.maxRetries = 0
	}
	if t.backoff <= 0 {
		t.backoff = 100 * time.Millisecond
	}

	opts.OnConnect = func(c paho.Client) {
		log.Infof("MQTT connected")
		t.resubscribe(c)
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}
	c := newMQTTClient(opts)
	t.cli = c
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		cancel()
		return nil, token.Error()
	}
	return t, nil
}

// NewClientOptions builds mqtt client options from Config.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.SessionClientID())
	opts.AutoReconnect = true
	if cfg.AuthMethod == "username_password" || cfg.AuthMethod == "both" || cfg.AuthMethod == "" {
		if cfg.Username != "" {
			opts.SetUsername(cfg.Username)
		}
		if cfg.Password != "" {
			opts.SetPassword(cfg.Password)
		}
	}
	if cfg.UseTLS || cfg.AuthMethod == "tls" || cfg.AuthMethod == "both" {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	if cfg.LWTTopic != "" {
		opts.SetWill(ToMQTTTopic(cfg.LWTTopic), cfg.LWTPayload, cfg.LWTQoS, cfg.LWTRetain)
	}
	return opts, nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caBytes) {
		return nil, fmt.Errorf("ca bundle %s holds no certificates", c.CABundle)
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

func (t *Transport) qosFor(kind string) byte {
	if q, ok := t.qos[kind]; ok {
		return q
	}
	return 0
}

// Publish sends payload, retrying with exponential backoff. The final error
// is reported to the monitor.
func (t *Transport) Publish(ctx context.Context, topic string, payload []byte) error {
	mqttTopic := ToMQTTTopic(topic)
	qos := t.qosFor("publish")
	var publishErr error
	for attempt := 0; attempt <= t.maxRetries; attempt++ {
		token := t.cli.Publish(mqttTopic, qos, false, payload)
		token.Wait()
		publishErr = token.Error()
		if publishErr == nil {
			return nil
		}
		t.logger.Errorf("publish attempt %d on %s failed: %v", attempt+1, mqttTopic, publishErr)
		if attempt == t.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			publishErr = ctx.Err()
			attempt = t.maxRetries
		case <-time.After(t.backoff * time.Duration(1<<attempt)):
		}
	}
	err := fmt.Errorf("publish %s: %w", topic, publishErr)
	coremon.CaptureException(err, map[string]string{"module": "mqtt", "topic": topic})
	return err
}

func (t *Transport) Subscribe(_ context.Context, topic string, h transport.Handler) (transport.Subscription, error) {
	return t.subscribe(route{filter: ToMQTTTopic(topic), handler: h})
}

func (t *Transport) PSubscribe(_ context.Context, pattern string, h transport.Handler) (transport.Subscription, error) {
	return t.subscribe(route{filter: ToMQTTTopic(pattern), pattern: pattern, handler: h})
}

func (t *Transport) subscribe(r route) (transport.Subscription, error) {
	t.mu.Lock()
	if _, dup := t.routes[r.filter]; dup {
		t.mu.Unlock()
		return nil, fmt.Errorf("already subscribed to %s", r.filter)
	}
	t.routes[r.filter] = r
	t.mu.Unlock()

	token := t.cli.Subscribe(r.filter, t.qosFor("subscribe"), t.callback(r))
	if token.Wait() && token.Error() != nil {
		t.mu.Lock()
		delete(t.routes, r.filter)
		t.mu.Unlock()
		return nil, fmt.Errorf("subscribe %s: %w", r.filter, token.Error())
	}
	return &subscription{t: t, filter: r.filter}, nil
}

func (t *Transport) callback(r route) paho.MessageHandler {
	return func(_ paho.Client, msg paho.Message) {
		r.handler(t.ctx, transport.Message{
			Topic:   FromMQTTTopic(msg.Topic()),
			Pattern: r.pattern,
			Payload: msg.Payload(),
		})
	}
}

func (t *Transport) resubscribe(c paho.Client) {
	t.mu.Lock()
	routes := make([]route, 0, len(t.routes))
	for _, r := range t.routes {
		routes = append(routes, r)
	}
	t.mu.Unlock()
	for _, r := range routes {
		if token := c.Subscribe(r.filter, t.qosFor("subscribe"), t.callback(r)); token.Wait() && token.Error() != nil {
			t.logger.Errorf("resubscribe %s: %v", r.filter, token.Error())
		}
	}
}

func (t *Transport) unsubscribe(filter string) error {
	t.mu.Lock()
	_, ok := t.routes[filter]
	delete(t.routes, filter)
	t.mu.Unlock()
	if !ok || !t.cli.IsConnected() {
		return nil
	}
	if token := t.cli.Unsubscribe(filter); token.Wait() && token.Error() != nil {
		return fmt.Errorf("unsubscribe %s: %w", filter, token.Error())
	}
	return nil
}

// Close gracefully closes the MQTT connection.
func (t *Transport) Close() error {
	t.cancel()
	t.mu.Lock()
	t.routes = map[string]route{}
	t.mu.Unlock()
	if t.cli != nil && t.cli.IsConnected() {
		t.cli.Disconnect(250)
	}
	return nil
}

type subscription struct {
	t      *Transport
	filter string
}

func (s *subscription) Close() error { return s.t.unsubscribe(s.filter) }
