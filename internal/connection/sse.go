package connection

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// SSEConfig configures the server-push downlink transport.
type SSEConfig struct {
	URL                   string        // http:// or https:// event-stream endpoint
	ResponseHeaderTimeout time.Duration // limit for the initial response (default 10s)
}

func (c *SSEConfig) applyDefaults() {
	if c.ResponseHeaderTimeout == 0 {
		c.ResponseHeaderTimeout = 10 * time.Second
	}
}

// SSEDialer dials the instruction downlink: a unidirectional event stream
// with named events ("instruction", "keepalive"). It remembers the last
// event ID seen and echoes it back as the resume cursor on every redial.
type SSEDialer struct {
	cfg    SSEConfig
	client *http.Client
	logger *slog.Logger

	mu          sync.Mutex
	lastEventID string
}

// NewSSEDialer creates a downlink dialer.
func NewSSEDialer(cfg SSEConfig, logger *slog.Logger) *SSEDialer {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.applyDefaults()

	return &SSEDialer{
		cfg:    cfg,
		logger: logger,
		client: &http.Client{
			Transport: &http.Transport{
				ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
			},
		},
	}
}

// Dialer returns the Dialer func for a Controller.
func (d *SSEDialer) Dialer() Dialer {
	return d.Dial
}

// LastEventID returns the current resume cursor.
func (d *SSEDialer) LastEventID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastEventID
}

// Dial opens the event stream. The returned transport is receive-only.
func (d *SSEDialer) Dial(ctx context.Context, token string, cb Callbacks) (Transport, error) {
	u, err := url.Parse(d.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse downlink URL: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	if cursor := d.LastEventID(); cursor != "" {
		q.Set("lastEventId", cursor)
	}
	u.RawQuery = q.Encode()

	// The stream outlives the dial context: cancellation is owned by Close.
	streamCtx, cancel := context.WithCancel(context.Background())

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, u.String(), nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("build downlink request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if cursor := d.LastEventID(); cursor != "" {
		req.Header.Set("Last-Event-ID", cursor)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("dial downlink: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("downlink rejected: status %d", resp.StatusCode)
	}

	t := &sseTransport{
		dialer: d,
		resp:   resp,
		cancel: cancel,
		cb:     cb,
		done:   make(chan struct{}),
	}
	go t.readLoop()

	d.logger.Debug("downlink connected", "url", d.cfg.URL, "cursor", d.LastEventID())
	return t, nil
}

func (d *SSEDialer) setLastEventID(id string) {
	d.mu.Lock()
	d.lastEventID = id
	d.mu.Unlock()
}

// sseTransport is the receive-only downlink connection.
type sseTransport struct {
	dialer *SSEDialer
	resp   *http.Response
	cancel context.CancelFunc
	cb     Callbacks

	done      chan struct{}
	closeOnce sync.Once
}

func (t *sseTransport) Send(Frame) error {
	return ErrPushOnly
}

func (t *sseTransport) Close(bool) error {
	t.closeOnce.Do(func() {
		close(t.done)
		t.cancel()
	})
	return nil
}

// readLoop parses the event stream: "event:"/"data:"/"id:" fields, blank
// line dispatches. The server never closes this stream normally, so any
// termination is reported as unintentional.
func (t *sseTransport) readLoop() {
	defer t.resp.Body.Close()

	reader := bufio.NewReader(t.resp.Body)

	var (
		event string
		id    string
		data  []string
	)

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			select {
			case <-t.done:
				return
			default:
			}
			if t.cb.OnClose != nil {
				t.cb.OnClose(fmt.Errorf("downlink stream ended: %w", err), false)
			}
			return
		}
		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if event != "" || len(data) > 0 {
				if id != "" {
					t.dialer.setLastEventID(id)
				}
				if t.cb.OnFrame != nil {
					name := event
					if name == "" {
						name = "message"
					}
					t.cb.OnFrame(Frame{
						Event: name,
						ID:    id,
						Data:  []byte(strings.Join(data, "\n")),
					})
				}
			}
			event, id, data = "", "", nil
			continue
		}

		if strings.HasPrefix(line, ":") {
			continue // comment / heartbeat padding
		}

		field, value, found := strings.Cut(line, ":")
		if !found {
			field, value = line, ""
		}
		value = strings.TrimPrefix(value, " ")

		switch field {
		case "event":
			event = value
		case "data":
			data = append(data, value)
		case "id":
			id = value
		}
	}
}
