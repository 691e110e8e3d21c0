package smtp

import (
	"crypto/tls"
	"fmt"
	"sync"

	"gopkg.in/gomail.v2"

	"github.com/vhvplatform/go-hotel-notification-service/internal/metrics"
)

// SMTPConfig holds SMTP configuration
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
}

// Dialer opens an authenticated SMTP session
type Dialer interface {
	Dial() (gomail.SendCloser, error)
}

// NewDialer builds a gomail dialer from config. Port 465 uses implicit TLS.
func NewDialer(cfg SMTPConfig) *gomail.Dialer {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.SSL = cfg.Port == 465
	d.TLSConfig = &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}
	return d
}

// Pool keeps up to size idle SMTP sessions for reuse. Sessions are dialed lazily.
type Pool struct {
	dialer Dialer
	idle   chan gomail.SendCloser
	size   int
	mu     sync.Mutex
	closed bool
	open   int
}

// NewPool creates an SMTP session pool
func NewPool(dialer Dialer, size int) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{
		dialer: dialer,
		idle:   make(chan gomail.SendCloser, size),
		size:   size,
	}
}

// Get returns an idle session or dials a new one
func (p *Pool) Get() (gomail.SendCloser, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, fmt.Errorf("connection pool is closed")
	}
	p.mu.Unlock()

	select {
	case sc := <-p.idle:
		return sc, nil
	default:
	}

	sc, err := p.dialer.Dial()
	if err != nil {
		return nil, fmt.Errorf("failed to dial SMTP: %w", err)
	}
	p.track(1)
	return sc, nil
}

// Put returns a healthy session to the pool
func (p *Pool) Put(sc gomail.SendCloser) {
	if sc == nil {
		return
	}

	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		p.Discard(sc)
		return
	}

	select {
	case p.idle <- sc:
	default:
		p.Discard(sc)
	}
}

// Discard closes a session that must not be reused
func (p *Pool) Discard(sc gomail.SendCloser) {
	if sc == nil {
		return
	}
	_ = sc.Close()
	p.track(-1)
}

// Send delivers msg over a pooled session, redialing once if the idle session went stale
func (p *Pool) Send(msg *gomail.Message) error {
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		var sc gomail.SendCloser
		if sc, err = p.Get(); err != nil {
			return err
		}
		if err = gomail.Send(sc, msg); err == nil {
			p.Put(sc)
			return nil
		}
		p.Discard(sc)
	}
	return fmt.Errorf("failed to send email: %w", err)
}

// Close closes all idle sessions
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	for {
		select {
		case sc := <-p.idle:
			p.Discard(sc)
		default:
			return
		}
	}
}

// Open returns the number of sessions currently dialed
func (p *Pool) Open() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.open
}

func (p *Pool) track(delta int) {
	p.mu.Lock()
	p.open += delta
	open := p.open
	p.mu.Unlock()
	metrics.SMTPSessions.Set(float64(open))
}
