// Package testutil holds in-memory stand-ins for the external systems the
// service talks to. They are used by tests across packages.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/SundayYogurt/clearance_service/internal/interfaces"
	"github.com/SundayYogurt/clearance_service/internal/workflow"
)

type entry struct {
	value   []byte
	expires time.Time
}

// MemoryKV implements interfaces.KeyValue on a map.
type MemoryKV struct {
	mu   sync.Mutex
	data map[string]entry
	Now  func() time.Time

	// FailWrites makes Set and Update return this error, for every key or
	// only for FailKeys when that is set.
	FailWrites error
	FailKeys   []string
}

func (m *MemoryKV) writeErr(key string) error {
	if m.FailWrites == nil {
		return nil
	}
	if len(m.FailKeys) == 0 || slices.Contains(m.FailKeys, key) {
		return m.FailWrites
	}
	return nil
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: map[string]entry{}, Now: time.Now}
}

func (m *MemoryKV) getLocked(key string) ([]byte, bool) {
	e, ok := m.data[key]
	if !ok {
		return nil, false
	}
	if !e.expires.IsZero() && !m.Now().Before(e.expires) {
		delete(m.data, key)
		return nil, false
	}
	return append([]byte(nil), e.value...), true
}

func (m *MemoryKV) setLocked(key string, value []byte, ttl time.Duration) {
	e := entry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expires = m.Now().Add(ttl)
	}
	m.data[key] = e
}

func (m *MemoryKV) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.getLocked(key)
	if !ok {
		return nil, interfaces.ErrKeyNotFound
	}
	return v, nil
}

func (m *MemoryKV) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.writeErr(key); err != nil {
		return err
	}
	m.setLocked(key, value, ttl)
	return nil
}

func (m *MemoryKV) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *MemoryKV) Update(_ context.Context, key string, ttl time.Duration, fn func([]byte) ([]byte, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.writeErr(key); err != nil {
		return err
	}
	cur, _ := m.getLocked(key)
	next, err := fn(cur)
	if err != nil {
		return err
	}
	m.setLocked(key, next, ttl)
	return nil
}

func (m *MemoryKV) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

type Message struct {
	Key   string
	Value []byte
}

// Producer records published messages.
type Producer struct {
	mu       sync.Mutex
	Messages []Message
	Err      error
}

func (p *Producer) PublishMessage(_ context.Context, key, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.Messages = append(p.Messages, Message{Key: string(key), Value: append([]byte(nil), value...)})
	return nil
}

func (p *Producer) Keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	keys := make([]string, 0, len(p.Messages))
	for _, m := range p.Messages {
		keys = append(keys, m.Key)
	}
	return keys
}

// Gateway is a scriptable workflow.PaymentGateway. It charges any currency
// unless Currencies is set.
type Gateway struct {
	mu          sync.Mutex
	Unavailable bool
	OpenErr     error
	VerifyErr   error
	Unpaid      map[string]bool
	Currencies  []string
	Opened      []workflow.PaymentRequest
}

func (g *Gateway) Available() bool { return !g.Unavailable }

func (g *Gateway) Supports(currency string) bool {
	return len(g.Currencies) == 0 || slices.Contains(g.Currencies, currency)
}

func (g *Gateway) Open(_ context.Context, req workflow.PaymentRequest) (*workflow.Checkout, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.OpenErr != nil {
		return nil, g.OpenErr
	}
	g.Opened = append(g.Opened, req)
	return &workflow.Checkout{
		Reference:   req.Reference,
		Token:       "tok-" + req.Reference,
		RedirectURL: "https://checkout.example/" + req.Reference,
	}, nil
}

func (g *Gateway) Verify(_ context.Context, reference string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.VerifyErr != nil {
		return false, g.VerifyErr
	}
	return !g.Unpaid[reference], nil
}

func (g *Gateway) OpenCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.Opened)
}

// Uploader stores nothing and returns deterministic URLs.
type Uploader struct {
	mu      sync.Mutex
	FailFor map[string]bool
	Delay   time.Duration
	Calls   int
}

func (u *Uploader) UploadBytes(ctx context.Context, folder, filename string, b []byte) (string, error) {
	if u.Delay > 0 {
		select {
		case <-time.After(u.Delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.Calls++
	if u.FailFor[folder] {
		return "", errors.New("upload refused")
	}
	return fmt.Sprintf("https://cdn.example/%s/%s", folder, filename), nil
}
