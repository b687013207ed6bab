// Package storagetest provides an in-memory storage.Provider for tests.
package storagetest

import (
	"context"
	"fmt"
	"sync"

	"github.com/fuomag9/paperdrive/internal/errs"
	"github.com/fuomag9/paperdrive/internal/storage"
)

type object struct {
	id       string
	parent   string
	name     string
	mimeType string
	data     []byte
}

// Memory keeps objects in a map. Err, when set, is returned by every call.
type Memory struct {
	mu      sync.Mutex
	seq     int
	objects map[string]*object
	order   []string

	Err   error
	Calls map[string]int
}

var (
	_ storage.Provider  = (*Memory)(nil)
	_ storage.Connector = (*Memory)(nil)
)

// NewMemory returns an empty provider.
func NewMemory() *Memory {
	return &Memory{objects: map[string]*object{}, Calls: map[string]int{}}
}

// Connect returns the same provider regardless of the secret; the secret is
// counted in Calls under "connect:<secret>".
func (m *Memory) Connect(_ context.Context, accessSecret string) (storage.Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls["connect:"+accessSecret]++
	if m.Err != nil {
		return nil, m.Err
	}
	return m, nil
}

func (m *Memory) List(_ context.Context, parentID string, filter storage.Filter) ([]storage.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls["list"]++
	if m.Err != nil {
		return nil, m.Err
	}
	var out []storage.File
	for _, id := range m.order {
		o := m.objects[id]
		if o.parent != parentID {
			continue
		}
		if filter.Name != "" && o.name != filter.Name {
			continue
		}
		if filter.MimeType != "" && o.mimeType != filter.MimeType {
			continue
		}
		out = append(out, storage.File{ID: o.id, Name: o.name})
	}
	return out, nil
}

func (m *Memory) CreateContainer(_ context.Context, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls["create_container"]++
	if m.Err != nil {
		return "", m.Err
	}
	return m.add("", name, storage.MimeFolder, nil), nil
}

func (m *Memory) CreateFile(_ context.Context, parentID, name string, data []byte, mimeType string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls["create_file"]++
	if m.Err != nil {
		return "", m.Err
	}
	return m.add(parentID, name, mimeType, data), nil
}

func (m *Memory) UpdateFile(_ context.Context, id string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls["update_file"]++
	if m.Err != nil {
		return "", m.Err
	}
	o, ok := m.objects[id]
	if !ok {
		return "", fmt.Errorf("%w: no such file %s", errs.ErrRemote, id)
	}
	o.data = append([]byte(nil), data...)
	return id, nil
}

func (m *Memory) DownloadFile(_ context.Context, id string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls["download"]++
	if m.Err != nil {
		return nil, m.Err
	}
	o, ok := m.objects[id]
	if !ok {
		return nil, fmt.Errorf("%w: no such file %s", errs.ErrRemote, id)
	}
	return append([]byte(nil), o.data...), nil
}

// Put stores a file directly, bypassing call counters.
func (m *Memory) Put(parentID, name, mimeType string, data []byte) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.add(parentID, name, mimeType, data)
}

// Files returns the files under parentID named name.
func (m *Memory) Files(parentID, name string) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out [][]byte
	for _, id := range m.order {
		o := m.objects[id]
		if o.parent == parentID && o.name == name {
			out = append(out, append([]byte(nil), o.data...))
		}
	}
	return out
}

func (m *Memory) add(parent, name, mimeType string, data []byte) string {
	m.seq++
	id := fmt.Sprintf("obj-%d", m.seq)
	m.objects[id] = &object{id: id, parent: parent, name: name, mimeType: mimeType, data: append([]byte(nil), data...)}
	m.order = append(m.order, id)
	return id
}
