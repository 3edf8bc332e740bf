package project

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/aidanlsb/assetcat/internal/guid"
	"github.com/aidanlsb/assetcat/internal/model"
)

// Memory is an in-memory Database for tests.
type Memory struct {
	mu         sync.Mutex
	containers map[uuid.UUID]*memContainer
	stampErr   map[model.ObjectRef]error
	stamps     int
}

type memContainer struct {
	path    string
	objects []model.ContentObject
	stored  map[int64]string
}

// NewMemory returns an empty Memory.
func NewMemory() *Memory {
	return &Memory{
		containers: make(map[uuid.UUID]*memContainer),
		stampErr:   make(map[model.ObjectRef]error),
	}
}

// Put adds or replaces containers. Objects are grouped by ContainerID, and
// each container's path is taken from its objects.
func (m *Memory) Put(objs ...model.ContentObject) {
	m.mu.Lock()
	defer m.mu.Unlock()
	replaced := make(map[uuid.UUID]bool)
	for _, o := range objs {
		c, ok := m.containers[o.ContainerID]
		if !ok || !replaced[o.ContainerID] {
			stored := map[int64]string{}
			if ok {
				stored = c.stored
			}
			c = &memContainer{stored: stored}
			m.containers[o.ContainerID] = c
			replaced[o.ContainerID] = true
		}
		c.path = o.ContainerPath
		c.objects = append(c.objects, o)
	}
}

// SetStored sets the identity text written on an object.
func (m *Memory) SetStored(ref model.ObjectRef, raw string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.containers[ref.ContainerID]; ok {
		c.stored[ref.SubID] = raw
	}
}

// Stored returns the identity text written on an object.
func (m *Memory) Stored(ref model.ObjectRef) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.containers[ref.ContainerID]
	if !ok {
		return "", false
	}
	raw, ok := c.stored[ref.SubID]
	return raw, ok
}

// Move changes a container's path.
func (m *Memory) Move(container uuid.UUID, newPath string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.containers[container]; ok {
		c.move(newPath)
	}
}

func (c *memContainer) move(newPath string) {
	c.path = newPath
	for i := range c.objects {
		c.objects[i].ContainerPath = newPath
	}
}

// Relocate moves a known container. Unlike Move it reports unknown ones.
func (m *Memory) Relocate(_ context.Context, container uuid.UUID, newPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.containers[container]
	if !ok {
		return fmt.Errorf("container %s: %w", container, ErrNotFound)
	}
	c.move(newPath)
	return nil
}

// Duplicate copies a container, stored identities included, to newPath
// under a fresh container id.
func (m *Memory) Duplicate(container uuid.UUID, newPath string) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.containers[container]
	if !ok {
		return uuid.Nil
	}
	id := uuid.New()
	cp := &memContainer{path: newPath, stored: make(map[int64]string, len(c.stored))}
	for sub, raw := range c.stored {
		cp.stored[sub] = raw
	}
	for _, o := range c.objects {
		o.ContainerID = id
		o.ContainerPath = newPath
		cp.objects = append(cp.objects, o)
	}
	m.containers[id] = cp
	return id
}

// Delete removes a container.
func (m *Memory) Delete(container uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.containers, container)
}

// FailStamp makes StampIdentity fail for ref. A nil err clears it.
func (m *Memory) FailStamp(ref model.ObjectRef, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := model.ObjectRef{ContainerID: ref.ContainerID, SubID: ref.SubID}
	if err == nil {
		delete(m.stampErr, key)
		return
	}
	m.stampErr[key] = err
}

// Stamps returns how many stamps succeeded.
func (m *Memory) Stamps() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stamps
}

// Objects returns every object, in container path order.
func (m *Memory) Objects(_ context.Context) ([]model.ContentObject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.ContentObject
	for _, c := range m.containers {
		out = append(out, c.objects...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ContainerPath != out[j].ContainerPath {
			return out[i].ContainerPath < out[j].ContainerPath
		}
		return out[i].Ref().Less(out[j].Ref())
	})
	return out, nil
}

// ContainerObjects returns one container's objects.
func (m *Memory) ContainerObjects(_ context.Context, container uuid.UUID) ([]model.ContentObject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.containers[container]
	if !ok {
		return nil, fmt.Errorf("container %s: %w", container, ErrNotFound)
	}
	return append([]model.ContentObject(nil), c.objects...), nil
}

// ContainerPath returns a container's path.
func (m *Memory) ContainerPath(container uuid.UUID) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.containers[container]
	if !ok {
		return "", false
	}
	return c.path, true
}

// StoredIdentity returns the identity text written on the object.
func (m *Memory) StoredIdentity(_ context.Context, ref model.ObjectRef) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.containers[ref.ContainerID]
	if !ok {
		return "", false, fmt.Errorf("container %s: %w", ref.ContainerID, ErrNotFound)
	}
	raw, ok := c.stored[ref.SubID]
	return raw, ok && raw != "", nil
}

// StampIdentity records id as the object's stored identity.
func (m *Memory) StampIdentity(_ context.Context, ref model.ObjectRef, id guid.AssetGuid) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.stampErr[model.ObjectRef{ContainerID: ref.ContainerID, SubID: ref.SubID}]; err != nil {
		return err
	}
	c, ok := m.containers[ref.ContainerID]
	if !ok {
		return fmt.Errorf("container %s: %w", ref.ContainerID, ErrNotFound)
	}
	c.stored[ref.SubID] = guid.Format(id)
	m.stamps++
	return nil
}

var (
	_ Database = (*Memory)(nil)
	_ Database = (*FS)(nil)
)
