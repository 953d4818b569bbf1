package task

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// Factory returns a new, empty instance of a task type. Factories are built
// at startup and close over whatever services the task type needs.
type Factory func() Task

// Registry maps task type identifiers to factories and converts tasks to
// and from their stored envelope form.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty task type registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a task type. Registering the same type twice is an error.
func (r *Registry) Register(taskType string, factory Factory) error {
	if taskType == "" || factory == nil {
		return fmt.Errorf("register task type %q: type and factory are required", taskType)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[taskType]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateType, taskType)
	}
	r.factories[taskType] = factory
	return nil
}

// New returns a fresh instance of the given type.
func (r *Registry) New(taskType string) (Task, error) {
	r.mu.RLock()
	factory, ok := r.factories[taskType]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, taskType)
	}

	t := factory()
	if t == nil {
		return nil, fmt.Errorf("factory for %s returned %w", taskType, ErrNilTask)
	}
	return t, nil
}

// Registered reports whether a factory exists for taskType.
func (r *Registry) Registered(taskType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[taskType]
	return ok
}

// Types returns the registered type identifiers in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.factories))
	for name := range r.factories {
		types = append(types, name)
	}
	sort.Strings(types)
	return types
}

// envelope is the stored form of a task: the type discriminator, the core
// metadata, the payload and the successor chain.
type envelope struct {
	Type           string          `json:"type"`
	ID             string          `json:"id"`
	Channel        string          `json:"channel"`
	TimeoutSeconds int             `json:"timeout_seconds,omitempty"`
	Payload        json.RawMessage `json:"payload"`
	Then           *envelope       `json:"then,omitempty"`
}

// Encode serializes t and its successor chain.
func (r *Registry) Encode(t Task) ([]byte, error) {
	env, err := r.toEnvelope(t)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

func (r *Registry) toEnvelope(t Task) (*envelope, error) {
	if t == nil {
		return nil, ErrNilTask
	}

	payload, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", t.Type(), err)
	}

	env := &envelope{
		Type:           t.Type(),
		ID:             t.ID(),
		Channel:        t.Channel(),
		TimeoutSeconds: t.TimeoutSeconds(),
		Payload:        payload,
	}

	if next := t.base().Successor(); next != nil {
		env.Then, err = r.toEnvelope(next)
		if err != nil {
			return nil, err
		}
	}
	return env, nil
}

// Decode rebuilds a task, including its successor chain, from Encode output.
func (r *Registry) Decode(blob []byte) (Task, error) {
	var env envelope
	if err := json.Unmarshal(blob, &env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task envelope: %w", err)
	}
	return r.fromEnvelope(&env)
}

func (r *Registry) fromEnvelope(env *envelope) (Task, error) {
	t, err := r.New(env.Type)
	if err != nil {
		return nil, err
	}

	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, t); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s payload: %w", env.Type, err)
		}
	}
	t.base().restore(env.ID, env.Channel, env.TimeoutSeconds)

	if env.Then != nil {
		next, err := r.fromEnvelope(env.Then)
		if err != nil {
			return nil, err
		}
		t.base().Then(next)
	}
	return t, nil
}
