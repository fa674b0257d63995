package reconciler

import (
	"context"
	"fmt"

	"github.com/grayhome/domo-bridge/internal/cachevalue"
	"github.com/grayhome/domo-bridge/internal/command"
	"github.com/grayhome/domo-bridge/internal/infrastructure/config"
	"github.com/grayhome/domo-bridge/internal/infrastructure/logging"
	"github.com/grayhome/domo-bridge/internal/topic"
	"github.com/grayhome/domo-bridge/internal/valve"
)

func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{Level: "error", Format: "json", Output: "stderr"}, "test")
}

// fakeCacheFacade is an in-memory CacheFacade double keyed by name/uuid.
type fakeCacheFacade struct {
	topics  map[topic.Name]map[string]cachevalue.Value
	writes  []topic.Topic
	failGet bool
}

func newFakeCache() *fakeCacheFacade {
	return &fakeCacheFacade{topics: make(map[topic.Name]map[string]cachevalue.Value)}
}

func (f *fakeCacheFacade) put(name topic.Name, uuid string, value cachevalue.Value) {
	if f.topics[name] == nil {
		f.topics[name] = make(map[string]cachevalue.Value)
	}
	f.topics[name][uuid] = value
}

func (f *fakeCacheFacade) GetTopicName(ctx context.Context, name topic.Name) ([]topic.Topic, error) {
	if f.failGet {
		return nil, fmt.Errorf("fake: get failed")
	}
	out := make([]topic.Topic, 0, len(f.topics[name]))
	for uuid, v := range f.topics[name] {
		out = append(out, topic.Topic{Name: name, UUID: uuid, Value: v})
	}
	return out, nil
}

func (f *fakeCacheFacade) GetTopicUUID(ctx context.Context, name topic.Name, uuid string) (topic.Topic, error) {
	v, ok := f.topics[name][uuid]
	if !ok {
		return topic.Topic{}, fmt.Errorf("fake: no topic %s/%s", name, uuid)
	}
	return topic.Topic{Name: name, UUID: uuid, Value: v}, nil
}

func (f *fakeCacheFacade) WriteValue(ctx context.Context, name topic.Name, uuid string, value cachevalue.Value) error {
	f.put(name, uuid, value)
	f.writes = append(f.writes, topic.Topic{Name: name, UUID: uuid, Value: value})
	return nil
}

// fakeGen1Session records sent payloads and close calls.
type fakeGen1Session struct {
	sent      []cachevalue.Value
	closed    bool
	sendErr   error
}

func (s *fakeGen1Session) SendAction(payload cachevalue.Value) error {
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, payload)
	return nil
}

func (s *fakeGen1Session) Close() { s.closed = true }

// fakeGen2Dispatcher records SendAction/BroadcastPing calls.
type fakeGen2Dispatcher struct {
	sent    map[string][]cachevalue.Value
	pings   int
	sendErr error
}

func newFakeGen2() *fakeGen2Dispatcher {
	return &fakeGen2Dispatcher{sent: make(map[string][]cachevalue.Value)}
}

func (g *fakeGen2Dispatcher) SendAction(mac string, payload cachevalue.Value) error {
	if g.sendErr != nil {
		return g.sendErr
	}
	g.sent[mac] = append(g.sent[mac], payload)
	return nil
}

func (g *fakeGen2Dispatcher) BroadcastPing() { g.pings++ }

// newTestReconciler builds a Reconciler wired to fakes, bypassing New's
// logger requirement so tests can exercise internal methods directly.
func newTestReconciler(cache *fakeCacheFacade, gen2 *fakeGen2Dispatcher) *Reconciler {
	r := &Reconciler{
		cache:        cache,
		gen2:         gen2,
		log:          testLogger(),
		sessions:     make(map[string]*sessionEntry),
		gen1Sessions: make(map[string]Gen1Session),
		gen2Plus:     make(map[string]bool),
		dialing:      make(map[string]bool),
		dialResultCh: make(chan dialResult, 64),
	}
	r.valveMgr = valve.New(r)
	r.cmdParser = command.New(r)
	return r
}
