package pigeon

import "sync"

// FakePigeon is an in-memory Pigeon used by tests.
type FakePigeon struct {
	mu       sync.Mutex
	queue    [][]byte
	powered  bool
	inits    int
	stops    int
}

func NewFake() *FakePigeon { return &FakePigeon{} }

func (f *FakePigeon) Queue(buf []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, buf)
}

func (f *FakePigeon) Init() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inits++
	return nil
}

func (f *FakePigeon) Inits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inits
}

func (f *FakePigeon) Receive() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queue) == 0 {
		return nil, nil
	}
	buf := f.queue[0]
	f.queue = f.queue[1:]
	return buf, nil
}

func (f *FakePigeon) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return nil
}

func (f *FakePigeon) Stops() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}

func (f *FakePigeon) SetPower(on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.powered = on
	return nil
}

func (f *FakePigeon) Powered() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.powered
}

func (f *FakePigeon) Close() error { return nil }

var _ Pigeon = (*FakePigeon)(nil)
