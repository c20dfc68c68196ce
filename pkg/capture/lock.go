package capture

import "sync"

// devices tracks selectors claimed by a Camera in this process.
var devices = struct {
	mu   sync.Mutex
	held map[string]bool
}{held: make(map[string]bool)}

func acquireDevice(device string) bool {
	devices.mu.Lock()
	defer devices.mu.Unlock()
	if devices.held[device] {
		return false
	}
	devices.held[device] = true
	return true
}

func releaseDevice(device string) {
	devices.mu.Lock()
	defer devices.mu.Unlock()
	delete(devices.held, device)
}
