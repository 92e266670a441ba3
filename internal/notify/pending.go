package notify

import "sync"

type pendingKey struct {
	userID    string
	channelID string
}

// Pending tracks debounced notifications per (target, channel). A scheduled
// delivery goes out only if it can still claim its message id.
type Pending struct {
	mu   sync.Mutex
	sets map[pendingKey]map[string]struct{}
}

func NewPending() *Pending {
	return &Pending{sets: make(map[pendingKey]map[string]struct{})}
}

func (p *Pending) Add(userID, channelID, messageID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := pendingKey{userID, channelID}
	set := p.sets[key]
	if set == nil {
		set = make(map[string]struct{})
		p.sets[key] = set
	}
	set[messageID] = struct{}{}
}

// Claim removes the message id and reports whether it was still pending.
func (p *Pending) Claim(userID, channelID, messageID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := pendingKey{userID, channelID}
	set := p.sets[key]
	if _, ok := set[messageID]; !ok {
		return false
	}
	delete(set, messageID)
	if len(set) == 0 {
		delete(p.sets, key)
	}
	return true
}

// ClearChannel drops everything pending for the user in the channel.
func (p *Pending) ClearChannel(userID, channelID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := pendingKey{userID, channelID}
	n := len(p.sets[key])
	delete(p.sets, key)
	return n
}
