// Package playback keeps the server-side model of the browser audio
// element in lockstep with user intent, including mid-song source
// swaps and auto-advance.
package playback

import "sync"

// Sink is the audio output the controller drives. The browser client
// mirrors every call against its audio element and reports element
// events back through the controller's Handle methods.
type Sink interface {
	Load(url string)
	Play()
	Pause()
	Detach()
	Seek(seconds float64)
	Position() float64
	Duration() float64
	SetVolume(percent int)
	Volume() int
}

// StateSink is the in-memory sink a polling browser client syncs
// against. Position advances only through Seek and UpdatePosition
// heartbeats from the client.
type StateSink struct {
	mu       sync.Mutex
	url      string
	playing  bool
	position float64
	duration float64
	volume   int
	rev      uint64
}

func NewStateSink() *StateSink {
	return &StateSink{volume: DefaultVolume}
}

func (s *StateSink) Load(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.url = url
	s.playing = false
	s.position = 0
	s.duration = 0
	s.rev++
}

func (s *StateSink) Play() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playing = true
	s.rev++
}

func (s *StateSink) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playing = false
	s.rev++
}

func (s *StateSink) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.url = ""
	s.playing = false
	s.position = 0
	s.duration = 0
	s.rev++
}

func (s *StateSink) Seek(seconds float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seconds < 0 {
		seconds = 0
	}
	s.position = seconds
	s.rev++
}

func (s *StateSink) Position() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position
}

func (s *StateSink) Duration() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duration
}

func (s *StateSink) SetVolume(percent int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	s.volume = percent
	s.rev++
}

func (s *StateSink) Volume() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

// UpdatePosition is the client heartbeat carrying the audio element's
// clock.
func (s *StateSink) UpdatePosition(position, duration float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.position = position
	if duration > 0 {
		s.duration = duration
	}
}

// Snapshot is what the polling client renders.
type Snapshot struct {
	URL      string  `json:"url"`
	Playing  bool    `json:"playing"`
	Position float64 `json:"position"`
	Duration float64 `json:"duration"`
	Volume   int     `json:"volume"`
	Rev      uint64  `json:"rev"`
}

func (s *StateSink) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		URL:      s.url,
		Playing:  s.playing,
		Position: s.position,
		Duration: s.duration,
		Volume:   s.volume,
		Rev:      s.rev,
	}
}
