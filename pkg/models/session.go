// Package models defines the session state tracked per attacker, the
// persisted interaction and honey-token records, and the DTO shapes served
// by the dashboard API.
package models

import (
	"encoding/json"
	"sync"
	"time"
)

// MaxEscalationLevel caps how far a session's engagement level can rise.
const MaxEscalationLevel = 3

// PortRecord is one discovered host:port pair with the service banner the
// simulators fabricated for it.
type PortRecord struct {
	Host    string `json:"host"`
	Port    int    `json:"port"`
	Service string `json:"service"`
}

// SessionContext is the live state of one attacker session. Simulators and
// the dispatch pipeline mutate it concurrently, so all list and counter
// updates go through its methods; direct field access is not exposed.
//
// Escalation is monotone: Escalate never lowers the level, and the level
// never exceeds MaxEscalationLevel. Discovery lists are ordered and
// deduplicated (first sighting wins).
type SessionContext struct {
	mu sync.Mutex

	id               string
	clientInfo       map[string]any
	startedAt        time.Time
	lastSeenAt       time.Time
	escalationLevel  int
	hosts            []string
	ports            []PortRecord
	files            []string
	credentials      []string
	interactionCount int
	metadata         map[string]any
}

// NewSessionContext creates a fresh session with zero escalation and empty
// discovery lists.
func NewSessionContext(id string, clientInfo map[string]any, now time.Time) *SessionContext {
	if clientInfo == nil {
		clientInfo = map[string]any{}
	}
	return &SessionContext{
		id:         id,
		clientInfo: clientInfo,
		startedAt:  now,
		lastSeenAt: now,
		metadata:   map[string]any{},
	}
}

// RestoredSession carries persisted fields back into a live SessionContext
// when the manager rehydrates a cache miss from the store.
type RestoredSession struct {
	ID               string
	ClientInfo       map[string]any
	StartedAt        time.Time
	LastSeenAt       time.Time
	EscalationLevel  int
	Hosts            []string
	Ports            []PortRecord
	Files            []string
	Credentials      []string
	InteractionCount int
	Metadata         map[string]any
}

// Restore builds a SessionContext from persisted state.
func Restore(r RestoredSession) *SessionContext {
	s := NewSessionContext(r.ID, r.ClientInfo, r.StartedAt)
	s.lastSeenAt = r.LastSeenAt
	s.escalationLevel = min(r.EscalationLevel, MaxEscalationLevel)
	s.hosts = append(s.hosts, r.Hosts...)
	s.ports = append(s.ports, r.Ports...)
	s.files = append(s.files, r.Files...)
	s.credentials = append(s.credentials, r.Credentials...)
	s.interactionCount = r.InteractionCount
	if r.Metadata != nil {
		s.metadata = r.Metadata
	}
	return s
}

// ID returns the 32-character hex session identifier.
func (s *SessionContext) ID() string { return s.id }

// StartedAt returns the session creation time.
func (s *SessionContext) StartedAt() time.Time { return s.startedAt }

// LastSeenAt returns the time of the most recent interaction.
func (s *SessionContext) LastSeenAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeenAt
}

// ClientInfo returns the clientInfo blob captured at initialize time.
func (s *SessionContext) ClientInfo() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clientInfo
}

// EscalationLevel returns the current engagement level (0..3).
func (s *SessionContext) EscalationLevel() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.escalationLevel
}

// InteractionCount returns how many requests this session has made.
func (s *SessionContext) InteractionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interactionCount
}

// Touch records one more interaction at the given time.
func (s *SessionContext) Touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interactionCount++
	s.lastSeenAt = now
}

// Escalate raises the engagement level to the given value. Lower values are
// ignored and the result is capped at MaxEscalationLevel.
func (s *SessionContext) Escalate(level int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if level > s.escalationLevel {
		s.escalationLevel = min(level, MaxEscalationLevel)
	}
}

// AddHost records a discovered host, ignoring duplicates.
func (s *SessionContext) AddHost(host string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range s.hosts {
		if h == host {
			return
		}
	}
	s.hosts = append(s.hosts, host)
}

// AddPort records a discovered host:port pair, ignoring duplicates. The
// service string does not participate in deduplication.
func (s *SessionContext) AddPort(host string, port int, service string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.ports {
		if p.Host == host && p.Port == port {
			return
		}
	}
	s.ports = append(s.ports, PortRecord{Host: host, Port: port, Service: service})
}

// AddFile records a discovered file path, ignoring duplicates.
func (s *SessionContext) AddFile(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.files {
		if f == path {
			return
		}
	}
	s.files = append(s.files, path)
}

// AddCredential records a harvested credential as "type:context", ignoring
// duplicates.
func (s *SessionContext) AddCredential(credType, context string) {
	entry := credType + ":" + context
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.credentials {
		if c == entry {
			return
		}
	}
	s.credentials = append(s.credentials, entry)
}

// Hosts returns a copy of the discovered hosts in discovery order.
func (s *SessionContext) Hosts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.hosts...)
}

// Ports returns a copy of the discovered ports in discovery order.
func (s *SessionContext) Ports() []PortRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]PortRecord(nil), s.ports...)
}

// Files returns a copy of the discovered file paths in discovery order.
func (s *SessionContext) Files() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.files...)
}

// Credentials returns a copy of the harvested credentials in discovery order.
func (s *SessionContext) Credentials() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.credentials...)
}

// Metadata returns the session's metadata blob.
func (s *SessionContext) Metadata() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metadata
}

// Snapshot returns a consistent copy of all fields for persistence and
// serialization.
func (s *SessionContext) Snapshot() RestoredSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return RestoredSession{
		ID:               s.id,
		ClientInfo:       s.clientInfo,
		StartedAt:        s.startedAt,
		LastSeenAt:       s.lastSeenAt,
		EscalationLevel:  s.escalationLevel,
		Hosts:            append([]string(nil), s.hosts...),
		Ports:            append([]PortRecord(nil), s.ports...),
		Files:            append([]string(nil), s.files...),
		Credentials:      append([]string(nil), s.credentials...),
		InteractionCount: s.interactionCount,
		Metadata:         s.metadata,
	}
}

// MarshalJSON serializes the session in the dashboard's wire shape.
func (s *SessionContext) MarshalJSON() ([]byte, error) {
	snap := s.Snapshot()
	return json.Marshal(map[string]any{
		"id":                     snap.ID,
		"client_info":            snap.ClientInfo,
		"started_at":             snap.StartedAt.UTC().Format(time.RFC3339),
		"last_seen_at":           snap.LastSeenAt.UTC().Format(time.RFC3339),
		"escalation_level":       snap.EscalationLevel,
		"discovered_hosts":       snap.Hosts,
		"discovered_ports":       snap.Ports,
		"discovered_files":       snap.Files,
		"discovered_credentials": snap.Credentials,
		"interaction_count":      snap.InteractionCount,
		"metadata":               snap.Metadata,
	})
}
