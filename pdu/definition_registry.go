package pdu

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Def is one PDU's registration: which channel it rides on and how large
// its buffer is, recorded under (robot, channel id) the same way the original
// loader adds a request/response definition pair for every client of a
// service.
type Def struct {
	Robot      string
	OrgName    string
	Name       string
	ChannelID  int
	PduSize    int
	MethodType string
}

type resolveKey struct {
	robot     string
	channelID int
}

// DefinitionRegistry records per-service PDU sizes and channel ids and
// resolves an incoming (robot, channel_id) pair to a PDU name. Every
// transport endpoint owns exactly one of these and populates it itself:
// LoopbackEndpoint in RegisterChannel, pduws as it first sees each PDU.
//
// Resolution is looked up through a bounded LRU in front of the
// authoritative map: a busy service can see the same handful of channel
// ids resolved on every inbound delivery, so caching the hot path is
// worth the modest bookkeeping.
type DefinitionRegistry struct {
	mu    sync.RWMutex
	byKey map[resolveKey]Def
	cache *lru.Cache[resolveKey, string]
}

// NewDefinitionRegistry creates a registry whose resolution cache holds up
// to cacheSize entries. A cacheSize of 0 disables caching (falls back to
// the map on every lookup) without changing correctness.
func NewDefinitionRegistry(cacheSize int) *DefinitionRegistry {
	r := &DefinitionRegistry{byKey: make(map[resolveKey]Def)}
	if cacheSize > 0 {
		c, _ := lru.New[resolveKey, string](cacheSize)
		r.cache = c
	}
	return r
}

// AddDefinition registers one PDU under the given robot namespace.
func (r *DefinitionRegistry) AddDefinition(robot string, def Def) {
	def.Robot = robot
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byKey[resolveKey{robot: robot, channelID: def.ChannelID}] = def
	if r.cache != nil {
		r.cache.Remove(resolveKey{robot: robot, channelID: def.ChannelID})
	}
}

// Resolve turns a (robot, channel_id) pair into the PDU's logical name.
func (r *DefinitionRegistry) Resolve(key ResolvedKey) (string, bool) {
	rk := resolveKey{robot: key.Robot, channelID: key.ChannelID}
	if r.cache != nil {
		if name, ok := r.cache.Get(rk); ok {
			return name, true
		}
	}
	r.mu.RLock()
	def, ok := r.byKey[rk]
	r.mu.RUnlock()
	if !ok {
		return "", false
	}
	if r.cache != nil {
		r.cache.Add(rk, def.OrgName)
	}
	return def.OrgName, true
}

// SizeOf returns the configured PDU size for (robot, pdu name), used by
// Endpoint.GetPduSize.
func (r *DefinitionRegistry) SizeOf(robot, pduName string) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, def := range r.byKey {
		if def.Robot == robot && def.OrgName == pduName {
			return def.PduSize, true
		}
	}
	return 0, false
}
