package registry

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/autocare/autocare-backend/pkg/enums"
)

// DecoderFunc turns an envelope's data field into a typed payload.
type DecoderFunc func(payload json.RawMessage) (any, error)

// JSON decodes the payload into a fresh *T.
func JSON[T any]() DecoderFunc {
	return func(payload json.RawMessage) (any, error) {
		out := new(T)
		if err := json.Unmarshal(payload, out); err != nil {
			return nil, err
		}
		return out, nil
	}
}

// DecoderRegistry stores versioned payload decoders for consumers.
type DecoderRegistry struct {
	mtx      sync.RWMutex
	decoders map[enums.OutboxEventType]map[int]DecoderFunc
}

func NewDecoderRegistry() *DecoderRegistry {
	return &DecoderRegistry{decoders: make(map[enums.OutboxEventType]map[int]DecoderFunc)}
}

func (r *DecoderRegistry) Register(eventType enums.OutboxEventType, version int, decoder DecoderFunc) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	byVersion, ok := r.decoders[eventType]
	if !ok {
		byVersion = make(map[int]DecoderFunc)
		r.decoders[eventType] = byVersion
	}
	byVersion[version] = decoder
}

// Decode uses the decoder for version, or the newest registered version
// below it. Payload changes are additive, so a consumer that lags a producer
// deploy still reads the fields it knows.
func (r *DecoderRegistry) Decode(eventType enums.OutboxEventType, version int, payload json.RawMessage) (any, error) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	byVersion := r.decoders[eventType]
	if decoder, ok := byVersion[version]; ok {
		return decoder(payload)
	}
	versions := make([]int, 0, len(byVersion))
	for v := range byVersion {
		if v < version {
			versions = append(versions, v)
		}
	}
	if len(versions) == 0 {
		return nil, fmt.Errorf("decoder not registered for %s@v%d", eventType, version)
	}
	sort.Ints(versions)
	return byVersion[versions[len(versions)-1]](payload)
}
