package providers

import (
	"context"
	"sync"

	"github.com/varastohq/varasto/types"
)

// AssetStream is the lazy, finite, single-pass sequence of discovered
// assets a collector produces. The producer goroutine calls Send for
// each asset and Close exactly once with the terminal status; the
// consumer ranges over Assets and then checks Err.
type AssetStream struct {
	ch chan types.DiscoveredAsset

	mu  sync.Mutex
	err error
}

// NewAssetStream creates a stream with the given channel buffer.
func NewAssetStream(buffer int) *AssetStream {
	return &AssetStream{ch: make(chan types.DiscoveredAsset, buffer)}
}

// Assets is the receive side of the stream.
func (s *AssetStream) Assets() <-chan types.DiscoveredAsset {
	return s.ch
}

// Send delivers one asset, honoring consumer cancellation.
func (s *AssetStream) Send(ctx context.Context, asset types.DiscoveredAsset) error {
	select {
	case s.ch <- asset:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close records the terminal status and closes the channel. Must be
// called exactly once by the producer.
func (s *AssetStream) Close(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	close(s.ch)
}

// Err returns the producer's terminal status. Valid after Assets is
// drained.
func (s *AssetStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
