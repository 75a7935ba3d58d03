package proxy

import (
	"context"

	"github.com/coolbeans/seiview/pkg/cache"
	"github.com/coolbeans/seiview/pkg/paginate"
	"github.com/coolbeans/seiview/pkg/processo"
	"github.com/coolbeans/seiview/pkg/sei"
)

// StreamEventType labels the frames of a progress stream.
type StreamEventType string

const (
	StreamProgress StreamEventType = "progress"
	StreamDone     StreamEventType = "done"
	StreamError    StreamEventType = "error"
)

// StreamEvent is one frame of a progress stream. Progress frames carry the
// running counts, the done frame carries the complete envelope, and an error
// frame carries a message and terminates the stream.
type StreamEvent struct {
	Type     StreamEventType
	Loaded   int
	Total    int
	Envelope *Envelope
	Message  string
}

// ProgressStream fetches the full andamento listing while emitting progress
// events, ending with a done event carrying the complete envelope or a
// single error event. The channel is closed when the stream ends. A cache
// hit produces the done event immediately.
func (s *Service) ProgressStream(ctx context.Context, token, numeroProcesso, idUnidade string) <-chan StreamEvent {
	numero := processo.Normalize(numeroProcesso)
	key := cache.ProgressKey(numero, idUnidade)
	events := make(chan StreamEvent, 16)

	emit := func(event StreamEvent) {
		select {
		case events <- event:
		case <-ctx.Done():
		}
	}

	go func() {
		defer close(events)

		var cached Envelope
		if s.cacheGet(ctx, key, &cached) {
			emit(StreamEvent{Type: StreamDone, Loaded: cached.Info.QuantidadeItens, Total: cached.Info.TotalItens, Envelope: &cached})
			return
		}

		pageFn := func(ctx context.Context, page, pageSize int) ([]sei.Andamento, int, error) {
			result, err := s.client.ProgressPage(ctx, token, numero, idUnidade, page, pageSize)
			return result.Andamentos, result.Info.TotalItens, err
		}

		items, err := paginate.FetchAllProgress(ctx, s.fetchCfg, pageFn, func(loaded, total int) {
			emit(StreamEvent{Type: StreamProgress, Loaded: loaded, Total: total})
		})
		if err != nil {
			emit(StreamEvent{Type: StreamError, Message: err.Error()})
			return
		}

		envelope := progressEnvelope(numero, items, len(items), false)
		s.cacheSet(ctx, key, envelope)
		emit(StreamEvent{Type: StreamDone, Loaded: len(items), Total: len(items), Envelope: &envelope})
	}()

	return events
}
