package ws

import (
	"net/http"
	"sync"

	"github.com/daniellavrushin/lure/interaction"
)

var (
	interactionHub  *Hub
	interactionOnce sync.Once
)

func GetInteractionHub() *Hub {
	interactionOnce.Do(func() {
		interactionHub = NewHub("interactions")
	})
	return interactionHub
}

// PublishInteraction has the shape of a sink observer: line is the record
// exactly as it was appended to the sink.
func PublishInteraction(_ interaction.Record, line []byte) {
	msg := make([]byte, len(line))
	copy(msg, line)
	GetInteractionHub().Broadcast(msg)
}

func HandleInteractionsWebSocket(w http.ResponseWriter, r *http.Request) {
	GetInteractionHub().ServeHTTP(w, r)
}

// Shutdown stops every hub that was started.
func Shutdown() {
	if logHub != nil {
		logHub.Stop()
	}
	if interactionHub != nil {
		interactionHub.Stop()
	}
}
