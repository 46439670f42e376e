// Package ws broadcasts committed plot events to live map viewers.
// The feed is fire-and-forget: a client that falls behind is dropped
// and re-reads the API on reconnect.
package ws

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"neighborhood.land/internal/catalogs"
	"neighborhood.land/internal/ledger"
	"neighborhood.land/internal/protocol"
)

type client struct {
	id  string
	out chan []byte
}

type Feed struct {
	store *ledger.Store
	cats  *catalogs.Catalogs
	log   *log.Logger

	queueSize int
	nextID    atomic.Uint64

	mu      sync.Mutex
	clients map[string]*client

	upgrader websocket.Upgrader
}

func NewFeed(store *ledger.Store, cats *catalogs.Catalogs, logger *log.Logger, queueSize int) *Feed {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Feed{
		store:     store,
		cats:      cats,
		log:       logger,
		queueSize: queueSize,
		clients:   map[string]*client{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

// Broadcast encodes a committed ledger event and fans it out. A client
// whose queue is full has the frame dropped.
func (f *Feed) Broadcast(ev ledger.Event) {
	msg := protocol.PlotEventMsg{
		Type: protocol.TypePlotEvent,
		Kind: ev.Kind,
		Plot: ev.Plot,
		At:   time.Now().UTC(),
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.clients {
		select {
		case c.out <- b:
		default:
			// backpressure: drop the frame, not the connection
		}
	}
}

// ClientCount reports the number of connected viewers.
func (f *Feed) ClientCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

func (f *Feed) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := f.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		c := &client{
			id:  fmt.Sprintf("viewer-%d", f.nextID.Add(1)),
			out: make(chan []byte, f.queueSize),
		}

		welcome, err := f.welcome(c.id, r)
		if err != nil {
			f.log.Printf("ws welcome: %v", err)
			return
		}
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, welcome); err != nil {
			return
		}

		f.mu.Lock()
		f.clients[c.id] = c
		f.mu.Unlock()

		done := make(chan struct{})

		// Writer goroutine.
		go func() {
			defer close(done)
			for b := range c.out {
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					return
				}
			}
		}()

		// Reader loop. Viewers only send PING keepalives; anything else
		// is ignored.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil {
				continue
			}
			if base.Type == protocol.TypePing {
				pong, _ := json.Marshal(protocol.BaseMessage{Type: protocol.TypePong})
				select {
				case c.out <- pong:
				default:
				}
			}
		}

		// Unregister before closing the queue: once c.out is closed a
		// concurrent Broadcast must not be able to reach it.
		f.mu.Lock()
		delete(f.clients, c.id)
		f.mu.Unlock()
		close(c.out)
		<-done
	}
}

func (f *Feed) welcome(sessionID string, r *http.Request) ([]byte, error) {
	mapID, err := f.store.ActiveMapID(r.Context())
	if err != nil && err != ledger.ErrMapNotFound {
		return nil, err
	}
	msg := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sessionID,
		ActiveMapID:     mapID,
		Catalogs: protocol.CatalogDigests{
			HouseTypes:  protocol.DigestRef{Digest: f.cats.HouseTypes.Digest, Count: len(f.cats.HouseTypes.Defs)},
			HouseColors: protocol.DigestRef{Digest: f.cats.HouseColors.Digest, Count: len(f.cats.HouseColors.Defs)},
			PlotTypes:   protocol.DigestRef{Digest: f.cats.PlotTypes.Digest, Count: len(f.cats.PlotTypes.Defs)},
		},
	}
	return json.Marshal(msg)
}
