package service

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/engagemesh/engage/src/node"
)

// Service exposes a read-only HTTP API over a running node: engine counters,
// individual vertices, the current tip frontier and the peer set.
type Service struct {
	bindAddress string
	node        *node.Node
	router      *mux.Router
	logger      *logrus.Entry
}

// NewService creates the service and registers its routes.
func NewService(bindAddress string, n *node.Node, logger *logrus.Entry) *Service {
	service := &Service{
		bindAddress: bindAddress,
		node:        n,
		router:      mux.NewRouter(),
		logger:      logger,
	}

	service.registerHandlers()

	return service
}

func (s *Service) registerHandlers() {
	s.logger.Debug("Registering API handlers")
	s.router.HandleFunc("/stats", s.makeHandler(s.GetStats)).Methods("GET")
	s.router.HandleFunc("/vertex/{hash}", s.makeHandler(s.GetVertex)).Methods("GET")
	s.router.HandleFunc("/vertices", s.makeHandler(s.GetVertices)).Methods("GET")
	s.router.HandleFunc("/tips", s.makeHandler(s.GetTips)).Methods("GET")
	s.router.HandleFunc("/peers", s.makeHandler(s.GetPeers)).Methods("GET")
}

func (s *Service) makeHandler(fn func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// enable CORS
		w.Header().Set("Access-Control-Allow-Origin", "*")
		fn(w, r)
	}
}

// Router returns the underlying mux router, so the service can be mounted in
// an existing server instead of running its own.
func (s *Service) Router() *mux.Router {
	return s.router
}

// Serve calls ListenAndServe. This is a blocking call.
func (s *Service) Serve() {
	s.logger.WithField("bind_address", s.bindAddress).Debug("Serving API")

	if err := http.ListenAndServe(s.bindAddress, s.router); err != nil {
		s.logger.Error(err)
	}
}

// GetStats returns engine and node counters.
func (s *Service) GetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.node.GetStats())
}

// GetVertex returns one vertex by hash.
func (s *Service) GetVertex(w http.ResponseWriter, r *http.Request) {
	hash := mux.Vars(r)["hash"]

	vertex, err := s.node.Ledger().Store().GetVertex(hash)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	writeJSON(w, vertex)
}

// GetVertices returns the whole accepted set in insertion order.
func (s *Service) GetVertices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.node.Ledger().Store().Vertices())
}

// GetTips returns the hashes of the current frontier.
func (s *Service) GetTips(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.node.Ledger().Tips())
}

// GetPeers returns the known peer set.
func (s *Service) GetPeers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.node.GetPeers())
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
