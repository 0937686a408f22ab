// Package relay is a small in-memory implementation of the signaling relay's
// HTTP contract. It backs local development and the test suites; it keeps no
// state across restarts and performs no authentication.
package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/1ureka/pongnet/internal/protocol"
	"github.com/1ureka/pongnet/internal/util"
)

// Options configures a Server.
type Options struct {
	Debug  bool // log every request
	Logger *util.Logger
}

// Server serves the relay contract over HTTP.
type Server struct {
	store  *Store
	engine *gin.Engine
	log    *util.Logger
}

// NewServer builds a relay with an empty store.
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = util.NewLogger("component", "relay")
	}
	if !opts.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		store:  NewStore(),
		engine: gin.New(),
		log:    opts.Logger,
	}

	s.engine.Use(gin.Recovery())
	if opts.Debug {
		s.engine.Use(s.requestLogger())
	}

	s.engine.GET(protocol.PathHealth, s.handleHealth)
	s.engine.POST(protocol.PathPost, s.handlePost)
	s.engine.DELETE(protocol.PathPost, s.handleRemove)
	s.engine.GET(protocol.PathAnswer, s.handleGetAnswer)
	s.engine.GET(protocol.PathOffer, s.handleGetOffer)
	s.engine.GET(protocol.PathIceCandidates, s.handleGetCandidates)

	return s
}

// Store exposes the relay state.
func (s *Server) Store() *Store { return s.store }

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.engine.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start relay: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{Handler: s, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.log.Info("relay listening on %s", ln.Addr())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, protocol.HealthResponse{Status: "healthy"})
}

func (s *Server) handlePost(c *gin.Context) {
	var req protocol.PostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.PeerName == "" || req.Payload == "" {
		fail(c, http.StatusBadRequest, "missing peerName or payload")
		return
	}

	switch req.MessageType {
	case protocol.TypeOffer:
		client, err := s.store.RegisterOffer(req.PeerName, req.Payload)
		if err != nil {
			failErr(c, err)
			return
		}
		s.log.Debug("offer registered: %s -> %s", req.PeerName, client)
		c.JSON(http.StatusOK, protocol.PostResponse{Status: ok(), ClientName: client})

	case protocol.TypeAnswer:
		if err := s.store.SetAnswer(req.PeerName, req.Payload); err != nil {
			failErr(c, err)
			return
		}
		s.log.Debug("answer posted for %s", req.PeerName)
		c.JSON(http.StatusOK, protocol.PostResponse{Status: ok()})

	case protocol.TypeCandidate:
		if err := s.store.AddCandidate(req.PeerName, req.Payload); err != nil {
			failErr(c, err)
			return
		}
		c.JSON(http.StatusOK, protocol.PostResponse{Status: ok()})

	default:
		fail(c, http.StatusBadRequest, "unknown messageType")
	}
}

func (s *Server) handleRemove(c *gin.Context) {
	name, found := peerName(c)
	if !found {
		return
	}
	if !s.store.Remove(name) {
		failErr(c, ErrUnknownPeer)
		return
	}
	c.JSON(http.StatusOK, protocol.PostResponse{Status: ok()})
}

func (s *Server) handleGetAnswer(c *gin.Context) {
	name, found := peerName(c)
	if !found {
		return
	}
	answer, err := s.store.Answer(name)
	if err != nil {
		failErr(c, err)
		return
	}
	c.JSON(http.StatusOK, protocol.AnswerResponse{Status: ok(), Answer: answer})
}

func (s *Server) handleGetOffer(c *gin.Context) {
	name, found := peerName(c)
	if !found {
		return
	}
	offer, client, err := s.store.Offer(name)
	if err != nil {
		failErr(c, err)
		return
	}
	c.JSON(http.StatusOK, protocol.OfferResponse{Status: ok(), Offer: offer, ClientName: client})
}

func (s *Server) handleGetCandidates(c *gin.Context) {
	name, found := peerName(c)
	if !found {
		return
	}
	candidates, err := s.store.TakeCandidates(name)
	if err != nil {
		failErr(c, err)
		return
	}
	c.JSON(http.StatusOK, protocol.CandidatesResponse{Status: ok(), Candidates: candidates})
}

// requestLogger logs one line per request at debug level.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("%s %s peer=%q status=%d in %s",
			c.Request.Method, c.Request.URL.Path, c.GetHeader(protocol.HeaderPeerName),
			c.Writer.Status(), time.Since(start))
	}
}

// peerName reads the peerName header, answering 400 when it is missing.
func peerName(c *gin.Context) (string, bool) {
	name := c.GetHeader(protocol.HeaderPeerName)
	if name == "" {
		fail(c, http.StatusBadRequest, "missing peerName header")
		return "", false
	}
	return name, true
}

func ok() protocol.Status { return protocol.Status{Success: true} }

func fail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, protocol.Status{Success: false, Error: msg})
}

func failErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrUnknownPeer):
		fail(c, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrNameTaken), errors.Is(err, ErrAlreadyAnswered):
		fail(c, http.StatusConflict, err.Error())
	default:
		fail(c, http.StatusInternalServerError, err.Error())
	}
}
