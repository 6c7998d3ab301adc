package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"tappytrade.io/internal/protocol"
	"tappytrade.io/internal/sim/clock"
	"tappytrade.io/internal/sim/exchange"
	"tappytrade.io/internal/sim/farms"
)

// offerRefresh re-sends STATE so other players' offers show up without a
// local change.
const offerRefresh = 5 * time.Second

type Server struct {
	farms *farms.Manager
	book  *exchange.Book
	clock clock.Clock
	log   *log.Logger

	origins  []string
	upgrader websocket.Upgrader
}

func NewServer(m *farms.Manager, book *exchange.Book, clk clock.Clock, logger *log.Logger) *Server {
	if clk == nil {
		clk = clock.RealClock{}
	}
	s := &Server{
		farms: m,
		book:  book,
		clock: clk,
		log:   logger,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  16 * 1024,
		WriteBufferSize: 64 * 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// AllowOrigins limits browser upgrades to the given origins. Empty or "*"
// allows any origin. Must be called before serving.
func (s *Server) AllowOrigins(origins []string) { s.origins = origins }

// checkOrigin applies the origin list to upgrades. Browsers do not run CORS
// preflights for websockets, so this is the only origin check on /v1/ws.
// Requests without an Origin header come from non-browser clients.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.origins) == 0 {
		return true
	}
	for _, o := range s.origins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

func (s *Server) printf(format string, args ...any) {
	if s.log != nil {
		s.log.Printf(format, args...)
	}
}

// Handler serves /v1/ws?player=<id>.
func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		player := r.URL.Query().Get("player")
		f, err := s.farms.Acquire(r.Context(), player)
		if err != nil {
			status := http.StatusInternalServerError
			switch {
			case errors.Is(err, farms.ErrBadPlayer):
				status = http.StatusBadRequest
			case errors.Is(err, farms.ErrClosed):
				status = http.StatusServiceUnavailable
			}
			http.Error(rw, err.Error(), status)
			return
		}
		defer s.farms.Release(player)

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sess := &session{
			srv:     s,
			farm:    f,
			out:     make(chan []byte, 32),
			changed: make(chan struct{}, 1),
		}
		rules := s.farms.Rules()
		sess.limiter = rate.NewLimiter(rate.Limit(rules.Tune.RateLimits.CommandsPerSec), rules.Tune.RateLimits.CommandBurst)

		if !sess.welcome() {
			return
		}
		unsubscribe := f.Engine.Subscribe(sess.markChanged)
		defer unsubscribe()
		sess.markChanged()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-sess.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// State pusher.
		go sess.pushStates(ctx)

		s.printf("connected player=%s session=%s", player, sess.id)

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			if !sess.handle(ctx, msg) {
				cancel()
				break
			}
		}
		s.printf("disconnected player=%s session=%s", player, sess.id)
	}
}

type session struct {
	srv     *Server
	farm    *farms.Farm
	id      string
	limiter *rate.Limiter

	out     chan []byte
	changed chan struct{}
	seq     atomic.Uint64
}

func (c *session) markChanged() {
	select {
	case c.changed <- struct{}{}:
	default:
	}
}

func (c *session) welcome() bool {
	c.id = uuid.NewString()
	rules := c.srv.farms.Rules()
	msg := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       c.id,
		Player:          c.farm.Player,
		Catalogs:        rules.Cat.Digests(),
		Tuning: protocol.TuningSummary{
			FrameIntervalMs:      rules.Tune.FrameIntervalMs,
			WorkerIntervalSec:    rules.Tune.WorkerIntervalSec,
			MaxWorkers:           rules.Tune.MaxWorkers,
			MaxSubplotLevel:      rules.Tune.MaxSubplotLevel,
			CatchUpMaxOfflineSec: rules.Tune.CatchUp.MaxOfflineSec,
			CommandsPerSec:       rules.Tune.RateLimits.CommandsPerSec,
		},
	}
	if sum := c.farm.CatchUp; !sum.Skipped && sum.OfflineSec > 0 {
		msg.CatchUp = &sum
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return false
	}
	c.out <- b
	return true
}

// pushStates coalesces change notifications into STATE messages. A full
// outbox drops the frame; the next one carries the whole view anyway.
func (c *session) pushStates(ctx context.Context) {
	t := time.NewTicker(offerRefresh)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.changed:
		case <-t.C:
		}
		b, err := c.stateFrame(ctx)
		if err != nil {
			if ctx.Err() == nil {
				c.srv.printf("state view player=%s err=%v", c.farm.Player, err)
			}
			continue
		}
		select {
		case c.out <- b:
		default:
		}
	}
}

func (c *session) stateFrame(ctx context.Context) ([]byte, error) {
	vctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	st, err := c.farm.Engine.View(vctx)
	if err != nil {
		return nil, err
	}
	msg := protocol.StateMsg{
		Type:            protocol.TypeState,
		ProtocolVersion: protocol.Version,
		Seq:             c.seq.Add(1),
		State:           protocol.BuildState(st, c.srv.farms.Rules(), clock.Millis(c.srv.clock)),
	}
	if c.srv.book != nil {
		msg.Offers = c.srv.book.Open()
	}
	return json.Marshal(msg)
}

// handle answers one inbound frame. It reports false when the connection
// should close.
func (c *session) handle(ctx context.Context, msg []byte) bool {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return c.reply(ctx, protocol.ErrorResult("", protocol.ErrBadRequest, "malformed message"))
	}
	if base.Type != protocol.TypeCmd {
		return c.reply(ctx, protocol.ErrorResult("", protocol.ErrBadRequest, "expected CMD"))
	}
	var cmd protocol.CmdMsg
	if err := json.Unmarshal(msg, &cmd); err != nil {
		return c.reply(ctx, protocol.ErrorResult("", protocol.ErrBadRequest, "malformed CMD"))
	}
	if cmd.ProtocolVersion != "" && cmd.ProtocolVersion != protocol.Version {
		return c.reply(ctx, protocol.ErrorResult(cmd.ID, protocol.ErrBadRequest, "bad protocol_version"))
	}
	if !c.limiter.Allow() {
		return c.reply(ctx, protocol.ErrorResult(cmd.ID, protocol.ErrRateLimit, "too many commands"))
	}

	sctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	res, err := c.farm.Engine.Submit(sctx, cmd.Command())
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		return c.reply(ctx, protocol.ErrorResult(cmd.ID, protocol.ErrBusy, err.Error()))
	}
	return c.reply(ctx, protocol.NewResult(cmd.ID, res))
}

func (c *session) reply(ctx context.Context, m protocol.ResultMsg) bool {
	b, err := json.Marshal(m)
	if err != nil {
		c.srv.printf("marshal result player=%s err=%v", c.farm.Player, err)
		b, _ = json.Marshal(protocol.ErrorResult(m.Ref, protocol.ErrInternal, "unencodable result"))
	}
	select {
	case c.out <- b:
		return true
	case <-ctx.Done():
		return false
	}
}
