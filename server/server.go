package server

import (
	"context"
	"net/http"
	netrpc "net/rpc"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/tambolahq/tambola-server/config"
	"github.com/tambolahq/tambola-server/game"
	"github.com/tambolahq/tambola-server/logger"
	"github.com/tambolahq/tambola-server/monitor"
	"github.com/tambolahq/tambola-server/network"
	gameserver_rpc "github.com/tambolahq/tambola-server/rpc"
	"github.com/tambolahq/tambola-server/scheduler"
	"github.com/tambolahq/tambola-server/services"
	"github.com/tambolahq/tambola-server/session"
	"github.com/tambolahq/tambola-server/store"
)

// GameServer wires the HTTP/WebSocket gateway to the game manager.
type GameServer struct {
	addr        string
	engine      *gin.Engine
	upgrader    websocket.Upgrader
	manager     *game.Manager
	registry    *session.Registry
	sched       *scheduler.Scheduler
	roomService *services.RoomService
	metrics     *monitor.Metrics
	rpcServer   *gameserver_rpc.Server
}

func NewGameServer(cfg *config.Config, st store.Store) *GameServer {
	registry := session.NewRegistry()
	sched := scheduler.New()
	metrics := monitor.NewMetrics("tambola")

	manager := game.NewManager(game.Options{
		Store:          st,
		Registry:       registry,
		Scheduler:      sched,
		Metrics:        metrics,
		CountdownDelay: time.Duration(cfg.Game.CountdownMs) * time.Millisecond,
		CallInterval:   time.Duration(cfg.Game.CallIntervalMs) * time.Millisecond,
	})

	s := &GameServer{
		addr:        cfg.Server.HTTPAddress,
		manager:     manager,
		registry:    registry,
		sched:       sched,
		roomService: services.NewRoomService(st),
		metrics:     metrics,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 允许所有跨域请求
			},
		},
	}

	rpcServer, err := gameserver_rpc.NewServer(cfg.Server.RPCAddress)
	if err != nil {
		logger.Log.Fatalf("Failed to create RPC server: %v", err)
	}
	s.rpcServer = rpcServer
	netrpc.Register(gameserver_rpc.NewAdminService(s.roomService))

	s.engine = s.setupRouter()
	return s
}

func (s *GameServer) setupRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.Default())

	r.GET("/ws", s.handleWebSocket)
	r.GET("/room/:code", s.handleGetRoom)
	r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now()})
	})

	return r
}

func (s *GameServer) Start() error {
	go s.rpcServer.Start()

	logger.Log.Infof("Game server listening on %s", s.addr)
	return s.engine.Run(s.addr)
}

func (s *GameServer) Shutdown() {
	s.rpcServer.Stop()
	s.sched.Stop()
}

// handleGetRoom is the read-only REST endpoint: a pure read-through to
// the room store, no state mutation.
func (s *GameServer) handleGetRoom(c *gin.Context) {
	room, players, err := s.roomService.GetRoomInfo(c.Request.Context(), c.Param("code"))
	if err == store.ErrNotFound {
		c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": room, "players": players})
}

func (s *GameServer) handleWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	s.handleConnection(conn)
}

func (s *GameServer) handleConnection(conn *websocket.Conn) {
	wsConn := network.NewWSConnection(conn)
	sess := session.NewSession(uuid.New().String(), wsConn)

	s.metrics.ConnectedClients.Inc()
	logger.Log.Infof("New connection from %s, session ID: %s", wsConn.RemoteAddr(), sess.ID)

	defer func() {
		logger.Log.Infof("Connection closed from %s, session ID: %s", wsConn.RemoteAddr(), sess.ID)
		s.metrics.ConnectedClients.Dec()
		wsConn.Close()
		if err := s.manager.HandleDisconnect(context.Background(), sess.ID); err != nil {
			logger.Log.Errorf("Disconnect cleanup failed for session %s: %v", sess.ID, err)
		}
	}()

	for {
		data, err := wsConn.ReadMessage()
		if err != nil {
			return
		}
		s.handleMessage(sess, data)
	}
}

// handleMessage validates one inbound frame and dispatches it. A
// malformed message gets an error reply; the connection stays open.
func (s *GameServer) handleMessage(sess *session.Session, data []byte) {
	start := time.Now()
	s.metrics.MessagesReceived.Inc()
	defer func() {
		s.metrics.MessageLatency.Observe(time.Since(start).Seconds())
	}()

	ctx := context.Background()

	msg, err := network.DecodeClientMessage(data)
	if err != nil {
		logger.Log.Infof("Malformed message from session %s: %v", sess.ID, err)
		sess.SendJSON(network.NewError("Invalid message format"))
		return
	}

	switch msg.Type {
	case network.MsgCreateRoom:
		s.handleCreateRoom(ctx, sess, msg, false)
	case network.MsgCreateSoloRoom:
		s.handleCreateRoom(ctx, sess, msg, true)
	case network.MsgJoinRoom:
		s.handleJoinRoom(ctx, sess, msg)
	case network.MsgStartGame:
		if err := s.manager.StartGame(ctx, msg.RoomCode); err != nil {
			logger.Log.Errorf("start_game failed for room %s: %v", msg.RoomCode, err)
		}
	case network.MsgMarkCell:
		if err := s.manager.MarkCell(ctx, msg.RoomCode, msg.PlayerID,
			*msg.TicketIndex, *msg.RowIndex, *msg.ColIndex); err != nil {
			logger.Log.Errorf("mark_cell failed for room %s: %v", msg.RoomCode, err)
		}
	}
}

func (s *GameServer) handleCreateRoom(ctx context.Context, sess *session.Session, msg *network.ClientMessage, solo bool) {
	var roomCode string
	var err error
	if solo {
		roomCode, err = s.manager.CreateSoloRoom(ctx, sess.ID, msg.PlayerName, sess)
	} else {
		roomCode, err = s.manager.CreateRoom(ctx, sess.ID, msg.PlayerName, sess)
	}
	if err != nil {
		logger.Log.Errorf("Room creation failed for session %s: %v", sess.ID, err)
		sess.SendJSON(network.NewError("Failed to create room"))
		return
	}

	sess.SendJSON(network.NewRoomCreated(roomCode))
	s.manager.BroadcastGameState(ctx, roomCode)
}

func (s *GameServer) handleJoinRoom(ctx context.Context, sess *session.Session, msg *network.ClientMessage) {
	ok, err := s.manager.JoinRoom(ctx, msg.RoomCode, sess.ID, msg.PlayerName, sess)
	if err != nil {
		logger.Log.Errorf("join_room failed for room %s: %v", msg.RoomCode, err)
	}
	if err != nil || !ok {
		sess.SendJSON(network.NewError("Room not found or already started"))
		return
	}
	sess.SendJSON(network.NewRoomJoined(msg.RoomCode))
}
