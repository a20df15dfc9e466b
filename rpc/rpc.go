package rpc

import (
	"context"
	"net"
	"net/rpc"

	"github.com/tambolahq/tambola-server/logger"
	"github.com/tambolahq/tambola-server/models"
	"github.com/tambolahq/tambola-server/services"
)

// Server manages the RPC listener for the admin surface.
type Server struct {
	listener net.Listener
	address  string
}

func NewServer(addr string) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener: listener,
		address:  addr,
	}, nil
}

// Start begins listening for RPC requests.
func (s *Server) Start() {
	logger.Log.Infof("RPC server listening on %s", s.address)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if _, ok := err.(*net.OpError); ok {
				logger.Log.Info("RPC server listener closed.")
				return
			}
			logger.Log.Errorf("RPC server accept error: %v", err)
			continue
		}
		go rpc.ServeConn(conn)
	}
}

// Stop closes the RPC listener.
func (s *Server) Stop() {
	if s.listener != nil {
		logger.Log.Info("Stopping RPC server.")
		s.listener.Close()
	}
}

// AdminService exposes read-only room lookups over net/rpc.
type AdminService struct {
	rooms *services.RoomService
}

func NewAdminService(rooms *services.RoomService) *AdminService {
	return &AdminService{rooms: rooms}
}

type RoomInfoArgs struct {
	RoomCode string
}

type RoomInfoReply struct {
	Room    *models.Room
	Players []*models.Player
}

// GetRoomInfo follows the net/rpc method signature: exported arguments,
// pointer reply, error return.
func (a *AdminService) GetRoomInfo(args *RoomInfoArgs, reply *RoomInfoReply) error {
	room, players, err := a.rooms.GetRoomInfo(context.Background(), args.RoomCode)
	if err != nil {
		return err
	}
	reply.Room = room
	reply.Players = players
	return nil
}
