// Interactive test client. Connects, creates a solo room and prints
// drawn numbers as they arrive. Commands on stdin:
//
//	start            begin the game
//	mark <r> <c>     toggle a cell on your first ticket
package main

import (
	"bufio"
	"encoding/json"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

type clientMessage struct {
	Type        string `json:"type"`
	PlayerName  string `json:"playerName,omitempty"`
	RoomCode    string `json:"roomCode,omitempty"`
	PlayerID    string `json:"playerId,omitempty"`
	TicketIndex *int   `json:"ticketIndex,omitempty"`
	RowIndex    *int   `json:"rowIndex,omitempty"`
	ColIndex    *int   `json:"colIndex,omitempty"`
}

type serverMessage struct {
	Type     string `json:"type"`
	RoomCode string `json:"roomCode,omitempty"`
	Message  string `json:"message,omitempty"`
	Room     *struct {
		RoomCode      string `json:"roomCode"`
		Status        string `json:"status"`
		CurrentNumber *int   `json:"currentNumber"`
		CalledNumbers []int  `json:"calledNumbers"`
	} `json:"room,omitempty"`
	Players []struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		IsBot bool   `json:"isBot"`
	} `json:"players,omitempty"`
}

func send(c *websocket.Conn, msg clientMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return c.WriteMessage(websocket.TextMessage, data)
}

func main() {
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	u := url.URL{Scheme: "ws", Host: "localhost:8080", Path: "/ws"}
	log.Printf("Connecting to %s", u.String())

	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("Dial failed: %v", err)
	}
	defer c.Close()

	done := make(chan struct{})

	var roomCode string
	var playerID string

	// Read loop
	go func() {
		defer close(done)
		for {
			_, data, err := c.ReadMessage()
			if err != nil {
				log.Println("Read error:", err)
				return
			}

			var msg serverMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				log.Printf("Bad frame: %s", string(data))
				continue
			}

			switch msg.Type {
			case "room_created":
				roomCode = msg.RoomCode
				log.Printf("Room created: %s (type 'start' to begin)", roomCode)
			case "error":
				log.Printf("Server error: %s", msg.Message)
			case "game_state":
				if msg.Room == nil {
					continue
				}
				for _, p := range msg.Players {
					if !p.IsBot && playerID == "" {
						playerID = p.ID
					}
				}
				if msg.Room.CurrentNumber != nil {
					log.Printf("[%s] number called: %d (total %d)",
						msg.Room.Status, *msg.Room.CurrentNumber, len(msg.Room.CalledNumbers))
				} else {
					log.Printf("[%s] %d players", msg.Room.Status, len(msg.Players))
				}
			}
		}
	}()

	log.Println("Creating solo room...")
	if err := send(c, clientMessage{Type: "create_solo_room", PlayerName: "Console Player"}); err != nil {
		log.Println("Write error:", err)
		return
	}

	reader := bufio.NewReader(os.Stdin)
	for {
		select {
		case <-done:
			return
		case <-interrupt:
			log.Println("Interrupt received, closing connection.")
			err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				log.Println("Write close error:", err)
			}
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return
		default:
			text, _ := reader.ReadString('\n')
			fields := strings.Fields(text)
			if len(fields) == 0 {
				continue
			}

			switch fields[0] {
			case "start":
				if err := send(c, clientMessage{Type: "start_game", RoomCode: roomCode}); err != nil {
					log.Println("Write error:", err)
					return
				}
			case "mark":
				if len(fields) != 3 {
					log.Println("Usage: mark <row> <col>")
					continue
				}
				r, _ := strconv.Atoi(fields[1])
				col, _ := strconv.Atoi(fields[2])
				zero := 0
				if err := send(c, clientMessage{
					Type:        "mark_cell",
					RoomCode:    roomCode,
					PlayerID:    playerID,
					TicketIndex: &zero,
					RowIndex:    &r,
					ColIndex:    &col,
				}); err != nil {
					log.Println("Write error:", err)
					return
				}
			}
		}
	}
}
