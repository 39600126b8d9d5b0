// Package main provides lobbyctl, a terminal client for the lobby server.
// It sends the name handshake, prints server events and maps typed commands
// to protocol messages.
package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
)

// settings are read from LOBBYCTL_* variables; flags override them.
type settings struct {
	URL     string `env:"LOBBYCTL_URL,default=ws://127.0.0.1:8765/ws"`
	Name    string `env:"LOBBYCTL_NAME"`
	Colours bool   `env:"LOBBYCTL_COLOURS,default=true"`
}

func main() {
	_ = godotenv.Load()
	var s settings
	if _, err := env.UnmarshalFromEnviron(&s); err != nil {
		log.Fatalf("reading environment: %v", err)
	}

	url := flag.String("url", s.URL, "lobby server WebSocket URL")
	name := flag.String("name", s.Name, "display name sent in the handshake")
	colours := flag.Bool("colours", s.Colours, "colour event output")
	flag.Parse()

	if *name == "" {
		log.Fatal("a display name is required (-name or LOBBYCTL_NAME)")
	}

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, resp, err := dialer.Dial(*url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		log.Fatalf("connecting to %s: %v", *url, err)
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, []byte(*name)); err != nil {
		log.Fatalf("sending handshake: %v", err)
	}

	r := &renderer{out: os.Stdout, colours: *colours}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, frame, err := conn.ReadMessage()
			if err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					fmt.Fprintf(os.Stderr, "connection lost: %v\n", err)
				} else {
					fmt.Println("server closed the connection")
				}
				return
			}
			if err := r.Render(frame); err != nil {
				fmt.Fprintln(os.Stderr, err)
			}
		}
	}()

	fmt.Printf("connected to %s as %s; type help for commands\n", *url, *name)
	if err := readCommands(conn, *name, done); err != nil {
		log.Fatal(err)
	}
}

// readCommands forwards stdin commands until quit, EOF or a lost connection.
func readCommands(conn *websocket.Conn, name string, done <-chan struct{}) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-done:
			return nil
		case line, ok := <-lines:
			if !ok {
				return closeConn(conn)
			}
			msg, err := parseCommand(line, name)
			switch {
			case errors.Is(err, errQuit):
				return closeConn(conn)
			case errors.Is(err, errHelp):
				fmt.Println(helpText)
				continue
			case err != nil:
				fmt.Println(err)
				continue
			case msg == nil:
				continue
			}
			data, err := json.Marshal(msg)
			if err != nil {
				return fmt.Errorf("encoding %v: %w", msg, err)
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return fmt.Errorf("sending: %w", err)
			}
		}
	}
}

func closeConn(conn *websocket.Conn) error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	return conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}
