// Command client is an interactive terminal player for a bingo server.
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/pflag"

	"bingo/internal/game/card"
	"bingo/internal/network"
	"bingo/internal/services/cluster"
	"bingo/internal/session"
	"bingo/internal/session/message"
)

func main() {
	servers := pflag.StringSlice("server", []string{"localhost:8080"}, "server addresses, tried in order")
	consulAddr := pflag.String("consul", "", "discover a server through this Consul agent instead of --server")
	service := pflag.String("service", "bingo", "service name registered in Consul")
	token := pflag.String("token", os.Getenv("BINGO_TOKEN"), "bearer token identifying the player")
	sessionID := pflag.String("session", "", "session to connect to; a new one is created when empty")
	maxPlayers := pflag.Int("max-players", session.MaxPlayers, "capacity of a newly created session")
	pflag.Parse()

	if *token == "" {
		log.Fatal("a token is required (--token or BINGO_TOKEN)")
	}

	addrs := *servers
	if *consulAddr != "" {
		client, err := cluster.NewConsulClient(*consulAddr, nil)
		if err != nil {
			log.Fatalf("consul: %v", err)
		}
		addr, err := cluster.DiscoverAny(client, *service)
		if err != nil {
			log.Fatalf("discovery: %v", err)
		}
		addrs = []string{addr}
	}

	var (
		conn *websocket.Conn
		host string
	)
	for _, addr := range addrs {
		host = strings.TrimSpace(addr)
		id := *sessionID
		if id == "" {
			created, err := createSession(host, *token, *maxPlayers)
			if err != nil {
				log.Printf("create session on %s: %v", host, err)
				continue
			}
			id = created
			fmt.Printf("created session %s\n", id)
		}
		c, err := dial(host, id, *token)
		if err != nil {
			log.Printf("connect to %s: %v", host, err)
			continue
		}
		conn = c
		break
	}
	if conn == nil {
		log.Fatal("no server reachable")
	}
	defer conn.Close()

	p := newPlayer(conn, os.Stdout)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	done := make(chan struct{})
	go p.readLoop(done)

	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		p.printHelp()
		for scanner.Scan() {
			if err := p.handleInput(scanner.Text()); err != nil {
				if errors.Is(err, errQuit) {
					interrupt <- os.Interrupt
					return
				}
				fmt.Fprintln(p.out, err)
			}
		}
	}()

	select {
	case <-done:
		fmt.Println("disconnected")
	case <-interrupt:
		p.mu.Lock()
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		p.mu.Unlock()
	}
}

func createSession(host, token string, maxPlayers int) (string, error) {
	body, _ := json.Marshal(map[string]int{"maxPlayers": maxPlayers})
	req, err := http.NewRequest(http.MethodPost, "http://"+host+"/sessions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("status %s", resp.Status)
	}
	var s session.Session
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return "", err
	}
	return s.ID, nil
}

func dial(host, sessionID, token string) (*websocket.Conn, error) {
	u := url.URL{
		Scheme:   "ws",
		Host:     host,
		Path:     "/sessions/" + url.PathEscape(sessionID) + "/ws",
		RawQuery: url.Values{"token": {token}}.Encode(),
	}
	conn, resp, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w (%s)", err, resp.Status)
		}
		return nil, err
	}
	return conn, nil
}

var errQuit = errors.New("quit")

// player holds what the terminal shows: the last snapshot and the own card.
type player struct {
	conn *websocket.Conn
	out  *os.File

	// mu serializes writes on conn and guards the fields below.
	mu        sync.Mutex
	state     session.Session
	card      *card.Card
	called    []int
	pingStart time.Time
	pongs     chan time.Duration
}

func newPlayer(conn *websocket.Conn, out *os.File) *player {
	p := &player{conn: conn, out: out, pongs: make(chan time.Duration, 1)}
	conn.SetPongHandler(func(string) error {
		p.mu.Lock()
		start := p.pingStart
		p.pingStart = time.Time{}
		p.mu.Unlock()
		if !start.IsZero() {
			select {
			case p.pongs <- time.Since(start):
			default:
			}
		}
		return nil
	})
	return p
}

func (p *player) readLoop(done chan struct{}) {
	defer close(done)
	for {
		var msg network.Message
		if err := p.conn.ReadJSON(&msg); err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				fmt.Fprintf(p.out, "server closed the connection: %d %s\n", ce.Code, ce.Text)
			} else {
				log.Printf("read: %v", err)
			}
			return
		}
		p.apply(msg)
	}
}

func (p *player) apply(msg network.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch msg.Type {
	case message.TypeGameState:
		var s session.Session
		if err := json.Unmarshal(msg.Data, &s); err != nil {
			log.Printf("bad game_state: %v", err)
			return
		}
		p.state = s
		p.called = s.CalledNumbers
		fmt.Fprintln(p.out, renderState(s))
	case message.TypeNewNumber:
		if msg.Number == nil {
			return
		}
		p.called = append(p.called, *msg.Number)
		fmt.Fprintf(p.out, ">> %d  (%d called)\n", *msg.Number, len(p.called))
	case message.TypeCardUpdated:
		var c card.Card
		if err := json.Unmarshal(msg.Card, &c); err != nil {
			log.Printf("bad card: %v", err)
			return
		}
		p.card = &c
		fmt.Fprint(p.out, renderCard(&c, p.called))
	case message.TypeGameOver:
		fmt.Fprintf(p.out, "game over, winner: %s\n", msg.WinnerID)
	case message.TypePlayerDisconnected:
		fmt.Fprintf(p.out, "%s disconnected\n", msg.PlayerID)
	case message.TypeSessionTerminated:
		fmt.Fprintf(p.out, "session terminated: %s\n", msg.Reason)
	case message.TypeError:
		fmt.Fprintf(p.out, "error: %s\n", msg.Message)
	default:
		fmt.Fprintf(p.out, "unknown message %q\n", msg.Type)
	}
}

func (p *player) send(msg network.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn.WriteJSON(msg)
}

func (p *player) handleInput(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	switch fields[0] {
	case "join":
		return p.send(network.Message{Type: message.TypeJoin})
	case "ready", "start":
		return p.send(network.Message{Type: message.TypeReady})
	case "draw", "d":
		return p.send(network.Message{Type: message.TypeRequestNumber})
	case "mark", "m":
		if len(fields) != 2 {
			return errors.New("usage: mark <number>")
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil {
			return fmt.Errorf("not a number: %s", fields[1])
		}
		return p.send(network.Message{Type: message.TypeMarkNumber, Number: &n})
	case "claim", "bingo":
		return p.send(network.Message{Type: message.TypeClaimVictory})
	case "card":
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.card == nil {
			return errors.New("no card yet")
		}
		fmt.Fprint(p.out, renderCard(p.card, p.called))
		return nil
	case "state":
		p.mu.Lock()
		defer p.mu.Unlock()
		fmt.Fprintln(p.out, renderState(p.state))
		return nil
	case "ping":
		return p.ping()
	case "help":
		p.printHelp()
		return nil
	case "quit", "exit":
		return errQuit
	default:
		return fmt.Errorf("unknown command %q, try help", fields[0])
	}
}

func (p *player) ping() error {
	p.mu.Lock()
	p.pingStart = time.Now()
	err := p.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
	p.mu.Unlock()
	if err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	select {
	case d := <-p.pongs:
		fmt.Fprintf(p.out, "pong in %v\n", d)
		return nil
	case <-time.After(3 * time.Second):
		return errors.New("ping timed out")
	}
}

func (p *player) printHelp() {
	fmt.Fprintln(p.out, "commands: join | ready | draw | mark <n> | claim | card | state | ping | quit")
}
