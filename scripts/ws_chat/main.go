package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/myconnect-server/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_chat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	base := flag.String("base", "http://localhost:8080", "server base URL")
	token := flag.String("token", "", "bearer token (see `myconnect-server token`)")
	chatID := flag.String("chat", "", "chat id to join")
	flag.Parse()

	if *token == "" || *chatID == "" {
		return errors.New("-token and -chat are required")
	}

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	wsURL := strings.Replace(*base, "http", "ws", 1) + "/ws?token=" + url.QueryEscape(*token)
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	joinPayload, err := json.Marshal(proto.ChatData{ChatID: *chatID})
	if err != nil {
		return fmt.Errorf("marshal join: %w", err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: proto.InboundTypeJoin, Data: joinPayload}); err != nil {
		return fmt.Errorf("join: %w", err)
	}

	fmt.Printf("Connected to %s, chat %s\n", *base, *chatID)
	fmt.Println("Type messages and press Enter to send. Ctrl+C to exit.")

	go func() {
		defer cancel()
		readLoop(ctx, conn)
	}()

	writeLoop(ctx, *base, *token, *chatID)

	stop()
	cancel()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	return nil
}

type outbound struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

func readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var out outbound
		if err := wsjson.Read(ctx, conn, &out); err != nil {
			// Treat expected shutdowns quietly.
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			log.Printf("read error: %v", err)
			return
		}

		if out.Type == proto.OutboundTypeError && out.Error != nil {
			fmt.Printf("error %s: %s\n", out.Error.Code, out.Error.Msg)
			continue
		}

		switch out.Event {
		case proto.EventMessageCreated:
			var evt proto.MessageCreatedData
			if err := json.Unmarshal(out.Data, &evt); err != nil {
				log.Printf("unmarshal message: %v", err)
				continue
			}
			fmt.Printf("[%s] %s: %s\n", evt.Message.SentAt.Local().Format(time.Kitchen), evt.Message.SenderID, evt.Message.Text)
		case proto.EventSummaryUpdated:
			// The message event already printed the text.
		case proto.EventJoined, proto.EventLeft:
			var evt proto.ChatData
			if err := json.Unmarshal(out.Data, &evt); err != nil {
				log.Printf("unmarshal %s: %v", out.Event, err)
				continue
			}
			fmt.Printf("[chat %s] %s\n", evt.ChatID, out.Event)
		default:
			fmt.Printf("event=%s data=%s\n", out.Event, out.Data)
		}
	}
}

func writeLoop(ctx context.Context, base, token, chatID string) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	client := &http.Client{Timeout: 10 * time.Second}
	endpoint := base + "/api/chats/" + url.PathEscape(chatID) + "/messages"

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}
			if err := postMessage(ctx, client, endpoint, token, text); err != nil {
				log.Printf("send error: %v", err)
			}
		}
	}
}

func postMessage(ctx context.Context, client *http.Client, endpoint, token, text string) error {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return nil
}
