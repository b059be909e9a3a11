package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"time"

	"github.com/coder/websocket"

	"github.com/vovakirdan/wirelobby-server/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	lobby := flag.String("lobby", "", "lobby to request")
	token := flag.String("token", "", "admission token")
	send := flag.String("send", "PING::smoke", "frame to send once joined (empty to skip)")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	u, err := url.Parse(*addr)
	if err != nil {
		return fmt.Errorf("parse addr: %w", err)
	}
	q := u.Query()
	if *lobby != "" {
		q.Set("lobby", *lobby)
	}
	if *token != "" {
		q.Set("token", *token)
	}
	u.RawQuery = q.Encode()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			var ce websocket.CloseError
			if errors.As(err, &ce) {
				fmt.Printf("Closed: status=%d reason=%q\n", ce.Code, ce.Reason)
				return nil
			}
			if errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		frame, err := proto.Parse(string(data))
		if err != nil {
			continue
		}
		fmt.Printf("Received: %s\n", frame)

		switch frame.Type {
		case proto.TypeSync:
			if ms, err := frame.SyncTimestamp(); err == nil {
				fmt.Printf("Clock offset: %s\n", time.Since(time.UnixMilli(ms)))
			}
			if *send != "" {
				if err := conn.Write(ctx, websocket.MessageText, []byte(*send)); err != nil {
					return fmt.Errorf("send: %w", err)
				}
			}
		case proto.TypeError:
			fmt.Printf("Error: %s\n", frame.Field(0))
		}
	}
}
