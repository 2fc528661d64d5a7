package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/xiaot623/mockinterview/internal/transport/ws"
)

// deviceClient plays the browser side of the device bridge from a terminal:
// typed lines become final speech recognition results.
type deviceClient struct {
	conn      *websocket.Conn
	sessionID string
	out       io.Writer
	listening atomic.Bool

	mu sync.Mutex
}

func dialDevice(addr, sessionID string, out io.Writer) (*deviceClient, error) {
	conn, _, err := websocket.DefaultDialer.Dial(addr, nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	c := &deviceClient{conn: conn, sessionID: sessionID, out: out}
	if err := c.hello(); err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

func (c *deviceClient) hello() error {
	msg := ws.HelloMessage{
		BaseMessage: c.base(ws.TypeHello),
		ClientMeta:  map[string]string{"client": "interviewd-device"},
	}
	if err := c.write(msg); err != nil {
		return fmt.Errorf("write hello: %w", err)
	}

	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("read hello_ack: %w", err)
	}
	var base ws.BaseMessage
	if err := json.Unmarshal(data, &base); err != nil {
		return fmt.Errorf("unmarshal hello_ack: %w", err)
	}
	if base.Type == ws.TypeError {
		var errMsg ws.ErrorMessage
		json.Unmarshal(data, &errMsg)
		return fmt.Errorf("hello failed: %s - %s", errMsg.Code, errMsg.Message)
	}
	if base.Type != ws.TypeHelloAck {
		return fmt.Errorf("expected hello_ack, got: %s", base.Type)
	}
	return nil
}

// Say sends text as a final recognition result.
func (c *deviceClient) Say(text string) error {
	return c.write(ws.SpeechResultMessage{
		BaseMessage: c.base(ws.TypeSpeechResult),
		Text:        text,
		Final:       true,
	})
}

// Listening reports whether the server asked for speech.
func (c *deviceClient) Listening() bool {
	return c.listening.Load()
}

// readLoop follows listening commands and prints session events until the
// connection closes.
func (c *deviceClient) readLoop() error {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return err
		}

		var base ws.BaseMessage
		if err := json.Unmarshal(data, &base); err != nil {
			continue
		}
		switch base.Type {
		case ws.TypeStartListen:
			c.listening.Store(true)
			fmt.Fprintln(c.out, "[listening]")
		case ws.TypeStopListening:
			c.listening.Store(false)
			if err := c.write(c.base(ws.TypeSpeechEnd)); err != nil {
				return err
			}
			fmt.Fprintln(c.out, "[stopped]")
		case ws.TypeEvent:
			var msg ws.EventMessage
			if err := json.Unmarshal(data, &msg); err == nil && msg.Event != nil {
				fmt.Fprintf(c.out, "[%s] %s\n", msg.Event.Type, string(msg.Event.Payload))
			}
		case ws.TypeError:
			var msg ws.ErrorMessage
			json.Unmarshal(data, &msg)
			fmt.Fprintf(c.out, "[error] %s: %s\n", msg.Code, msg.Message)
		}
	}
}

func (c *deviceClient) base(msgType string) ws.BaseMessage {
	return ws.BaseMessage{Type: msgType, Ts: time.Now().UnixMilli(), SessionID: c.sessionID}
}

func (c *deviceClient) write(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

func (c *deviceClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return c.conn.Close()
}

func newDeviceCommand() *cobra.Command {
	var addr, sessionID string

	cmd := &cobra.Command{
		Use:   "device",
		Short: "Act as the microphone of a session from the terminal",
		Long: `Connect to the device bridge of a session and turn every typed line into
a final speech recognition result. Session events are printed as they
arrive. Type /quit to exit.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			client, err := dialDevice(addr, sessionID, out)
			if err != nil {
				return err
			}
			defer client.Close()
			fmt.Fprintf(out, "Connected to session %s\n", sessionID)

			go func() {
				if err := client.readLoop(); err != nil {
					fmt.Fprintf(os.Stderr, "read error: %v\n", err)
				}
			}()

			scanner := bufio.NewScanner(cmd.InOrStdin())
			for scanner.Scan() {
				input := strings.TrimSpace(scanner.Text())
				if input == "" {
					continue
				}
				if input == "/quit" {
					return nil
				}
				if !client.Listening() {
					fmt.Fprintln(out, "(not listening, start a capture first)")
				}
				if err := client.Say(input); err != nil {
					return fmt.Errorf("send: %w", err)
				}
			}
			return scanner.Err()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "ws://localhost:8080/ws", "device bridge address")
	cmd.Flags().StringVar(&sessionID, "session", "", "session to attach to")
	cmd.MarkFlagRequired("session")
	return cmd
}
