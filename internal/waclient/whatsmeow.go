package waclient

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	_ "github.com/mattn/go-sqlite3"
	"go.mau.fi/whatsmeow"
	waProto "go.mau.fi/whatsmeow/binary/proto"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"
)

// WhatsmeowFactory creates whatsmeow-backed connection clients. Each client
// keeps its credential store in an SQLite database under the tenant-scoped
// data directory, so a paired session survives process restarts.
type WhatsmeowFactory struct{}

// NewWhatsmeowFactory returns a factory producing whatsmeow clients.
func NewWhatsmeowFactory() *WhatsmeowFactory {
	return &WhatsmeowFactory{}
}

// New returns an uninitialized client for sessionID storing credentials
// under dataDir. The connection is not started until Initialize.
func (f *WhatsmeowFactory) New(sessionID, dataDir string, deliver func(Event)) (Client, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("waclient: session id is required")
	}
	return &whatsmeowClient{
		sessionID: sessionID,
		dataDir:   dataDir,
		deliver:   deliver,
	}, nil
}

type whatsmeowClient struct {
	sessionID string
	dataDir   string
	deliver   func(Event)

	mu      sync.Mutex
	db      *sql.DB
	cli     *whatsmeow.Client
	stopped atomic.Bool
}

// Initialize opens the credential store, connects the client, and starts the
// pairing flow when no linked account exists yet. QR codes and lifecycle
// changes arrive on the event stream after this returns.
func (c *whatsmeowClient) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cli != nil {
		return fmt.Errorf("waclient: session %s already initialized", c.sessionID)
	}
	if err := os.MkdirAll(c.dataDir, 0o755); err != nil {
		return fmt.Errorf("waclient: session dir: %w", err)
	}

	dbPath := filepath.Join(c.dataDir, c.sessionID+".db")
	db, err := sql.Open("sqlite3", "file:"+dbPath+"?_foreign_keys=on")
	if err != nil {
		return fmt.Errorf("waclient: open store: %w", err)
	}
	container := sqlstore.NewWithDB(db, "sqlite3", waLog.Noop)
	if err := container.Upgrade(); err != nil {
		_ = db.Close()
		return fmt.Errorf("waclient: upgrade store: %w", err)
	}
	device, err := container.GetFirstDevice()
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("waclient: device store: %w", err)
	}

	cli := whatsmeow.NewClient(device, waLog.Noop)
	// The orchestration layer owns reconnection policy.
	cli.EnableAutoReconnect = false
	cli.AddEventHandler(c.handleEvent)

	if cli.Store.ID == nil {
		// Not paired yet: the QR channel must be requested before Connect.
		qrChan, err := cli.GetQRChannel(context.Background())
		if err != nil {
			_ = db.Close()
			return fmt.Errorf("waclient: qr channel: %w", err)
		}
		go c.pumpQR(qrChan)
	}

	if err := cli.Connect(); err != nil {
		_ = db.Close()
		return fmt.Errorf("waclient: connect: %w", err)
	}

	c.db = db
	c.cli = cli
	return nil
}

// Destroy disconnects the client and closes the credential store. The event
// stream stops before Destroy returns. Safe after a failed Initialize.
func (c *whatsmeowClient) Destroy(ctx context.Context) error {
	c.stopped.Store(true)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cli != nil {
		c.cli.RemoveEventHandlers()
		c.cli.Disconnect()
		c.cli = nil
	}
	if c.db != nil {
		err := c.db.Close()
		c.db = nil
		return err
	}
	return nil
}

// SendMessage delivers a plain text message to number. number may be a bare
// phone number or a full JID.
func (c *whatsmeowClient) SendMessage(ctx context.Context, number, text string) error {
	c.mu.Lock()
	cli := c.cli
	c.mu.Unlock()
	if cli == nil {
		return fmt.Errorf("waclient: session %s is not initialized", c.sessionID)
	}
	jid, err := parseJID(number)
	if err != nil {
		return err
	}
	_, err = cli.SendMessage(ctx, jid, &waProto.Message{
		Conversation: proto.String(text),
	})
	return err
}

// Ready reports whether the client is connected with a linked identity.
func (c *whatsmeowClient) Ready() bool {
	c.mu.Lock()
	cli := c.cli
	c.mu.Unlock()
	return cli != nil && cli.Store.ID != nil && cli.IsConnected()
}

func (c *whatsmeowClient) emit(ev Event) {
	if c.stopped.Load() || c.deliver == nil {
		return
	}
	c.deliver(ev)
}

func (c *whatsmeowClient) pumpQR(ch <-chan whatsmeow.QRChannelItem) {
	for item := range ch {
		switch item.Event {
		case "code":
			c.emit(Event{Kind: EventQR, QR: item.Code})
		case "timeout":
			c.emit(Event{Kind: EventAuthFailure, Reason: "QR_TIMEOUT"})
		}
	}
}

func (c *whatsmeowClient) handleEvent(raw interface{}) {
	switch evt := raw.(type) {
	case *events.PairSuccess:
		c.emit(Event{Kind: EventAuthenticated})
	case *events.Connected:
		c.emit(Event{Kind: EventReady})
	case *events.LoggedOut:
		c.emit(Event{Kind: EventAuthFailure, Reason: fmt.Sprintf("%v", evt.Reason)})
	case *events.StreamReplaced:
		c.emit(Event{Kind: EventDisconnected, Reason: "CONFLICT"})
	case *events.Disconnected:
		// Transient transport loss; classified as recoverable.
		c.emit(Event{Kind: EventDisconnected, Reason: "NAVIGATION"})
	case *events.Message:
		c.emit(Event{
			Kind: EventMessage,
			From: evt.Info.Sender.String(),
			To:   evt.Info.Chat.String(),
			Body: extractBody(evt.Message),
		})
	}
}

func extractBody(msg *waProto.Message) string {
	if msg == nil {
		return ""
	}
	if body := msg.GetConversation(); body != "" {
		return body
	}
	return msg.GetExtendedTextMessage().GetText()
}

func parseJID(number string) (types.JID, error) {
	if strings.ContainsRune(number, '@') {
		jid, err := types.ParseJID(number)
		if err != nil {
			return types.EmptyJID, fmt.Errorf("waclient: invalid jid %q: %w", number, err)
		}
		return jid, nil
	}
	cleaned := strings.TrimLeft(number, "+")
	if cleaned == "" {
		return types.EmptyJID, fmt.Errorf("waclient: empty recipient number")
	}
	return types.NewJID(cleaned, types.DefaultUserServer), nil
}
