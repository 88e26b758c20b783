// Package client composes the connection manager, blob cache and
// upload router behind one facade with an activity log.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mediabridge/mediabridge/common/blobcache"
	"github.com/mediabridge/mediabridge/common/cache"
	"github.com/mediabridge/mediabridge/common/config"
	"github.com/mediabridge/mediabridge/common/connection"
	"github.com/mediabridge/mediabridge/common/events"
	"github.com/mediabridge/mediabridge/common/logger"
	"github.com/mediabridge/mediabridge/common/models"
	"github.com/mediabridge/mediabridge/common/protocol"
	"github.com/mediabridge/mediabridge/common/upload"
)

// Client is the media transport facade. It forwards constituent events
// to subscribers, auto-refreshes the blob list on connect and routes
// cache data requests back over the channel.
type Client struct {
	cfg      *config.Config
	log      *logger.Logger
	bus      *events.Bus
	conn     *connection.Manager
	cache    *blobcache.Cache
	router   *upload.Router
	activity *activityLog

	// pendingMu guards pendingData, the blob ids with a GetBlobData
	// frame outstanding on the channel. The Error frame carries no
	// blob id, so a server error fails every outstanding request.
	pendingMu   sync.Mutex
	pendingData map[string]struct{}

	unsub     func()
	closeOnce sync.Once
}

// Option customizes client construction
type Option func(*options)

type options struct {
	store   cache.Store
	factory blobcache.HandleFactory
}

// WithStore overrides the payload byte store
func WithStore(s cache.Store) Option {
	return func(o *options) { o.store = s }
}

// WithHandleFactory overrides how display handles are materialized
func WithHandleFactory(f blobcache.HandleFactory) Option {
	return func(o *options) { o.factory = f }
}

// New builds the subsystem from configuration. Malformed configuration
// is the only construction-time failure.
func New(cfg *config.Config, log *logger.Logger, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	o := &options{
		factory: blobcache.MemoryHandleFactory,
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.store == nil {
		switch cfg.Cache.Backend {
		case "redis":
			store, err := cache.NewRedisStore(context.Background(), cfg.RedisAddr(),
				cfg.Cache.RedisPassword, log)
			if err != nil {
				return nil, err
			}
			o.store = store
		default:
			o.store = cache.NewMemoryStore(log)
		}
	}

	bus := events.NewBus()
	conn := connection.NewManager(cfg.Connection, bus, log)
	blobs := blobcache.New(o.store, o.factory, cfg.Cache.DefaultTTL, bus, log)
	router := upload.NewRouter(cfg.Upload, cfg.Connection, cfg.Service.ClientID, conn, bus, log)

	verbosity := slog.LevelInfo
	if cfg.Service.LogLevel == "debug" {
		verbosity = slog.LevelDebug
	}

	c := &Client{
		cfg:         cfg,
		log:         log.WithComponent("client"),
		bus:         bus,
		conn:        conn,
		cache:       blobs,
		router:      router,
		activity:    newActivityLog(cfg.Service.ActivityLogSize, verbosity),
		pendingData: make(map[string]struct{}),
	}
	c.unsub = bus.Subscribe(c.handleEvent)

	return c, nil
}

// Connect opens the channel to the configured URL
func (c *Client) Connect(ctx context.Context) error {
	return c.conn.Connect(ctx, c.cfg.Connection.ChannelURL)
}

// Disconnect closes the channel and disables auto-reconnect
func (c *Client) Disconnect() {
	c.conn.Disconnect()
}

// ConnectionState returns the current channel state
func (c *Client) ConnectionState() connection.State {
	return c.conn.State()
}

// Upload submits files and returns one task id per file
func (c *Client) Upload(ctx context.Context, files ...upload.File) []string {
	return c.router.SubmitAll(ctx, files)
}

// UploadPaths submits local files by path
func (c *Client) UploadPaths(ctx context.Context, paths ...string) ([]string, error) {
	files := make([]upload.File, 0, len(paths))
	for _, p := range paths {
		f, err := upload.NewDiskFile(p)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return c.router.SubmitAll(ctx, files), nil
}

// Retry starts a fresh run for a finished task
func (c *Client) Retry(ctx context.Context, taskID string) (string, error) {
	return c.router.Retry(ctx, taskID)
}

// Cancel cancels one non-terminal task
func (c *Client) Cancel(taskID string) bool {
	return c.router.Cancel(taskID)
}

// CancelAll cancels every non-terminal task
func (c *Client) CancelAll() {
	c.router.CancelAll()
}

// Task returns one task snapshot
func (c *Client) Task(id string) (*models.UploadTask, bool) {
	return c.router.Task(id)
}

// Tasks returns all task snapshots
func (c *Client) Tasks() []*models.UploadTask {
	return c.router.Tasks()
}

// Blobs returns the blob summary list
func (c *Client) Blobs() []models.MediaBlob {
	return c.cache.Blobs()
}

// Preview derives the display description for one blob
func (c *Client) Preview(id string) (blobcache.Preview, bool) {
	return c.cache.Preview(id)
}

// RefreshBlobs re-requests the summary list over the channel
func (c *Client) RefreshBlobs() bool {
	return c.conn.Send(&protocol.ListBlobs{})
}

// RequestData asks for a blob's payload; the fetch happens over the
// channel and completes asynchronously with a DataCached event
func (c *Client) RequestData(ctx context.Context, id string) {
	c.cache.Request(ctx, id)
}

// FetchData requests a payload and blocks until its handle is ready,
// the fetch fails, or ctx expires. Failure attribution is best-effort:
// the wire Error frame carries no blob id, so a server error fails
// every request in flight at that moment, this one included.
func (c *Client) FetchData(ctx context.Context, id string) (blobcache.Handle, error) {
	done := make(chan struct{}, 1)
	errCh := make(chan error, 1)
	unsub := c.bus.Subscribe(func(e events.Event) {
		switch ev := e.(type) {
		case blobcache.DataCached:
			if ev.BlobID == id {
				select {
				case done <- struct{}{}:
				default:
				}
			}
		case DataRequestFailed:
			if ev.BlobID == id {
				select {
				case errCh <- fmt.Errorf("fetch %s failed: %s", id, ev.Reason):
				default:
				}
			}
		}
	})
	defer unsub()

	c.cache.Request(ctx, id)
	if h, ok := c.cache.Handle(id); ok {
		return h, nil
	}

	select {
	case <-done:
		h, ok := c.cache.Handle(id)
		if !ok {
			return nil, fmt.Errorf("payload for %s vanished after caching", id)
		}
		return h, nil
	case err := <-errCh:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Subscribe registers an event listener and returns its unsubscribe
// function
func (c *Client) Subscribe(h events.Handler) func() {
	return c.bus.Subscribe(h)
}

// Activity returns the recent activity log, oldest first
func (c *Client) Activity() []ActivityEntry {
	return c.activity.Entries()
}

// Close tears the subsystem down: cancels tasks, disconnects and
// releases every cache-owned resource
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.router.CancelAll()
		c.conn.Disconnect()
		c.unsub()
		err = c.cache.Close()
		c.log.Info("media client closed")
	})
	return err
}

// handleEvent wires constituent events together and feeds the
// activity log
func (c *Client) handleEvent(e events.Event) {
	switch ev := e.(type) {
	case connection.StateChanged:
		c.activity.add(slog.LevelInfo, fmt.Sprintf("connection: %s -> %s", ev.Old, ev.New))
		if ev.New == connection.StateConnected {
			// Refresh the authoritative list on every (re)connect
			c.conn.Send(&protocol.ListBlobs{})
		}

	case connection.FrameReceived:
		c.handleFrame(ev.Frame)

	case connection.FrameSent:
		level := slog.LevelInfo
		if ev.Frame.FrameType() == protocol.TypeHeartbeat {
			level = slog.LevelDebug
		}
		c.activity.add(level, fmt.Sprintf("sent %s", ev.Frame.FrameType()))

	case connection.ValidationFailed:
		c.activity.add(slog.LevelWarn, fmt.Sprintf("%s frame rejected: %v", ev.Direction, ev.Err))

	case connection.TransportError:
		c.activity.add(slog.LevelWarn, fmt.Sprintf("transport error: %v", ev.Err))

	case upload.TaskUpdated:
		c.activity.add(slog.LevelInfo, fmt.Sprintf("task %s [%s] %s %d%%",
			ev.Task.ID[:8], ev.Task.FileName, ev.Task.Status, ev.Task.Progress))

	case blobcache.DataRequested:
		c.activity.add(slog.LevelDebug, fmt.Sprintf("requesting payload %s", ev.BlobID))
		c.pendingMu.Lock()
		c.pendingData[ev.BlobID] = struct{}{}
		c.pendingMu.Unlock()
		if !c.conn.Send(&protocol.GetBlobData{ID: ev.BlobID}) {
			c.failDataRequest(ev.BlobID, "request could not be sent")
		}

	case blobcache.DataCached:
		c.pendingMu.Lock()
		delete(c.pendingData, ev.BlobID)
		c.pendingMu.Unlock()
		c.activity.add(slog.LevelInfo, fmt.Sprintf("payload cached %s (%d bytes)", ev.BlobID, ev.Size))

	case blobcache.ListUpdated:
		c.activity.add(slog.LevelInfo, fmt.Sprintf("blob list: %d of %d", ev.Count, ev.TotalCount))
	}
}

func (c *Client) handleFrame(frame protocol.ServerFrame) {
	switch f := frame.(type) {
	case *protocol.Welcome:
		c.activity.add(slog.LevelInfo, fmt.Sprintf("welcome: %s (connection %s)", f.Message, f.ConnectionID))

	case *protocol.HeartbeatAck:
		c.activity.add(slog.LevelDebug, "heartbeat ack")

	case *protocol.BlobList:
		c.cache.SetBlobs(f.Blobs, f.TotalCount)

	case *protocol.BlobMeta:
		c.cache.Upsert(f.Blob)

	case *protocol.BlobData:
		if err := c.cache.Fulfill(context.Background(), f.ID, f.Data, f.Mime); err != nil {
			c.log.Warn("rejected blob payload", "blob_id", f.ID, "error", err)
			c.activity.add(slog.LevelWarn, fmt.Sprintf("payload rejected %s: %v", f.ID, err))
		}

	case *protocol.Error:
		c.log.Warn("server error", "message", f.Message, "code", f.Code)
		c.activity.add(slog.LevelWarn, fmt.Sprintf("server error: %s", f.Message))
		c.pendingMu.Lock()
		pending := make([]string, 0, len(c.pendingData))
		for id := range c.pendingData {
			pending = append(pending, id)
		}
		c.pendingMu.Unlock()
		for _, id := range pending {
			c.failDataRequest(id, f.Message)
		}

	case *protocol.PresenceUpdate:
		c.activity.add(slog.LevelInfo, fmt.Sprintf("presence: connected=%t users=%d", f.Connected, f.UserCount))
	}
}

// failDataRequest abandons an outstanding payload fetch so the id can
// be requested again, and tells subscribers why it failed.
func (c *Client) failDataRequest(id, reason string) {
	c.pendingMu.Lock()
	delete(c.pendingData, id)
	c.pendingMu.Unlock()
	c.cache.Abandon(id)
	c.activity.add(slog.LevelWarn, fmt.Sprintf("payload fetch failed %s: %s", id, reason))
	c.bus.Publish(DataRequestFailed{BlobID: id, Reason: reason})
}
