package upload

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mediabridge/mediabridge/common/config"
	"github.com/mediabridge/mediabridge/common/logger"
	"github.com/mediabridge/mediabridge/common/models"
	"github.com/mediabridge/mediabridge/common/protocol"
)

// Sender is the slice of the connection manager the channel pipeline
// needs: validated, boolean-returning frame transmission.
type Sender interface {
	Send(f protocol.ClientFrame) bool
}

// ChannelPipeline is the small-file path: hash, package and send the
// whole blob over the persistent channel.
type ChannelPipeline struct {
	cfg      config.UploadConfig
	clientID string
	sender   Sender
	reg      *Registry
	log      *logger.Logger
}

// NewChannelPipeline creates the channel pipeline
func NewChannelPipeline(cfg config.UploadConfig, clientID string, sender Sender, reg *Registry, log *logger.Logger) *ChannelPipeline {
	return &ChannelPipeline{
		cfg:      cfg,
		clientID: clientID,
		sender:   sender,
		reg:      reg,
		log:      log.WithComponent("channel-pipeline"),
	}
}

// Run executes one upload over the channel. Checkpoints follow the
// 0/10/30/60/90/100 contract shared with the bulk path.
func (p *ChannelPipeline) Run(ctx context.Context, taskID string, f File) {
	log := p.log.WithTaskID(taskID)

	if err := p.validate(f); err != nil {
		log.Warn("channel upload rejected", "file", f.Name(), "error", err)
		p.reg.fail(taskID, err)
		return
	}
	p.reg.checkpoint(taskID, models.StatusHashing, 10)

	if cancelled(ctx, p.reg, taskID) {
		return
	}

	data, err := readAll(f)
	if err != nil {
		log.Warn("failed to read file", "file", f.Name(), "error", err)
		p.reg.fail(taskID, models.NewUploadError(models.ErrKindHashFailure,
			"failed to read %s: %v", f.Name(), err))
		return
	}
	p.reg.checkpoint(taskID, models.StatusHashing, 30)

	digest := models.HashBytes(data)
	p.reg.checkpoint(taskID, models.StatusHashing, 60)

	if cancelled(ctx, p.reg, taskID) {
		return
	}

	now := time.Now().UTC()
	blob := models.MediaBlob{
		ID:             uuid.NewString(),
		Data:           data,
		SHA256:         digest,
		Size:           int64(len(data)),
		Mime:           resolveMime(f, data),
		SourceClientID: p.clientID,
		LocalPath:      f.Name(),
		Metadata: map[string]any{
			"original_name": f.Name(),
			"modified_at":   f.ModTime().UTC().Format(time.RFC3339),
			"uploaded_at":   now.Format(time.RFC3339),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	p.reg.checkpoint(taskID, models.StatusUploading, 90)

	if !p.sender.Send(&protocol.UploadBlob{Blob: blob}) {
		p.reg.fail(taskID, models.NewUploadError(models.ErrKindNotConnected,
			"channel not connected"))
		return
	}

	log.Info("channel upload sent", "blob_id", blob.ID, "size", blob.Size, "sha256", digest[:8])
	p.reg.complete(taskID, blob.ID)
}

// validate runs the pre-flight checks; nothing here touches the
// network or the file contents.
func (p *ChannelPipeline) validate(f File) error {
	if f.Size() == 0 {
		return models.NewUploadError(models.ErrKindEmptyFile,
			"%s is empty", f.Name())
	}

	if f.Size() >= p.cfg.ChannelThreshold {
		return models.NewUploadError(models.ErrKindTooLarge,
			"%s is %d bytes, channel path accepts files below %d bytes",
			f.Name(), f.Size(), p.cfg.ChannelThreshold)
	}

	if err := checkMimeAllowed(p.cfg.AllowedMimeTypes, f); err != nil {
		return err
	}

	return nil
}

// checkMimeAllowed enforces the configured allow-list, if any
func checkMimeAllowed(allowed []string, f File) error {
	if len(allowed) == 0 {
		return nil
	}

	mime, err := sniffMime(f)
	if err != nil {
		return models.NewUploadError(models.ErrKindInvalidFile,
			"failed to detect content type of %s: %v", f.Name(), err)
	}

	for _, a := range allowed {
		if mime == a || strings.HasPrefix(mime, a+";") {
			return nil
		}
	}

	return models.NewUploadError(models.ErrKindInvalidFile,
		"content type %s of %s is not allowed", mime, f.Name())
}

func readAll(f File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// cancelled reports whether the task context has been cancelled and
// records the terminal state if the registry has not already done so
func cancelled(ctx context.Context, reg *Registry, taskID string) bool {
	if ctx.Err() == nil {
		return false
	}
	reg.update(taskID, func(task *models.UploadTask) {
		if !task.Status.Terminal() {
			task.Status = models.StatusCancelled
		}
	})
	return true
}
