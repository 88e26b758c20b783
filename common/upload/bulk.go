package upload

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/mediabridge/mediabridge/common/config"
	"github.com/mediabridge/mediabridge/common/logger"
	"github.com/mediabridge/mediabridge/common/models"
)

// UploadRequest is the JSON metadata sidecar sent alongside the binary
// part of a bulk upload
type UploadRequest struct {
	Filename string         `json:"filename"`
	MimeType string         `json:"mime_type,omitempty"`
	SHA256   string         `json:"sha256"`
	Size     int64          `json:"size"`
	Metadata map[string]any `json:"metadata"`
}

// UploadResponse is the bulk endpoint's 201 body
type UploadResponse struct {
	ID        string    `json:"id"`
	LocalPath string    `json:"local_path,omitempty"`
	SHA256    string    `json:"sha256"`
	Size      int64     `json:"size"`
	MimeType  string    `json:"mime_type,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// BulkPipeline is the large-file path: one multipart request per file,
// streamed, cancellable through the task's context.
type BulkPipeline struct {
	cfg      config.UploadConfig
	url      string
	clientID string
	client   *http.Client
	reg      *Registry
	log      *logger.Logger
}

// NewBulkPipeline creates the bulk pipeline
func NewBulkPipeline(cfg config.UploadConfig, url, clientID string, timeout time.Duration, reg *Registry, log *logger.Logger) *BulkPipeline {
	return &BulkPipeline{
		cfg:      cfg,
		url:      url,
		clientID: clientID,
		client: &http.Client{
			Timeout: timeout,
		},
		reg: reg,
		log: log.WithComponent("bulk-pipeline"),
	}
}

// Run executes one bulk upload. The digest uses the same algorithm and
// encoding as the channel path, so identical bytes always produce the
// same sha256 regardless of transport.
func (p *BulkPipeline) Run(ctx context.Context, taskID string, f File) {
	log := p.log.WithTaskID(taskID)

	if err := p.validate(f); err != nil {
		log.Warn("bulk upload rejected", "file", f.Name(), "error", err)
		p.reg.fail(taskID, err)
		return
	}
	p.reg.checkpoint(taskID, models.StatusHashing, 10)

	digest, err := p.hash(f)
	if err != nil {
		p.reg.fail(taskID, err)
		return
	}
	p.reg.checkpoint(taskID, models.StatusHashing, 30)

	if cancelled(ctx, p.reg, taskID) {
		return
	}

	mime, err := sniffMime(f)
	if err != nil {
		mime = "application/octet-stream"
	}

	sidecar := UploadRequest{
		Filename: f.Name(),
		MimeType: mime,
		SHA256:   digest,
		Size:     f.Size(),
		Metadata: map[string]any{
			"original_name":    f.Name(),
			"modified_at":      f.ModTime().UTC().Format(time.RFC3339),
			"uploaded_at":      time.Now().UTC().Format(time.RFC3339),
			"source_client_id": p.clientID,
		},
	}
	p.reg.checkpoint(taskID, models.StatusUploading, 60)

	result, err := p.post(ctx, sidecar, f)
	if err != nil {
		if cancelled(ctx, p.reg, taskID) {
			log.Info("bulk upload cancelled", "file", f.Name())
			return
		}
		log.Warn("bulk upload failed", "file", f.Name(), "error", err)
		p.reg.fail(taskID, err)
		return
	}
	p.reg.checkpoint(taskID, models.StatusUploading, 90)

	log.Info("bulk upload complete", "blob_id", result.ID, "size", result.Size, "sha256", digest[:8])
	p.reg.complete(taskID, result.ID)
}

// validate runs the pre-flight checks for the bulk path
func (p *BulkPipeline) validate(f File) error {
	if f.Size() == 0 {
		return models.NewUploadError(models.ErrKindEmptyFile,
			"%s is empty", f.Name())
	}

	if f.Size() < p.cfg.ChannelThreshold {
		return models.NewUploadError(models.ErrKindTooSmall,
			"%s is %d bytes, below the bulk threshold of %d bytes",
			f.Name(), f.Size(), p.cfg.ChannelThreshold)
	}

	if f.Size() > p.cfg.MaxFileSize {
		return models.NewUploadError(models.ErrKindTooLarge,
			"%s is %d bytes, above the limit of %d bytes",
			f.Name(), f.Size(), p.cfg.MaxFileSize)
	}

	name := f.Name()
	if name == "" || strings.Contains(name, "..") ||
		strings.ContainsAny(name, `/\`) {
		return models.NewUploadError(models.ErrKindInvalidFile,
			"filename %q contains invalid path components", name)
	}

	if err := checkMimeAllowed(p.cfg.AllowedMimeTypes, f); err != nil {
		return err
	}

	return nil
}

func (p *BulkPipeline) hash(f File) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", models.NewUploadError(models.ErrKindHashFailure,
			"failed to open %s: %v", f.Name(), err)
	}
	defer rc.Close()

	digest, n, err := models.HashReader(rc)
	if err != nil {
		return "", models.NewUploadError(models.ErrKindHashFailure,
			"failed to hash %s: %v", f.Name(), err)
	}
	if n != f.Size() {
		return "", models.NewUploadError(models.ErrKindHashFailure,
			"%s changed size while hashing: expected %d, read %d", f.Name(), f.Size(), n)
	}
	return digest, nil
}

// post streams the multipart body: a JSON metadata part followed by
// the binary payload. The request is bound to the task's context.
func (p *BulkPipeline) post(ctx context.Context, sidecar UploadRequest, f File) (*UploadResponse, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, models.NewUploadError(models.ErrKindNetwork,
			"failed to open %s: %v", f.Name(), err)
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		defer rc.Close()
		pw.CloseWithError(writeMultipart(mw, sidecar, rc))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, pr)
	if err != nil {
		return nil, models.NewUploadError(models.ErrKindNetwork,
			"failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return nil, models.NewUploadError(models.ErrKindCancelled, "upload cancelled")
		}
		return nil, models.NewUploadError(models.ErrKindNetwork,
			"request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, mapResponseError(resp)
	}

	var result UploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, models.NewUploadError(models.ErrKindServerError,
			"failed to decode upload response: %v", err)
	}
	return &result, nil
}

func writeMultipart(mw *multipart.Writer, sidecar UploadRequest, payload io.Reader) error {
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="metadata"`)
	header.Set("Content-Type", "application/json")
	meta, err := mw.CreatePart(header)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(meta).Encode(sidecar); err != nil {
		return err
	}

	part, err := mw.CreateFormFile("file", sidecar.Filename)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, payload); err != nil {
		return err
	}

	return mw.Close()
}

// mapResponseError maps a non-2xx bulk response onto the fixed error
// taxonomy. A non-JSON body falls back to the HTTP status text.
func mapResponseError(resp *http.Response) *models.UploadError {
	var kind models.ErrorKind
	switch {
	case resp.StatusCode == http.StatusBadRequest:
		kind = models.ErrKindInvalidInput
	case resp.StatusCode == http.StatusUnauthorized:
		kind = models.ErrKindUnauthenticated
	case resp.StatusCode == http.StatusForbidden:
		kind = models.ErrKindForbidden
	case resp.StatusCode == http.StatusConflict:
		kind = models.ErrKindConflict
	case resp.StatusCode == http.StatusRequestEntityTooLarge:
		kind = models.ErrKindTooLarge
	case resp.StatusCode >= 500:
		kind = models.ErrKindServerError
	default:
		kind = models.ErrKindNetwork
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	message := errorMessage(body)
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}

	return models.NewUploadError(kind, "upload rejected (%d): %s", resp.StatusCode, message)
}

func errorMessage(body []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if payload.Message != "" {
		return payload.Message
	}
	return payload.Error
}
