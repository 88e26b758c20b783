package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mediabridge/mediabridge/common/blobcache"
	"github.com/mediabridge/mediabridge/common/client"
	"github.com/mediabridge/mediabridge/common/config"
	"github.com/mediabridge/mediabridge/common/events"
	"github.com/mediabridge/mediabridge/common/logger"
	"github.com/mediabridge/mediabridge/common/models"
	"github.com/mediabridge/mediabridge/common/upload"
)

func usage() {
	fmt.Fprintf(os.Stderr, `usage: mediactl <command> [args]

commands:
  upload <files...>    upload files, routed by size
  list                 list blobs known to the server
  fetch <id> [-o out]  fetch a blob's payload
  watch                print subsystem events until interrupted
`)
	os.Exit(2)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Service.LogLevel, cfg.Service.LogFormat)

	c, err := client.New(cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build client: %v\n", err)
		os.Exit(1)
	}
	defer c.Close()

	var cmdErr error
	switch os.Args[1] {
	case "upload":
		cmdErr = cmdUpload(c, os.Args[2:])
	case "list":
		cmdErr = cmdList(c)
	case "fetch":
		cmdErr = cmdFetch(c, os.Args[2:])
	case "watch":
		cmdErr = cmdWatch(c)
	default:
		usage()
	}

	if cmdErr != nil {
		fmt.Fprintf(os.Stderr, "mediactl: %v\n", cmdErr)
		os.Exit(1)
	}
}

func cmdUpload(c *client.Client, paths []string) error {
	if len(paths) == 0 {
		return fmt.Errorf("no files given")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if err := c.Connect(ctx); err != nil {
		// Bulk-only batches still work without the channel
		fmt.Fprintf(os.Stderr, "warning: channel unavailable: %v\n", err)
	}

	ids, err := c.UploadPaths(ctx, paths...)
	if err != nil {
		return err
	}

	pending := make(map[string]bool, len(ids))
	for _, id := range ids {
		pending[id] = true
	}
	done := make(chan struct{}, 1)

	unsub := c.Subscribe(func(e events.Event) {
		ev, ok := e.(upload.TaskUpdated)
		if !ok || !pending[ev.Task.ID] {
			return
		}
		fmt.Printf("%s  %-24s %-10s %3d%%\n",
			ev.Task.ID[:8], ev.Task.FileName, ev.Task.Status, ev.Task.Progress)
		if ev.Task.Status.Terminal() {
			delete(pending, ev.Task.ID)
			if len(pending) == 0 {
				select {
				case done <- struct{}{}:
				default:
				}
			}
		}
	})
	defer unsub()

	// Tasks may already be terminal by the time we subscribed
	for _, id := range ids {
		if task, ok := c.Task(id); ok && task.Status.Terminal() {
			delete(pending, id)
		}
	}
	if len(pending) == 0 {
		return reportTasks(c, ids)
	}

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("timed out waiting for uploads")
	}
	return reportTasks(c, ids)
}

func reportTasks(c *client.Client, ids []string) error {
	failed := 0
	for _, id := range ids {
		task, ok := c.Task(id)
		if !ok {
			continue
		}
		if task.Status == models.StatusError {
			failed++
			fmt.Fprintf(os.Stderr, "%s failed: %s\n", task.FileName, task.Error)
		} else {
			fmt.Printf("%s -> blob %s via %s\n", task.FileName, task.BlobID, task.Transport)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d upload(s) failed", failed)
	}
	return nil
}

func cmdList(c *client.Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	listed := make(chan struct{}, 1)
	unsub := c.Subscribe(func(e events.Event) {
		if _, ok := e.(blobcache.ListUpdated); ok {
			select {
			case listed <- struct{}{}:
			default:
			}
		}
	})
	defer unsub()

	if err := c.Connect(ctx); err != nil {
		return err
	}

	select {
	case <-listed:
	case <-ctx.Done():
		return fmt.Errorf("timed out waiting for blob list")
	}

	blobs := c.Blobs()
	fmt.Printf("%-36s  %-10s  %-24s  %s\n", "ID", "SIZE", "MIME", "PATH")
	for _, b := range blobs {
		preview, _ := c.Preview(b.ID)
		fmt.Printf("%-36s  %-10s  %-24s  %s\n", b.ID, preview.SizeLabel, b.Mime, b.LocalPath)
	}
	fmt.Printf("%d blob(s)\n", len(blobs))
	return nil
}

func cmdFetch(c *client.Client, args []string) error {
	fs := flag.NewFlagSet("fetch", flag.ExitOnError)
	out := fs.String("o", "", "output file (default stdout)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("fetch requires exactly one blob id")
	}
	id := fs.Arg(0)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := c.Connect(ctx); err != nil {
		return err
	}

	handle, err := c.FetchData(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", id, err)
	}

	rc, err := handle.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	dst := os.Stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			return err
		}
		defer f.Close()
		dst = f
	}

	n, err := io.Copy(dst, rc)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "wrote %d bytes (%s)\n", n, handle.Mime())
	return nil
}

func cmdWatch(c *client.Client) error {
	ctx := context.Background()
	if err := c.Connect(ctx); err != nil {
		return err
	}

	unsub := c.Subscribe(func(e events.Event) {
		fmt.Printf("%s  %s\n", time.Now().Format(time.TimeOnly), describe(e))
	})
	defer unsub()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	return nil
}

func describe(e events.Event) string {
	switch ev := e.(type) {
	case upload.TaskUpdated:
		return fmt.Sprintf("task %s %s %d%%", ev.Task.ID[:8], ev.Task.Status, ev.Task.Progress)
	case blobcache.DataCached:
		return fmt.Sprintf("cached %s (%d bytes)", ev.BlobID, ev.Size)
	case blobcache.DataRequested:
		return fmt.Sprintf("requested %s", ev.BlobID)
	case blobcache.ListUpdated:
		return fmt.Sprintf("blob list: %d of %d", ev.Count, ev.TotalCount)
	default:
		return e.EventName()
	}
}
