package commands

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	delivery "github.com/JohnPlummer/jp-go-delivery"
	"github.com/JohnPlummer/jp-go-delivery/payload"
)

// SendOptions holds options for the send command
type SendOptions struct {
	Type        string
	Method      string
	Path        string
	ContentType string
	Timeout     time.Duration
}

// NewSendCommand creates the send command
func NewSendCommand(global *GlobalOptions) *cobra.Command {
	opts := &SendOptions{}

	cmd := &cobra.Command{
		Use:   "send <file>...",
		Short: "Queue files as payloads and deliver them",
		Long: `Queues the content of each file as one payload and sends the queue in order.

Payloads already waiting in a durable queue are delivered first. The command
stops at the first failure that leaves a payload queued; that payload and any
after it are sent by the next send or drain.`,
		Example: `  # Post two JSON documents to /events
  payloadctl send --path events a.json b.json

  # Put a document with a custom content type
  payloadctl send --method PUT --path items/42 --content-type application/xml item.xml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSend(cmd, global, opts, args)
		},
	}

	cmd.Flags().StringVarP(&opts.Type, "type", "t", "file", "Payload type recorded with each file")
	cmd.Flags().StringVarP(&opts.Method, "method", "m", string(delivery.MethodPost), "HTTP method")
	cmd.Flags().StringVarP(&opts.Path, "path", "p", "", "Path appended to client.base_url")
	cmd.Flags().StringVarP(&opts.ContentType, "content-type", "c", "", "Content type (default: guessed from the file extension)")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 5*time.Minute, "Maximum time to wait for delivery")

	return cmd
}

func runSend(cmd *cobra.Command, global *GlobalOptions, opts *SendOptions, files []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), opts.Timeout)
	defer cancel()

	records := make([]*payload.Record, 0, len(files))
	for _, name := range files {
		data, err := os.ReadFile(name)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", name, err)
		}
		record, err := payload.RawPayload{
			Type:        opts.Type,
			Method:      delivery.Method(strings.ToUpper(opts.Method)),
			Path:        opts.Path,
			ContentType: contentType(opts.ContentType, name),
			Data:        data,
		}.ToRecord()
		if err != nil {
			return fmt.Errorf("failed to build payload from %s: %w", name, err)
		}
		records = append(records, record)
	}

	a, err := newApp(ctx, global, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.close()

	pending := make(map[string]struct{}, len(records))
	for _, record := range records {
		if err := a.sender.Submit(recordPayload(record)); err != nil {
			return err
		}
		pending[record.ID] = struct{}{}
	}

	a.start()
	return a.waitFor(ctx, pending, cmd.OutOrStdout())
}

func recordPayload(record *payload.Record) payload.Payload {
	return payload.PayloadFunc(func() (*payload.Record, error) {
		return record, nil
	})
}

func contentType(explicit, name string) string {
	if explicit != "" {
		return explicit
	}
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
