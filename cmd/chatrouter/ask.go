package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/abdhe/chat-router/pkg/provider"
	"github.com/abdhe/chat-router/pkg/proxy"
	"github.com/abdhe/chat-router/pkg/resilience"
	"github.com/abdhe/chat-router/pkg/router"
)

var (
	askModel  string
	askServer string
	askImages []string
	askQuiet  bool
	askSeed   uint64
)

var askCmd = &cobra.Command{
	Use:   "ask [prompt]",
	Short: "Send one prompt and stream the answer to stdout",
	Long: `Send one prompt and stream the answer to stdout. Progress logs go to
stderr. With --server the request goes to a running chatrouter over gRPC,
otherwise the providers are called directly.

Examples:
  chatrouter ask "Explain TCP slow start"
  chatrouter ask --model auto-search "Who won the match yesterday?"
  chatrouter ask --model gemini-2.5-flash --image chart.png "Describe this chart"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		msg := provider.Message{Role: provider.RoleUser, Content: strings.Join(args, " ")}
		for _, path := range askImages {
			raw, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			uri, err := provider.EncodeImage(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			msg.Images = append(msg.Images, uri)
		}
		req := proxy.GenerateRequest{Model: askModel, Messages: []provider.Message{msg}}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		out := &terminal{quiet: askQuiet}
		var (
			res provider.Result
			err error
		)
		if askServer != "" {
			res, err = askRemote(ctx, askServer, req, out.emit)
		} else {
			res, err = askLocal(ctx, req, out.emit)
		}
		if err != nil {
			return err
		}
		fmt.Println()
		for i := range res.Images {
			fmt.Fprintf(os.Stderr, "[image %d: %d bytes as data-URI]\n", i+1, len(res.Images[i]))
		}
		return nil
	},
}

func init() {
	askCmd.Flags().StringVarP(&askModel, "model", "m", router.AutoGeminiFlash, "model id or auto strategy")
	askCmd.Flags().StringVar(&askServer, "server", "", "address of a running chatrouter gRPC server")
	askCmd.Flags().StringArrayVarP(&askImages, "image", "i", nil, "attach an image file (repeatable)")
	askCmd.Flags().BoolVarP(&askQuiet, "quiet", "q", false, "do not print progress logs")
	askCmd.Flags().Uint64Var(&askSeed, "seed", 0, "fix the key and model order for local runs (0 means random)")
}

func askLocal(ctx context.Context, req proxy.GenerateRequest, emit provider.Emitter) (provider.Result, error) {
	var opts []router.Option
	if askSeed != 0 {
		opts = append(opts, router.WithShuffler(resilience.NewSeededShuffler(askSeed)))
	}
	s, err := loadServices("text", opts...)
	if err != nil {
		return provider.Result{}, err
	}
	// The terminal already prints progress entries.
	if s.log.GetLevel() > logrus.WarnLevel {
		s.log.SetLevel(logrus.WarnLevel)
	}
	h := proxy.NewHandler(proxy.Config{Router: s.router, App: s.app, Logger: s.log})
	if err := h.Validate(req); err != nil {
		return provider.Result{}, err
	}
	return s.router.Generate(ctx, req.Messages, req.Model, s.app, emit)
}

func askRemote(ctx context.Context, addr string, req proxy.GenerateRequest, emit provider.Emitter) (provider.Result, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return provider.Result{}, fmt.Errorf("connect %s: %w", addr, err)
	}
	defer conn.Close()
	return proxy.NewClient(conn).Generate(ctx, req, emit)
}

// terminal renders the event stream: text on stdout, everything else on stderr.
type terminal struct {
	quiet   bool
	printed bool
}

func (t *terminal) emit(ev provider.Event) {
	switch ev.Kind {
	case provider.EventTextDelta:
		fmt.Print(ev.Text)
		t.printed = true
	case provider.EventReset:
		if t.printed {
			fmt.Fprintln(os.Stderr, "\n[discarding partial answer]")
			t.printed = false
		}
	case provider.EventLog:
		if !t.quiet {
			fmt.Fprintf(os.Stderr, "[%s] %s\n", ev.Log.Level, ev.Log.Message)
		}
	}
}
