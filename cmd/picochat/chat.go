package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mdp/qrterminal/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sipeed/picochat/pkg/channels"
	"github.com/sipeed/picochat/pkg/chat"
	"github.com/sipeed/picochat/pkg/logger"
)

func newChatCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Chat in the current terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := bootstrap(flags, os.Stderr)
			if err != nil {
				return err
			}
			defer s.closeLog()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ch := channels.NewTerminalChannel(s.cfg.Widget, s.client, s.cfg.Timeout(), channels.ColorSupported(os.Stdout))
			return ch.Run(ctx)
		},
	}
}

func newTUICmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Full-screen chat widget",
		RunE: func(cmd *cobra.Command, args []string) error {
			// logs would corrupt the screen unless they go to log.file
			s, err := bootstrap(flags, io.Discard)
			if err != nil {
				return err
			}
			defer s.closeLog()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return channels.NewTUIChannel(s.cfg.Widget, s.client, s.cfg.Timeout()).Run(ctx)
		},
	}
}

func newWebCmd(flags *rootFlags) *cobra.Command {
	var (
		host string
		port int
		qr   bool
	)

	cmd := &cobra.Command{
		Use:   "web",
		Short: "Serve the chat widget to browsers",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := bootstrap(flags, os.Stderr)
			if err != nil {
				return err
			}
			defer s.closeLog()

			if cmd.Flags().Changed("host") {
				s.cfg.WebChat.Host = host
			}
			if cmd.Flags().Changed("port") {
				s.cfg.WebChat.Port = port
			}
			if cmd.Flags().Changed("qr") {
				s.cfg.WebChat.ShowQR = qr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			web := channels.NewWebChatChannel(s.cfg.WebChat, s.cfg.Widget, s.client, s.cfg.Timeout())

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return web.Run(gctx)
			})

			pageURL := widgetURL(s.cfg.WebChatAddr())
			fmt.Fprintf(cmd.OutOrStdout(), "Widget: %s\n", pageURL)
			if s.cfg.WebChat.ShowQR {
				qrterminal.GenerateHalfBlock(pageURL, qrterminal.L, cmd.OutOrStdout())
			}

			return g.Wait()
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "listen host (default from config)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (default from config)")
	cmd.Flags().BoolVar(&qr, "qr", false, "print a QR code of the widget URL")

	return cmd
}

// widgetURL is the page address for a listen address. Wildcard hosts are
// shown as localhost.
func widgetURL(addr string) string {
	for _, wildcard := range []string{"0.0.0.0:", "[::]:", ":"} {
		if strings.HasPrefix(addr, wildcard) {
			return "http://localhost:" + strings.TrimPrefix(addr, wildcard) + "/"
		}
	}
	return "http://" + addr + "/"
}

func newAskCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask one question and print the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := bootstrap(flags, os.Stderr)
			if err != nil {
				return err
			}
			defer s.closeLog()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ctrl := chat.NewController(&printDisplay{w: cmd.OutOrStdout()}, s.client)
			ctrl.SetTimeout(s.cfg.Timeout())

			task := ctrl.QuickAsk(ctx, strings.Join(args, " "))
			if task == nil {
				return fmt.Errorf("question is empty")
			}
			if res := task.Wait(); !res.OK() {
				return res.Err
			}
			return nil
		},
	}
}

// printDisplay writes bot bubbles to w. It is the display for one-shot
// questions, where the user's own bubble and the affordances have no screen.
type printDisplay struct {
	w     io.Writer
	input string
}

func (d *printDisplay) InputText() string { return d.input }
func (d *printDisplay) SetInputText(text string) { d.input = text }
func (d *printDisplay) ClearInput() { d.input = "" }
func (d *printDisplay) SetSendDisabled(bool) {}
func (d *printDisplay) SetTypingVisible(bool) {}
func (d *printDisplay) FocusInput() {}

func (d *printDisplay) RenderBubble(text string, role chat.Role) {
	if role == chat.RoleAssistant {
		fmt.Fprintln(d.w, text)
	}
}

func newPingCmd(flags *rootFlags) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Check that the backend is up",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := bootstrap(flags, os.Stderr)
			if err != nil {
				return err
			}
			defer s.closeLog()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			url, _ := s.client.HealthURL()
			h, err := s.client.Health(ctx)
			if err != nil {
				logger.ErrorCF("main", "Health check failed", map[string]interface{}{"url": url, "error": err.Error()})
				return fmt.Errorf("ping %s: %w", url, err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %s\n", url, h.Status)
			if h.Version != "" {
				fmt.Fprintf(out, "  version:        %s\n", h.Version)
			}
			fmt.Fprintf(out, "  llm configured: %t\n", h.LLMConfigured)
			fmt.Fprintf(out, "  matches:        %d\n", h.MatchesCount)
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "probe timeout")

	return cmd
}
