package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"claudeview/internal/feed"
	"claudeview/internal/ingest"
	"claudeview/internal/reconcile"
	"claudeview/internal/types"
)

// =============================================================================
// WATCH - terminal client for a running server
// =============================================================================

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow a running server and announce new messages per thread",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			if serverURL, _ := cmd.Flags().GetString("server"); serverURL != "" {
				cfg.ServerURL = strings.TrimRight(serverURL, "/")
			}
			query, err := queryFromFlags(cmd)
			if err != nil {
				return err
			}
			reveal, _ := cmd.Flags().GetBool("reveal")

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			w := &watchClient{
				serverURL: cfg.ServerURL,
				reveal:    reveal,
				out:       newRenderer(cmd.OutOrStdout()),
				logger:    logger,
			}
			return w.run(ctx, query)
		},
	}
	cmd.Flags().String("server", "", "server URL (overrides server_url)")
	cmd.Flags().Bool("reveal", false, "show new messages as they arrive instead of only counting them")
	cmd.Flags().String("project", "", "only threads from this project (path or directory name)")
	cmd.Flags().String("keyword", "", "only threads containing this text")
	cmd.Flags().String("from", "", "only threads started on or after this date (YYYY-MM-DD or RFC3339)")
	cmd.Flags().String("to", "", "only threads started on or before this date (YYYY-MM-DD or RFC3339)")
	cmd.Flags().String("sort", types.SortNewest, "newest or oldest")
	cmd.Flags().Int("page", 1, "page number")
	cmd.Flags().Int("page-size", 0, "threads per page (server default when 0)")
	return cmd
}

func queryFromFlags(cmd *cobra.Command) (types.Query, error) {
	var q types.Query
	q.Project, _ = cmd.Flags().GetString("project")
	q.Keyword, _ = cmd.Flags().GetString("keyword")
	q.Sort, _ = cmd.Flags().GetString("sort")
	q.Page, _ = cmd.Flags().GetInt("page")
	q.PageSize, _ = cmd.Flags().GetInt("page-size")

	from, _ := cmd.Flags().GetString("from")
	to, _ := cmd.Flags().GetString("to")
	var err error
	if q.From, err = parseFlagTime(from, false); err != nil {
		return q, fmt.Errorf("--from: %w", err)
	}
	if q.To, err = parseFlagTime(to, true); err != nil {
		return q, fmt.Errorf("--to: %w", err)
	}
	return q, nil
}

// parseFlagTime accepts RFC3339 or a bare date. Bare dates are UTC, as on
// the server, and one used as an upper bound covers the whole day.
func parseFlagTime(s string, endOfDay bool) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

// watchClient owns one pipeline fed by the server's snapshots and change
// feed.
type watchClient struct {
	serverURL string
	reveal    bool
	out       *renderer
	logger    *zap.Logger

	// unread count last printed per thread
	announced map[string]int
}

func (w *watchClient) run(ctx context.Context, query types.Query) error {
	if w.logger == nil {
		w.logger = zap.NewNop()
	}
	subscriber, err := feed.NewSubscriber(w.serverURL, w.logger.Named("feed"))
	if err != nil {
		return err
	}
	pipeline := ingest.NewPipeline(feed.NewRemoteSource(w.serverURL, nil), w.logger, nil)

	if err := pipeline.Load(ctx, query); err != nil {
		return err
	}
	w.out.Loaded(w.serverURL, pipeline.Views())

	trigger := ingest.NewTrigger()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return subscriber.Run(ctx, func(event types.EventEnvelope) {
			switch event.EventType {
			case types.EventConversationsChanged:
				trigger.Fire()
			case types.EventNotificationsChanged:
				w.out.Notification(event)
			}
		})
	})
	g.Go(func() error {
		return pipeline.Run(ctx, trigger.C(), func(int) {
			w.announce(pipeline)
		})
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// announce prints the new-message affordance for every thread whose pending
// count changed since the last announce, or reveals new messages straight
// away with --reveal.
func (w *watchClient) announce(pipeline *ingest.Pipeline) {
	if w.announced == nil {
		w.announced = make(map[string]int)
	}
	views := pipeline.Views()
	if !w.reveal {
		seen := make(map[string]struct{}, len(views))
		for _, view := range views {
			if !view.HasUnread {
				continue
			}
			seen[view.ThreadID] = struct{}{}
			if w.announced[view.ThreadID] == view.UnreadCount {
				continue
			}
			w.announced[view.ThreadID] = view.UnreadCount
			w.out.Pending(view)
		}
		for id := range w.announced {
			if _, ok := seen[id]; !ok {
				delete(w.announced, id)
			}
		}
		return
	}

	for _, view := range views {
		if !view.HasUnread {
			continue
		}
		state, ok := pipeline.Store().State(view.ThreadID)
		if !ok {
			continue
		}
		pipeline.Reveal(view.ThreadID)
		w.out.Revealed(view, state.Pending)
	}
}

// =============================================================================
// OUTPUT
// =============================================================================

const previewWidth = 72

type renderer struct {
	mu  sync.Mutex
	out io.Writer

	header lipgloss.Style
	dim    lipgloss.Style
	badge  lipgloss.Style
	user   lipgloss.Style
	asst   lipgloss.Style
	notice lipgloss.Style
}

func newRenderer(out io.Writer) *renderer {
	return &renderer{
		out:    out,
		header: lipgloss.NewStyle().Bold(true),
		dim:    lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		badge:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("12")).Padding(0, 1),
		user:   lipgloss.NewStyle().Foreground(lipgloss.Color("14")),
		asst:   lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		notice: lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
	}
}

func (r *renderer) printf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, format, args...)
}

// Loaded prints the baseline listing.
func (r *renderer) Loaded(serverURL string, views []reconcile.ThreadView) {
	r.printf("%s %s\n", r.header.Render("claudeview"), r.dim.Render(fmt.Sprintf("%s · %d threads", serverURL, len(views))))
	for _, view := range views {
		r.printf("  %s\n", r.threadLine(view))
	}
}

// Pending prints the "N new messages" affordance for one thread.
func (r *renderer) Pending(view reconcile.ThreadView) {
	label := fmt.Sprintf("%d new message", view.UnreadCount)
	if view.UnreadCount != 1 {
		label += "s"
	}
	r.printf("%s %s\n", r.badge.Render(label), r.threadLine(view))
}

// Revealed prints messages that were just moved out of pending.
func (r *renderer) Revealed(view reconcile.ThreadView, messages []types.Message) {
	r.printf("%s\n", r.threadLine(view))
	for _, msg := range messages {
		style := r.asst
		if msg.Role == types.RoleUser {
			style = r.user
		}
		r.printf("    %s %s\n", style.Render(msg.Role+":"), preview(msg.Content, previewWidth))
	}
}

// Notification prints a one-line notice for inbox changes.
func (r *renderer) Notification(event types.EventEnvelope) {
	line := "inbox updated"
	if event.SessionID != "" {
		line += " (session " + event.SessionID + ")"
	}
	r.printf("%s\n", r.notice.Render("● "+line))
}

func (r *renderer) threadLine(view reconcile.ThreadView) string {
	if len(view.Messages) == 0 {
		return r.dim.Render("(empty thread)")
	}
	first := view.Messages[0]
	project := first.Project
	if project == "" {
		project = first.SessionID
	}
	return fmt.Sprintf("%s %s", r.dim.Render(project), preview(first.Content, previewWidth))
}

func preview(s string, width int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	return string(runes[:width-1]) + "…"
}
