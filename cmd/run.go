// -- cmd/run.go --
package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/translators-dev/bridge-cli/internal/bridge"
	"github.com/translators-dev/bridge-cli/internal/observability"
	"github.com/translators-dev/bridge-cli/internal/profile"
	"github.com/translators-dev/bridge-cli/internal/protocol"
	"github.com/translators-dev/bridge-cli/internal/watch"
)

// tickFrame is the host-loop frame driving the session.
const tickFrame = 50 * time.Millisecond

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a bridge session until interrupted.",
	Long: `Run starts a session against the bridge directory and keeps it alive
until SIGINT/SIGTERM. Incoming producer messages are acknowledged and
surfaced as structured log events; a completed session logs the
extracted cognitive profile.`,
	RunE: runSession,
}

func init() {
	runCmd.Flags().Bool("watch", true, "use an OS-level directory watch in addition to polling")
	runCmd.Flags().String("project", "", "project name stamped into acknowledgments")
	rootCmd.AddCommand(runCmd)
}

// fileChange carries a notifier event onto the tick goroutine, keeping
// the session strictly single-threaded.
type fileChange struct {
	name      string
	isProfile bool
}

// channelSink implements watch.FileChangeSink over a channel.
type channelSink chan fileChange

func (c channelSink) NotifyFileChanged(filename string, isProfile bool) {
	select {
	case c <- fileChange{name: filename, isProfile: isProfile}:
	default:
		// A full queue means a burst; polling will catch anything lost.
	}
}

func runSession(cmd *cobra.Command, args []string) error {
	logger := observability.GetLogger()
	cfg := appConfig.Bridge()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var session *bridge.Session
	session = bridge.NewSession(logger, bridge.Options{
		Dir:           cfg.Dir,
		PollInterval:  cfg.PollInterval,
		Debounce:      cfg.Debounce,
		WriteRetries:  cfg.WriteRetries,
		RetryDelay:    cfg.RetryDelay,
		EngineVersion: Version,
		Project:       cfg.Project,
	}, bridge.Events{
		Ready: func(total int) {
			logger.Info("Producer ready", zap.Int("total_questions", total))
			session.Acknowledge()
		},
		QuestionReady: func(q bridge.ActiveQuestion) {
			logger.Info("Question ready",
				zap.Int("index", q.Index),
				zap.Int("total", q.Total),
				zap.String("question_id", q.ID),
				zap.String("depth", q.DepthLabel),
				zap.String("text", q.Text))
		},
		TransitionReady: func(direction, nextScene string, progress float64) {
			logger.Info("Scene transition",
				zap.String("direction", direction),
				zap.String("next_scene", nextScene),
				zap.Float64("progress", progress))
		},
		ProfileComplete: func(p profile.Profile, path string) {
			logger.Info("Profile complete",
				zap.String("path", path),
				zap.String("checksum", p.Checksum),
				zap.Int("traits", len(p.Traits)),
				zap.Strings("insights", p.Insights))
		},
		ProfileFileUpdated: func(path string) {
			logger.Info("Profile export updated", zap.String("path", path))
		},
		Error: func(kind bridge.ErrorKind, message string) {
			logger.Warn("Session error",
				zap.String("kind", string(kind)),
				zap.String("message", message))
		},
	})

	if err := session.StartSession(); err != nil {
		return err
	}
	defer session.StopSession()

	changes := make(channelSink, 64)
	g, ctx := errgroup.WithContext(ctx)

	if cfg.Watch {
		notifier := watch.NewNotifier(logger, cfg.Dir,
			[]string{protocol.StateFileUSDA, protocol.StateFileJSON},
			[]string{protocol.ProfileFile, protocol.SubstrateFile},
			changes)
		g.Go(func() error { return notifier.Run(ctx) })
	}

	g.Go(func() error { return tickLoop(ctx, session, changes) })

	err := g.Wait()
	if err == nil || errors.Is(err, context.Canceled) {
		logger.Info("Bridge session shut down")
		return nil
	}
	return err
}

// tickLoop owns all session access. Notifier events are drained here so
// the session never sees two goroutines.
func tickLoop(ctx context.Context, session *bridge.Session, changes channelSink) error {
	ticker := time.NewTicker(tickFrame)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev := <-changes:
			session.NotifyFileChanged(ev.name, ev.isProfile)

		case now := <-ticker.C:
			session.Tick(now.Sub(last))
			last = now
		}
	}
}
