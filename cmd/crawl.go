package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agentx-ai/steercrawl/internal/crawl"
	"github.com/agentx-ai/steercrawl/internal/manager"
	"github.com/agentx-ai/steercrawl/internal/progress"
)

type crawlFlags struct {
	intent     string
	maxDepth   int
	maxPages   int
	delay      time.Duration
	approveAll bool
	rejectAll  bool
}

// newCrawlCmd creates the 'crawl' subcommand: a one-shot crawl driven from
// the terminal, with steering escalations answered interactively on stdin.
func newCrawlCmd() *cobra.Command {
	var flags crawlFlags
	cmd := &cobra.Command{
		Use:   "crawl <root-url>",
		Short: "Runs a single crawl to completion",
		Long: `Starts a crawl from the given root URL and follows its progress in the
terminal. When a link cannot be decided automatically you are asked to
approve or reject it; --approve-all and --reject-all answer for you.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCrawlCommand(cmd, args[0], flags)
		},
	}
	cmd.Flags().StringVar(&flags.intent, "intent", "", "what the crawl is looking for (required)")
	cmd.Flags().IntVar(&flags.maxDepth, "max-depth", 0, "link depth limit (0 uses the configured default)")
	cmd.Flags().IntVar(&flags.maxPages, "max-pages", 0, "page budget (0 uses the configured default)")
	cmd.Flags().DurationVar(&flags.delay, "delay", 0, "per-domain politeness delay (0 uses the configured default)")
	cmd.Flags().BoolVar(&flags.approveAll, "approve-all", false, "approve every escalated link without asking")
	cmd.Flags().BoolVar(&flags.rejectAll, "reject-all", false, "reject every escalated link without asking")
	_ = cmd.MarkFlagRequired("intent")
	return cmd
}

func runCrawlCommand(cmd *cobra.Command, rootURL string, flags crawlFlags) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	if flags.approveAll && flags.rejectAll {
		return fmt.Errorf("--approve-all and --reject-all are mutually exclusive")
	}

	job, err := appInstance.Manager.Start(cmd.Context(), manager.StartRequest{
		RootURL: rootURL,
		Intent:  flags.intent,
		Config: crawl.JobConfig{
			MaxDepth: flags.maxDepth,
			MaxPages: flags.maxPages,
			Delay:    flags.delay,
		},
	})
	if err != nil {
		return fmt.Errorf("start crawl: %w", err)
	}
	fmt.Printf("job %s crawling %s\n", job.ID, job.RootURL)

	events, cancelSub := appInstance.Bus.Subscribe(job.ID)
	defer cancelSub()

	stdin := bufio.NewReader(os.Stdin)
	for {
		select {
		case <-cmd.Context().Done():
			if err := appInstance.Manager.Cancel(job.ID); err != nil {
				appInstance.Logger.Warn("cancel failed", zap.String("job_id", job.ID), zap.Error(err))
			}
			return cmd.Context().Err()
		case evt, ok := <-events:
			if !ok {
				return printSummary(appInstance.Manager, job.ID)
			}
			printEvent(evt)
			if evt.Kind == progress.KindSteeringNeeded {
				approved, err := decideSteering(stdin, evt, flags)
				if err != nil {
					return err
				}
				if err := appInstance.Manager.Steer(job.ID, evt.Link, approved); err != nil {
					// The steering window may have timed out while we waited
					// for input; the crawl moves on without us.
					appInstance.Logger.Debug("steering answer not delivered",
						zap.String("link", evt.Link), zap.Error(err))
				}
			}
		}
	}
}

func decideSteering(stdin *bufio.Reader, evt progress.Event, flags crawlFlags) (bool, error) {
	switch {
	case flags.approveAll:
		fmt.Printf("  auto-approving %s\n", evt.Link)
		return true, nil
	case flags.rejectAll:
		fmt.Printf("  auto-rejecting %s\n", evt.Link)
		return false, nil
	}
	fmt.Printf("  follow %s? [y/N] ", evt.Link)
	line, err := stdin.ReadString('\n')
	if err != nil {
		return false, fmt.Errorf("read steering answer: %w", err)
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}

func printEvent(evt progress.Event) {
	switch evt.Kind {
	case progress.KindDiscovered:
		fmt.Printf("discovered %d links\n", evt.Count)
	case progress.KindCrawling:
		fmt.Printf("crawling %s (%.0f%%)\n", evt.URL, evt.Progress*100)
	case progress.KindSteeringNeeded:
		fmt.Printf("steering needed: %s\n  %s (confidence %.2f)\n", evt.Link, evt.Reasoning, evt.Confidence)
	case progress.KindStored:
		fmt.Printf("stored %s (%d chunks)\n", evt.URL, evt.Chunks)
	case progress.KindFailed:
		fmt.Printf("failed: %s\n", evt.Error)
	case progress.KindCancelled:
		fmt.Println("cancelled")
	case progress.KindCompleted:
		fmt.Printf("completed: %d pages, %d chunks in %s\n", evt.TotalPages, evt.TotalChunks, evt.Duration.Round(time.Millisecond))
	}
}

func printSummary(mgr *manager.Manager, jobID string) error {
	job, err := mgr.Get(jobID)
	if err != nil {
		return err
	}
	if job.State == crawl.StateFailed {
		return fmt.Errorf("crawl failed: %s", job.ErrorText)
	}
	fmt.Printf("job %s finished in state %s\n", job.ID, job.State)
	return nil
}
