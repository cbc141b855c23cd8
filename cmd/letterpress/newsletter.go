package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/foxzi/letterpress/internal/analytics"
	"github.com/foxzi/letterpress/internal/campaign"
	"github.com/foxzi/letterpress/internal/newsletter"
)

var (
	nlTitle     string
	nlFile      string
	nlHTMLFile  string
	nlAudience  string
	nlTags      []string
	nlSchedule  string
	nlListLimit int
	nlStatus    string
)

var newsletterCmd = &cobra.Command{
	Use:   "newsletter",
	Short: "Newsletter management commands",
}

var newsletterCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a newsletter from a markdown or HTML file",
	RunE:  runNewsletterCreate,
}

var newsletterListCmd = &cobra.Command{
	Use:   "list",
	Short: "List newsletters, newest first",
	RunE:  runNewsletterList,
}

var newsletterSendCmd = &cobra.Command{
	Use:   "send <newsletter_id>",
	Short: "Send a newsletter to its audience",
	Args:  cobra.ExactArgs(1),
	RunE:  runNewsletterSend,
}

var newsletterStatsCmd = &cobra.Command{
	Use:   "stats <newsletter_id>",
	Short: "Show newsletter analytics",
	Args:  cobra.ExactArgs(1),
	RunE:  runNewsletterStats,
}

func init() {
	newsletterCreateCmd.Flags().StringVar(&nlTitle, "title", "", "Newsletter title (required)")
	newsletterCreateCmd.Flags().StringVar(&nlFile, "file", "", "Markdown content file")
	newsletterCreateCmd.Flags().StringVar(&nlHTMLFile, "html-file", "", "HTML content file (takes precedence over --file)")
	newsletterCreateCmd.Flags().StringVar(&nlAudience, "audience", "all", "Target audience (all, free, paid)")
	newsletterCreateCmd.Flags().StringSliceVar(&nlTags, "tag", nil, "Tag (repeatable)")
	newsletterCreateCmd.Flags().StringVar(&nlSchedule, "schedule", "", "Send time in RFC3339 (makes the newsletter scheduled)")
	newsletterCreateCmd.MarkFlagRequired("title")

	newsletterListCmd.Flags().IntVar(&nlListLimit, "limit", 20, "Maximum number of newsletters to show")
	newsletterListCmd.Flags().StringVar(&nlStatus, "status", "", "Filter by status (draft, scheduled, sent)")

	newsletterCmd.AddCommand(newsletterCreateCmd, newsletterListCmd, newsletterSendCmd, newsletterStatsCmd)
	rootCmd.AddCommand(newsletterCmd)
}

func readOptionalFile(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(data), nil
}

func runNewsletterCreate(cmd *cobra.Command, args []string) error {
	markdown, err := readOptionalFile(nlFile)
	if err != nil {
		return err
	}
	html, err := readOptionalFile(nlHTMLFile)
	if err != nil {
		return err
	}

	in := campaign.NewsletterInput{
		Title:          nlTitle,
		Content:        markdown,
		HTMLContent:    html,
		TargetAudience: newsletter.Audience(nlAudience),
		Tags:           nlTags,
	}
	if nlSchedule != "" {
		at, err := time.Parse(time.RFC3339, nlSchedule)
		if err != nil {
			return fmt.Errorf("invalid --schedule: %w", err)
		}
		in.ScheduledFor = &at
	}

	ctx := context.Background()
	core, _, err := openCore(ctx)
	if err != nil {
		return err
	}
	defer core.Close()

	n, err := core.Campaign.CreateNewsletter(ctx, in)
	if err != nil {
		return err
	}

	fmt.Printf("Newsletter created\n")
	fmt.Printf("  ID:       %s\n", n.ID)
	fmt.Printf("  Status:   %s\n", n.Status)
	fmt.Printf("  Audience: %s\n", n.TargetAudience)
	if n.ScheduledFor != nil {
		fmt.Printf("  Sends at: %s\n", n.ScheduledFor.Format(time.RFC3339))
	}
	return nil
}

func runNewsletterList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	core, _, err := openCore(ctx)
	if err != nil {
		return err
	}
	defer core.Close()

	list, err := core.Campaign.ListNewsletters(ctx, newsletter.ListFilter{
		Status: newsletter.Status(nlStatus),
		Limit:  nlListLimit,
	})
	if err != nil {
		return fmt.Errorf("failed to list newsletters: %w", err)
	}

	if len(list) == 0 {
		fmt.Println("No newsletters")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tAUDIENCE\tTITLE\tCREATED\tSENT TO")
	fmt.Fprintln(w, "--\t------\t--------\t-----\t-------\t-------")

	for _, n := range list {
		title := n.Title
		if len(title) > 40 {
			title = title[:37] + "..."
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\n",
			n.ID,
			n.Status,
			n.TargetAudience,
			title,
			n.CreatedAt.Format("2006-01-02 15:04"),
			n.SentToCount,
		)
	}

	w.Flush()
	fmt.Printf("\nTotal: %d newsletters\n", len(list))
	return nil
}

func runNewsletterSend(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	core, _, err := openCore(ctx)
	if err != nil {
		return err
	}
	defer core.Close()

	if err := core.Transport.Err(); err != nil {
		return fmt.Errorf("mail transport is misconfigured: %w", err)
	}

	report, err := core.Campaign.Send(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to send newsletter: %w", err)
	}

	fmt.Printf("Newsletter %s sent\n", report.NewsletterID)
	fmt.Printf("  Sent:    %d\n", report.Sent)
	fmt.Printf("  Failed:  %d\n", report.Failed)
	fmt.Printf("  Batches: %d\n", report.Batches)
	for _, f := range report.Errors {
		fmt.Printf("  ! %s: %s\n", f.Email, f.Reason)
	}
	return nil
}

func runNewsletterStats(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	core, _, err := openCore(ctx)
	if err != nil {
		return err
	}
	defer core.Close()

	s, err := core.Analytics.Summary(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to load analytics: %w", err)
	}

	printSummary(s)
	return nil
}

func printSummary(s *analytics.Summary) {
	fmt.Printf("Newsletter: %s\n", s.Newsletter.Title)
	fmt.Printf("Status:     %s\n", s.Newsletter.Status)
	if s.Newsletter.SentAt != nil {
		fmt.Printf("Sent at:    %s to %d recipients\n", s.Newsletter.SentAt.Format(time.RFC3339), s.Newsletter.SentTo)
	}

	fmt.Println("\nEvents")
	fmt.Println("------")
	for _, t := range newsletter.EventTypes {
		fmt.Printf("%-13s %d\n", strings.ToUpper(string(t[:1]))+string(t[1:])+":", s.Stats[t])
	}

	fmt.Println("\nRates")
	fmt.Println("-----")
	fmt.Printf("Open rate:  %.1f%%\n", s.Rates.OpenRate*100)
	fmt.Printf("Click rate: %.1f%%\n", s.Rates.ClickRate*100)

	if len(s.Timeline) > 0 {
		fmt.Println("\nTimeline")
		fmt.Println("--------")
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "DATE\tOPENED\tCLICKED\tBOUNCED")
		for _, d := range s.Timeline {
			fmt.Fprintf(w, "%s\t%d\t%d\t%d\n", d.Date, d.Opened, d.Clicked, d.Bounced)
		}
		w.Flush()
	}
}
