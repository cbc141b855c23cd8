package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/foxzi/letterpress/internal/newsletter"
)

var (
	subName       string
	subAudience   string
	subListLimit  int
	subListActive bool
)

var subscriberCmd = &cobra.Command{
	Use:   "subscriber",
	Short: "Subscriber management commands",
}

var subscriberAddCmd = &cobra.Command{
	Use:   "add <email>",
	Short: "Add or reactivate a subscriber",
	Args:  cobra.ExactArgs(1),
	RunE:  runSubscriberAdd,
}

var subscriberListCmd = &cobra.Command{
	Use:   "list",
	Short: "List subscribers in subscription order",
	RunE:  runSubscriberList,
}

var subscriberRemoveCmd = &cobra.Command{
	Use:   "remove <id|email>",
	Short: "Delete a subscriber",
	Args:  cobra.ExactArgs(1),
	RunE:  runSubscriberRemove,
}

func init() {
	subscriberAddCmd.Flags().StringVar(&subName, "name", "", "Subscriber name")
	subscriberAddCmd.Flags().StringVar(&subAudience, "type", "free", "Subscription type (free, paid)")

	subscriberListCmd.Flags().IntVar(&subListLimit, "limit", 100, "Maximum number of subscribers to show")
	subscriberListCmd.Flags().BoolVar(&subListActive, "active", false, "Only show active subscribers")

	subscriberCmd.AddCommand(subscriberAddCmd, subscriberListCmd, subscriberRemoveCmd)
	rootCmd.AddCommand(subscriberCmd)
}

func runSubscriberAdd(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	core, _, err := openCore(ctx)
	if err != nil {
		return err
	}
	defer core.Close()

	sub, err := core.Campaign.Subscribe(ctx, args[0], subName, newsletter.Audience(subAudience))
	if err != nil {
		return fmt.Errorf("failed to add subscriber: %w", err)
	}

	fmt.Printf("Subscriber %s added (%s, id %s)\n", sub.Email, sub.Audience, sub.ID)
	return nil
}

func runSubscriberList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	core, _, err := openCore(ctx)
	if err != nil {
		return err
	}
	defer core.Close()

	subs, err := core.Campaign.ListSubscribers(ctx, newsletter.SubscriberFilter{
		ActiveOnly: subListActive,
		Limit:      subListLimit,
	})
	if err != nil {
		return fmt.Errorf("failed to list subscribers: %w", err)
	}

	if len(subs) == 0 {
		fmt.Println("No subscribers")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tEMAIL\tNAME\tTYPE\tACTIVE\tSUBSCRIBED")
	fmt.Fprintln(w, "--\t-----\t----\t----\t------\t----------")
	for _, s := range subs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%s\n",
			s.ID, s.Email, s.Name, s.Audience, s.Active, s.CreatedAt.Format("2006-01-02"))
	}
	w.Flush()

	fmt.Printf("\nTotal: %d subscribers\n", len(subs))
	return nil
}

func runSubscriberRemove(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	core, _, err := openCore(ctx)
	if err != nil {
		return err
	}
	defer core.Close()

	if err := core.Campaign.RemoveSubscriber(ctx, args[0]); err != nil {
		return fmt.Errorf("failed to remove subscriber: %w", err)
	}

	fmt.Printf("Subscriber %s removed\n", args[0])
	return nil
}
