package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var testSendTo string

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Testing commands",
}

var testSendCmd = &cobra.Command{
	Use:   "send <newsletter_id>",
	Short: "Send a test copy of a newsletter without tracking",
	Args:  cobra.ExactArgs(1),
	RunE:  runTestSend,
}

func init() {
	testSendCmd.Flags().StringVar(&testSendTo, "to", "", "Recipient email address (required)")
	testSendCmd.MarkFlagRequired("to")

	testCmd.AddCommand(testSendCmd)
	rootCmd.AddCommand(testCmd)
}

func runTestSend(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	core, cfg, err := openCore(ctx)
	if err != nil {
		return err
	}
	defer core.Close()

	fmt.Printf("Sending test newsletter...\n")
	fmt.Printf("  Newsletter: %s\n", args[0])
	fmt.Printf("  To:         %s\n", testSendTo)
	fmt.Printf("  Transport:  %s\n", cfg.Transport.Type)

	if err := core.Campaign.SendTest(ctx, args[0], testSendTo); err != nil {
		return err
	}

	fmt.Println("Test newsletter sent")
	return nil
}
