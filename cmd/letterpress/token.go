package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"
)

var tokenValue string

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "API token commands",
}

var tokenHashCmd = &cobra.Command{
	Use:   "hash",
	Short: "Print the bcrypt hash of an API token for api.api_key_hash",
	RunE:  runTokenHash,
}

func init() {
	tokenHashCmd.Flags().StringVar(&tokenValue, "token", "", "Token to hash (will prompt if not provided)")

	tokenCmd.AddCommand(tokenHashCmd)
	rootCmd.AddCommand(tokenCmd)
}

func runTokenHash(cmd *cobra.Command, args []string) error {
	token := tokenValue
	if token == "" {
		fmt.Fprint(os.Stderr, "Enter token: ")
		b, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err != nil {
			return fmt.Errorf("failed to read token: %w", err)
		}
		fmt.Fprintln(os.Stderr)
		token = string(b)
	}

	hash, err := hashToken(token)
	if err != nil {
		return err
	}
	fmt.Println(hash)
	return nil
}

func hashToken(token string) (string, error) {
	if len(token) < 16 {
		return "", fmt.Errorf("token must be at least 16 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash token: %w", err)
	}
	return string(hash), nil
}
