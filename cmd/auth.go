package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage backend authentication",
	Long:  "Commands for creating an account, logging in and out, and inspecting the current session.",
}

var (
	authEmail    string
	authPassword string
)

// readCredential prompts on stderr when a flag was left empty.
func readCredential(label, value string) (string, error) {
	if value != "" {
		return value, nil
	}
	fmt.Fprintf(os.Stderr, "%s: ", label)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", eris.Wrap(err, "read "+strings.ToLower(label))
	}
	return strings.TrimSpace(line), nil
}

var authSignupCmd = &cobra.Command{
	Use:   "signup",
	Short: "Create a new account",
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, err := initClient()
		if err != nil {
			return err
		}

		email, err := readCredential("Email", authEmail)
		if err != nil {
			return err
		}
		password, err := readCredential("Password", authPassword)
		if err != nil {
			return err
		}

		resp, err := client.Signup(cmd.Context(), email, password)
		if err != nil {
			return reportError(err)
		}

		fmt.Println(resp.Message)
		return nil
	},
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and store the session token",
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, err := initClient()
		if err != nil {
			return err
		}

		email, err := readCredential("Email", authEmail)
		if err != nil {
			return err
		}
		password, err := readCredential("Password", authPassword)
		if err != nil {
			return err
		}

		grant, err := client.Login(cmd.Context(), email, password)
		if err != nil {
			return reportError(err)
		}

		if err := sess.SetToken(grant.AccessToken); err != nil {
			return err
		}

		zap.L().Info("logged in", zap.String("email", email))
		fmt.Println("Logged in.")
		return nil
	},
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored session token",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if !sess.IsAuthenticated() {
			fmt.Println("Not logged in.")
			return nil
		}
		if err := sess.Clear(); err != nil {
			return err
		}
		fmt.Println("Logged out.")
		return nil
	},
}

var authWhoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the account for the current session",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if !sess.IsAuthenticated() {
			fmt.Println("Not logged in.")
			return nil
		}

		client, err := initClient()
		if err != nil {
			return err
		}
		user, err := client.Me(cmd.Context())
		if err != nil {
			return reportError(err)
		}

		fmt.Printf("Email:    %s\n", user.Email)
		fmt.Printf("Verified: %t\n", user.EmailVerified)
		return nil
	},
}

var authVerifyCmd = &cobra.Command{
	Use:   "verify <token>",
	Short: "Redeem an email verification token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := initClient()
		if err != nil {
			return err
		}
		if err := client.VerifyEmail(cmd.Context(), args[0]); err != nil {
			return reportError(err)
		}
		fmt.Println("Email verified.")
		return nil
	},
}

var authResendCmd = &cobra.Command{
	Use:   "resend <email>",
	Short: "Resend the verification email",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := initClient()
		if err != nil {
			return err
		}
		if err := client.ResendVerification(cmd.Context(), args[0]); err != nil {
			return reportError(err)
		}
		fmt.Println("Verification email requested.")
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{authSignupCmd, authLoginCmd} {
		c.Flags().StringVar(&authEmail, "email", "", "account email")
		c.Flags().StringVar(&authPassword, "password", "", "account password")
	}

	authCmd.AddCommand(authSignupCmd, authLoginCmd, authLogoutCmd, authWhoamiCmd, authVerifyCmd, authResendCmd)
	rootCmd.AddCommand(authCmd)
}
