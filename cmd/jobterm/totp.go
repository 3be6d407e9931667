package main

import (
	"fmt"
	"io"
	"os"

	"github.com/mdp/qrterminal/v3"
	"github.com/pquerna/otp/totp"
	"github.com/spf13/cobra"
)

const totpIssuer = "jobterm"

func newTOTPCmd() *cobra.Command {
	var account string
	cmd := &cobra.Command{
		Use:   "totp",
		Short: "Generate a TOTP secret for the SSH second factor",
		Long: "Generate a TOTP secret and print it with an enrollment QR code.\n" +
			"Put the secret in ssh.totp_secret to require a verification code after key authentication.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if account == "" {
				account = defaultAccount()
			}
			secret, url, err := generateTOTP(account)
			if err != nil {
				return err
			}
			printEnrollment(cmd.OutOrStdout(), secret, url)
			return nil
		},
	}
	cmd.Flags().StringVar(&account, "account", "", "account name shown in the authenticator app (default $USER)")
	return cmd
}

func defaultAccount() string {
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	return "jobterm"
}

func generateTOTP(account string) (string, string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      totpIssuer,
		AccountName: account,
	})
	if err != nil {
		return "", "", err
	}
	return key.Secret(), key.URL(), nil
}

func printEnrollment(w io.Writer, secret, url string) {
	_, _ = fmt.Fprintf(w, "totp_secret: %s\n", secret)
	_, _ = fmt.Fprintf(w, "otpauth_url: %s\n", url)
	_, _ = fmt.Fprintln(w, "totp_qr:")
	qrterminal.GenerateHalfBlock(url, qrterminal.L, w)
}
