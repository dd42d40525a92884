package cli

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/taxdesk/taxdesk/internal/auth"
)

// newTokenCmd creates the 'token' command group.
func newTokenCmd() *cobra.Command {
	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Inspect the configured API token",
	}
	tokenCmd.AddCommand(&cobra.Command{
		Use:   "inspect",
		Short: "Show who the token belongs to and when it expires",
		Long: `Decode the claims of the configured API token.

The signature is not checked; the portal does that on every request.
Tokens that are not JWTs are reported as opaque.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Token == "" {
				return errors.New("no token configured (run 'taxdesk config init' or set TAXDESK_TOKEN)")
			}
			return printTokenInfo(cmd.OutOrStdout(), cfg.Token, time.Now())
		},
	})
	return tokenCmd
}

func printTokenInfo(w io.Writer, token string, now time.Time) error {
	info, err := auth.InspectToken(token)
	if errors.Is(err, auth.ErrOpaqueToken) {
		fmt.Fprintln(w, "Token is opaque (not a JWT); expiry is unknown")
		return nil
	}
	if err != nil {
		return err
	}

	field := func(label, value string) {
		if value != "" {
			fmt.Fprintf(w, "  %-10s %s\n", label+":", value)
		}
	}
	fmt.Fprintln(w, "Token:")
	field("Subject", info.Subject)
	field("Email", info.Email)
	field("Role", info.Role)
	field("Client", info.ClientID)
	field("Issuer", info.Issuer)
	if !info.IssuedAt.IsZero() {
		field("Issued", info.IssuedAt.Local().Format(time.RFC1123))
	}

	switch {
	case info.ExpiresAt.IsZero():
		field("Expires", "never")
	case info.Expired(now):
		field("Expires", info.ExpiresAt.Local().Format(time.RFC1123)+" (EXPIRED)")
	default:
		field("Expires", fmt.Sprintf("%s (in %s)", info.ExpiresAt.Local().Format(time.RFC1123), info.Remaining(now).Round(time.Minute)))
	}
	if msg := auth.ExpiryWarning(token, now); msg != "" {
		fmt.Fprintf(w, "\n⚠ %s\n", msg)
	}
	return nil
}
