package keeperctl

import (
	"errors"
	"time"

	"github.com/dmitrijs2005/datakeeper/internal/server/auth"
	"github.com/spf13/cobra"
)

type tokenOptions struct {
	secret        string
	userID        string
	orgID         string
	scopes        []string
	documentTypes []string
	ttl           time.Duration
}

// NewTokenCommand groups token subcommands.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage access tokens",
	}
	cmd.AddCommand(newTokenIssueCommand(rootOpts))
	return cmd
}

func newTokenIssueCommand(rootOpts *RootOptions) *cobra.Command {
	o := &tokenOptions{}

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Mint a signed access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if o.secret == "" {
				return errors.New("--secret is required")
			}
			if o.userID == "" {
				return errors.New("--user is required")
			}
			token, err := auth.GenerateToken(auth.Claims{
				UserID:        o.userID,
				OrgID:         o.orgID,
				Scopes:        o.scopes,
				DocumentTypes: o.documentTypes,
			}, []byte(o.secret), o.ttl)
			if err != nil {
				return err
			}
			return output(cmd, rootOpts, token, map[string]any{
				"access_token": token,
				"expires_in":   int64(o.ttl.Seconds()),
			})
		},
	}

	cmd.Flags().StringVar(&o.secret, "secret", "", "HMAC secret shared with the server")
	cmd.Flags().StringVar(&o.userID, "user", "", "user id")
	cmd.Flags().StringVar(&o.orgID, "org", "", "organization id")
	cmd.Flags().StringSliceVar(&o.scopes, "scope", nil, "granted scope (repeatable)")
	cmd.Flags().StringSliceVar(&o.documentTypes, "doc-type", nil, "permitted document type (repeatable)")
	cmd.Flags().DurationVar(&o.ttl, "ttl", 15*time.Minute, "token validity")

	return cmd
}
