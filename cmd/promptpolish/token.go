package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	pkgauth "github.com/matiasleandrokruk/promptpolish/pkg/auth"
)

func (a *app) tokenCmd() *cobra.Command {
	var subject, client string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bridge access token signed with BRIDGE_SECRET",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tokens, err := pkgauth.NewTokens(a.cfg.Bridge.Secret, a.cfg.TokenTTL())
			if errors.Is(err, pkgauth.ErrNoSecret) {
				return fmt.Errorf("%w: set BRIDGE_SECRET or bridge.secret", err)
			}
			if err != nil {
				return err
			}
			tok, err := tokens.Issue(subject, client)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), tok)
			return err
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "local", "token subject")
	cmd.Flags().StringVar(&client, "client", "extension", "client name carried in the token")
	return cmd
}
