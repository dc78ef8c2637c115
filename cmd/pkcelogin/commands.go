package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"pkceauth/pkg/oauth2"
)

var forceLogin bool

var rootCmd = &cobra.Command{
	Use:   "pkcelogin",
	Short: "Sign in to an OAuth 2.0 provider with Authorization Code + PKCE",
	Long: `pkcelogin runs the OAuth 2.0 Authorization Code flow with PKCE against
the provider configured in the environment (or a .env file) and keeps the
resulting token in the configured token store.

Examples:
  pkcelogin login            # Sign in unless a token is already stored
  pkcelogin login --force    # Sign in again
  pkcelogin status           # Show the stored token
  pkcelogin refresh          # Redeem the refresh token
  pkcelogin logout           # Delete the stored token`,
	SilenceUsage: true,
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in through the browser",
	Long: `Open the provider's authorization page and wait for the callback.

An http redirect URI is served on loopback; any other scheme asks for the
callback URL on stdin. Ctrl-C cancels the attempt.`,
	RunE: runLogin,
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Refresh the stored token",
	RunE:  runRefresh,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Delete the stored token",
	RunE:  runLogout,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the authentication state",
	RunE:  runStatus,
}

func init() {
	loginCmd.Flags().BoolVar(&forceLogin, "force", false, "Sign in even when a token is stored")
	rootCmd.AddCommand(loginCmd, refreshCmd, logoutCmd, statusCmd)
}

func runLogin(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer a.close()

	out := cmd.OutOrStdout()
	if a.session.State().Kind == oauth2.StateAuthenticated && !forceLogin {
		fmt.Fprintln(out, "Already authenticated. Use --force to sign in again.")
		return nil
	}

	unsubscribe := a.session.Subscribe(func(s oauth2.State) {
		fmt.Fprintf(out, "-> %s\n", s.Kind)
	})
	defer unsubscribe()

	interrupted, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	done := a.session.Start(cmd.Context())
	select {
	case <-done:
	case <-interrupted.Done():
		if err := a.session.Cancel(); err != nil && !errors.Is(err, oauth2.ErrNotAuthenticating) {
			return err
		}
		<-done
	}

	state := a.session.State()
	if state.Kind != oauth2.StateAuthenticated {
		return fmt.Errorf("login %s: %w", state.Kind, state.Err)
	}
	printToken(out, state.Token)
	return nil
}

func runRefresh(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer a.close()

	token, err := a.session.RefreshAccessToken(cmd.Context())
	if err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	printToken(cmd.OutOrStdout(), token)
	return nil
}

func runLogout(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.session.Reset(context.WithoutCancel(cmd.Context())); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
	return nil
}

func runStatus(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer a.close()

	out := cmd.OutOrStdout()
	token := a.session.Token()
	if token == nil {
		fmt.Fprintln(out, "Not authenticated.")
		return nil
	}
	printToken(out, token)
	return nil
}

// printToken describes a token without revealing it.
func printToken(w io.Writer, token *oauth2.AccessToken) {
	fmt.Fprintln(w, "Authenticated.")
	if token.Type != "" {
		fmt.Fprintf(w, "  type:     %s\n", token.Type)
	}
	if token.Scope != "" {
		fmt.Fprintf(w, "  scope:    %s\n", token.Scope)
	}
	fmt.Fprintf(w, "  issued:   %s\n", token.IssuedAt.Local().Format(time.RFC1123))
	if expiresAt, ok := token.ExpiresAt(); ok {
		state := "valid"
		if token.IsExpired(time.Now(), 0) {
			state = "expired"
		}
		fmt.Fprintf(w, "  expires:  %s (%s)\n", expiresAt.Local().Format(time.RFC1123), state)
	}
	fmt.Fprintf(w, "  refresh:  %t\n", token.CanRefresh())
}
