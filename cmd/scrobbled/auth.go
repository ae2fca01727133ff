package main

import (
	"fmt"

	"github.com/scrobbled/scrobbled/internal/lastfm"
	"github.com/scrobbled/scrobbled/internal/util"
	"github.com/spf13/cobra"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Save API credentials",
	Long: `Save Last.fm/Libre.fm API credentials to the auth file.

Create an API account at https://www.last.fm/api/account/create to obtain
an API key and shared secret. Fetching play history only needs the API key
and username; the session key is optional and only required for write
operations against the API.`,
	RunE: runAuth,
}

func init() {
	rootCmd.AddCommand(authCmd)

	authCmd.Flags().String("network", "lastfm", "network: lastfm or librefm")
	authCmd.Flags().String("api-key", "", "API key (required)")
	authCmd.Flags().String("secret", "", "API shared secret")
	authCmd.Flags().String("username", "", "account username (required)")
	authCmd.Flags().String("session-key", "", "API session key (optional)")
	authCmd.MarkFlagRequired("api-key")
	authCmd.MarkFlagRequired("username")
}

func runAuth(cmd *cobra.Command, args []string) error {
	applyLogFlags()

	network, _ := cmd.Flags().GetString("network")
	if network != "lastfm" && network != "librefm" {
		return fmt.Errorf("unknown network %q (want lastfm or librefm)", network)
	}

	apiKey, _ := cmd.Flags().GetString("api-key")
	secret, _ := cmd.Flags().GetString("secret")
	username, _ := cmd.Flags().GetString("username")
	sessionKey, _ := cmd.Flags().GetString("session-key")

	auth := &lastfm.Auth{
		Network:      network,
		APIKey:       apiKey,
		SharedSecret: secret,
		Username:     username,
		SessionKey:   sessionKey,
	}

	if err := lastfm.SaveAuth(authPath(), auth); err != nil {
		return err
	}

	util.SuccessLog("Saved credentials for %s@%s to %s", username, network, authPath())
	return nil
}
