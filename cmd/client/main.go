package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pangmarket/authd/pkg/authclient"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var serverURL string
	var stateFile string

	rootCmd := &cobra.Command{
		Use:   "authcli",
		Short: "Client for the auth service with transparent access token refresh",
	}
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:3001", "Auth service base URL")
	rootCmd.PersistentFlags().StringVar(&stateFile, "state_file", defaultStateFile(), "Path to the local session state file")

	buildClient := func(ctx context.Context) (*authclient.Client, error) {
		if mkdirErr := os.MkdirAll(filepath.Dir(stateFile), 0o700); mkdirErr != nil {
			return nil, mkdirErr
		}
		storage, storageErr := authclient.NewDatabaseStateStorage(ctx, stateFile, authclient.DefaultStateNamespace)
		if storageErr != nil {
			return nil, storageErr
		}
		return authclient.NewClient(ctx, authclient.Config{
			BaseURL: serverURL,
			Storage: storage,
			Logger:  zap.NewNop(),
		})
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "signup <email> <password> <name>",
		Short: "Register a new account",
		Args:  cobra.ExactArgs(3),
		RunE: func(command *cobra.Command, arguments []string) error {
			ctx, cancel := commandContext(command)
			defer cancel()
			client, clientErr := buildClient(ctx)
			if clientErr != nil {
				return clientErr
			}
			result, signupErr := client.Signup(ctx, arguments[0], arguments[1], arguments[2])
			if signupErr != nil {
				return signupErr
			}
			command.Printf("%s (%s)\n", result.Message, result.User.Email)
			return nil
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "login <email> <password>",
		Short: "Log in and persist the session",
		Args:  cobra.ExactArgs(2),
		RunE: func(command *cobra.Command, arguments []string) error {
			ctx, cancel := commandContext(command)
			defer cancel()
			client, clientErr := buildClient(ctx)
			if clientErr != nil {
				return clientErr
			}
			profile, loginErr := client.Login(ctx, arguments[0], arguments[1])
			if loginErr != nil {
				return loginErr
			}
			command.Printf("logged in as %s <%s>\n", profile.Name, profile.Email)
			return nil
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "me",
		Short: "Show the authenticated profile, refreshing the access token if needed",
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, arguments []string) error {
			ctx, cancel := commandContext(command)
			defer cancel()
			client, clientErr := buildClient(ctx)
			if clientErr != nil {
				return clientErr
			}
			profile, meErr := client.CurrentUser(ctx)
			if meErr != nil {
				return meErr
			}
			command.Printf("%s <%s> (id %s)\n", profile.Name, profile.Email, profile.ID)
			return nil
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "logout",
		Short: "Log out and clear the persisted session",
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, arguments []string) error {
			ctx, cancel := commandContext(command)
			defer cancel()
			client, clientErr := buildClient(ctx)
			if clientErr != nil {
				return clientErr
			}
			if logoutErr := client.Logout(ctx); logoutErr != nil {
				return logoutErr
			}
			command.Println("logged out")
			return nil
		},
	})

	return rootCmd
}

func commandContext(command *cobra.Command) (context.Context, context.CancelFunc) {
	parent := command.Context()
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, 30*time.Second)
}

func defaultStateFile() string {
	homeDir, homeErr := os.UserHomeDir()
	if homeErr != nil {
		return "authcli_state.db"
	}
	return filepath.Join(homeDir, ".authcli", "state.db")
}
