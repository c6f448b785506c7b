package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	redisDriver "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"im-sync/internal/auth"
	"im-sync/internal/config"
	"im-sync/internal/imtypes"
	appRedis "im-sync/internal/redis"
	"im-sync/internal/services"
	"im-sync/internal/storage"
)

// Flag variables.
var (
	configPath string
	token      string
	email      string
	password   string
	username   string
	display    string
	platform   string
	limit      int
)

func main() {
	// glog registers its flags on the standard flag set.
	rootCmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)
	_ = flag.CommandLine.Parse(nil)

	err := rootCmd.Execute()
	glog.Flush()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "syncclient",
	Short:         "Keeps a local, ordered copy of a chat account's messages and notifications in sync with the realtime server.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Signs in against the REST API and stores the token for later runs.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return errors.Wrap(err, "load config")
		}
		store, err := openTokenStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		if password == "" {
			password = os.Getenv("IM_SYNC_PASSWORD")
		}
		authService := services.NewAuthService(services.NewAPIClient(cfg.API, nil), store)
		session, err := authService.Login(cmd.Context(), email, password)
		if err != nil {
			return err
		}
		fmt.Printf("signed in as %s (%s)\n", session.User.Username, session.User.ID)
		return nil
	},
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Creates an account and stores its token for later runs.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return errors.Wrap(err, "load config")
		}
		store, err := openTokenStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		if password == "" {
			password = os.Getenv("IM_SYNC_PASSWORD")
		}
		authService := services.NewAuthService(services.NewAPIClient(cfg.API, nil), store)
		session, err := authService.Register(cmd.Context(), services.RegisterInput{
			Username:    username,
			Email:       email,
			Password:    password,
			DisplayName: display,
		})
		if err != nil {
			return err
		}
		fmt.Printf("registered %s (%s)\n", session.User.Username, session.User.ID)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forgets the stored token.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return errors.Wrap(err, "load config")
		}
		store, err := openTokenStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer store.Close()
		return services.NewAuthService(services.NewAPIClient(cfg.API, nil), store).Logout(cmd.Context())
	},
}

var pushTokenCmd = &cobra.Command{
	Use:   "push-token <device-token>",
	Short: "Registers a device push token for the signed in user.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return errors.Wrap(err, "load config")
		}
		store, err := openTokenStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		api := services.NewAPIClient(cfg.API, nil)
		stored, err := services.NewAuthService(api, store).Restore(cmd.Context())
		if err != nil {
			return errors.WithMessage(err, "not signed in")
		}
		identity, err := auth.ParseIdentity(stored)
		if err != nil {
			return err
		}
		return services.NewPushTokenService(api).Register(cmd.Context(), identity.UserID, args[0], platform)
	},
}

var conversationIDCmd = &cobra.Command{
	Use:   "conversation-id <user> <user>",
	Short: "Prints the conversation id the two users share.",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(imtypes.ConversationID(args[0], args[1]))
	},
}

var archiveCmd = &cobra.Command{
	Use:   "archive [conversation-id]",
	Short: "Lists archived conversations, or the archived messages of one conversation.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return errors.Wrap(err, "load config")
		}
		db, err := storage.InitDB(cfg.Database)
		if err != nil {
			return err
		}
		if err := storage.AutoMigrateTables(db); err != nil {
			return err
		}
		messages := storage.NewGormMessageRepository(db)

		if len(args) == 0 {
			ids, err := messages.ListConversations(cmd.Context())
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Println(id)
			}
			return nil
		}

		archived, err := messages.ListByConversation(cmd.Context(), args[0], limit, 0)
		if err != nil {
			return err
		}
		for _, a := range archived {
			m := a.Message()
			fmt.Printf("%s  %-12s %-9s %s\n", m.CreatedAt.Time().Format(time.RFC3339), m.From, m.Status, m.Text)
		}
		return nil
	},
}

// init is the initialization function for Cobra which defines flags.
func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"Path to a config file. By default ./config/config.yaml or ./config.yaml is used when present.")

	runCmd.Flags().StringVarP(&token, "token", "t", "",
		"Identity token. Overrides IDENTITY_TOKEN and the stored login token.")

	loginCmd.Flags().StringVarP(&email, "email", "e", "", "Account e-mail.")
	loginCmd.Flags().StringVarP(&password, "password", "p", "",
		"Account password. Read from IM_SYNC_PASSWORD when empty.")
	_ = loginCmd.MarkFlagRequired("email")

	registerCmd.Flags().StringVarP(&username, "username", "u", "", "Account user name.")
	registerCmd.Flags().StringVarP(&email, "email", "e", "", "Account e-mail.")
	registerCmd.Flags().StringVarP(&password, "password", "p", "",
		"Account password. Read from IM_SYNC_PASSWORD when empty.")
	registerCmd.Flags().StringVar(&display, "display-name", "", "Name shown to other users.")
	_ = registerCmd.MarkFlagRequired("username")
	_ = registerCmd.MarkFlagRequired("email")

	pushTokenCmd.Flags().StringVar(&platform, "platform", "web", "Device platform: web, ios or android.")

	archiveCmd.Flags().IntVarP(&limit, "limit", "n", 100, "Maximum number of messages to print.")

	rootCmd.AddCommand(runCmd, loginCmd, registerCmd, logoutCmd, pushTokenCmd, conversationIDCmd, archiveCmd)
}

// openTokenStore opens the configured token store. Tokens are sealed with
// TOKEN_STORE_SEAL_SECRET in either backend.
func openTokenStore(ctx context.Context, cfg config.Config) (auth.TokenStore, error) {
	sealer := auth.NewSealer(cfg.TokenStore.SealSecret)
	switch cfg.TokenStore.Type {
	case "redis":
		redisClient := redisDriver.NewClient(&redisDriver.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if _, err := redisClient.Ping(ctx).Result(); err != nil {
			_ = redisClient.Close()
			return nil, errors.Wrapf(err, "connect to redis at %s", cfg.Redis.Addr)
		}
		glog.V(1).Infof("syncclient: token store is redis %s", cfg.Redis.Addr)
		return appRedis.NewRedisTokenStore(redisClient, cfg.TokenStore.KeyPrefix, sealer), nil
	case "bolt", "":
		glog.V(1).Infof("syncclient: token store is %s", cfg.TokenStore.Path)
		return auth.NewBoltTokenStore(cfg.TokenStore.Path, cfg.TokenStore.Bucket, sealer)
	default:
		return nil, &imtypes.ConfigurationError{Field: "TOKEN_STORE.TYPE", Reason: "unsupported token store " + cfg.TokenStore.Type}
	}
}
