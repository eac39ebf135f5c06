package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/afesign/internal/auth"
	"github.com/dharsanguruparan/afesign/internal/config"
	"github.com/dharsanguruparan/afesign/internal/database"
	"github.com/dharsanguruparan/afesign/internal/model"
	"github.com/dharsanguruparan/afesign/internal/repository"
)

func loadConfig() (*config.Config, error) {
	return config.Load(nil)
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema (AFE_DATABASE_URL)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if !cfg.UsesDatabase() {
				return errors.New("AFE_DATABASE_URL is not set")
			}
			pool, err := database.Connect(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer pool.Close()
			if err := database.EnsureSchema(cmd.Context(), pool); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
}

func newSeedAdminCmd() *cobra.Command {
	var name, email, title string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "seed-admin",
		Short: "Insert an administrator and print a token for it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if !cfg.UsesDatabase() {
				return errors.New("AFE_DATABASE_URL is not set")
			}
			pool, err := database.Connect(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer pool.Close()
			if err := database.EnsureSchema(cmd.Context(), pool); err != nil {
				return err
			}
			user := model.User{ID: uuid.NewString(), Name: name, Email: email, Title: title, Role: model.RoleAdmin}
			if err := repository.New(pool).CreateUser(cmd.Context(), &user); err != nil {
				return err
			}
			token, err := auth.IssueToken(user, cfg.JWTSecret, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created admin %s (%s)\n%s\n", user.Email, user.ID, token)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "Administrator", "Display name")
	cmd.Flags().StringVar(&email, "email", "", "Email address")
	cmd.Flags().StringVar(&title, "title", "", "Job title")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newTokenCmd() *cobra.Command {
	var user model.User
	var role string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token signed with AFE_JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			user.Role = model.Role(role)
			if !user.Role.Valid() {
				return fmt.Errorf("unknown role %q", role)
			}
			token, err := auth.IssueToken(user, cfg.JWTSecret, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&user.ID, "id", "", "User id (token subject)")
	cmd.Flags().StringVar(&user.Name, "name", "", "Display name")
	cmd.Flags().StringVar(&user.Email, "email", "", "Email address")
	cmd.Flags().StringVar(&role, "role", string(model.RoleSigner), "ADMIN, SIGNER or VIEWER")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}
