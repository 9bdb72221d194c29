package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fieldops/dispatch-service/internal/auth"
	"github.com/fieldops/dispatch-service/internal/domain"
)

var (
	userID     string
	userName   string
	userRole   string
	backbone   bool
	vendor     bool
	homeFirst  bool
	seedFile   string
	tokenTTL   int
	tokenOwner string
)

func newUsersCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage the user directory",
	}

	create := &cobra.Command{
		Use:   "create",
		Short: "Create a directory entry",
		Long:  `Create a user directly in the directory. Use it to bootstrap the first administrator.`,
		RunE:  runUsersCreate,
	}
	create.Flags().StringVar(&userID, "id", "", "User id (uuid); generated when empty")
	create.Flags().StringVar(&userName, "name", "", "Display name (required)")
	create.Flags().StringVar(&userRole, "role", string(domain.RoleTechnician), "superadmin, admin, helpdesk or technician")
	create.Flags().BoolVar(&backbone, "backbone", false, "Technician handles backbone maintenance only")
	create.Flags().BoolVar(&vendor, "vendor", false, "Technician is a vendor specialist")
	create.Flags().BoolVar(&homeFirst, "home-first", false, "Prefer home maintenance whenever any is open")
	_ = create.MarkFlagRequired("name")

	cmd.AddCommand(create)
	return cmd
}

func runUsersCreate(cmd *cobra.Command, _ []string) error {
	role := domain.Role(strings.ToLower(userRole))
	switch role {
	case domain.RoleSuperAdmin, domain.RoleAdmin, domain.RoleHelpdesk, domain.RoleTechnician:
	default:
		return fmt.Errorf("unknown role %q", userRole)
	}
	if role != domain.RoleTechnician && (backbone || vendor || homeFirst) {
		return fmt.Errorf("specialty flags apply to technicians only")
	}

	rt, err := openRuntime(cmd.Context())
	if err != nil {
		return err
	}
	defer rt.Close()

	user := &domain.User{
		ID:                        userID,
		Name:                      strings.TrimSpace(userName),
		Role:                      role,
		Active:                    true,
		BackboneSpecialist:        backbone,
		VendorSpecialist:          vendor,
		PrioritizeHomeMaintenance: homeFirst,
	}
	if err := rt.Users.Create(cmd.Context(), user); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "created %s %s (%s)\n", user.Role, user.ID, user.Name)
	return nil
}

func newTokenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for a directory user",
		RunE:  runToken,
	}
	cmd.Flags().StringVar(&tokenOwner, "user", "", "User id (required)")
	cmd.Flags().IntVar(&tokenTTL, "ttl", 0, "Lifetime in minutes; defaults to AUTH_ACCESS_TOKEN_TTL_MINUTES")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func runToken(cmd *cobra.Command, _ []string) error {
	rt, err := openRuntime(cmd.Context())
	if err != nil {
		return err
	}
	defer rt.Close()

	actor, err := loadActor(cmd.Context(), rt.Users, tokenOwner)
	if err != nil {
		return err
	}
	ttl := tokenTTL
	if ttl <= 0 {
		ttl = rt.Config.Auth.AccessTokenTTLMinutes
	}
	token, exp, err := auth.NewTokenManager(rt.Config.Auth.JWTSecret, ttl).GenerateToken(actor.UserID, actor.Role)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s\nexpires %s\n", token, exp.Format("2006-01-02T15:04:05Z07:00"))
	return nil
}

func newSeedCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Apply a settings seed file",
		Long:  `Write fee schedules and the dispatch ratio from a YAML file. Keys that already exist are left alone.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()
			return rt.ApplySeed(cmd.Context(), seedFile)
		},
	}
	cmd.Flags().StringVarP(&seedFile, "file", "f", "", "Seed YAML path (required)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
