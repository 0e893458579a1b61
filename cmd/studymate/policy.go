package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"studymate/internal/config"
)

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Inspect and validate policy data",
}

var policyCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the policy YAML files",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		policy := config.DefaultPolicy()
		source := "built-in defaults"
		if cfg.PolicyDir != "" {
			policy, err = config.LoadPolicy(cfg.PolicyDir)
			if err != nil {
				return err
			}
			source = cfg.PolicyDir
		}

		if err := policy.Validate(); err != nil {
			return fmt.Errorf("policy invalid: %w", err)
		}

		fmt.Printf("Policy OK (%s)\n", source)
		fmt.Printf("  trusted domains:       %d\n", len(policy.TrustedDomains))
		fmt.Printf("  trusted TLDs:          %d\n", len(policy.TrustedTLDs))
		fmt.Printf("  safety categories:     %d\n", len(policy.SafetyCategories))
		fmt.Printf("  redirect templates:    %d\n", len(policy.RedirectTemplates))
		fmt.Printf("  banned video keywords: %d\n", len(policy.BannedVideoKeywords))
		return nil
	},
}

func init() {
	policyCmd.AddCommand(policyCheckCmd)
}
