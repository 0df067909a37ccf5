package cli

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/midodimori/langrepl/internal/approval"
	"github.com/midodimori/langrepl/internal/config"
	"github.com/midodimori/langrepl/internal/tools"
)

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Inspect the tool approval policy",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

var policyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the active rules and mode",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, rules, err := loadPolicy()
		if err != nil {
			return err
		}
		fmt.Printf("Mode: %s\n\n", cfg.Approval.Mode)
		fmt.Println(color.GreenString("Always allow:"))
		printRules(rules.AlwaysAllow)
		fmt.Println(color.RedString("Always deny:"))
		printRules(rules.AlwaysDeny)
		return nil
	},
}

var policyCheckCmd = &cobra.Command{
	Use:   "check <tool> [key=value ...]",
	Short: "Evaluate a hypothetical tool call against the policy",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, rules, err := loadPolicy()
		if err != nil {
			return err
		}
		mode, err := approval.ParseMode(cfg.Approval.Mode)
		if err != nil {
			return err
		}
		if flagMode, _ := cmd.Flags().GetString("mode"); flagMode != "" {
			if mode, err = approval.ParseMode(flagMode); err != nil {
				return err
			}
		}

		callArgs := make(map[string]any)
		for _, kv := range args[1:] {
			k, v, ok := strings.Cut(kv, "=")
			if !ok {
				return fmt.Errorf("argument %q is not key=value", kv)
			}
			callArgs[k] = v
		}

		engine := approval.NewEngine(mode, rules)
		decision := engine.Decide(tools.Call{ID: "check", Name: args[0], Args: callArgs})
		switch decision.Effect {
		case approval.EffectAllow:
			fmt.Println(color.GreenString("allow") + "  " + decision.Reason)
		case approval.EffectDeny:
			fmt.Println(color.RedString("deny") + "  " + decision.Reason)
		default:
			fmt.Println(color.YellowString("ask user") + "  " + decision.Reason)
		}
		return nil
	},
}

func loadPolicy() (*config.Config, *approval.Rules, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	rules, err := approval.LoadRules(cfg.RulesPath())
	if err != nil {
		return nil, nil, err
	}
	return cfg, rules, nil
}

func printRules(rules []approval.Rule) {
	if len(rules) == 0 {
		fmt.Println("  (none)")
		return
	}
	for _, r := range rules {
		fmt.Printf("  %s\n", r)
	}
}

func init() {
	policyCheckCmd.Flags().String("mode", "", "override the configured approval mode")
	policyCmd.AddCommand(policyShowCmd)
	policyCmd.AddCommand(policyCheckCmd)
}
