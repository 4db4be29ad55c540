package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/openctemio/reposcan/pkg/domain/plan"
)

// ErrDenied is returned by "plans check" when the plan lacks the permission.
// The command has already reported the result.
var ErrDenied = errors.New("permission denied by plan")

var titleCase = cases.Title(language.English)

// planView is the machine readable form of one plan.
type planView struct {
	Name        string          `json:"name" yaml:"name"`
	Rank        int             `json:"rank" yaml:"rank"`
	Permissions []string        `json:"permissions" yaml:"permissions"`
	Limits      plan.PlanLimits `json:"limits" yaml:"limits"`
}

func newPlansCommand() *cobra.Command {
	plans := &cobra.Command{
		Use:   "plans",
		Short: "Inspect the plan catalog",
	}
	plans.AddCommand(newPlansListCommand())
	plans.AddCommand(newPlansCheckCommand())
	plans.AddCommand(newPlansLimitCommand())
	plans.AddCommand(newPlansVerifyCommand())
	return plans
}

func newPlansListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List plans with their limits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			views := make([]planView, 0, len(plan.All()))
			for _, p := range plan.All() {
				perms, err := plan.Permissions(p)
				if err != nil {
					return err
				}
				limits, err := plan.Limits(p)
				if err != nil {
					return err
				}
				views = append(views, planView{Name: p.String(), Rank: p.Rank(), Permissions: perms, Limits: limits})
			}

			out := cmd.OutOrStdout()
			if done, err := render(out, views); done {
				return err
			}

			t := newTable(out, "PLAN", "SCANS/DAY", "WORKSPACES", "USERS/WORKSPACE", "RETENTION (DAYS)", "PERMISSIONS")
			for _, v := range views {
				t.AddRow(
					titleCase.String(strings.ToLower(v.Name)),
					plan.LimitOf(v.Limits.ScansPerDay).String(),
					plan.LimitOf(v.Limits.MaxWorkspaces).String(),
					plan.LimitOf(v.Limits.MaxUsersPerWorkspace).String(),
					plan.LimitOf(v.Limits.RetentionDays).String(),
					fmt.Sprint(len(v.Permissions)),
				)
			}
			return t.Flush()
		},
	}
}

func newPlansCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check PLAN PERMISSION",
		Short: "Check whether a plan grants a permission",
		Long:  "Prints granted or denied. Exits with status 1 when denied.",
		Example: `  reposcan-admin plans check pro SCAN:SCHEDULE
  reposcan-admin plans check STARTER AUDIT:READ`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := plan.ParsePlan(args[0])
			if err != nil {
				return err
			}
			perm := strings.ToUpper(strings.TrimSpace(args[1]))
			granted, err := plan.HasPermission(p, perm)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if granted {
				fmt.Fprintf(out, "granted: %s includes %s\n", p, perm)
				return nil
			}
			if required, ok := plan.MinimumPlanFor(perm); ok {
				fmt.Fprintf(out, "denied: %s lacks %s (requires %s)\n", p, perm, required)
			} else {
				fmt.Fprintf(out, "denied: no plan grants %s\n", perm)
			}
			return ErrDenied
		},
	}
}

func newPlansLimitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "limit PLAN LIMIT",
		Short: "Print one limit of a plan",
		Long: fmt.Sprintf("Prints the raw value, %d meaning unlimited. Limits: %s.",
			plan.Unlimited, joinLimitNames()),
		Example: "  reposcan-admin plans limit business maxWorkspaces",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := plan.ParsePlan(args[0])
			if err != nil {
				return err
			}
			name, err := plan.ParseLimitName(args[1])
			if err != nil {
				return err
			}
			v, err := plan.GetLimit(p, name)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		},
	}
}

func joinLimitNames() string {
	names := plan.LimitNames()
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = string(n)
	}
	return strings.Join(out, ", ")
}

func newPlansVerifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check the plan tables for consistency",
		Long: `Every plan must have a permission and a limits entry, a higher plan must
grant everything a lower plan grants, and no limit may shrink from one plan
to the next.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			problems := verifyPlans()
			out := cmd.OutOrStdout()
			if len(problems) == 0 {
				fmt.Fprintf(out, "ok: %d plans, %d permissions, %d limits\n",
					len(plan.All()), len(plan.KnownPermissions()), len(plan.LimitNames()))
				return nil
			}
			for _, p := range problems {
				fmt.Fprintln(out, p)
			}
			return fmt.Errorf("%d problems found", len(problems))
		},
	}
}

func verifyPlans() []string {
	var problems []string
	plans := plan.All()
	for _, p := range plans {
		if _, err := plan.Permissions(p); err != nil {
			problems = append(problems, err.Error())
		}
		if _, err := plan.Limits(p); err != nil {
			problems = append(problems, err.Error())
		}
	}
	for _, v := range plan.CheckMonotonic() {
		problems = append(problems, v.String())
	}
	for i := 1; i < len(plans); i++ {
		lower, higher := plans[i-1], plans[i]
		for _, name := range plan.LimitNames() {
			lo, err1 := plan.Lookup(lower, name)
			hi, err2 := plan.Lookup(higher, name)
			if err1 != nil || err2 != nil {
				continue
			}
			if shrinks(lo, hi) {
				problems = append(problems, fmt.Sprintf("%s %s is %s, below %s's %s", higher, name, hi, lower, lo))
			}
		}
	}
	return problems
}

// shrinks reports whether hi allows less than lo. Unlimited is the largest value.
func shrinks(lo, hi plan.Limit) bool {
	switch {
	case hi.IsUnlimited():
		return false
	case lo.IsUnlimited():
		return true
	default:
		return hi.Max() < lo.Max()
	}
}
