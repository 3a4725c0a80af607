package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"missionline/internal/domain"
	"missionline/internal/engine"
	"missionline/internal/repo"
)

func employeeCmd() *cobra.Command {
	ec := &cobra.Command{Use: "employee", Short: "Manage employees"}

	var id, first, last string
	add := &cobra.Command{
		Use:   "add",
		Short: "Add an employee",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				emp, err := e.CreateEmployee(ctx, engine.EmployeeCreateOptions{ID: id, FirstName: first, LastName: last})
				if err != nil {
					return err
				}
				return printEmployees([]domain.Employee{emp})
			})
		},
	}
	add.Flags().StringVar(&id, "id", "", "employee id (generated when empty)")
	add.Flags().StringVar(&first, "first-name", "", "first name")
	add.Flags().StringVar(&last, "last-name", "", "last name")
	_ = add.MarkFlagRequired("first-name")
	_ = add.MarkFlagRequired("last-name")

	list := &cobra.Command{
		Use:   "list",
		Short: "List employees",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListEmployees(ctx)
				if err != nil {
					return err
				}
				return printEmployees(items)
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete <employee-id>",
		Short: "Delete an employee that is on no mission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.DeleteEmployee(ctx, args[0]); err != nil {
					return err
				}
				fmt.Printf("Deleted employee %s\n", args[0])
				return nil
			})
		},
	}

	ec.AddCommand(add, list, del)
	return ec
}

func projectCmd() *cobra.Command {
	pc := &cobra.Command{Use: "project", Short: "Manage projects"}

	var name, desc string
	add := &cobra.Command{
		Use:   "add",
		Short: "Add a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.CreateProject(ctx, name, desc)
				if err != nil {
					return err
				}
				return printProjects([]domain.Project{p})
			})
		},
	}
	add.Flags().StringVar(&name, "name", "", "project name")
	add.Flags().StringVar(&desc, "description", "", "project description")
	_ = add.MarkFlagRequired("name")

	list := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListProjects(ctx)
				if err != nil {
					return err
				}
				return printProjects(items)
			})
		},
	}

	pc.AddCommand(add, list)
	return pc
}

func missionCmd() *cobra.Command {
	mc := &cobra.Command{Use: "mission", Short: "Plan and inspect missions"}
	mc.AddCommand(missionCreateCmd())
	mc.AddCommand(missionListCmd())
	mc.AddCommand(missionShowCmd())
	return mc
}

func missionCreateCmd() *cobra.Command {
	var opts engine.MissionCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a mission; tasks are copied from the type's templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.CreateMission(ctx, opts)
				if err != nil {
					return err
				}
				v, err := e.GetMission(ctx, m.ID)
				if err != nil {
					return err
				}
				return printMission(v)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "mission id (generated when empty)")
	cmd.Flags().StringVar(&opts.Date, "date", "", "mission date (YYYY-MM-DD)")
	cmd.Flags().Int64Var(&opts.MissionTypeID, "type", 0, "mission type id")
	cmd.Flags().Int64Var(&opts.ProjectID, "project", 0, "project id")
	cmd.Flags().StringVar(&opts.Description, "description", "", "free text")
	cmd.Flags().StringSliceVar(&opts.EmployeeIDs, "employee", nil, "employee id (repeatable)")
	cmd.Flags().StringVar(&opts.TeamLeaderID, "leader", "", "team leader, one of --employee")
	for _, f := range []string{"date", "type", "project", "employee", "leader"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

func missionListCmd() *cobra.Command {
	var f repo.MissionFilter
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List missions, newest date first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListMissions(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"", "ID", "Date", "Type", "Project", "Leader", "Done"})
				for _, v := range items {
					tw.AppendRow(table.Row{lamp(v.Status), v.ID, v.Date, v.MissionTypeName, v.ProjectName, leaderName(v.Team), progress(v.Tasks)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Date, "date", "", "only this date (YYYY-MM-DD)")
	cmd.Flags().Int64Var(&f.MissionTypeID, "type", 0, "mission type id")
	cmd.Flags().Int64Var(&f.ProjectID, "project", 0, "project id")
	cmd.Flags().StringVar(&f.EmployeeID, "employee", "", "employee id")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "maximum rows")
	return cmd
}

func missionShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <mission-id>",
		Short: "Show a mission with its team and tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				v, err := e.GetMission(ctx, args[0])
				if err != nil {
					return err
				}
				return printMission(v)
			})
		},
	}
}

func taskCmd() *cobra.Command {
	tc := &cobra.Command{Use: "task", Short: "Move mission tasks through their lifecycle"}
	var expect string
	transition := &cobra.Command{
		Use:       "transition <task-id> <status>",
		Short:     "Change a task's status (new, in_progress, paused, completed)",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"in_progress", "paused", "completed"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target, ok := domain.ParseTaskStatus(args[1])
			if !ok {
				return domain.ValidationError{Field: "status", Reason: "unknown status " + args[1]}
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var task domain.MissionTask
				var err error
				if expect != "" {
					expected, ok := domain.ParseTaskStatus(expect)
					if !ok {
						return domain.ValidationError{Field: "expect", Reason: "unknown status " + expect}
					}
					task, err = e.TransitionExpecting(ctx, args[0], expected, target)
				} else {
					task, err = e.TransitionTask(ctx, args[0], target)
				}
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(task)
				}
				fmt.Printf("%s %s -> %s\n", task.ID, task.Description, task.Status)
				return nil
			})
		},
	}
	transition.Flags().StringVar(&expect, "expect", "", "only apply if the task is still in this status")
	tc.AddCommand(transition)
	return tc
}

func printEmployees(items []domain.Employee) error {
	if viper.GetBool("json") {
		return printJSON(items)
	}
	tw := newTable()
	tw.AppendHeader(table.Row{"ID", "First name", "Last name"})
	for _, emp := range items {
		tw.AppendRow(table.Row{emp.ID, emp.FirstName, emp.LastName})
	}
	tw.Render()
	return nil
}

func printProjects(items []domain.Project) error {
	if viper.GetBool("json") {
		return printJSON(items)
	}
	tw := newTable()
	tw.AppendHeader(table.Row{"ID", "Name", "Description"})
	for _, p := range items {
		tw.AppendRow(table.Row{p.ID, p.Name, p.Description})
	}
	tw.Render()
	return nil
}

func printMission(v domain.MissionView) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	fmt.Printf("%s %s  %s  %s / %s  (%d min)\n", lamp(v.Status), v.ID, v.Date, v.MissionTypeName, v.ProjectName, v.EstimatedDuration)
	if v.Description != "" {
		fmt.Println(v.Description)
	}
	for _, m := range v.Team {
		role := ""
		if m.IsTeamLeader {
			role = color.New(color.Bold).Sprint(" (leader)")
		}
		fmt.Printf("  %s %s [%s]%s\n", m.FirstName, m.LastName, m.ID, role)
	}
	if len(v.Tasks) == 0 {
		fmt.Fprintln(os.Stderr, color.New(color.FgYellow).Sprint("mission has no tasks"))
		return nil
	}
	tw := newTable()
	tw.AppendHeader(table.Row{"#", "Task ID", "Description", "Minutes", "Status", "Started", "Stopped"})
	for _, t := range v.Tasks {
		tw.AppendRow(table.Row{t.Ord, t.ID, t.Description, t.EstimatedDuration, t.Status, stampText(t.StartStamp), stampText(t.StopStamp)})
	}
	tw.Render()
	return nil
}

func lamp(s domain.MissionStatus) string {
	switch s {
	case domain.MissionGreen:
		return color.New(color.FgGreen).Sprint("●")
	case domain.MissionOrange:
		return color.New(color.FgYellow).Sprint("●")
	default:
		return color.New(color.FgRed).Sprint("●")
	}
}

func leaderName(team []domain.TeamMember) string {
	for _, m := range team {
		if m.IsTeamLeader {
			return m.FirstName + " " + m.LastName
		}
	}
	return ""
}

func progress(tasks []domain.MissionTask) string {
	done := 0
	for _, t := range tasks {
		if t.Status == domain.StatusCompleted {
			done++
		}
	}
	return fmt.Sprintf("%d/%d", done, len(tasks))
}
