package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/e6labs/ultramemory/internal/agents"
)

var (
	// agent command flags
	agentDescription string
)

func init() {
	rootCmd.AddCommand(agentCmd)
	agentCmd.AddCommand(agentListCmd)
	agentCmd.AddCommand(agentRunCmd)
	agentCmd.AddCommand(agentCreateCmd)
	agentCmd.AddCommand(agentSkillsCmd)
	agentCmd.AddCommand(agentAddSkillCmd)

	agentCreateCmd.Flags().StringVar(&agentDescription, "description", "", "what the agent is for")
	agentAddSkillCmd.Flags().StringVar(&agentDescription, "description", "", "what the skill does")
}

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run and manage agents",
}

var agentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List built-in, custom and external agents",
	RunE:  runAgentList,
}

var agentRunCmd = &cobra.Command{
	Use:   "run <name> [args]...",
	Short: "Run an agent by name",
	Long: `Run an agent. Built-ins execute in-process; external agents are
listed but refused.

Examples:
  ulmem agent run librarian ./notes.md
  ulmem agent run consolidator
  ulmem agent run deleter obsolete staging notes`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAgentRun,
}

var agentCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Scaffold a custom agent",
	Args:  cobra.ExactArgs(1),
	RunE:  runAgentCreate,
}

var agentSkillsCmd = &cobra.Command{
	Use:   "skills <name>",
	Short: "Show a custom agent's skills",
	Args:  cobra.ExactArgs(1),
	RunE:  runAgentSkills,
}

var agentAddSkillCmd = &cobra.Command{
	Use:   "add-skill <agent> <skill>",
	Short: "Add a skill to a custom agent",
	Args:  cobra.ExactArgs(2),
	RunE:  runAgentAddSkill,
}

func runAgentList(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	infos, err := a.registry.List()
	if err != nil {
		return fmt.Errorf("list agents: %w", err)
	}
	if flagJSON {
		return outputJSON(infos)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tKIND\tAVAILABLE\tDESCRIPTION")
	for _, info := range infos {
		fmt.Fprintf(w, "%s\t%s\t%t\t%s\n", info.Name, info.Kind, info.Available, info.Description)
	}
	return w.Flush()
}

func runAgentRun(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	result, err := a.registry.Run(cmd.Context(), args[0], args[1:])
	if err != nil {
		return fmt.Errorf("run %s: %w", args[0], err)
	}
	return outputJSON(result)
}

func runAgentCreate(cmd *cobra.Command, args []string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}

	agent, err := agents.CreateCustomAgent(e.agentsDir(), args[0], agentDescription)
	if err != nil {
		return fmt.Errorf("create agent: %w", err)
	}
	if flagJSON {
		return outputJSON(agent)
	}
	fmt.Printf("Created agent %s\n", agent.Name)
	return nil
}

func runAgentSkills(cmd *cobra.Command, args []string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}

	agent, err := agents.LoadCustomAgent(e.agentsDir(), args[0])
	if err != nil {
		return err
	}
	if flagJSON {
		return outputJSON(agent.Skills)
	}
	if len(agent.Skills) == 0 {
		fmt.Printf("%s has no skills\n", agent.Name)
		return nil
	}
	for _, skill := range agent.Skills {
		fmt.Printf("%s\t%s\n", skill.Name, skill.Description)
	}
	return nil
}

func runAgentAddSkill(cmd *cobra.Command, args []string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}

	agent, err := agents.AddSkill(e.agentsDir(), args[0], agents.Skill{
		Name:        args[1],
		Description: agentDescription,
	})
	if err != nil {
		return fmt.Errorf("add skill: %w", err)
	}
	if flagJSON {
		return outputJSON(agent)
	}
	fmt.Printf("Agent %s now has %d skills\n", agent.Name, len(agent.Skills))
	return nil
}
