package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/groundctl/passplan/app"
	"github.com/groundctl/passplan/config"
	"github.com/groundctl/passplan/core/model"
	"github.com/groundctl/passplan/infra/logger"
)

var (
	planSave          bool
	planForce         bool
	planAcknowledge   bool
	planJustification string
)

var planCmd = &cobra.Command{
	Use:   "plan <scenario.json>",
	Short: "Auto-optimize an opportunity's allocation from a scenario file",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlan,
}

func init() {
	planCmd.Flags().BoolVar(&planSave, "save", false, "save the optimized allocation to the backing store")
	planCmd.Flags().BoolVar(&planForce, "force", false, "force override blocking capacity/window conflicts")
	planCmd.Flags().BoolVar(&planAcknowledge, "ack", false, "acknowledge the opportunity's classification marking")
	planCmd.Flags().StringVar(&planJustification, "justification", "", "justification text recorded with the save")
	rootCmd.AddCommand(planCmd)
}

// scenario is the CLI input: one opportunity plus its candidate sites.
type scenario struct {
	Opportunity model.Opportunity `json:"opportunity"`
	Sites       []model.Site      `json:"candidate_sites"`
}

func runPlan(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.New("plan-command").Errorf("service close: %v", err)
		}
	}()

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read scenario: %w", err)
	}
	var sc scenario
	if err := json.Unmarshal(data, &sc); err != nil {
		return fmt.Errorf("parse scenario: %w", err)
	}

	sess, err := svc.OpenSession(sc.Opportunity, sc.Sites)
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}

	if planForce {
		if err := sess.SetForceOverride(true); err != nil {
			return err
		}
	}
	res, err := sess.ApplyMutation(model.AutoOptimize{})
	if err != nil {
		return fmt.Errorf("auto-optimize: %w", err)
	}

	fmt.Printf("opportunity %s: %d passes required\n", sc.Opportunity.ID, sc.Opportunity.RequiredPasses)
	for _, rep := range res.Resolution.Capacity.Sites {
		fmt.Printf("  site %-12s %3d passes  %3d remaining  %-8s\n",
			rep.SiteID, rep.RequestedPasses, rep.RemainingBefore, rep.Severity)
	}
	for _, c := range res.Resolution.Conflicts {
		fmt.Printf("  conflict [%s] %s\n", c.Kind, c.Reason)
	}
	if res.Residual > 0 {
		fmt.Printf("  residual: %d passes unallocated\n", res.Residual)
	}

	if !planSave {
		return sess.Discard()
	}

	if planJustification != "" {
		if _, err := sess.ApplyMutation(model.SetJustification{Text: planJustification}); err != nil {
			return err
		}
	}
	if planAcknowledge {
		if _, err := sess.ApplyMutation(model.AcknowledgeClassification{Acknowledged: true}); err != nil {
			return err
		}
	}
	if err := sess.EnterJustification(false); err != nil {
		return fmt.Errorf("enter justification: %w", err)
	}
	if err := sess.EnterReview(); err != nil {
		return fmt.Errorf("enter review: %w", err)
	}
	if !sess.CanSave() {
		return fmt.Errorf("not savable: %v", sess.SaveBlockers())
	}
	req, err := sess.Save(ctx)
	if err != nil {
		return fmt.Errorf("save: %w", err)
	}
	fmt.Printf("saved override %s for opportunity %s\n", req.RequestID, req.OpportunityID)
	return nil
}
