package cmd

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/openfms/agvd/config"
	"github.com/openfms/agvd/core/planner"
	"github.com/openfms/agvd/infra/logger"
	"github.com/openfms/agvd/infra/storage"
)

var planCmd = &cobra.Command{
	Use:   "plan <from-station> <to-station>",
	Short: "Plan a route between two stations and print it",
	Args:  cobra.ExactArgs(2),
	RunE:  planRoute,
}

func init() {
	rootCmd.AddCommand(planCmd)
}

func planRoute(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	mapID, err := uuid.Parse(cfg.Map.ID)
	if err != nil {
		return fmt.Errorf("map id: %w", err)
	}

	db, err := storage.Open(cfg.Storage)
	if err != nil {
		return err
	}
	store := storage.NewStore(db)
	nodes, edges, stations, err := store.LoadGraph(context.Background(), mapID)
	if err != nil {
		return err
	}

	pln := planner.New(nodes, edges, stations, logger.New("planner"))
	route, err := pln.PlanRoute(args[0], args[1])
	if err != nil {
		return err
	}

	fmt.Printf("%s -> %s, total distance %.2f\n", route.StartStationCode, route.EndStationCode, route.TotalDistance)
	fmt.Println("checkpoints:")
	for _, c := range route.Checkpoints {
		fmt.Printf("  %3d  %-12s %s\n", c.Seq, c.StationCode, c.Type)
	}
	fmt.Println("segments:")
	for _, s := range route.Segments {
		fmt.Printf("  %3d  edge %s  %s  %s\n", s.Seq, s.EdgeID, s.Direction, s.FinalAction)
	}
	return nil
}
